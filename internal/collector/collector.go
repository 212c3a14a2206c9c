package collector

import (
	"context"
	"errors"
	"fmt"
	"os"

	"kvstore-collector/internal/collector/adapter/kvstore"
	"kvstore-collector/internal/collector/adapter/persistence"
	mongodbpersistence "kvstore-collector/internal/collector/adapter/persistence/mongodb"
	sqlitepersistence "kvstore-collector/internal/collector/adapter/persistence/sqlite"
	"kvstore-collector/internal/collector/adapter/source"
	"kvstore-collector/internal/collector/config"
	"kvstore-collector/internal/collector/domain/model"
	"kvstore-collector/internal/collector/domain/repository"
	"kvstore-collector/internal/collector/usecase"
	apperrors "kvstore-collector/internal/shared/errors"
	"kvstore-collector/internal/shared/logger"

	"github.com/redis/go-redis/v9"
)

// CollectorModule wires the store client, the run tracker, the event sink
// and the run lock around a use-case Collector.
type CollectorModule struct {
	Config    *config.Config
	Logger    logger.Logger
	Store     repository.KVStore
	Tracker   repository.RunTracker
	Status    repository.StatusReader
	Sink      repository.EventSink
	Locker    repository.RunLocker
	Collector *usecase.Collector

	RedisClient *redis.Client

	closers []func(context.Context) error
}

// RunOutcome is the result of running one input.
type RunOutcome struct {
	Input    string
	Snapshot model.StatusSnapshot
	Err      error
}

// NewCollectorModule builds every component selected by cfg.
func NewCollectorModule(ctx context.Context, cfg *config.Config, log logger.Logger) (*CollectorModule, error) {
	if log == nil {
		log = logger.NopLogger{}
	}
	m := &CollectorModule{Config: cfg, Logger: log}

	store, err := newStoreClient(cfg.KVStore, log)
	if err != nil {
		return nil, err
	}
	m.Store = store

	if cfg.NeedsRedis() {
		m.RedisClient = config.NewRedisClient(cfg.Redis)
		if err := m.RedisClient.Ping(ctx).Err(); err != nil {
			m.RedisClient.Close()
			return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Redis.Addr, err)
		}
		m.closers = append(m.closers, func(context.Context) error { return m.RedisClient.Close() })
		log.WithFields(map[string]interface{}{"addr": cfg.Redis.Addr}).Info("Redis client connected")
	}

	if err := m.initTracker(ctx); err != nil {
		m.Close(ctx)
		return nil, err
	}
	if err := m.initSink(); err != nil {
		m.Close(ctx)
		return nil, err
	}
	m.initLocker()

	m.Collector = usecase.NewCollector(m.Store, m.Tracker, m.Sink, m.Locker, log, usecase.CollectorOptions{
		RowLimit:       cfg.RowLimit,
		EnsureAttempts: cfg.KVStore.EnsureAttempts,
	})
	log.WithFields(map[string]interface{}{
		"tracker": cfg.Tracker.Backend,
		"sink":    cfg.Sink.Backend,
		"lock":    cfg.Lock.Enabled,
	}).Info("collector module initialized")
	return m, nil
}

// NewCollectorModuleWithStore wires a module around an existing store,
// tracker and sink. A nil tracker falls back to the in-memory tracker.
func NewCollectorModuleWithStore(cfg *config.Config, log logger.Logger, store repository.KVStore, tracker repository.RunTracker, sink repository.EventSink) *CollectorModule {
	if log == nil {
		log = logger.NopLogger{}
	}
	if tracker == nil {
		tracker = persistence.NewMemoryStatusStore()
	}
	m := &CollectorModule{
		Config:  cfg,
		Logger:  log,
		Store:   store,
		Tracker: tracker,
		Sink:    sink,
		Locker:  repository.NoopLocker{},
	}
	if reader, ok := tracker.(repository.StatusReader); ok {
		m.Status = reader
	}
	m.Collector = usecase.NewCollector(store, tracker, sink, m.Locker, log, usecase.CollectorOptions{
		RowLimit:       cfg.RowLimit,
		EnsureAttempts: cfg.KVStore.EnsureAttempts,
	})
	return m
}

func newStoreClient(cfg config.KVStoreConfig, log logger.Logger) (*kvstore.Client, error) {
	credential, err := kvstore.NewCredential(cfg.AuthScheme, cfg.Token, kvstore.JWTOptions{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Subject:  cfg.JWTSubject,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	})
	if err != nil {
		return nil, apperrors.NewConfigurationError("invalid store credential").WithCause(err)
	}
	if cfg.InsecureSkipVerify {
		log.WithFields(map[string]interface{}{"host": cfg.Host}).
			Warn("TLS certificate verification is disabled for the key-value store")
	}
	return kvstore.NewClient(kvstore.Options{
		Host:               cfg.Host,
		Owner:              cfg.Owner,
		Credential:         credential,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		ConfigTimeout:      cfg.ConfigTimeout,
		DataTimeout:        cfg.DataTimeout,
		BulkTimeout:        cfg.BulkTimeout,
	}, log)
}

func (m *CollectorModule) initTracker(ctx context.Context) error {
	cfg := m.Config.Tracker
	switch cfg.Backend {
	case config.TrackerRedis:
		store := persistence.NewRedisStatusStore(m.RedisClient, cfg.RedisKeyPrefix, m.Logger)
		m.Tracker, m.Status = store, store
	case config.TrackerMongoDB:
		store, err := mongodbpersistence.Connect(ctx, cfg.MongoDBURI, cfg.MongoDatabase, cfg.MongoCollection, m.Logger)
		if err != nil {
			return err
		}
		m.Tracker, m.Status = store, store
		m.closers = append(m.closers, store.Close)
	case config.TrackerSQLite:
		store, err := sqlitepersistence.Open(cfg.SQLitePath)
		if err != nil {
			return err
		}
		m.Tracker, m.Status = store, store
		m.closers = append(m.closers, func(context.Context) error { return store.Close() })
	default:
		store := persistence.NewMemoryStatusStore()
		m.Tracker, m.Status = store, store
	}
	return nil
}

func (m *CollectorModule) initSink() error {
	cfg := m.Config.Sink
	switch cfg.Backend {
	case config.SinkStdout:
		m.Sink = persistence.NewWriterEventSink(os.Stdout)
	case config.SinkFile:
		f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open event file: %w", err)
		}
		m.Sink = persistence.NewWriterEventSink(f)
		m.closers = append(m.closers, func(context.Context) error { return f.Close() })
	case config.SinkRedis:
		m.Sink = persistence.NewRedisEventSink(m.RedisClient, cfg.StreamPrefix, cfg.StreamMaxLen, m.Logger)
	default:
		m.Sink = nil
	}
	return nil
}

func (m *CollectorModule) initLocker() {
	if !m.Config.Lock.Enabled {
		m.Locker = repository.NoopLocker{}
		return
	}
	m.Locker = persistence.NewRedisRunLocker(m.RedisClient, m.Config.Lock.Prefix, m.Config.Lock.TTL, m.Logger)
}

// NewSource builds the report source of an input.
func NewSource(in config.InputDefinition) (repository.ReportSource, error) {
	switch in.Source.Type {
	case config.SourceExport:
		return &source.ExportSource{
			ReportID:     in.ReportID,
			DescribePath: in.Source.Describe,
			ExportPath:   in.Source.Export,
			FooterRows:   in.Source.FooterRows,
		}, nil
	case config.SourceAnalytics:
		return &source.AnalyticsSource{ReportID: in.ReportID, Path: in.Source.Report}, nil
	default:
		return nil, apperrors.NewConfigurationError("unknown source type " + in.Source.Type)
	}
}

// RunRequestFor converts an input definition into a run request. A lookup
// cannot exist without its field configuration, so enabling the lookup
// enables schema sync as well.
func (m *CollectorModule) RunRequestFor(in config.InputDefinition) (usecase.RunRequest, error) {
	src, err := NewSource(in)
	if err != nil {
		return usecase.RunRequest{}, err
	}
	app := in.App
	if app == "" {
		app = m.Config.KVStore.App
	}
	return usecase.RunRequest{
		Identity:       in.Identity(),
		Source:         src,
		Collection:     in.Collection,
		App:            app,
		Owner:          in.Owner,
		Policy:         in.Policy(),
		EnableStore:    in.EnableStore,
		EnableIndexing: in.EnableIndexing,
		EnableSchema:   in.EnableSchema || in.EnableLookup,
		EnableLookup:   in.EnableLookup,
		RecordFilter:   in.RecordFilter,
	}, nil
}

// RunInputs runs each input in order. A failed run does not stop the
// following ones; the returned error joins every failure.
func (m *CollectorModule) RunInputs(ctx context.Context, inputs []config.InputDefinition) ([]RunOutcome, error) {
	outcomes := make([]RunOutcome, 0, len(inputs))
	var errs []error
	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		outcome := RunOutcome{Input: in.Name}
		req, err := m.RunRequestFor(in)
		if err != nil {
			outcome.Err = err
		} else {
			outcome.Snapshot, outcome.Err = m.Collector.Run(ctx, req)
		}
		if outcome.Err != nil {
			errs = append(errs, fmt.Errorf("input %s: %w", in.Name, outcome.Err))
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, errors.Join(errs...)
}

// HealthCheck pings the external services the module holds connections to.
func (m *CollectorModule) HealthCheck(ctx context.Context) error {
	if m.RedisClient != nil {
		if err := m.RedisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("Redis health check failed: %w", err)
		}
	}
	return nil
}

// Close releases connections and files in reverse order of creation.
func (m *CollectorModule) Close(ctx context.Context) error {
	var errs []error
	for i := len(m.closers) - 1; i >= 0; i-- {
		if err := m.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	m.closers = nil
	return errors.Join(errs...)
}
