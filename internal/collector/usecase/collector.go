package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kvstore-collector/internal/collector/domain/model"
	"kvstore-collector/internal/collector/domain/repository"
	"kvstore-collector/internal/shared/contextkeys"
	apperrors "kvstore-collector/internal/shared/errors"
	"kvstore-collector/internal/shared/logger"

	"github.com/google/uuid"
)

// Messages written to the status snapshot. Details go to the logs.
const (
	MessageCompleted      = "report collection completed"
	MessageSourceError    = "report source connection error: see logs for more detail"
	MessageRunInProgress  = "another run of this report is in progress"
	MessageIndexingError  = "event indexing error: see logs for more detail"
	MessageStoreError     = "kvstore error: see logs for more detail"
	messageConfigPrefix   = "configuration error: "
	DefaultReportRowLimit = 2000
)

// RunRequest describes one collection run of one report input.
type RunRequest struct {
	Identity   model.ReportIdentity
	Source     repository.ReportSource
	Collection string
	App        string
	Owner      string
	Policy     model.Policy

	EnableStore    bool
	EnableIndexing bool
	EnableSchema   bool
	EnableLookup   bool
	RecordFilter   string
}

// CollectionName is the target collection, defaulting to the input name.
func (r RunRequest) CollectionName() string {
	if r.Collection != "" {
		return r.Collection
	}
	return r.Identity.DefaultCollection()
}

// CollectorOptions tunes a Collector.
type CollectorOptions struct {
	// RowLimit is the source's row cap. A report returning exactly this many
	// rows is probably truncated and a warning is logged. Zero disables it.
	RowLimit       int
	EnsureAttempts int
}

// Collector runs reports into the key-value store and records the outcome.
type Collector struct {
	store      repository.KVStore
	tracker    repository.RunTracker
	sink       repository.EventSink
	locker     repository.RunLocker
	schema     *SchemaSynchronizer
	reconciler *Reconciler
	logger     logger.Logger
	rowLimit   int

	now      func() time.Time
	newRunID func() string
}

// NewCollector wires a collector. sink may be nil when indexing is never
// enabled; locker may be nil for no locking.
func NewCollector(
	store repository.KVStore,
	tracker repository.RunTracker,
	sink repository.EventSink,
	locker repository.RunLocker,
	log logger.Logger,
	opts CollectorOptions,
) *Collector {
	if log == nil {
		log = logger.NopLogger{}
	}
	if locker == nil {
		locker = repository.NoopLocker{}
	}
	return &Collector{
		store:      store,
		tracker:    tracker,
		sink:       sink,
		locker:     locker,
		schema:     NewSchemaSynchronizer(store, log).WithAttempts(opts.EnsureAttempts),
		reconciler: NewReconciler(store, log),
		logger:     log.WithComponent("collector"),
		rowLimit:   opts.RowLimit,
		now:        time.Now,
		newRunID:   uuid.NewString,
	}
}

// run carries the mutable state of one Run call.
type run struct {
	id         string
	req        RunRequest
	collection string
	updated    string
	counters   model.Counters
	log        logger.Logger
}

func (r *run) snapshot(status model.RunStatus, message string) model.StatusSnapshot {
	return model.NewStatusSnapshot(r.id, r.req.Identity, status, r.collection, r.updated, r.counters, message)
}

// Run executes one report run and records exactly one terminal snapshot.
// The returned error is nil on success; on failure the snapshot carries the
// counters reached before the run stopped.
func (c *Collector) Run(ctx context.Context, req RunRequest) (model.StatusSnapshot, error) {
	r := &run{
		id:         c.newRunID(),
		req:        req,
		collection: req.CollectionName(),
		updated:    model.FormatTimestamp(c.now()),
	}
	ctx = contextkeys.WithRun(ctx, req.Identity.InputName, req.Identity.ReportID, r.id)
	ctx = context.WithValue(ctx, contextkeys.CollectionKey, r.collection)
	r.log = c.logger.WithContext(ctx)
	r.log.Info("collecting report")

	if req.Source == nil {
		return c.fail(ctx, r, messageConfigPrefix+"no report source", apperrors.NewConfigurationError("report source is required"))
	}
	if req.EnableStore {
		if err := req.Policy.Validate(); err != nil {
			return c.fail(ctx, r, messageConfigPrefix+err.Error(), err)
		}
	}
	filter, err := NewRecordFilter(req.RecordFilter, r.log)
	if err != nil {
		return c.fail(ctx, r, messageConfigPrefix+"invalid record filter", err)
	}

	release, err := c.locker.Acquire(ctx, req.Identity.CheckpointKey())
	if err != nil {
		if errors.Is(err, apperrors.ErrRunInProgress) {
			return c.fail(ctx, r, MessageRunInProgress, err)
		}
		return c.fail(ctx, r, MessageStoreError, fmt.Errorf("failed to acquire run lock: %w", err))
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			r.log.Warnf("failed to release run lock: %v", err)
		}
	}()

	meta, records, err := c.fetch(ctx, req.Source)
	if err != nil {
		r.log.Errorf("report source error: %v", err)
		return c.fail(ctx, r, MessageSourceError, fmt.Errorf("%w: %w", apperrors.ErrSourceFailed, err))
	}
	if req.EnableStore && req.EnableSchema && req.EnableLookup && len(meta.Columns) == 0 {
		err := apperrors.NewConfigurationError("lookup requested for a report with no columns").WithCause(apperrors.ErrNoLookupFields)
		return c.fail(ctx, r, messageConfigPrefix+err.Message, err)
	}
	if c.rowLimit > 0 && len(records) == c.rowLimit {
		r.log.Warnf("report returned exactly %d rows and may be truncated by the source row limit", c.rowLimit)
	}

	records, r.counters.Filtered = filter.Apply(records)
	if r.counters.Filtered > 0 {
		r.log.Infof("record filter excluded %d records", r.counters.Filtered)
	}

	if req.EnableIndexing && c.sink != nil {
		for _, record := range records {
			if err := c.sink.Index(ctx, req.Identity.InputName, record); err != nil {
				r.log.Errorf("failed to index event: %v", err)
				return c.fail(ctx, r, MessageIndexingError, err)
			}
			r.counters.Indexed++
		}
		r.log.Debugf("indexed %d events", r.counters.Indexed)
	}

	if req.EnableStore {
		if err := c.writeStore(ctx, r, meta, records); err != nil {
			if apperrors.IsConfiguration(err) {
				return c.fail(ctx, r, messageConfigPrefix+err.Error(), err)
			}
			r.log.Errorf("kvstore error: %v", err)
			return c.fail(ctx, r, MessageStoreError, err)
		}
	}

	snap := r.snapshot(model.StatusSuccess, MessageCompleted)
	c.record(ctx, r, snap)
	r.log.WithFields(map[string]interface{}{
		"indexed":  r.counters.Indexed,
		"stored":   r.counters.Stored,
		"updated":  r.counters.Updated,
		"failed":   r.counters.Failed,
		"filtered": r.counters.Filtered,
	}).Info("report collection complete")
	return snap, nil
}

func (c *Collector) fetch(ctx context.Context, source repository.ReportSource) (*model.ReportMetadata, []*model.Record, error) {
	meta, err := source.Describe(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("describe: %w", err)
	}
	records, err := source.Records(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("records: %w", err)
	}
	return meta, records, nil
}

// writeStore ensures the collection, syncs its schema and reconciles the records.
func (c *Collector) writeStore(ctx context.Context, r *run, meta *model.ReportMetadata, records []*model.Record) error {
	if err := c.schema.EnsureCollection(ctx, r.collection, r.req.App); err != nil {
		if !apperrors.IsAlreadyExists(err) {
			return err
		}
		r.log.Debug("collection reported as existing, continuing")
	}
	r.log.Info("kvstore already present or has been created")

	if r.req.EnableSchema {
		if _, err := c.schema.Sync(ctx, r.collection, r.req.App, meta, r.req.EnableLookup); err != nil {
			return err
		}
	}

	result, err := c.reconciler.Reconcile(ctx, Batch{
		Collection: r.collection,
		App:        r.req.App,
		Owner:      r.req.Owner,
		Identity:   r.req.Identity,
		Policy:     r.req.Policy,
		Updated:    r.updated,
	}, records)
	r.counters.Add(result.Counters)
	return err
}

func (c *Collector) fail(ctx context.Context, r *run, message string, cause error) (model.StatusSnapshot, error) {
	snap := r.snapshot(model.StatusFailure, message)
	c.record(ctx, r, snap)
	return snap, cause
}

// record persists the snapshot. A tracker failure is logged and does not
// change the outcome of the run.
func (c *Collector) record(ctx context.Context, r *run, snap model.StatusSnapshot) {
	if c.tracker == nil {
		return
	}
	if err := c.tracker.RecordStatus(context.WithoutCancel(ctx), r.req.Identity, snap); err != nil {
		r.log.Errorf("failed to record run status: %v", err)
		return
	}
	r.log.WithFields(map[string]interface{}{
		"checkpoint_key": r.req.Identity.CheckpointKey(),
		"status":         string(snap.Status),
	}).Debug("checkpointing state")
}
