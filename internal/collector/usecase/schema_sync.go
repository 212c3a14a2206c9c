package usecase

import (
	"context"
	"fmt"

	"kvstore-collector/internal/collector/domain/model"
	"kvstore-collector/internal/collector/domain/repository"
	apperrors "kvstore-collector/internal/shared/errors"
	"kvstore-collector/internal/shared/logger"
)

// DefaultEnsureAttempts bounds the list/create cycles of EnsureCollection.
const DefaultEnsureAttempts = 3

// SchemaSynchronizer makes a collection's configuration match a report's columns.
type SchemaSynchronizer struct {
	store    repository.KVStore
	logger   logger.Logger
	attempts int
}

// NewSchemaSynchronizer creates a synchronizer over store.
func NewSchemaSynchronizer(store repository.KVStore, log logger.Logger) *SchemaSynchronizer {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &SchemaSynchronizer{
		store:    store,
		logger:   log.WithComponent("schema-sync"),
		attempts: DefaultEnsureAttempts,
	}
}

// WithAttempts overrides the number of list/create cycles.
func (s *SchemaSynchronizer) WithAttempts(n int) *SchemaSynchronizer {
	if n > 0 {
		s.attempts = n
	}
	return s
}

// EnsureCollection creates the collection unless it is already listed.
// AlreadyExists from the create means someone else won the race, so the
// listing is read again. Any other error is returned as is. When every
// attempt ends in AlreadyExists that error is returned; callers may treat it
// as success.
func (s *SchemaSynchronizer) EnsureCollection(ctx context.Context, collection, app string) error {
	log := s.logger.WithContext(ctx).WithFields(map[string]interface{}{"collection": collection, "app": app})

	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		names, err := s.store.ListCollections(ctx, app)
		if err != nil {
			return fmt.Errorf("failed to list collections: %w", err)
		}
		for _, name := range names {
			if name == collection {
				log.Debug("collection exists")
				return nil
			}
		}

		err = s.store.CreateCollection(ctx, collection, app)
		if err == nil {
			log.Info("collection created")
			return nil
		}
		if !apperrors.IsAlreadyExists(err) {
			return fmt.Errorf("failed to create collection: %w", err)
		}
		log.Debugf("collection creation raced (attempt %d of %d)", attempt, s.attempts)
		lastErr = err
	}
	return lastErr
}

// Sync configures one field per column, in column order, then registers the
// lookup over all column labels when enableLookup is set. It returns the
// labels that were configured.
func (s *SchemaSynchronizer) Sync(ctx context.Context, collection, app string, meta *model.ReportMetadata, enableLookup bool) ([]string, error) {
	if meta == nil {
		return nil, apperrors.NewValidationError("report metadata is required")
	}
	if enableLookup && len(meta.Columns) == 0 {
		return nil, apperrors.NewConfigurationError("lookup requested for a report with no columns").
			WithCause(apperrors.ErrNoLookupFields)
	}
	log := s.logger.WithContext(ctx).WithFields(map[string]interface{}{"collection": collection})

	labels := make([]string, 0, len(meta.Columns))
	for _, def := range model.FieldDefinitions(meta) {
		if err := s.store.ConfigureField(ctx, collection, app, def); err != nil {
			return labels, fmt.Errorf("failed to configure field %q: %w", def.Name, err)
		}
		log.Debugf("configured field %s as %s", def.Name, def.Type)
		labels = append(labels, def.Name)
	}

	if enableLookup {
		if err := s.store.ConfigureLookup(ctx, collection, app, labels); err != nil {
			return labels, fmt.Errorf("failed to configure lookup: %w", err)
		}
		log.Infof("lookup configured with %d fields", len(labels))
	}
	return labels, nil
}
