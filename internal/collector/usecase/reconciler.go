package usecase

import (
	"context"
	"fmt"

	"kvstore-collector/internal/collector/domain/model"
	"kvstore-collector/internal/collector/domain/repository"
	apperrors "kvstore-collector/internal/shared/errors"
	"kvstore-collector/internal/shared/logger"
)

// Batch describes where and how one report's records are written.
type Batch struct {
	Collection string
	App        string
	Owner      string
	Identity   model.ReportIdentity
	Policy     model.Policy
	// Updated is the run timestamp stamped on every record.
	Updated string
}

// RecordFailure is a record that could not be written. The run continues.
type RecordFailure struct {
	Index int
	Key   string
	Err   error
}

// Result is the outcome of one reconciliation.
type Result struct {
	Counters model.Counters
	Failures []RecordFailure
}

// Reconciler applies a write policy to an ordered batch of records.
type Reconciler struct {
	store  repository.KVStore
	logger logger.Logger
}

// NewReconciler creates a reconciler writing to store.
func NewReconciler(store repository.KVStore, log logger.Logger) *Reconciler {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Reconciler{store: store, logger: log.WithComponent("reconciler")}
}

// Reconcile purges according to the policy and then writes every record in
// order. Records are annotated in place.
//
// The returned error is non-nil only when the run must stop: an invalid
// policy, a failed purge, an unreachable store or a cancelled context. The
// Result then holds whatever was written before the stop.
func (r *Reconciler) Reconcile(ctx context.Context, batch Batch, records []*model.Record) (Result, error) {
	var result Result
	if err := batch.Policy.Validate(); err != nil {
		return result, err
	}
	log := r.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"collection": batch.Collection,
		"keyed":      batch.Policy.Keyed,
		"purge":      string(batch.Policy.EffectivePurge()),
	})

	if err := r.purge(ctx, batch); err != nil {
		return result, err
	}

	inputID := batch.Identity.InputID()
	for i, record := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		record.Annotate(batch.Updated, inputID)

		var (
			key string
			err error
		)
		if batch.Policy.Keyed {
			key, err = r.writeKeyed(ctx, batch, record, &result.Counters)
		} else {
			_, err = r.store.InsertRecord(ctx, batch.Collection, batch.App, batch.Owner, record)
			if err == nil {
				result.Counters.Stored++
			}
		}
		if err == nil {
			continue
		}
		if apperrors.IsTransport(err) {
			log.Errorf("store unreachable at record %d: %v", i, err)
			return result, err
		}

		result.Counters.Failed++
		result.Failures = append(result.Failures, RecordFailure{Index: i, Key: key, Err: err})
		log.WithFields(map[string]interface{}{"index": i, "key": key}).Warnf("record not written: %v", err)
	}

	log.Infof("reconciled %d records: stored=%d updated=%d failed=%d",
		len(records), result.Counters.Stored, result.Counters.Updated, result.Counters.Failed)
	return result, nil
}

// writeKeyed writes one record under its derived key. Under purge all the
// collection was just emptied, so only inserts are issued; AlreadyExists then
// means an earlier record of the batch holds the key, which is kept and the
// record counts as stored. Otherwise an update is tried first and only
// NotExists falls back to an insert.
func (r *Reconciler) writeKeyed(ctx context.Context, batch Batch, record *model.Record, c *model.Counters) (string, error) {
	key, err := record.DeriveKey(batch.Policy.KeyFields)
	if err != nil {
		return "", err
	}
	record.Set(model.FieldKey, key)

	if batch.Policy.EffectivePurge() == model.PurgeAll {
		_, err := r.store.InsertRecord(ctx, batch.Collection, batch.App, batch.Owner, record)
		if apperrors.IsAlreadyExists(err) {
			r.logger.WithContext(ctx).WithFields(map[string]interface{}{"key": key}).
				Debug("key repeated in batch, keeping the first record")
			err = nil
		}
		if err != nil {
			return key, err
		}
		c.Stored++
		return key, nil
	}

	_, err = r.store.UpdateRecord(ctx, batch.Collection, batch.App, batch.Owner, key, record)
	switch {
	case err == nil:
		c.Stored++
		c.Updated++
		return key, nil
	case apperrors.IsNotExists(err):
		if _, err := r.store.InsertRecord(ctx, batch.Collection, batch.App, batch.Owner, record); err != nil {
			return key, err
		}
		c.Stored++
		return key, nil
	default:
		return key, err
	}
}

func (r *Reconciler) purge(ctx context.Context, batch Batch) error {
	switch batch.Policy.EffectivePurge() {
	case model.PurgeAll:
		if err := r.store.DeleteAll(ctx, batch.Collection, batch.App); err != nil {
			return fmt.Errorf("failed to purge collection %s: %w", batch.Collection, err)
		}
		r.logger.WithContext(ctx).Infof("purged collection %s", batch.Collection)
	case model.PurgeReport:
		inputID := batch.Identity.InputID()
		if err := r.store.DeleteByQuery(ctx, batch.Collection, batch.App, model.InputQuery(inputID)); err != nil {
			return fmt.Errorf("failed to purge records of %s from %s: %w", inputID, batch.Collection, err)
		}
		r.logger.WithContext(ctx).Infof("purged records of %s from collection %s", inputID, batch.Collection)
	}
	return nil
}
