package repository

import (
	"context"

	"kvstore-collector/internal/collector/domain/model"
)

// RunTracker persists the terminal status of a run, overwriting any earlier
// snapshot for the same report.
type RunTracker interface {
	RecordStatus(ctx context.Context, id model.ReportIdentity, snapshot model.StatusSnapshot) error
}

// StatusReader is implemented by trackers that can read snapshots back.
type StatusReader interface {
	GetStatus(ctx context.Context, checkpointKey string) (*model.StatusSnapshot, error)
}
