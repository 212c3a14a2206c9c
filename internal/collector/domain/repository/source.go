package repository

import (
	"context"

	"kvstore-collector/internal/collector/domain/model"
)

// ReportSource supplies a report's described schema and its rows, with any
// trailer rows already removed.
type ReportSource interface {
	Describe(ctx context.Context) (*model.ReportMetadata, error)
	Records(ctx context.Context) ([]*model.Record, error)
}
