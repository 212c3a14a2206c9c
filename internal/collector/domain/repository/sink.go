package repository

import (
	"context"

	"kvstore-collector/internal/collector/domain/model"
)

// EventSink receives one event per collected record when indexing is enabled.
type EventSink interface {
	Index(ctx context.Context, source string, record *model.Record) error
}
