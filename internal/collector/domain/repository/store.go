package repository

import (
	"context"

	"kvstore-collector/internal/collector/domain/model"
)

// KVStore is the set of collection and record operations the collector needs
// from the remote key-value store. Implementations classify failures with the
// shared error taxonomy (AlreadyExists, NotExists, RequestFailed, Transport).
type KVStore interface {
	// CreateCollection creates a collection. An existing collection is
	// reported as AlreadyExists; callers decide whether that matters.
	CreateCollection(ctx context.Context, collection, app string) error
	ConfigureField(ctx context.Context, collection, app string, field model.FieldDefinition) error
	ConfigureLookup(ctx context.Context, name, app string, fields []string) error
	// InsertRecord returns the key the store assigned (or kept) for the record.
	InsertRecord(ctx context.Context, collection, app, owner string, record *model.Record) (string, error)
	// UpdateRecord fails with NotExists when key is absent.
	UpdateRecord(ctx context.Context, collection, app, owner, key string, record *model.Record) (string, error)
	// GetRecord and DeleteRecord fail with NotExists when key is absent.
	GetRecord(ctx context.Context, collection, app, key string) (*model.Record, error)
	DeleteRecord(ctx context.Context, collection, app, key string) error
	DeleteAll(ctx context.Context, collection, app string) error
	DeleteByQuery(ctx context.Context, collection, app string, query model.Query) error
	ListCollections(ctx context.Context, app string) ([]string, error)
}
