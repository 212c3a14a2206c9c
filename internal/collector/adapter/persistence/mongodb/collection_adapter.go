package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionInterface is the slice of *mongo.Collection the status store uses.
type CollectionInterface interface {
	ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (UpdateResultInterface, error)
	FindOne(ctx context.Context, filter interface{}) SingleResultInterface
}

type SingleResultInterface interface {
	Decode(v interface{}) error
}

type UpdateResultInterface interface {
	Matched() int64
	Upserted() bool
}

// MongoCollectionAdapter makes *mongo.Collection satisfy CollectionInterface.
type MongoCollectionAdapter struct {
	col *mongo.Collection
}

func NewMongoCollectionAdapter(col *mongo.Collection) *MongoCollectionAdapter {
	return &MongoCollectionAdapter{col: col}
}

func (m *MongoCollectionAdapter) ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (UpdateResultInterface, error) {
	res, err := m.col.ReplaceOne(ctx, filter, replacement, opts...)
	if err != nil {
		return nil, err
	}
	return &MongoUpdateResultAdapter{res: res}, nil
}

func (m *MongoCollectionAdapter) FindOne(ctx context.Context, filter interface{}) SingleResultInterface {
	return m.col.FindOne(ctx, filter)
}

type MongoUpdateResultAdapter struct {
	res *mongo.UpdateResult
}

func (a *MongoUpdateResultAdapter) Matched() int64 { return a.res.MatchedCount }

func (a *MongoUpdateResultAdapter) Upserted() bool { return a.res.UpsertedID != nil }
