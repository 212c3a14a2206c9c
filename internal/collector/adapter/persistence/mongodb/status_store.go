package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kvstore-collector/internal/collector/domain/model"
	"kvstore-collector/internal/collector/domain/repository"
	apperrors "kvstore-collector/internal/shared/errors"
	"kvstore-collector/internal/shared/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultStatusCollection holds one document per report checkpoint.
const DefaultStatusCollection = "collector_status"

// statusDocument is the stored shape: the snapshot keyed by checkpoint key.
type statusDocument struct {
	ID                   string `bson:"_id"`
	model.StatusSnapshot `bson:",inline"`
}

// StatusStore is a MongoDB-backed run tracker.
type StatusStore struct {
	col    CollectionInterface
	client *mongo.Client
	logger logger.Logger
}

var (
	_ repository.RunTracker   = (*StatusStore)(nil)
	_ repository.StatusReader = (*StatusStore)(nil)
)

// NewStatusStore wraps an existing collection.
func NewStatusStore(col CollectionInterface, log logger.Logger) *StatusStore {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &StatusStore{col: col, logger: log.WithComponent("mongodb-status-store")}
}

// Connect dials uri, verifies the connection and returns a store on
// database.collection. Close releases the client.
func Connect(ctx context.Context, uri, database, collection string, log logger.Logger) (*StatusStore, error) {
	if collection == "" {
		collection = DefaultStatusCollection
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	store := NewStatusStore(NewMongoCollectionAdapter(client.Database(database).Collection(collection)), log)
	store.client = client
	store.logger.WithFields(map[string]interface{}{
		"database":   database,
		"collection": collection,
	}).Info("connected to MongoDB status store")
	return store, nil
}

// Close disconnects the client opened by Connect.
func (s *StatusStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// RecordStatus upserts the snapshot of the report.
func (s *StatusStore) RecordStatus(ctx context.Context, id model.ReportIdentity, snapshot model.StatusSnapshot) error {
	key := id.CheckpointKey()
	doc := statusDocument{ID: key, StatusSnapshot: snapshot}
	res, err := s.col.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		s.logger.WithFields(map[string]interface{}{"checkpoint": key}).Errorf("failed to store status snapshot: %v", err)
		return fmt.Errorf("failed to store status snapshot: %w", err)
	}
	s.logger.WithFields(map[string]interface{}{
		"checkpoint": key,
		"inserted":   res.Upserted(),
	}).Debug("status snapshot stored")
	return nil
}

// GetStatus returns the snapshot stored under checkpointKey.
func (s *StatusStore) GetStatus(ctx context.Context, checkpointKey string) (*model.StatusSnapshot, error) {
	var doc statusDocument
	if err := s.col.FindOne(ctx, bson.M{"_id": checkpointKey}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read status snapshot: %w", err)
	}
	return &doc.StatusSnapshot, nil
}
