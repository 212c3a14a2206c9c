package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"kvstore-collector/internal/collector/domain/model"
	"kvstore-collector/internal/collector/domain/repository"
	apperrors "kvstore-collector/internal/shared/errors"
	"kvstore-collector/internal/shared/logger"

	"github.com/redis/go-redis/v9"
)

// RedisStatusStore keeps one JSON snapshot per report under prefix+checkpoint key.
type RedisStatusStore struct {
	client *redis.Client
	prefix string
	logger logger.Logger
}

var (
	_ repository.RunTracker   = (*RedisStatusStore)(nil)
	_ repository.StatusReader = (*RedisStatusStore)(nil)
)

// NewRedisStatusStore creates a Redis-backed run tracker.
func NewRedisStatusStore(client *redis.Client, prefix string, log logger.Logger) *RedisStatusStore {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &RedisStatusStore{
		client: client,
		prefix: prefix,
		logger: log.WithComponent("redis-status-store"),
	}
}

func (s *RedisStatusStore) key(checkpointKey string) string {
	return s.prefix + checkpointKey
}

// RecordStatus overwrites the snapshot of the report.
func (s *RedisStatusStore) RecordStatus(ctx context.Context, id model.ReportIdentity, snapshot model.StatusSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode status snapshot: %w", err)
	}
	key := s.key(id.CheckpointKey())
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		s.logger.WithFields(map[string]interface{}{"key": key}).Errorf("failed to store status snapshot: %v", err)
		return fmt.Errorf("failed to store status snapshot: %w", err)
	}
	s.logger.WithFields(map[string]interface{}{"key": key, "status": string(snapshot.Status)}).Debug("status snapshot stored")
	return nil
}

// GetStatus returns the snapshot stored under checkpointKey.
func (s *RedisStatusStore) GetStatus(ctx context.Context, checkpointKey string) (*model.StatusSnapshot, error) {
	data, err := s.client.Get(ctx, s.key(checkpointKey)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read status snapshot: %w", err)
	}
	var snap model.StatusSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode status snapshot: %w", err)
	}
	return &snap, nil
}
