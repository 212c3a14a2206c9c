package persistence

import (
	"context"
	"sync"

	"kvstore-collector/internal/collector/domain/model"
	"kvstore-collector/internal/collector/domain/repository"
	apperrors "kvstore-collector/internal/shared/errors"
)

// MemoryStatusStore keeps run status snapshots in process memory.
type MemoryStatusStore struct {
	mu        sync.RWMutex
	snapshots map[string]model.StatusSnapshot
}

var (
	_ repository.RunTracker   = (*MemoryStatusStore)(nil)
	_ repository.StatusReader = (*MemoryStatusStore)(nil)
)

// NewMemoryStatusStore creates an empty store.
func NewMemoryStatusStore() *MemoryStatusStore {
	return &MemoryStatusStore{snapshots: make(map[string]model.StatusSnapshot)}
}

// RecordStatus overwrites the snapshot of the report.
func (s *MemoryStatusStore) RecordStatus(ctx context.Context, id model.ReportIdentity, snapshot model.StatusSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[id.CheckpointKey()] = snapshot
	return nil
}

// GetStatus returns the last snapshot recorded under checkpointKey.
func (s *MemoryStatusStore) GetStatus(ctx context.Context, checkpointKey string) (*model.StatusSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[checkpointKey]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &snap, nil
}
