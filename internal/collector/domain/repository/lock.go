package repository

import "context"

// ReleaseFunc releases a held run lock.
type ReleaseFunc func(ctx context.Context) error

// RunLocker guards against two runs of the same report overlapping.
type RunLocker interface {
	Acquire(ctx context.Context, key string) (ReleaseFunc, error)
}

// NoopLocker never blocks. It is the default: concurrent runs against the
// same report are not coordinated unless a real locker is configured.
type NoopLocker struct{}

// Acquire always succeeds.
func (NoopLocker) Acquire(ctx context.Context, key string) (ReleaseFunc, error) {
	return func(context.Context) error { return nil }, nil
}
