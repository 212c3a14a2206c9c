package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kvstore-collector/internal/collector/domain/repository"
	apperrors "kvstore-collector/internal/shared/errors"
	"kvstore-collector/internal/shared/logger"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// RedisRunLocker refuses to start a run while another process holds the
// lock for the same report.
type RedisRunLocker struct {
	locker *redislock.Client
	prefix string
	ttl    time.Duration
	logger logger.Logger
}

var _ repository.RunLocker = (*RedisRunLocker)(nil)

// NewRedisRunLocker creates a locker. ttl bounds how long a crashed run can
// keep the lock.
func NewRedisRunLocker(client *redis.Client, prefix string, ttl time.Duration, log logger.Logger) *RedisRunLocker {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &RedisRunLocker{
		locker: redislock.New(client),
		prefix: prefix,
		ttl:    ttl,
		logger: log.WithComponent("run-lock"),
	}
}

// Acquire obtains the lock for key without waiting. A held lock yields
// ErrRunInProgress.
func (l *RedisRunLocker) Acquire(ctx context.Context, key string) (repository.ReleaseFunc, error) {
	lockKey := l.prefix + key
	lock, err := l.locker.Obtain(ctx, lockKey, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		l.logger.WithFields(map[string]interface{}{"lock": lockKey}).Warn("run lock held by another process")
		return nil, fmt.Errorf("%w: %s", apperrors.ErrRunInProgress, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain run lock %s: %w", lockKey, err)
	}
	l.logger.WithFields(map[string]interface{}{"lock": lockKey}).Debug("run lock obtained")

	return func(ctx context.Context) error {
		err := lock.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.WithFields(map[string]interface{}{"lock": lockKey}).Warn("run lock expired before release")
			return nil
		}
		return err
	}, nil
}
