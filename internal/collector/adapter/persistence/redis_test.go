package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"kvstore-collector/internal/collector/domain/model"
	"kvstore-collector/internal/shared/contextkeys"
	apperrors "kvstore-collector/internal/shared/errors"
	"kvstore-collector/internal/shared/logger"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRedisClient connects to the local test database or skips the test.
func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:         "localhost:6379",
		DB:           15,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skip("Redis not available for testing:", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cleanupCancel()
		client.FlushDB(cleanupCtx)
		client.Close()
	})
	return client
}

func TestRedisStatusStore_RoundTrip(t *testing.T) {
	client := newTestRedisClient(t)
	ctx := context.Background()
	store := NewRedisStatusStore(client, "test:status:", logger.NopLogger{})

	_, err := store.GetStatus(ctx, testIdentity.CheckpointKey())
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	require.NoError(t, store.RecordStatus(ctx, testIdentity, testSnapshot(model.StatusSuccess, 4)))
	snap, err := store.GetStatus(ctx, testIdentity.CheckpointKey())
	require.NoError(t, err)
	assert.Equal(t, testSnapshot(model.StatusSuccess, 4), *snap)

	raw, err := client.Get(ctx, "test:status:pipeline-00O1").Result()
	require.NoError(t, err)
	assert.Contains(t, raw, `"records_kvstore":"4"`)
}

func TestRedisEventSink_AppendsToStream(t *testing.T) {
	client := newTestRedisClient(t)
	ctx := contextkeys.WithRun(context.Background(), "pipeline", "00O1", "run-1")
	sink := NewRedisEventSink(client, "test:events:", 100, logger.NopLogger{})

	require.NoError(t, sink.Index(ctx, "pipeline", model.RecordFromPairs("Region", "EMEA")))
	require.NoError(t, sink.Index(ctx, "pipeline", model.RecordFromPairs("Region", "APAC")))

	entries, err := client.XRange(ctx, sink.Stream("pipeline"), "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, `{"Region":"EMEA"}`, entries[0].Values["data"])
	assert.Equal(t, "run-1", entries[0].Values["run_id"])
	assert.Equal(t, "00O1", entries[1].Values["report_id"])
}

func TestRedisRunLocker_RefusesSecondHolder(t *testing.T) {
	client := newTestRedisClient(t)
	ctx := context.Background()
	locker := NewRedisRunLocker(client, "test:lock:", time.Minute, logger.NopLogger{})

	release, err := locker.Acquire(ctx, "pipeline-00O1")
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "pipeline-00O1")
	assert.True(t, errors.Is(err, apperrors.ErrRunInProgress))

	other, err := locker.Acquire(ctx, "forecast-00O2")
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, release(ctx))
	again, err := locker.Acquire(ctx, "pipeline-00O1")
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}
