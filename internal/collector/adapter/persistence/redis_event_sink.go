package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"kvstore-collector/internal/collector/domain/model"
	"kvstore-collector/internal/collector/domain/repository"
	"kvstore-collector/internal/shared/contextkeys"
	"kvstore-collector/internal/shared/logger"

	"github.com/redis/go-redis/v9"
)

// RedisEventSink appends one stream entry per indexed record. Each input
// writes to its own stream, prefix+source.
type RedisEventSink struct {
	client *redis.Client
	prefix string
	maxLen int64
	logger logger.Logger
	now    func() time.Time
}

var _ repository.EventSink = (*RedisEventSink)(nil)

// NewRedisEventSink creates a sink; maxLen caps each stream approximately
// (0 leaves streams untrimmed).
func NewRedisEventSink(client *redis.Client, prefix string, maxLen int64, log logger.Logger) *RedisEventSink {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &RedisEventSink{
		client: client,
		prefix: prefix,
		maxLen: maxLen,
		logger: log.WithComponent("redis-event-sink"),
		now:    time.Now,
	}
}

// Stream returns the stream name used for source.
func (s *RedisEventSink) Stream(source string) string {
	return s.prefix + source
}

// Index appends record to the source's stream.
func (s *RedisEventSink) Index(ctx context.Context, source string, record *model.Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: s.Stream(source),
		Values: map[string]interface{}{
			"source":    source,
			"run_id":    contextkeys.StringValue(ctx, contextkeys.RunIDKey),
			"report_id": contextkeys.StringValue(ctx, contextkeys.ReportIDKey),
			"time":      s.now().UnixNano(),
			"data":      data,
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		s.logger.WithFields(map[string]interface{}{"stream": args.Stream}).Errorf("failed to append event: %v", err)
		return fmt.Errorf("failed to append event to %s: %w", args.Stream, err)
	}
	return nil
}
