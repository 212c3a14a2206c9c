package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"kvstore-collector/internal/collector/domain/model"
	"kvstore-collector/internal/collector/domain/repository"
	"kvstore-collector/internal/shared/contextkeys"
)

// WriterEventSink writes one JSON line per indexed record to w. It backs the
// stdout and file sinks.
type WriterEventSink struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

var _ repository.EventSink = (*WriterEventSink)(nil)

type event struct {
	Time     string        `json:"time"`
	Source   string        `json:"source"`
	RunID    string        `json:"run_id,omitempty"`
	ReportID string        `json:"report_id,omitempty"`
	Event    *model.Record `json:"event"`
}

// NewWriterEventSink creates a sink writing to w.
func NewWriterEventSink(w io.Writer) *WriterEventSink {
	return &WriterEventSink{w: w, now: time.Now}
}

// Index writes record as one line.
func (s *WriterEventSink) Index(ctx context.Context, source string, record *model.Record) error {
	line, err := json.Marshal(event{
		Time:     s.now().UTC().Format(time.RFC3339Nano),
		Source:   source,
		RunID:    contextkeys.StringValue(ctx, contextkeys.RunIDKey),
		ReportID: contextkeys.StringValue(ctx, contextkeys.ReportIDKey),
		Event:    record,
	})
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(line); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}
