package contextkeys

import "context"

// contextKey is an unexported type to prevent collisions with context keys defined in
// other packages.
type contextKey string

// String makes contextKey satisfy the Stringer interface to assist with debugging.
func (c contextKey) String() string {
	return "kvstore-collector context key " + string(c)
}

const (
	// InputKey is the name of the input stanza driving a run.
	InputKey = contextKey("input")
	// ReportIDKey is the id of the report being collected.
	ReportIDKey = contextKey("reportID")
	// RunIDKey identifies one collection run.
	RunIDKey = contextKey("runID")
	// CollectionKey is the target key-value collection.
	CollectionKey = contextKey("collection")
	ComponentKey  = contextKey("component")
	OperationKey  = contextKey("operation")
)

// WithRun stores the identifying values of a run in ctx.
func WithRun(ctx context.Context, input, reportID, runID string) context.Context {
	ctx = context.WithValue(ctx, InputKey, input)
	ctx = context.WithValue(ctx, ReportIDKey, reportID)
	return context.WithValue(ctx, RunIDKey, runID)
}

// StringValue returns the string stored under key, or "".
func StringValue(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
