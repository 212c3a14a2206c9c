package contextkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextKey_String(t *testing.T) {
	key := contextKey("testKey")
	assert.Equal(t, "kvstore-collector context key testKey", key.String())
}

func TestWithRun(t *testing.T) {
	ctx := WithRun(context.Background(), "opportunities", "00O5e000008abcd", "run-1")
	ctx = context.WithValue(ctx, CollectionKey, "opps")

	assert.Equal(t, "opportunities", StringValue(ctx, InputKey))
	assert.Equal(t, "00O5e000008abcd", StringValue(ctx, ReportIDKey))
	assert.Equal(t, "run-1", StringValue(ctx, RunIDKey))
	assert.Equal(t, "opps", StringValue(ctx, CollectionKey))
	assert.Equal(t, "", StringValue(ctx, OperationKey))
}
