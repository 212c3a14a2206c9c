package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Behavior(t *testing.T) {
	err := NewValidationError("invalid input").WithCode("VAL001").WithDetail("field", "name").WithComponent("test-component")
	assert.Equal(t, ErrorTypeValidation, err.Type)
	assert.Equal(t, "invalid input", err.Message)
	assert.Equal(t, "VAL001", err.Code)
	assert.Equal(t, "test-component", err.Component)
	assert.Equal(t, "name", err.Details["field"])
	assert.Equal(t, "invalid input", err.Error())
}

func TestAppError_WithCause_Unwrap(t *testing.T) {
	cause := context.DeadlineExceeded
	err := NewTransportError("POST", "https://kv/data/c", cause)
	assert.Equal(t, cause, err.Unwrap())
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Contains(t, err.Error(), "no response for POST https://kv/data/c")
}

func TestStoreErrors_CarryRequestDetails(t *testing.T) {
	err := NewRequestFailedError("DELETE", "https://kv/data/c", "Internal Server Error", 500)
	assert.Equal(t, "DELETE", err.Details["method"])
	assert.Equal(t, "https://kv/data/c", err.Details["uri"])
	assert.Equal(t, "Internal Server Error", err.Details["reason"])
	assert.Equal(t, 500, err.HTTPCode)
	assert.Equal(t, "failed to DELETE https://kv/data/c, reason=Internal Server Error", err.Error())
}

func TestPredicates_SeeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("update record: %w", NewNotExistsError("POST", "u"))
	assert.True(t, IsNotExists(wrapped))
	assert.False(t, IsAlreadyExists(wrapped))
	assert.False(t, IsRequestFailed(wrapped))

	conflict := fmt.Errorf("create: %w", NewAlreadyExistsError("POST", "u"))
	assert.True(t, IsAlreadyExists(conflict))
	assert.False(t, IsNotExists(conflict))

	assert.True(t, IsTransport(fmt.Errorf("x: %w", NewTransportError("GET", "u", errors.New("refused")))))
	assert.True(t, IsMissingKeyField(NewMissingKeyFieldError("sku")))
	assert.True(t, IsConfiguration(NewConfigurationError("bad")))
	assert.True(t, IsConfiguration(fmt.Errorf("policy: %w", ErrNoIdentityField)))
	assert.False(t, IsConfiguration(errors.New("plain")))
	assert.Equal(t, ErrorType(""), TypeOf(errors.New("plain")))
}

func TestValidationErrors(t *testing.T) {
	ve := NewValidationErrors()
	assert.Nil(t, ve.ToAppError())

	ve.Add("inputs[0].name", "must be set", "")
	ve.Add("inputs[0].purge", "unknown purge mode", "sometimes")
	assert.True(t, ve.HasErrors())

	appErr := ve.ToAppError()
	assert.NotNil(t, appErr)
	assert.Equal(t, ErrorTypeConfiguration, appErr.Type)
	assert.Contains(t, appErr.Error(), "inputs[0].name: must be set")
	assert.Contains(t, appErr.Error(), "inputs[0].purge: unknown purge mode")
}

func TestWrapError_KeepsAppError(t *testing.T) {
	orig := NewConfigurationError("bad")
	assert.Same(t, orig, WrapError(fmt.Errorf("ctx: %w", orig), "ignored"))

	wrapped := WrapError(errors.New("boom"), "internal")
	assert.Equal(t, ErrorTypeInternal, wrapped.Type)
	assert.Equal(t, "internal: boom", wrapped.Error())
}
