package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error types for the collector domains
type ErrorType string

const (
	// Store protocol errors
	ErrorTypeAlreadyExists ErrorType = "ALREADY_EXISTS"
	ErrorTypeNotExists     ErrorType = "NOT_EXISTS"
	ErrorTypeRequestFailed ErrorType = "REQUEST_FAILED"
	ErrorTypeTransport     ErrorType = "TRANSPORT_ERROR"

	// Reconciliation errors
	ErrorTypeMissingKeyField ErrorType = "MISSING_KEY_FIELD"
	ErrorTypeConfiguration   ErrorType = "CONFIGURATION_ERROR"

	// Generic errors
	ErrorTypeValidation ErrorType = "VALIDATION_ERROR"
	ErrorTypeInternal   ErrorType = "INTERNAL_ERROR"
)

// Common application errors
var (
	ErrNotFound        = errors.New("resource not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrRunInProgress   = errors.New("another run holds the lock for this report")
	ErrSourceFailed    = errors.New("report source failed")
	ErrNoIdentityField = errors.New("keyed mode requires at least one identity field")
	ErrNoLookupFields  = errors.New("lookup configuration requires at least one field")
	ErrEmptyQuery      = errors.New("delete by query requires a non-empty query")
)

// AppError represents a custom application error with context
type AppError struct {
	Type      ErrorType              `json:"type"`
	Message   string                 `json:"message"`
	Code      string                 `json:"code,omitempty"`
	HTTPCode  int                    `json:"-"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Cause     error                  `json:"-"`
	Component string                 `json:"component,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new application error
func NewAppError(errorType ErrorType, message string, httpCode int) *AppError {
	return &AppError{
		Type:     errorType,
		Message:  message,
		HTTPCode: httpCode,
		Details:  make(map[string]interface{}),
	}
}

// WithCode adds an error code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// WithCause adds the underlying cause
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithComponent adds the component name
func (e *AppError) WithComponent(component string) *AppError {
	e.Component = component
	return e
}

// WithDetail adds a detail field
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Store protocol constructors

// NewAlreadyExistsError reports a 409 from the store.
func NewAlreadyExistsError(method, uri string) *AppError {
	return NewAppError(ErrorTypeAlreadyExists, fmt.Sprintf("%s %s: already exists", method, uri), http.StatusConflict).
		WithDetail("method", method).
		WithDetail("uri", uri)
}

// NewNotExistsError reports a 404 from the store.
func NewNotExistsError(method, uri string) *AppError {
	return NewAppError(ErrorTypeNotExists, fmt.Sprintf("%s %s: not exists", method, uri), http.StatusNotFound).
		WithDetail("method", method).
		WithDetail("uri", uri)
}

// NewRequestFailedError reports any other non-success answer, or a request that timed out.
func NewRequestFailedError(method, uri, reason string, status int) *AppError {
	return NewAppError(ErrorTypeRequestFailed, fmt.Sprintf("failed to %s %s, reason=%s", method, uri, reason), status).
		WithDetail("method", method).
		WithDetail("uri", uri).
		WithDetail("reason", reason)
}

// NewTransportError reports a request that produced no response at all.
func NewTransportError(method, uri string, cause error) *AppError {
	return NewAppError(ErrorTypeTransport, fmt.Sprintf("no response for %s %s", method, uri), 0).
		WithDetail("method", method).
		WithDetail("uri", uri).
		WithCause(cause)
}

// Reconciliation constructors

// NewMissingKeyFieldError reports a record lacking one of the identity fields.
func NewMissingKeyFieldError(field string) *AppError {
	return NewAppError(ErrorTypeMissingKeyField, fmt.Sprintf("record is missing key field %q", field), http.StatusUnprocessableEntity).
		WithDetail("field", field)
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(message string) *AppError {
	return NewAppError(ErrorTypeConfiguration, message, http.StatusBadRequest)
}

// NewValidationError creates a validation error
func NewValidationError(message string) *AppError {
	return NewAppError(ErrorTypeValidation, message, http.StatusBadRequest)
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return NewAppError(ErrorTypeInternal, message, http.StatusInternalServerError)
}

// ValidationError represents validation errors for multiple fields
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// ValidationErrors represents a collection of validation errors
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// Error implements the error interface
func (ve *ValidationErrors) Error() string {
	if len(ve.Errors) == 0 {
		return "validation failed"
	}
	msgs := make([]string, 0, len(ve.Errors))
	for _, e := range ve.Errors {
		msgs = append(msgs, e.Field+": "+e.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// NewValidationErrors creates a new validation errors instance
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Errors: make([]ValidationError, 0),
	}
}

// Add adds a validation error
func (ve *ValidationErrors) Add(field, message string, value interface{}) *ValidationErrors {
	ve.Errors = append(ve.Errors, ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	})
	return ve
}

// HasErrors returns true if there are validation errors
func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

// ToAppError converts validation errors to a configuration error. Input
// definitions are the only thing validated in bulk, so a failure there is
// always a configuration problem.
func (ve *ValidationErrors) ToAppError() *AppError {
	if !ve.HasErrors() {
		return nil
	}

	appErr := NewConfigurationError(ve.Error())
	appErr.Details["validation_errors"] = ve.Errors
	return appErr
}

// Helper functions for common error scenarios

// WrapError wraps an error with context
func WrapError(err error, message string) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError(message).WithCause(err)
}

// TypeOf returns the ErrorType of the first AppError in err's chain, or "" if none.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

// IsAlreadyExists checks if an error is a store conflict
func IsAlreadyExists(err error) bool {
	return TypeOf(err) == ErrorTypeAlreadyExists
}

// IsNotExists checks if an error is a store 404
func IsNotExists(err error) bool {
	if TypeOf(err) == ErrorTypeNotExists {
		return true
	}
	return errors.Is(err, ErrNotFound)
}

// IsRequestFailed checks if an error is a failed store request
func IsRequestFailed(err error) bool {
	return TypeOf(err) == ErrorTypeRequestFailed
}

// IsTransport checks if an error is a request that got no response
func IsTransport(err error) bool {
	return TypeOf(err) == ErrorTypeTransport
}

// IsMissingKeyField checks if an error is a per-record key derivation failure
func IsMissingKeyField(err error) bool {
	return TypeOf(err) == ErrorTypeMissingKeyField
}

// IsConfiguration checks if an error is a configuration error
func IsConfiguration(err error) bool {
	if TypeOf(err) == ErrorTypeConfiguration {
		return true
	}
	return errors.Is(err, ErrNoIdentityField) || errors.Is(err, ErrNoLookupFields) || errors.Is(err, ErrEmptyQuery)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return TypeOf(err) == ErrorTypeValidation
}
