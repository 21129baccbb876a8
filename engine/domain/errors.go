package domain

import (
	"errors"
	"fmt"
)

// Pipeline failure taxonomy. Components wrap these with context and callers
// test with errors.Is.
var (
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrMalformedResponse   = errors.New("malformed provider response")
	ErrNoEvidence          = errors.New("no evidence found")
	ErrDimensionMismatch   = errors.New("vector dimension mismatch")
	ErrStoreUnavailable    = errors.New("store unavailable")
)

// Sentinel errors for question validation.
var (
	ErrInvalidQuestion   = errors.New("invalid question")
	ErrQuestionTooShort  = errors.New("question too short")
	ErrQuestionTooLong   = errors.New("question too long")
	ErrQueryInjection    = errors.New("question contains suspicious content")
	ErrUnknownEntityType = errors.New("unknown entity type")
)

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// ProviderError records which external provider failed and how.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

// Unwrap exposes both the taxonomy sentinel and the cause.
func (e *ProviderError) Unwrap() []error {
	if errors.Is(e.Err, ErrMalformedResponse) {
		return []error{e.Err}
	}
	return []error{ErrProviderUnavailable, e.Err}
}

// NewProviderError wraps err as a provider failure.
func NewProviderError(provider, op string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Op: op, Err: err}
}
