package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced at the ingestion and search boundaries.
var (
	ErrContentTooShort   = errors.New("content too short")
	ErrEmptyQuery        = errors.New("query is empty")
	ErrMissingURL        = errors.New("url is required")
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrInvalidDocType    = errors.New("invalid document type")
	ErrInvalidLanguage   = errors.New("invalid language")
	ErrFetchFailed       = errors.New("fetch failed")
	ErrNotFound          = errors.New("not found")
)

// ValidationError wraps a sentinel with field context.
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
