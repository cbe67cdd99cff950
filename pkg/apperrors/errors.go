package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")

	// ErrMissingField is a validation failure for an absent required field.
	// It matches ErrValidation under errors.Is.
	ErrMissingField = fmt.Errorf("%w: missing required field", ErrValidation)
)

// Error carries a machine-readable code and a human message alongside one of
// the sentinel kinds above.
type Error struct {
	Kind    error
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Validation returns an ErrValidation error.
func Validation(code, format string, args ...any) error {
	return newError(ErrValidation, code, format, args...)
}

// Missing returns an ErrMissingField error.
func Missing(code, format string, args ...any) error {
	return newError(ErrMissingField, code, format, args...)
}

// Conflict returns an ErrConflict error.
func Conflict(code, format string, args ...any) error {
	return newError(ErrConflict, code, format, args...)
}

// NotFound returns an ErrNotFound error.
func NotFound(code, format string, args ...any) error {
	return newError(ErrNotFound, code, format, args...)
}

// Forbidden returns an ErrForbidden error.
func Forbidden(code, format string, args ...any) error {
	return newError(ErrForbidden, code, format, args...)
}

// Unauthorized returns an ErrUnauthorized error.
func Unauthorized(code, format string, args ...any) error {
	return newError(ErrUnauthorized, code, format, args...)
}

// CodeOf returns the machine code of the first *Error in err's chain, or
// fallback when there is none.
func CodeOf(err error, fallback string) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Code != "" {
		return appErr.Code
	}
	return fallback
}
