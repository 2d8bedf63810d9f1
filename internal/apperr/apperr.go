// Package apperr defines the operational error kinds shared by the attempt
// lifecycle and scoring packages.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidState = errors.New("invalid state")
	ErrValidation   = errors.New("validation error")
)

const (
	CodeNotFound     = "not_found"
	CodeForbidden    = "forbidden"
	CodeInvalidState = "invalid_state"
	CodeValidation   = "validation_error"
	CodeInternal     = "internal"
)

// Error is an expected, user-facing failure. It matches its kind with errors.Is.
type Error struct {
	kind    error
	message string
}

func (e *Error) Error() string {
	return e.message
}

func (e *Error) Unwrap() error {
	return e.kind
}

func NotFound(format string, args ...any) error {
	return newError(ErrNotFound, format, args...)
}

func Forbidden(format string, args ...any) error {
	return newError(ErrForbidden, format, args...)
}

func InvalidState(format string, args ...any) error {
	return newError(ErrInvalidState, format, args...)
}

func Validation(format string, args ...any) error {
	return newError(ErrValidation, format, args...)
}

func newError(kind error, format string, args ...any) error {
	return &Error{kind: kind, message: fmt.Sprintf(format, args...)}
}

// Code maps err to a stable machine-readable kind. Anything that is not an
// operational error is reported as internal.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrInvalidState):
		return CodeInvalidState
	case errors.Is(err, ErrValidation):
		return CodeValidation
	default:
		return CodeInternal
	}
}

// IsOperational reports whether err belongs to one of the expected kinds.
func IsOperational(err error) bool {
	code := Code(err)
	return code != "" && code != CodeInternal
}

// Message returns the user-facing message for operational errors and a
// generic one for everything else.
func Message(err error) string {
	if !IsOperational(err) {
		return "request failed"
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.message
	}
	return err.Error()
}
