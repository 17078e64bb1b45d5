// Package apperror defines the typed error kinds shared by every core
// component (gallery, chunked upload, ingest, gradient, request). Handlers
// map a Kind to an HTTP status; internal callers switch on Kind rather than
// matching error strings or relying on panics for control flow.
package apperror

import (
	"errors"
	"fmt"
)

// Kind enumerates the error categories recognized by the core.
type Kind string

const (
	InvalidInput  Kind = "invalid_input"
	Authorization Kind = "authorization"
	NotFound      Kind = "not_found"
	Conflict      Kind = "conflict"
	Transient     Kind = "transient"
	ResourceLimit Kind = "resource_limit"
	Fatal         Kind = "fatal"
)

// Error is a typed application error carrying a Kind, a human-readable
// message, and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds a new Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a new Error of the given kind, wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to Fatal for unrecognized
// errors so that an unexpected failure never gets surfaced as a benign one.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Fatal
}
