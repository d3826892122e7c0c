// Package apperr defines the error kinds shared by the service layer so
// handlers can map failures to transport-level responses without string
// matching.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure. The set is closed; handlers switch on it
// exhaustively.
type Kind int

const (
	// KindUnknown is the zero value and maps to an internal error.
	KindUnknown Kind = iota
	// KindValidation covers missing fields and illegal state transitions.
	KindValidation
	// KindAuthorization covers a wrong actor or role.
	KindAuthorization
	// KindNotFound covers absent jobs, applications, conversations, etc.
	KindNotFound
	// KindConflict covers duplicate submissions (e.g. applying twice).
	KindConflict
	// KindExternal covers failures of downstream collaborators.
	KindExternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindExternal:
		return "external"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by services. It wraps an
// optional cause so errors.Is/As keep working through it.
type Error struct {
	Knd   Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Knd, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Knd, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates an error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Knd: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind wrapping a cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Knd: kind, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// Validation and friends are shorthands for the common kinds.
func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

func Authorization(format string, args ...any) *Error {
	return New(KindAuthorization, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return New(KindConflict, format, args...)
}

// KindOf reports the kind carried by err, or KindUnknown when err is nil
// or not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Knd
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
