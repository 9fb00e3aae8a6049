// Package errkind classifies engine errors per the propagation policy in
// spec §7: upstream transport failures, persistence failures, invariant
// violations (programmer bugs), and bad requests from query callers.
package errkind

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind enumerates the error categories from spec §7.
type Kind int

const (
	// KindUpstreamTimeout is a retryable per-attempt transport timeout.
	KindUpstreamTimeout Kind = iota
	// KindUpstreamError is a retryable transport error other than a timeout.
	KindUpstreamError
	// KindUpstreamMalformed is a fatal-for-that-block response shape error.
	KindUpstreamMalformed
	// KindPersistenceError is a retryable store failure.
	KindPersistenceError
	// KindInvariant is a programmer bug; never expected in correct operation.
	KindInvariant
	// KindBadRequest is a caller-facing query validation failure.
	KindBadRequest
)

func (k Kind) String() string {
	switch k {
	case KindUpstreamTimeout:
		return "UpstreamTimeout"
	case KindUpstreamError:
		return "UpstreamError"
	case KindUpstreamMalformed:
		return "UpstreamMalformed"
	case KindPersistenceError:
		return "PersistenceError"
	case KindInvariant:
		return "Invariant"
	case KindBadRequest:
		return "BadRequest"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying error with a classification.
type Error struct {
	kind  Kind
	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.kind, e.cause)
}

// Unwrap allows errors.Is/errors.As to see through to the cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Kind returns the error's classification.
func (e *Error) Kind() Kind {
	return e.kind
}

// Retryable reports whether the sync loop should retry the same tick
// after this error, per spec §7's propagation policy.
func (e *Error) Retryable() bool {
	switch e.kind {
	case KindUpstreamTimeout, KindUpstreamError, KindPersistenceError:
		return true
	default:
		return false
	}
}

func wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	if cause == nil {
		return &Error{kind: kind, cause: errors.Errorf(format, args...)}
	}
	return &Error{kind: kind, cause: errors.Wrapf(cause, format, args...)}
}

// UpstreamTimeout builds a retryable timeout error.
func UpstreamTimeout(cause error, format string, args ...interface{}) *Error {
	return wrap(KindUpstreamTimeout, cause, format, args...)
}

// UpstreamError builds a retryable non-timeout transport error.
func UpstreamError(cause error, format string, args ...interface{}) *Error {
	return wrap(KindUpstreamError, cause, format, args...)
}

// UpstreamMalformed builds a fatal-for-the-block malformed-response error.
func UpstreamMalformed(cause error, format string, args ...interface{}) *Error {
	return wrap(KindUpstreamMalformed, cause, format, args...)
}

// PersistenceError builds a retryable store failure.
func PersistenceError(cause error, format string, args ...interface{}) *Error {
	return wrap(KindPersistenceError, cause, format, args...)
}

// Invariant builds a programmer-bug error. Callers that see one of these
// should treat it as fatal rather than retry.
func Invariant(format string, args ...interface{}) *Error {
	return wrap(KindInvariant, nil, format, args...)
}

// BadRequest builds a caller-facing validation error.
func BadRequest(format string, args ...interface{}) *Error {
	return wrap(KindBadRequest, nil, format, args...)
}

// Is reports whether err was built with the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.kind == kind
	}
	return false
}

// Retryable reports whether err (if it is an *Error) is retryable. A
// non-*Error is treated as non-retryable — this is only meaningful for
// errors this package produced.
func Retryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}
