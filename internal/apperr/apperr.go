// Package apperr defines the error taxonomy shared by all services and
// handlers. Every failure path in the core resolves to one of these kinds so
// transport code can map errors to HTTP status codes and tests can assert on
// them.
package apperr

import (
	"errors"
	"fmt"
)

// Kind categorizes an application error.
type Kind string

const (
	// KindExpired means a PIN or token TTL elapsed; the user can restart the flow.
	KindExpired Kind = "expired"
	// KindUnauthorized means a bad, forged, or revoked credential. Always fails closed.
	KindUnauthorized Kind = "unauthorized"
	// KindRateLimited means the request was denied by the rate limiter; retryable after RetryAfter.
	KindRateLimited Kind = "rate_limited"
	// KindDependencyUnavailable means a breaker is open or retries were exhausted.
	// Callers receive a fallback value alongside this kind, never a bare failure.
	KindDependencyUnavailable Kind = "dependency_unavailable"
	// KindConflict means a double-consume of a PIN or double-redemption of a
	// remember token. Logged distinctly as a possible abuse or replay signal.
	KindConflict Kind = "conflict"
	// KindNotFound means the referenced entity does not exist.
	KindNotFound Kind = "not_found"
	// KindInvalid means the input failed validation.
	KindInvalid Kind = "invalid"
	// KindInternal is an unexpected failure (database error, marshalling bug).
	KindInternal Kind = "internal"
)

// Error is a typed application error. Use the constructors below; handlers
// map Kind to an HTTP status via the server package.
type Error struct {
	Kind    Kind
	Message string
	// RetryAfterSeconds is set for KindRateLimited so callers can surface a
	// Retry-After style hint. Zero otherwise.
	RetryAfterSeconds int
	// Err is the wrapped cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error { return e.Err }

// New returns an Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap returns an Error with the given kind and message wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// Expired returns a KindExpired error.
func Expired(message string) *Error { return New(KindExpired, message) }

// Unauthorized returns a KindUnauthorized error.
func Unauthorized(message string) *Error { return New(KindUnauthorized, message) }

// RateLimited returns a KindRateLimited error carrying the retry hint.
func RateLimited(retryAfterSeconds int) *Error {
	return &Error{
		Kind:              KindRateLimited,
		Message:           "rate limit exceeded",
		RetryAfterSeconds: retryAfterSeconds,
	}
}

// DependencyUnavailable returns a KindDependencyUnavailable error for the named dependency.
func DependencyUnavailable(dependency string, cause error) *Error {
	return Wrap(KindDependencyUnavailable, dependency+" unavailable", cause)
}

// Conflict returns a KindConflict error.
func Conflict(message string) *Error { return New(KindConflict, message) }

// NotFound returns a KindNotFound error.
func NotFound(message string) *Error { return New(KindNotFound, message) }

// Invalid returns a KindInvalid error.
func Invalid(message string) *Error { return New(KindInvalid, message) }

// Internal returns a KindInternal error wrapping cause.
func Internal(message string, cause error) *Error {
	return Wrap(KindInternal, message, cause)
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, and
// KindInternal otherwise. A nil err returns the empty Kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err is (or wraps) an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// RetryAfter returns the retry hint in seconds if err is a rate-limit error,
// and 0 otherwise.
func RetryAfter(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindRateLimited {
		return e.RetryAfterSeconds
	}
	return 0
}
