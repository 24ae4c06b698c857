package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

// Kind classifies every failure the sync core can report
type Kind string

const (
	KindValidation      Kind = "validation"
	KindConflict        Kind = "conflict"
	KindInvalidState    Kind = "invalid_state"
	KindNotFound        Kind = "not_found"
	KindTransientFetch  Kind = "transient_fetch"
	KindFatalFetch      Kind = "fatal_fetch"
	KindCacheWrite      Kind = "cache_write"
	KindCheckpointWrite Kind = "checkpoint_write"
	KindCancelled       Kind = "cancelled"
	KindPageLimit       Kind = "page_limit"
	KindEmptyCollection Kind = "empty_collection"
	KindMaterializeIO   Kind = "materialize_io"
	KindUnknown         Kind = "unknown"
)

// Error is a classified error carrying the operation that failed
type Error struct {
	Kind    Kind
	Op      string
	Message string
	// Code is the upstream HTTP status for fetch errors, 0 otherwise
	Code int
	Err  error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Code != 0 {
		msg = fmt.Sprintf("%s (code %d)", msg, e.Code)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s error: %s", e.Op, e.Kind, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error with a formatted message
func New(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first classified error in the chain.
// Context cancellation is reported as KindCancelled even when unwrapped.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return KindUnknown
}

// Is reports whether err is classified as kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns a compact "kind: message" form suitable for persisting
func Message(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", KindOf(err), err.Error())
}

// IsRetryable checks if an error kind should be retried at request level
func IsRetryable(kind Kind) bool {
	switch kind {
	case KindTransientFetch:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a transient upstream failure
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 408, 429:
		return true
	case 400, 401, 403, 404, 422:
		return false
	default:
		return statusCode >= 500
	}
}

func Validation(op, format string, args ...interface{}) *Error {
	return New(KindValidation, op, format, args...)
}

func Conflict(op, format string, args ...interface{}) *Error {
	return New(KindConflict, op, format, args...)
}

func InvalidState(op, format string, args ...interface{}) *Error {
	return New(KindInvalidState, op, format, args...)
}

func NotFound(op, format string, args ...interface{}) *Error {
	return New(KindNotFound, op, format, args...)
}

func EmptyCollection(op, collection string) *Error {
	return New(KindEmptyCollection, op, "no cached records for collection %q", collection)
}

// TransientFetch marks an upstream failure that a later attempt may not repeat
func TransientFetch(op string, code int, err error) *Error {
	return &Error{Kind: KindTransientFetch, Op: op, Code: code, Err: err}
}

// FatalFetch marks an upstream failure that retrying will not fix (auth, schema)
func FatalFetch(op string, code int, err error) *Error {
	return &Error{Kind: KindFatalFetch, Op: op, Code: code, Err: err}
}
