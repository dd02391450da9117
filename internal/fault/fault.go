// Package fault classifies pipeline errors so call sites can decide between
// retry, fail-fast, and skip without inspecting provider-specific codes.
package fault

import (
	"errors"
	"fmt"
)

// ErrJobRunning is returned by the scheduler when a job of the same type is
// already RUNNING; the trigger is rejected, never run concurrently.
var ErrJobRunning = errors.New("a job of this type is already running")

// Kind partitions errors by how the pipeline reacts to them.
type Kind int

const (
	// KindTransient covers timeouts, rate limits, and temporary network
	// failures; retried at the call site with bounded backoff.
	KindTransient Kind = iota
	// KindAuth covers invalid credentials; fails fast, never retried.
	KindAuth
	// KindValidation covers malformed or out-of-schema external responses;
	// the single item is skipped, the batch continues.
	KindValidation
	// KindNotFound covers unknown community/post references; surfaced to the
	// caller as a rejection distinct from rate limiting.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	}
	return "unknown"
}

// Error wraps an underlying error with its pipeline classification.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(err error) error { return wrap(KindTransient, err) }

// Transientf formats a retryable error.
func Transientf(format string, args ...any) error {
	return &Error{Kind: KindTransient, Err: fmt.Errorf(format, args...)}
}

// Auth wraps err as a fatal credential failure.
func Auth(err error) error { return wrap(KindAuth, err) }

// Validation wraps err as a malformed-response failure.
func Validation(err error) error { return wrap(KindValidation, err) }

// Validationf formats a malformed-response failure.
func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Err: fmt.Errorf(format, args...)}
}

// NotFound wraps err as an unknown-reference rejection.
func NotFound(err error) error { return wrap(KindNotFound, err) }

func wrap(k Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: k, Err: err}
}

// KindOf reports the classification of err, or ok=false for unclassified
// errors. Unclassified errors are treated as transient by the pipeline.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return 0, false
}

// IsTransient reports whether err should be retried. Unclassified errors
// count as transient so that unexpected network failures stay retryable.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	k, ok := KindOf(err)
	return !ok || k == KindTransient
}

// IsAuth reports whether err is a fatal credential failure.
func IsAuth(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindAuth
}

// IsValidation reports whether err is a malformed-response failure.
func IsValidation(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindValidation
}

// IsNotFound reports whether err is an unknown-reference rejection.
func IsNotFound(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindNotFound
}
