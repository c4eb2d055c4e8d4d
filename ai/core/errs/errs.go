// Package errs defines the closed set of failure kinds surfaced by the
// generation client and the summary cache.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a failure so callers can decide between retrying at a
// higher level and reporting to the user.
type Kind int

const (
	// KindUnknown is reported for errors that did not originate here.
	KindUnknown Kind = iota

	// KindInvalidInput is an empty or malformed prompt or key. Rejected
	// before any external call and never retried.
	KindInvalidInput

	// KindRateLimited is a transient provider quota signal. Retried
	// internally; only seen by callers wrapped in KindGenerationFailed.
	KindRateLimited

	// KindGenerationFailed is a terminal provider failure or an
	// exhausted retry budget.
	KindGenerationFailed

	// KindStoreUnavailable is a backing store read or write failure.
	KindStoreUnavailable
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindRateLimited:
		return "rate_limited"
	case KindGenerationFailed:
		return "generation_failed"
	case KindStoreUnavailable:
		return "store_unavailable"
	default:
		return "unknown"
	}
}

// RetryInfo is the provider's retry guidance attached to a rate-limit
// response. A zero Delay means the provider sent retry info without a
// delay value.
type RetryInfo struct {
	Delay time.Duration
}

// Error is the structured error carried through the core.
type Error struct {
	Cause       error
	RetryInfo   *RetryInfo
	Op          string
	Message     string
	Kind        Kind
	RateLimited bool
}

// Error returns a formatted error message.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	} else if e.Cause != nil {
		msg = msg + ": " + e.Cause.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

// Unwrap returns the cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: k})
// works as a kind check.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Cause == nil
}

// SuggestedDelay reports the provider suggested delay, if any.
func (e *Error) SuggestedDelay() (time.Duration, bool) {
	if e.RetryInfo == nil || e.RetryInfo.Delay <= 0 {
		return 0, false
	}
	return e.RetryInfo.Delay, true
}

// Retryable reports whether the error is a rate-limit signal carrying
// retry info.
func (e *Error) Retryable() bool {
	return e.RateLimited && e.RetryInfo != nil
}

// InvalidInput creates a KindInvalidInput error.
func InvalidInput(op, message string) *Error {
	return &Error{Kind: KindInvalidInput, Op: op, Message: message}
}

// RateLimited creates a KindRateLimited error. info may be nil when the
// provider signalled a quota breach without retry guidance.
func RateLimited(op string, cause error, info *RetryInfo) *Error {
	return &Error{
		Kind:        KindRateLimited,
		Op:          op,
		Cause:       cause,
		RateLimited: true,
		RetryInfo:   info,
	}
}

// GenerationFailed wraps a provider failure as terminal. Rate-limit
// details of the cause are preserved for callers mapping to user
// responses.
func GenerationFailed(op string, cause error) *Error {
	e := &Error{Kind: KindGenerationFailed, Op: op, Cause: cause}
	var inner *Error
	if errors.As(cause, &inner) {
		e.RateLimited = inner.RateLimited
		e.RetryInfo = inner.RetryInfo
	}
	return e
}

// StoreUnavailable wraps a backing store failure.
func StoreUnavailable(op string, cause error) *Error {
	return &Error{Kind: KindStoreUnavailable, Op: op, Cause: cause}
}

// KindOf returns the kind of the outermost *Error in the chain, or
// KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether the outermost *Error in the chain has kind k.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// AsError returns the outermost *Error in the chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
