package gateway

import (
	"errors"
	"fmt"
	"time"
)

// GatewayError is the base type for all reasoning gateway errors.
type GatewayError struct {
	Message string
	Cause   error
}

func (e *GatewayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// Transient failures: retried with exponential backoff.

// TimeoutError indicates a single request exceeded its deadline.
type TimeoutError struct{ GatewayError }

// RateLimitError indicates the provider throttled the request.
// RetryAfter, when set, overrides the computed backoff delay.
type RateLimitError struct {
	GatewayError
	RetryAfter *time.Duration
}

// UnavailableError indicates a transient provider-side outage.
type UnavailableError struct{ GatewayError }

// Fatal failures: abort immediately, no retry.

// AuthError indicates the provider rejected the configured credentials.
type AuthError struct{ GatewayError }

// MalformedRequestError indicates the provider rejected the request shape.
type MalformedRequestError struct{ GatewayError }

// UnsupportedCapabilityError indicates the response (or request) depends
// on a capability the configured profile does not support.
type UnsupportedCapabilityError struct {
	GatewayError
	Capability string
}

// MalformedResponseError indicates the provider returned a response that
// could not be turned into a usable action even after the gateway asked
// for a corrected format once.
type MalformedResponseError struct{ GatewayError }

// ExhaustedError is the escalation of a transient failure that survived
// every retry attempt. It is fatal.
type ExhaustedError struct {
	GatewayError
	Attempts int
}

// CancelledError indicates cooperative cancellation mid-call or mid-retry.
type CancelledError struct{ GatewayError }

// IsTransient reports whether the error is safe to retry. Exhaustion
// and cancellation are checked first: an ExhaustedError wraps the last
// transient failure as its cause, and errors.As would otherwise find
// the transient type through Unwrap.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var (
		exhausted *ExhaustedError
		cancelled *CancelledError
	)
	if errors.As(err, &exhausted) || errors.As(err, &cancelled) {
		return false
	}
	var (
		timeout     *TimeoutError
		rateLimit   *RateLimitError
		unavailable *UnavailableError
	)
	return errors.As(err, &timeout) || errors.As(err, &rateLimit) || errors.As(err, &unavailable)
}

// IsCancelled reports whether the error is a cooperative cancellation.
func IsCancelled(err error) bool {
	var cancelled *CancelledError
	return errors.As(err, &cancelled)
}

// IsFatal reports whether the error aborts the turn: anything that is
// neither transient nor a cancellation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return !IsTransient(err) && !IsCancelled(err)
}
