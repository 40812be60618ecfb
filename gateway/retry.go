package gateway

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy configures bounded retry with exponential backoff.
type RetryPolicy struct {
	MaxAttempts int           // total calls, including the first
	BaseDelay   time.Duration // delay before the first retry
	MaxDelay    time.Duration // cap on the backoff delay
	Multiplier  float64       // backoff growth factor (2.0 = double each retry)
	Jitter      bool          // randomize delays to avoid thundering herds
	OnRetry     func(err error, attempt int, delay time.Duration)
}

// DefaultRetryPolicy returns the default policy: three total attempts,
// one second base delay doubling up to thirty seconds, with jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// Delay computes the backoff delay preceding retry attempt n (0-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	base := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt))
	delay := math.Min(base, float64(p.MaxDelay))
	if p.Jitter {
		// +/- 50% jitter
		delay = delay * (0.5 + rand.Float64())
	}
	return time.Duration(delay)
}

// Retry executes fn until it succeeds, fails fatally, is cancelled, or
// the attempt budget runs out. Only transient errors are retried;
// exhausting the budget escalates the last transient error to a fatal
// ExhaustedError.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := policy.Delay(attempt - 1)
			var rl *RateLimitError
			if asRateLimit(lastErr, &rl) && rl.RetryAfter != nil {
				if *rl.RetryAfter > policy.MaxDelay {
					// The provider asked for more patience than we have.
					return zero, &ExhaustedError{
						GatewayError: GatewayError{Message: "retry-after exceeds maximum delay", Cause: lastErr},
						Attempts:     attempt,
					}
				}
				delay = *rl.RetryAfter
			}

			if policy.OnRetry != nil {
				policy.OnRetry(lastErr, attempt, delay)
			}

			select {
			case <-ctx.Done():
				return zero, &CancelledError{GatewayError{Message: "cancelled during retry backoff", Cause: ctx.Err()}}
			case <-time.After(delay):
			}
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, &CancelledError{GatewayError{Message: "call cancelled", Cause: ctx.Err()}}
		}
		if IsCancelled(err) {
			return zero, err
		}
		if !IsTransient(err) {
			return zero, err
		}
		lastErr = err
	}

	return zero, &ExhaustedError{
		GatewayError: GatewayError{
			Message: fmt.Sprintf("gave up after %d attempts", attempts),
			Cause:   lastErr,
		},
		Attempts: attempts,
	}
}

func asRateLimit(err error, target **RateLimitError) bool {
	if err == nil {
		return false
	}
	if rl, ok := err.(*RateLimitError); ok {
		*target = rl
		return true
	}
	return false
}
