package gateway

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
		fatal     bool
		cancelled bool
	}{
		{"timeout", &TimeoutError{GatewayError{Message: "slow"}}, true, false, false},
		{"rate limit", &RateLimitError{GatewayError: GatewayError{Message: "429"}}, true, false, false},
		{"unavailable", &UnavailableError{GatewayError{Message: "503"}}, true, false, false},
		{"auth", &AuthError{GatewayError{Message: "401"}}, false, true, false},
		{"malformed request", &MalformedRequestError{GatewayError{Message: "400"}}, false, true, false},
		{"unsupported capability", &UnsupportedCapabilityError{GatewayError: GatewayError{Message: "nope"}}, false, true, false},
		{"malformed response", &MalformedResponseError{GatewayError{Message: "garbage"}}, false, true, false},
		{"exhausted", &ExhaustedError{GatewayError: GatewayError{Message: "gave up"}}, false, true, false},
		{
			"exhausted with transient cause",
			&ExhaustedError{
				GatewayError: GatewayError{Message: "gave up", Cause: &TimeoutError{GatewayError{Message: "slow"}}},
				Attempts:     3,
			},
			false, true, false,
		},
		{"cancelled", &CancelledError{GatewayError{Message: "stop"}}, false, false, true},
		{
			"cancelled with transient cause",
			&CancelledError{GatewayError{Message: "stop", Cause: &UnavailableError{GatewayError{Message: "503"}}}},
			false, false, true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.transient {
				t.Errorf("IsTransient = %v, expected %v", got, tt.transient)
			}
			if got := IsFatal(tt.err); got != tt.fatal {
				t.Errorf("IsFatal = %v, expected %v", got, tt.fatal)
			}
			if got := IsCancelled(tt.err); got != tt.cancelled {
				t.Errorf("IsCancelled = %v, expected %v", got, tt.cancelled)
			}
		})
	}
}

func TestNilErrorClassification(t *testing.T) {
	if IsTransient(nil) || IsFatal(nil) || IsCancelled(nil) {
		t.Error("nil must not classify as anything")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := &UnavailableError{GatewayError{Message: "provider down", Cause: cause}}

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
	if err.Error() != "provider down: connection reset" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestClassificationThroughWrapping(t *testing.T) {
	inner := &RateLimitError{GatewayError: GatewayError{Message: "429"}}
	wrapped := fmt.Errorf("calling provider: %w", inner)

	if !IsTransient(wrapped) {
		t.Error("expected wrapped rate limit error to stay transient")
	}
}
