package gateway

import "context"

// Provider is the narrow contract the gateway requires from a reasoning
// engine backend: one request, one response, transport-level failures
// surfaced as errors for the gateway to classify.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai", "anthropic").
	Name() string

	// Invoke executes a single request/response exchange. It must honor
	// context cancellation and should return errors from the gateway
	// taxonomy where it can classify them; unclassified errors are
	// treated as transient.
	Invoke(ctx context.Context, rc Context, profile CapabilityProfile) (*RawResponse, error)
}

// Closer is implemented by providers that hold resources.
type Closer interface {
	Close() error
}
