// Package gateway wraps a single logical call to a reasoning engine
// behind timeout, bounded retry, and response validation.
//
// The gateway masks transient provider failure (timeouts, rate limits,
// brief outages) with exponential backoff up to a fixed attempt budget;
// exhausting the budget escalates to a fatal error. Fatal failures
// (auth, malformed request, unsupported capability) abort immediately.
// A well-formed but semantically unusable response is answered with one
// explicit corrected-format request before being treated as fatal.
//
// Provider quirks live entirely behind the Provider interface and the
// CapabilityProfile resolved at construction time; callers never branch
// on provider identity. The gateway mutates no session state: every call
// returns a validated Response or a typed error from the taxonomy in
// errors.go.
//
// # Quick start
//
//	provider, err := gateway.NewGollmProvider("anthropic")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	profile := gateway.LookupProfile("claude-opus-4-6")
//	gw := gateway.New(provider, *profile)
//
//	resp, err := gw.Complete(ctx, rc, gateway.Options{Timeout: 60 * time.Second})
package gateway
