package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/coxswain-ai/coxswain/eventbus"
)

// Gateway wraps a single logical reasoning call with timeout, bounded
// retry, and response validation. It holds no session state: it returns
// a Response or a typed error for the controller to act on.
type Gateway struct {
	provider Provider
	profile  CapabilityProfile
	retry    RetryPolicy
	logger   *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(g *Gateway) { g.retry = p }
}

// WithLogger sets the gateway logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// New creates a gateway for the given provider. The capability profile
// is resolved once here and parameterizes all request handling.
func New(provider Provider, profile CapabilityProfile, opts ...Option) *Gateway {
	g := &Gateway{
		provider: provider,
		profile:  profile,
		retry:    DefaultRetryPolicy(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("component", "gateway", "provider", provider.Name(), "model", profile.Model)
	return g
}

// Profile returns the resolved capability profile.
func (g *Gateway) Profile() CapabilityProfile { return g.profile }

// Complete turns an ordered context into one validated reasoning
// response. Transient provider failures are retried internally and never
// surface to the caller; fatal failures, exhausted retries, and
// cancellation return typed errors. A syntactically well-formed but
// semantically unusable response triggers exactly one corrected-format
// request before becoming fatal.
func (g *Gateway) Complete(ctx context.Context, rc Context, opts Options) (*Response, error) {
	requestCtx := rc
	corrected := false

	for {
		raw, err := Retry(ctx, g.retry, func(ctx context.Context) (*RawResponse, error) {
			return g.invokeOnce(ctx, requestCtx, opts)
		})
		if err != nil {
			return nil, err
		}

		resp, verr := g.buildResponse(raw)
		if verr == nil {
			return resp, nil
		}
		if corrected {
			// Second unusable response after an explicit correction
			// request: fatal.
			return nil, verr
		}

		g.logger.Warn("unusable response, requesting corrected format", "error", verr.Error())
		corrected = true
		requestCtx = rc.WithMessage(Message{Role: RoleUser, Content: correctionPrompt(verr)})
	}
}

// invokeOnce performs a single provider call under the per-request
// timeout, classifying deadline expiry as a transient timeout.
func (g *Gateway) invokeOnce(ctx context.Context, rc Context, opts Options) (*RawResponse, error) {
	callCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	raw, err := g.provider.Invoke(callCtx, rc, g.profile)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, &TimeoutError{GatewayError{Message: "provider request timed out", Cause: err}}
		}
		return nil, err
	}
	if raw == nil {
		return nil, &UnavailableError{GatewayError{Message: "provider returned empty response"}}
	}
	return raw, nil
}

// buildResponse parses and validates a raw provider response. The
// returned error, if any, is the fatal form the caller escalates to on
// recurrence.
func (g *Gateway) buildResponse(raw *RawResponse) (*Response, error) {
	action, text, err := parseProposal(raw.Text)
	if err != nil {
		return nil, err
	}

	if action == nil {
		// Plain text with no structured proposal: natural completion.
		action = &eventbus.Action{Kind: eventbus.ActionFinish, Message: strings.TrimSpace(raw.Text)}
		text = strings.TrimSpace(raw.Text)
	} else if !g.profile.SupportsStructuredCalls && action.Kind != eventbus.ActionFinish {
		return nil, &UnsupportedCapabilityError{
			GatewayError: GatewayError{Message: fmt.Sprintf("response proposes %s but profile %s has no structured call support", action.Kind, g.profile.Model)},
			Capability:   "structured_calls",
		}
	}

	return &Response{
		ID:     raw.ID,
		Model:  raw.Model,
		Text:   text,
		Action: *action,
		Usage: Usage{
			OutputTokens: len(raw.Text) / 4, // rough approximation
		},
	}, nil
}

// actionEnvelope is the structured proposal format the reasoning engine
// is instructed to emit.
type actionEnvelope struct {
	Action *struct {
		Kind                 string `json:"kind"`
		Command              string `json:"command"`
		Message              string `json:"message"`
		RequiresConfirmation bool   `json:"requires_confirmation"`
	} `json:"action"`
}

const actionMarker = `{"action"`

// parseProposal extracts the first action envelope from the response
// text. A response with no marker returns a nil action (plain text). A
// marker followed by unusable JSON or an unknown kind is a
// MalformedResponseError.
func parseProposal(text string) (*eventbus.Action, string, error) {
	idx := strings.Index(text, actionMarker)
	if idx == -1 {
		return nil, text, nil
	}

	dec := json.NewDecoder(strings.NewReader(text[idx:]))
	var env actionEnvelope
	if err := dec.Decode(&env); err != nil || env.Action == nil {
		return nil, "", &MalformedResponseError{GatewayError{Message: "response contains an unparseable action envelope", Cause: err}}
	}

	action := eventbus.Action{
		Kind:                 eventbus.ActionKind(env.Action.Kind),
		Command:              env.Action.Command,
		Message:              env.Action.Message,
		RequiresConfirmation: env.Action.RequiresConfirmation,
	}

	switch action.Kind {
	case eventbus.ActionRunCommand:
		if strings.TrimSpace(action.Command) == "" {
			return nil, "", &MalformedResponseError{GatewayError{Message: "run_command action has no command"}}
		}
	case eventbus.ActionRequestConfirmation:
		action.RequiresConfirmation = true
	case eventbus.ActionSendMessage, eventbus.ActionFinish:
		// Message may legitimately be empty for finish.
	default:
		return nil, "", &MalformedResponseError{GatewayError{Message: fmt.Sprintf("unknown action kind %q", env.Action.Kind)}}
	}

	return &action, strings.TrimSpace(text[:idx]), nil
}

// correctionPrompt is the one explicit corrected-format request the
// gateway issues before treating a recurring unusable response as fatal.
func correctionPrompt(verr error) string {
	return "Your previous reply could not be used (" + verr.Error() + "). " +
		`Respond with exactly one JSON action envelope of the form ` +
		`{"action": {"kind": "run_command"|"send_message"|"request_confirmation"|"finish", ` +
		`"command": "...", "message": "...", "requires_confirmation": false}} ` +
		`and no other structured content.`
}
