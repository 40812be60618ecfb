package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmProvider adapts a gollm.LLM instance to the Provider contract,
// translating the reasoning context into a gollm prompt and classifying
// gollm errors into the gateway taxonomy.
type GollmProvider struct {
	provider string
	llm      gollm.LLM
	model    string
}

// GollmOption configures a GollmProvider.
type GollmOption func(*gollmConfig)

type gollmConfig struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	extraOpts   []gollm.ConfigOption
}

// WithAPIKey sets the API key. If unset, gollm reads it from the
// provider's environment variable.
func WithAPIKey(key string) GollmOption {
	return func(c *gollmConfig) { c.apiKey = key }
}

// WithModel sets the model identifier.
func WithModel(model string) GollmOption {
	return func(c *gollmConfig) { c.model = model }
}

// WithMaxTokens sets the response token budget.
func WithMaxTokens(n int) GollmOption {
	return func(c *gollmConfig) { c.maxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) GollmOption {
	return func(c *gollmConfig) { c.temperature = t }
}

// WithGollmOptions appends raw gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmOption {
	return func(c *gollmConfig) { c.extraOpts = append(c.extraOpts, opts...) }
}

// NewGollmProvider creates a provider backend for the named service
// ("openai", "anthropic", "ollama", ...). Retries are disabled inside
// gollm; the gateway owns the retry policy.
func NewGollmProvider(provider string, opts ...GollmOption) (*GollmProvider, error) {
	cfg := &gollmConfig{
		maxTokens:   4096,
		temperature: 0.7,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	model := cfg.model
	if model == "" {
		if p := DefaultProfile(provider); p != nil {
			model = p.Model
		} else {
			return nil, &MalformedRequestError{GatewayError{Message: fmt.Sprintf("no model configured and no default profile for provider %q", provider)}}
		}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // the gateway handles retries
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.apiKey))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	llm, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, &MalformedRequestError{GatewayError{Message: fmt.Sprintf("creating gollm backend for provider %s", provider), Cause: err}}
	}

	return &GollmProvider{provider: provider, llm: llm, model: model}, nil
}

// Name returns the provider identifier.
func (p *GollmProvider) Name() string { return p.provider }

// Invoke executes one request/response exchange against the backend.
func (p *GollmProvider) Invoke(ctx context.Context, rc Context, profile CapabilityProfile) (*RawResponse, error) {
	prompt := p.translateContext(rc, profile)

	text, err := p.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, p.translateError(err)
	}

	return &RawResponse{
		ID:    "resp_" + uuid.New().String()[:8],
		Model: p.model,
		Text:  text,
	}, nil
}

// translateContext flattens the ordered reasoning context into a gollm
// prompt. The cached-prompt capability decides whether the system prompt
// is marked cacheable.
func (p *GollmProvider) translateContext(rc Context, profile CapabilityProfile) *gollm.Prompt {
	var parts []string
	for _, msg := range rc.Messages {
		switch msg.Role {
		case RoleUser:
			parts = append(parts, msg.Content)
		case RoleAssistant:
			parts = append(parts, "[Assistant]: "+msg.Content)
		case RoleObservation:
			parts = append(parts, "[Observation]: "+msg.Content)
		case RoleSystem:
			parts = append(parts, "[System]: "+msg.Content)
		}
	}

	promptText := strings.Join(parts, "\n")
	if promptText == "" {
		promptText = "Hello"
	}

	var promptOpts []gollm.PromptOption
	if rc.System != "" {
		if profile.SupportsCachedPrompt {
			promptOpts = append(promptOpts, gollm.WithSystemPrompt(rc.System, gollm.CacheTypeEphemeral))
		} else {
			// No prompt cache: fold the system prompt into the request body.
			promptText = rc.System + "\n\n" + promptText
		}
	}

	return gollm.NewPrompt(promptText, promptOpts...)
}

// translateError classifies a gollm error into the gateway taxonomy by
// message content; unclassified errors default to transient.
func (p *GollmProvider) translateError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(lower, "401") || strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "invalid api key") || strings.Contains(lower, "invalid key"):
		return &AuthError{GatewayError{Message: msg, Cause: err}}
	case strings.Contains(lower, "403") || strings.Contains(lower, "forbidden"):
		return &AuthError{GatewayError{Message: msg, Cause: err}}
	case strings.Contains(lower, "400") || strings.Contains(lower, "invalid request") ||
		strings.Contains(lower, "context length") || strings.Contains(lower, "too many tokens"):
		return &MalformedRequestError{GatewayError{Message: msg, Cause: err}}
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit"):
		return &RateLimitError{GatewayError: GatewayError{Message: msg, Cause: err}}
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return &TimeoutError{GatewayError{Message: msg, Cause: err}}
	case strings.Contains(lower, "500") || strings.Contains(lower, "502") ||
		strings.Contains(lower, "503") || strings.Contains(lower, "overloaded") ||
		strings.Contains(lower, "internal server"):
		return &UnavailableError{GatewayError{Message: msg, Cause: err}}
	default:
		return &UnavailableError{GatewayError{Message: msg, Cause: err}}
	}
}
