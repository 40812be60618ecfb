package gateway

// CapabilityProfile describes the provider/model-specific features the
// gateway must honor for a given configuration. Profiles are resolved
// once at gateway construction time; request handling is parameterized
// by the profile rather than branching on provider identifiers.
type CapabilityProfile struct {
	Provider      string   `json:"provider"`
	Model         string   `json:"model"`
	DisplayName   string   `json:"display_name"`
	ContextWindow int      `json:"context_window"`
	Aliases       []string `json:"aliases,omitempty"`

	// SupportsStructuredCalls reports whether the model reliably emits
	// the structured JSON action envelope. Without it the gateway only
	// accepts plain-text (finish) responses.
	SupportsStructuredCalls bool `json:"supports_structured_calls"`

	// SupportsCachedPrompt reports whether the provider can reuse a
	// cached system prompt across calls.
	SupportsCachedPrompt bool `json:"supports_cached_prompt"`
}

// Profiles is the built-in capability profile table (February 2026).
var Profiles = []CapabilityProfile{
	// Anthropic
	{
		Provider: "anthropic", Model: "claude-opus-4-6", DisplayName: "Claude Opus 4.6",
		ContextWindow: 200000, SupportsStructuredCalls: true, SupportsCachedPrompt: true,
		Aliases: []string{"opus", "claude-opus"},
	},
	{
		Provider: "anthropic", Model: "claude-sonnet-4-5", DisplayName: "Claude Sonnet 4.5",
		ContextWindow: 200000, SupportsStructuredCalls: true, SupportsCachedPrompt: true,
		Aliases: []string{"sonnet", "claude-sonnet"},
	},
	{
		Provider: "anthropic", Model: "claude-haiku-4-5", DisplayName: "Claude Haiku 4.5",
		ContextWindow: 200000, SupportsStructuredCalls: true, SupportsCachedPrompt: true,
		Aliases: []string{"haiku"},
	},

	// OpenAI
	{
		Provider: "openai", Model: "gpt-5.2", DisplayName: "GPT-5.2",
		ContextWindow: 1047576, SupportsStructuredCalls: true, SupportsCachedPrompt: true,
		Aliases: []string{"gpt5"},
	},
	{
		Provider: "openai", Model: "gpt-5.2-mini", DisplayName: "GPT-5.2 Mini",
		ContextWindow: 1047576, SupportsStructuredCalls: true, SupportsCachedPrompt: true,
		Aliases: []string{"gpt5-mini"},
	},
	{
		Provider: "openai", Model: "gpt-4o-mini", DisplayName: "GPT-4o Mini",
		ContextWindow: 128000, SupportsStructuredCalls: true, SupportsCachedPrompt: false,
		Aliases: []string{"4o-mini"},
	},

	// Ollama (local models: no prompt cache, unreliable structured output)
	{
		Provider: "ollama", Model: "llama3.1", DisplayName: "Llama 3.1 (local)",
		ContextWindow: 131072, SupportsStructuredCalls: false, SupportsCachedPrompt: false,
		Aliases: []string{"llama"},
	},
}

// LookupProfile resolves a profile by model ID or alias. Returns nil if
// the model is unknown.
func LookupProfile(model string) *CapabilityProfile {
	for i := range Profiles {
		p := &Profiles[i]
		if p.Model == model {
			return p
		}
		for _, alias := range p.Aliases {
			if alias == model {
				return p
			}
		}
	}
	return nil
}

// DefaultProfile returns the first catalog entry for a provider, or nil
// if the provider has none.
func DefaultProfile(provider string) *CapabilityProfile {
	for i := range Profiles {
		if Profiles[i].Provider == provider {
			return &Profiles[i]
		}
	}
	return nil
}
