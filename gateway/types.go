package gateway

import (
	"strings"
	"time"

	"github.com/coxswain-ai/coxswain/eventbus"
)

// Role identifies who produced a message in the reasoning context.
type Role string

const (
	RoleSystem      Role = "system"
	RoleUser        Role = "user"
	RoleAssistant   Role = "assistant"
	RoleObservation Role = "observation"
)

// Message is one ordered unit of the reasoning context.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Context is the ordered input to a single reasoning call: a system
// prompt plus the session's messages and rendered prior events.
type Context struct {
	System   string    `json:"system,omitempty"`
	Messages []Message `json:"messages"`
}

// WithMessage returns a copy of the context with one message appended.
// Contexts are treated as immutable so a corrective reprompt never
// contaminates the caller's copy.
func (c Context) WithMessage(m Message) Context {
	msgs := make([]Message, 0, len(c.Messages)+1)
	msgs = append(msgs, c.Messages...)
	msgs = append(msgs, m)
	return Context{System: c.System, Messages: msgs}
}

// Text returns the concatenated user-visible text of the context,
// useful for rough size accounting.
func (c Context) Text() string {
	var sb strings.Builder
	sb.WriteString(c.System)
	for _, m := range c.Messages {
		sb.WriteString(m.Content)
	}
	return sb.String()
}

// Options configure a single gateway call.
type Options struct {
	// Timeout bounds each individual provider request. Zero means no
	// per-request deadline beyond the caller's context.
	Timeout time.Duration
}

// Usage tracks approximate token consumption for one call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// RawResponse is what a provider hands back: an opaque identifier and
// the raw response text, before parsing and validation.
type RawResponse struct {
	ID    string `json:"id"`
	Model string `json:"model"`
	Text  string `json:"text"`
}

// Response is a validated reasoning result. Action is always populated:
// a plain-text reply with no structured proposal is a finish action
// carrying the reply as its message.
type Response struct {
	ID     string          `json:"id"`
	Model  string          `json:"model"`
	Text   string          `json:"text"`
	Action eventbus.Action `json:"action"`
	Usage  Usage           `json:"usage"`
}
