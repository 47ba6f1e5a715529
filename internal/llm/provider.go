// Package llm defines the completion interface used by the optimization
// oracle, plus retry and rate-limit wrappers shared by every backend.
package llm

import "context"

// Provider is the interface every completion backend implements.
type Provider interface {
	// Complete sends a prompt and returns a completion.
	Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error)
	// Name returns the provider identifier (e.g. "openai", "ollama").
	Name() string
}

// Role identifies who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Prompt is the full input to a completion call.
type Prompt struct {
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Messages     []Message `json:"messages"`
}

// RequestOptions tunes a single completion. Nil fields use the backend
// default.
type RequestOptions struct {
	MaxTokens   *int
	Temperature *float32
	TopP        *float32
	StopSeqs    []string
	// JSONMode asks the backend for a JSON object reply when supported.
	JSONMode bool
}

// Response wraps a completion result.
type Response struct {
	Content      string `json:"content"`
	Model        string `json:"model,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
	StopReason   string `json:"stop_reason,omitempty"`
}
