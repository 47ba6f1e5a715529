// Package openai implements llm.Provider for OpenAI-compatible chat APIs
// (OpenAI, Groq, Ollama, vLLM, ...).
package openai

import (
	"context"
	"errors"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/efebarandurmaz/flowlens/internal/llm"
)

const (
	defaultModel     = "gpt-4o-mini"
	defaultMaxTokens = 1024
)

// Client wraps a go-openai client.
type Client struct {
	name   string
	model  string
	client *goopenai.Client
}

// New creates a provider. An empty baseURL targets api.openai.com.
func New(name, apiKey, model, baseURL string) *Client {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = defaultModel
	}
	if name == "" {
		name = "openai"
	}
	return &Client{name: name, model: model, client: goopenai.NewClientWithConfig(cfg)}
}

// Register adds every OpenAI-compatible preset to f.
func Register(f *llm.ProviderFactory) {
	for name := range llm.KnownProviders {
		name := name
		f.Register(name, func(cfg llm.ProviderConfig) (llm.Provider, error) {
			return New(name, cfg.APIKey, cfg.Model, cfg.BaseURL), nil
		})
	}
}

func (c *Client) Name() string { return c.name }

func (c *Client) Complete(ctx context.Context, prompt *llm.Prompt, opts *llm.RequestOptions) (*llm.Response, error) {
	if prompt == nil {
		return nil, errors.New("openai: nil prompt")
	}
	msgs := make([]goopenai.ChatCompletionMessage, 0, len(prompt.Messages)+1)
	if prompt.SystemPrompt != "" {
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: prompt.SystemPrompt})
	}
	for _, m := range prompt.Messages {
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}

	req := goopenai.ChatCompletionRequest{
		Model:     c.model,
		Messages:  msgs,
		MaxTokens: defaultMaxTokens,
	}
	if opts != nil {
		if opts.MaxTokens != nil {
			req.MaxTokens = *opts.MaxTokens
		}
		if opts.Temperature != nil {
			req.Temperature = *opts.Temperature
		}
		if opts.TopP != nil {
			req.TopP = *opts.TopP
		}
		if len(opts.StopSeqs) > 0 {
			req.Stop = opts.StopSeqs
		}
		if opts.JSONMode {
			req.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
				Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
			}
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: chat completion: %w", c.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s: no choices returned", c.name)
	}

	return &llm.Response{
		Content:      resp.Choices[0].Message.Content,
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		StopReason:   string(resp.Choices[0].FinishReason),
	}, nil
}
