package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/efebarandurmaz/flowlens/internal/llm"
)

func TestComplete_SendsMessagesAndParsesReply(t *testing.T) {
	var got struct {
		Model          string `json:"model"`
		Messages       []struct{ Role, Content string }
		ResponseFormat *struct {
			Type string `json:"type"`
		} `json:"response_format"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "cmpl-1",
			"object": "chat.completion",
			"model": "test-model",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"confidence\": 70}"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17}
		}`))
	}))
	defer srv.Close()

	c := New("ollama", "key", "test-model", srv.URL+"/v1")
	resp, err := c.Complete(context.Background(), &llm.Prompt{
		SystemPrompt: "sys",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "hello"}},
	}, &llm.RequestOptions{JSONMode: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Content != `{"confidence": 70}` {
		t.Errorf("unexpected content %q", resp.Content)
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 5 {
		t.Errorf("unexpected usage %d/%d", resp.InputTokens, resp.OutputTokens)
	}
	if resp.StopReason != "stop" {
		t.Errorf("unexpected stop reason %q", resp.StopReason)
	}
	if got.Model != "test-model" {
		t.Errorf("unexpected model %q", got.Model)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "hello" {
		t.Errorf("unexpected messages %+v", got.Messages)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
		t.Errorf("expected json_object response format, got %+v", got.ResponseFormat)
	}
	if c.Name() != "ollama" {
		t.Errorf("unexpected name %q", c.Name())
	}
}

func TestComplete_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error": {"message": "overloaded", "type": "server_error"}}`))
	}))
	defer srv.Close()

	c := New("", "key", "", srv.URL+"/v1")
	if _, err := c.Complete(context.Background(), &llm.Prompt{}, nil); err == nil {
		t.Fatal("expected error from 503 reply")
	}
}

func TestRegister_AllPresets(t *testing.T) {
	f := llm.NewFactory()
	Register(f)
	if len(f.Names()) != len(llm.KnownProviders) {
		t.Fatalf("expected %d providers, got %v", len(llm.KnownProviders), f.Names())
	}
	p, err := f.Create(llm.ProviderConfig{Provider: "groq", APIKey: "k"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "groq" {
		t.Errorf("expected groq, got %q", p.Name())
	}
}
