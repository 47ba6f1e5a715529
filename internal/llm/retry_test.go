package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func fastRetry(maxRetries int) *RetryConfig {
	return &RetryConfig{
		MaxRetries: maxRetries,
		RetryDelay: 5 * time.Millisecond,
		MaxDelay:   20 * time.Millisecond,
		Timeout:    time.Second,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()

	if cfg.MaxRetries != 3 {
		t.Errorf("expected 3 max retries, got %d", cfg.MaxRetries)
	}
	if cfg.RetryDelay != time.Second {
		t.Errorf("expected 1 second retry delay, got %v", cfg.RetryDelay)
	}
	if cfg.MaxDelay != 30*time.Second {
		t.Errorf("expected 30 second max delay, got %v", cfg.MaxDelay)
	}
}

func TestRetryProvider_Name(t *testing.T) {
	retry := NewRetryProvider(&mockRetryProvider{name: "test-provider"}, nil)
	if retry.Name() != "test-provider" {
		t.Errorf("expected 'test-provider', got %s", retry.Name())
	}
}

func TestRetryProvider_SucceedsFirstTry(t *testing.T) {
	inner := &mockRetryProvider{name: "test", responses: []*Response{{Content: "success"}}}
	retry := NewRetryProvider(inner, fastRetry(3))

	resp, err := retry.Complete(context.Background(), &Prompt{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "success" {
		t.Errorf("expected 'success', got %q", resp.Content)
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 call, got %d", inner.calls)
	}
}

func TestRetryProvider_RetriesTransientErrors(t *testing.T) {
	inner := &mockRetryProvider{
		name:      "test",
		errors:    []error{errors.New("500 Internal Server Error"), errors.New("503 Service Unavailable")},
		responses: []*Response{{Content: "success after retries"}},
	}
	retry := NewRetryProvider(inner, fastRetry(3))

	if _, err := retry.Complete(context.Background(), &Prompt{}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 calls (2 failures + 1 success), got %d", inner.calls)
	}
}

func TestRetryProvider_StopsOnPermanentError(t *testing.T) {
	inner := &mockRetryProvider{name: "test", errors: []error{errors.New("401 Unauthorized")}}
	retry := NewRetryProvider(inner, fastRetry(3))

	_, err := retry.Complete(context.Background(), &Prompt{}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "non-retryable") {
		t.Errorf("expected 'non-retryable' in error, got: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 call, got %d", inner.calls)
	}
}

func TestRetryProvider_RespectsMaxRetries(t *testing.T) {
	inner := &mockRetryProvider{name: "test"}
	for i := 0; i < 5; i++ {
		inner.errors = append(inner.errors, errors.New("500"))
	}
	retry := NewRetryProvider(inner, fastRetry(2))

	_, err := retry.Complete(context.Background(), &Prompt{}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "giving up") {
		t.Errorf("expected 'giving up' in error, got: %v", err)
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 calls (initial + 2 retries), got %d", inner.calls)
	}
}

func TestRetryProvider_CancelledContext(t *testing.T) {
	inner := &mockRetryProvider{name: "test", errors: []error{errors.New("500")}}
	retry := NewRetryProvider(inner, fastRetry(3))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := retry.Complete(ctx, &Prompt{}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
	if inner.calls != 0 {
		t.Errorf("expected no calls, got %d", inner.calls)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{context.Canceled, false},
		{context.DeadlineExceeded, true},
		{errors.New("429 Too Many Requests"), true},
		{errors.New("429 tokens per day exceeded"), false},
		{errors.New("429 TPD limit reached"), false},
		{errors.New("500 Internal Server Error"), true},
		{errors.New("502 Bad Gateway"), true},
		{errors.New("504 Gateway Timeout"), true},
		{errors.New("400 Bad Request"), false},
		{errors.New("403 Forbidden"), false},
		{errors.New("connection reset by peer"), true},
		{fmt.Errorf("wrapped: %w", context.Canceled), false},
	}
	for _, tt := range tests {
		if got := isRetryable(tt.err); got != tt.want {
			t.Errorf("isRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestWrapWithRetry(t *testing.T) {
	if WrapWithRetry(nil, ProviderConfig{}) != nil {
		t.Error("expected nil for nil provider")
	}

	result := WrapWithRetry(&mockRetryProvider{name: "test"}, ProviderConfig{
		Timeout:    3 * time.Minute,
		MaxRetries: 5,
	})
	retry, ok := result.(*RetryProvider)
	if !ok {
		t.Fatalf("expected RetryProvider, got %T", result)
	}
	if retry.config.Timeout != 3*time.Minute {
		t.Errorf("expected 3 minute timeout, got %v", retry.config.Timeout)
	}
	if retry.config.MaxRetries != 5 {
		t.Errorf("expected 5 retries, got %d", retry.config.MaxRetries)
	}
	if retry.config.RetryDelay != time.Second {
		t.Errorf("expected default 1s retry delay, got %v", retry.config.RetryDelay)
	}
}

// mockRetryProvider fails with each queued error, then returns queued
// responses.
type mockRetryProvider struct {
	name      string
	responses []*Response
	errors    []error
	calls     int
}

func (m *mockRetryProvider) Name() string { return m.name }

func (m *mockRetryProvider) Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	m.calls++
	if len(m.errors) > 0 {
		err := m.errors[0]
		m.errors = m.errors[1:]
		return nil, err
	}
	if len(m.responses) > 0 {
		resp := m.responses[0]
		m.responses = m.responses[1:]
		return resp, nil
	}
	return nil, fmt.Errorf("mock: no more responses configured")
}
