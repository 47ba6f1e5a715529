package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingProvider struct {
	name  string
	calls int64
}

func (m *countingProvider) Name() string { return m.name }

func (m *countingProvider) Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	atomic.AddInt64(&m.calls, 1)
	return &Response{Content: "test response"}, nil
}

func TestDefaultRateLimitConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.RequestsPerMinute != 25 {
		t.Fatalf("expected 25 RPM, got %d", cfg.RequestsPerMinute)
	}
	if cfg.BurstSize != 3 {
		t.Fatalf("expected burst 3, got %d", cfg.BurstSize)
	}
}

func TestRateLimitProvider_Name(t *testing.T) {
	rl := NewRateLimitProvider(&countingProvider{name: "test-provider"}, nil)
	if rl.Name() != "test-provider" {
		t.Fatalf("expected 'test-provider', got %s", rl.Name())
	}
}

func TestRateLimitProvider_BurstPassesImmediately(t *testing.T) {
	inner := &countingProvider{name: "test"}
	rl := NewRateLimitProvider(inner, &RateLimitConfig{RequestsPerMinute: 1, BurstSize: 3})

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := rl.Complete(context.Background(), &Prompt{}, nil); err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("burst calls should not block, took %v", elapsed)
	}
	if inner.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", inner.calls)
	}
}

func TestRateLimitProvider_BlocksPastBurst(t *testing.T) {
	inner := &countingProvider{name: "test"}
	rl := NewRateLimitProvider(inner, &RateLimitConfig{RequestsPerMinute: 1, BurstSize: 1})

	if _, err := rl.Complete(context.Background(), &Prompt{}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := rl.Complete(ctx, &Prompt{}, nil)
	if err == nil {
		t.Fatal("expected the second call to be rate limited")
	}
	if inner.calls != 1 {
		t.Fatalf("expected 1 call to reach the provider, got %d", inner.calls)
	}
}

func TestRateLimitProvider_Unlimited(t *testing.T) {
	inner := &countingProvider{name: "test"}
	rl := NewRateLimitProvider(inner, &RateLimitConfig{})
	for i := 0; i < 50; i++ {
		if _, err := rl.Complete(context.Background(), &Prompt{}, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

func TestRateLimitProvider_CancelledContext(t *testing.T) {
	rl := NewRateLimitProvider(&countingProvider{name: "test"}, &RateLimitConfig{RequestsPerMinute: 1, BurstSize: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := rl.Complete(ctx, &Prompt{}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWithRateLimit_Nil(t *testing.T) {
	if WithRateLimit(nil, nil) != nil {
		t.Fatal("expected nil")
	}
}
