package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures request pacing for a provider.
type RateLimitConfig struct {
	RequestsPerMinute int // 0 = unlimited
	BurstSize         int
}

// DefaultRateLimitConfig suits free-tier hosted APIs.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{RequestsPerMinute: 25, BurstSize: 3}
}

// RateLimitProvider paces calls to an inner provider.
type RateLimitProvider struct {
	inner   Provider
	limiter *rate.Limiter
}

// NewRateLimitProvider wraps inner. A nil config uses DefaultRateLimitConfig.
func NewRateLimitProvider(inner Provider, config *RateLimitConfig) *RateLimitProvider {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	limit := rate.Inf
	if config.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(config.RequestsPerMinute) / 60)
	}
	burst := config.BurstSize
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitProvider{inner: inner, limiter: rate.NewLimiter(limit, burst)}
}

// Name returns the underlying provider name.
func (r *RateLimitProvider) Name() string {
	return r.inner.Name()
}

// Complete waits for capacity, then delegates.
func (r *RateLimitProvider) Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return r.inner.Complete(ctx, prompt, opts)
}

// Tokens reports the currently available request tokens.
func (r *RateLimitProvider) Tokens() float64 {
	return r.limiter.Tokens()
}

// WithRateLimit wraps p with rate limiting; nil stays nil.
func WithRateLimit(p Provider, config *RateLimitConfig) Provider {
	if p == nil {
		return nil
	}
	return NewRateLimitProvider(p, config)
}
