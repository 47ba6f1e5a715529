package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryConfig configures retry behavior for completion calls.
type RetryConfig struct {
	MaxRetries int           // retries after the first attempt (0 = single attempt)
	RetryDelay time.Duration // initial backoff interval
	MaxDelay   time.Duration // cap on a single backoff interval
	Timeout    time.Duration // per-attempt timeout
}

// DefaultRetryConfig returns the default retry policy.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries: 3,
		RetryDelay: time.Second,
		MaxDelay:   30 * time.Second,
		Timeout:    30 * time.Second,
	}
}

// RetryProvider wraps a Provider with per-attempt timeouts and exponential
// backoff between retryable failures.
type RetryProvider struct {
	inner  Provider
	config *RetryConfig
}

// NewRetryProvider wraps inner. A nil config uses DefaultRetryConfig.
func NewRetryProvider(inner Provider, config *RetryConfig) *RetryProvider {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &RetryProvider{inner: inner, config: config}
}

// Name returns the underlying provider name.
func (r *RetryProvider) Name() string {
	return r.inner.Name()
}

// Complete calls the inner provider until it succeeds, hits a
// non-retryable error, or runs out of attempts.
func (r *RetryProvider) Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	attempt := func() (*Response, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()

		resp, err := r.inner.Complete(attemptCtx, prompt, opts)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		if !isRetryable(err) {
			return nil, backoff.Permanent(fmt.Errorf("non-retryable: %w", err))
		}
		return nil, err
	}

	resp, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(r.backoff()),
		backoff.WithMaxTries(uint(r.config.MaxRetries+1)),
	)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: giving up after %d retries: %w", r.inner.Name(), r.config.MaxRetries, err)
	}
	return resp, nil
}

func (r *RetryProvider) backoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.config.RetryDelay
	if r.config.MaxDelay > 0 {
		b.MaxInterval = r.config.MaxDelay
	}
	return b
}

var (
	permanentMarkers = []string{"400", "401", "403", "404", "tokens per day", "TPD"}
	transientMarkers = []string{"429", "Too Many Requests", "500", "502", "503", "504",
		"Internal Server Error", "Bad Gateway", "Service Unavailable", "Gateway Timeout"}
)

// isRetryable classifies an error from a completion backend. Daily token
// quotas are permanent even though they arrive as 429s. Unknown errors are
// retried.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	msg := err.Error()
	for _, m := range permanentMarkers {
		if strings.Contains(msg, m) {
			return false
		}
	}
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return true
}

// WrapWithRetry builds a RetryProvider from a ProviderConfig, filling
// unset fields from DefaultRetryConfig.
func WrapWithRetry(provider Provider, cfg ProviderConfig) Provider {
	if provider == nil {
		return nil
	}
	rc := DefaultRetryConfig()
	if cfg.Timeout > 0 {
		rc.Timeout = cfg.Timeout
	}
	if cfg.MaxRetries > 0 {
		rc.MaxRetries = cfg.MaxRetries
	}
	if cfg.RetryDelay > 0 {
		rc.RetryDelay = cfg.RetryDelay
	}
	return NewRetryProvider(provider, rc)
}
