package provider

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"time"
)

// RetryConfig controls retry behavior.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	JitterFraction float64
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     60 * time.Second,
		JitterFraction: 0.2,
	}
}

// RetryProvider wraps a Provider and retries transient failures: transport
// errors and API statuses that signal overload or rate limiting. Everything
// else returns immediately.
type RetryProvider struct {
	inner  Provider
	config RetryConfig
}

// NewRetryProvider creates a RetryProvider wrapping inner.
func NewRetryProvider(inner Provider, cfg RetryConfig) *RetryProvider {
	return &RetryProvider{inner: inner, config: cfg}
}

func (r *RetryProvider) Name() string {
	return r.inner.Name()
}

func (r *RetryProvider) Complete(ctx context.Context, req *CompletionRequest) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.backoff(attempt - 1)):
			}
		}

		resp, err := r.inner.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		if !retryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("max retries (%d) exceeded: %w", r.config.MaxRetries, lastErr)
}

// retryable reports whether the failure is worth another attempt.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}

	// Transport failures from the HTTP client surface as *url.Error.
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// backoff grows exponentially from InitialBackoff, capped at MaxBackoff,
// with the delay spread by up to ±JitterFraction.
func (r *RetryProvider) backoff(attempt int) time.Duration {
	d := r.config.InitialBackoff << uint(attempt)
	if d > r.config.MaxBackoff || d <= 0 {
		d = r.config.MaxBackoff
	}

	spread := (rand.Float64()*2 - 1) * r.config.JitterFraction
	d += time.Duration(float64(d) * spread)
	if d < 0 {
		return 0
	}
	return d
}
