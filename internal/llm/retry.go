package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// RetryConfig configures retry behavior for provider calls.
type RetryConfig struct {
	MaxRetries int           // Maximum number of retry attempts (0 = no retries)
	RetryDelay time.Duration // Initial delay between retries
	MaxDelay   time.Duration // Cap on exponential backoff
	Timeout    time.Duration // Per-attempt timeout
}

// DefaultRetryConfig returns a configuration suited to free-tier cloud APIs.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries: 5,
		RetryDelay: 2 * time.Second,
		MaxDelay:   30 * time.Second,
		Timeout:    2 * time.Minute,
	}
}

// RetryProvider wraps a Provider with per-attempt timeouts and exponential
// backoff. Completion and embedding calls share the same policy.
type RetryProvider struct {
	inner  Provider
	config *RetryConfig
}

// NewRetryProvider wraps an existing provider with retry logic.
func NewRetryProvider(inner Provider, config *RetryConfig) *RetryProvider {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &RetryProvider{inner: inner, config: config}
}

// Name returns the underlying provider name.
func (r *RetryProvider) Name() string { return r.inner.Name() }

// Complete sends a prompt, retrying transient failures.
func (r *RetryProvider) Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	var resp *Response
	err := r.attempt(ctx, func(attemptCtx context.Context) error {
		var err error
		resp, err = r.inner.Complete(attemptCtx, prompt, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Embed requests embeddings, retrying transient failures.
func (r *RetryProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32
	err := r.attempt(ctx, func(attemptCtx context.Context) error {
		var err error
		vecs, err = r.inner.Embed(attemptCtx, texts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return vecs, nil
}

func (r *RetryProvider) attempt(ctx context.Context, call func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.backoff(attempt)):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
		err := call(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		if !retryable(err) {
			return fmt.Errorf("non-retryable error: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", r.config.MaxRetries, lastErr)
}

// backoff returns delay * 2^(attempt-1), capped at MaxDelay.
func (r *RetryProvider) backoff(attempt int) time.Duration {
	delay := r.config.RetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > r.config.MaxDelay {
			return r.config.MaxDelay
		}
	}
	return delay
}

// retryable classifies provider errors. Hosted APIs don't expose structured
// codes through our thin clients, so this matches on status text.
func retryable(err error) bool {
	if err == nil {
		return false
	}

	// Caller cancelled: stop. Attempt timeout: try again.
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

	// Rate limiting is retryable unless it's a daily token quota, which
	// won't reset within any reasonable backoff window.
	if strings.Contains(msg, "429") || strings.Contains(msg, "Too Many Requests") {
		if strings.Contains(msg, "tokens per day") || strings.Contains(msg, "TPD") {
			return false
		}
		return true
	}

	for _, code := range []string{"500", "502", "503", "504"} {
		if strings.Contains(msg, code) {
			return true
		}
	}

	for _, code := range []string{"400", "401", "403", "404"} {
		if strings.Contains(msg, code) {
			return false
		}
	}

	// Unknown failure modes default to retry; LLM endpoints flake.
	return true
}

// WrapWithRetry wraps a provider using retry settings from ProviderConfig.
func WrapWithRetry(provider Provider, cfg ProviderConfig) Provider {
	if provider == nil {
		return nil
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 && cfg.Timeout == 0 {
		maxRetries = 3
	}
	retryDelay := cfg.RetryDelay
	if retryDelay == 0 {
		retryDelay = 1 * time.Second
	}

	return NewRetryProvider(provider, &RetryConfig{
		MaxRetries: maxRetries,
		RetryDelay: retryDelay,
		MaxDelay:   30 * time.Second,
		Timeout:    timeout,
	})
}
