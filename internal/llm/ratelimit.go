package llm

import (
	"context"
	"sync"
	"time"
)

// RateLimitConfig bounds request and token throughput per provider.
type RateLimitConfig struct {
	// RequestsPerMinute limits API calls per minute (0 = unlimited).
	RequestsPerMinute int
	// TokensPerMinute limits total tokens per minute (0 = unlimited).
	TokensPerMinute int
	// BurstSize allows short bursts above the steady rate.
	BurstSize int
}

// DefaultRateLimitConfig returns limits safe for free-tier cloud APIs.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerMinute: 25,
		TokensPerMinute:   25000,
		BurstSize:         3,
	}
}

// RateLimitProvider wraps a provider with a token-bucket rate limiter.
// Token usage is tracked from response accounting, so the token budget is
// enforced one request behind actual consumption.
type RateLimitProvider struct {
	inner  Provider
	config *RateLimitConfig

	mu            sync.Mutex
	requestTokens int
	tokenBudget   int
	lastRefill    time.Time
	windowStart   time.Time
	requestsUsed  int
	tokensUsed    int
}

// NewRateLimitProvider creates a rate-limited provider wrapper.
func NewRateLimitProvider(inner Provider, config *RateLimitConfig) *RateLimitProvider {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	burst := config.BurstSize
	if burst <= 0 {
		burst = 1
	}
	now := time.Now()
	return &RateLimitProvider{
		inner:         inner,
		config:        config,
		requestTokens: burst,
		tokenBudget:   config.TokensPerMinute,
		lastRefill:    now,
		windowStart:   now,
	}
}

// Name returns the underlying provider name.
func (r *RateLimitProvider) Name() string { return r.inner.Name() }

// Complete blocks until capacity is available, then delegates.
func (r *RateLimitProvider) Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	if err := r.acquire(ctx); err != nil {
		return nil, err
	}
	resp, err := r.inner.Complete(ctx, prompt, opts)
	if err == nil && resp != nil {
		r.consume(resp.InputTokens + resp.OutputTokens)
	}
	return resp, err
}

// Embed blocks until capacity is available, then delegates.
func (r *RateLimitProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.acquire(ctx); err != nil {
		return nil, err
	}
	return r.inner.Embed(ctx, texts)
}

func (r *RateLimitProvider) acquire(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.refill()

		if r.config.RequestsPerMinute == 0 && r.config.TokensPerMinute == 0 {
			r.requestsUsed++
			r.mu.Unlock()
			return nil
		}

		haveRequests := r.config.RequestsPerMinute == 0 || r.requestTokens > 0
		haveTokens := r.config.TokensPerMinute == 0 || r.tokenBudget > 0

		if haveRequests && haveTokens {
			if r.config.RequestsPerMinute > 0 {
				r.requestTokens--
			}
			r.requestsUsed++
			r.mu.Unlock()
			return nil
		}

		wait := r.waitTime()
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// refill adds request tokens for elapsed time and resets the minute window.
// Callers must hold r.mu.
func (r *RateLimitProvider) refill() {
	now := time.Now()

	if r.config.RequestsPerMinute > 0 {
		add := int(now.Sub(r.lastRefill).Minutes() * float64(r.config.RequestsPerMinute))
		if add > 0 {
			r.requestTokens += add
			limit := r.config.BurstSize
			if limit <= 0 {
				limit = r.config.RequestsPerMinute / 6 // ~10 second burst
				if limit < 1 {
					limit = 1
				}
			}
			if r.requestTokens > limit {
				r.requestTokens = limit
			}
		}
	}

	if now.Sub(r.windowStart) >= time.Minute {
		r.windowStart = now
		r.requestsUsed = 0
		r.tokensUsed = 0
		r.tokenBudget = r.config.TokensPerMinute
	}

	r.lastRefill = now
}

func (r *RateLimitProvider) consume(tokens int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokensUsed += tokens
	r.tokenBudget -= tokens
	if r.tokenBudget < 0 {
		r.tokenBudget = 0
	}
}

// waitTime estimates how long until capacity frees up. Callers hold r.mu.
func (r *RateLimitProvider) waitTime() time.Duration {
	if r.config.RequestsPerMinute > 0 && r.requestTokens <= 0 {
		perSecond := float64(r.config.RequestsPerMinute) / 60.0
		return time.Duration(float64(time.Second) / perSecond)
	}
	if r.config.TokensPerMinute > 0 && r.tokenBudget <= 0 {
		if remaining := time.Minute - time.Since(r.windowStart); remaining > 0 {
			return remaining
		}
	}
	return 100 * time.Millisecond
}

// Stats reports current window usage.
func (r *RateLimitProvider) Stats() RateLimitStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RateLimitStats{
		RequestsInWindow:  r.requestsUsed,
		TokensInWindow:    r.tokensUsed,
		RemainingRequests: r.requestTokens,
		RemainingTokens:   r.tokenBudget,
		WindowStart:       r.windowStart,
	}
}

// RateLimitStats is a snapshot of limiter state.
type RateLimitStats struct {
	RequestsInWindow  int
	TokensInWindow    int
	RemainingRequests int
	RemainingTokens   int
	WindowStart       time.Time
}

// WithRateLimit wraps a provider with rate limiting. Nil-safe.
func WithRateLimit(p Provider, config *RateLimitConfig) Provider {
	if p == nil {
		return nil
	}
	return NewRateLimitProvider(p, config)
}
