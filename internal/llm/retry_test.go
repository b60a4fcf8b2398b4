package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// mockRetryProvider returns queued errors first, then queued responses.
type mockRetryProvider struct {
	name      string
	responses []*Response
	errors    []error
	calls     int
}

func (m *mockRetryProvider) Name() string { return m.name }

func (m *mockRetryProvider) Complete(context.Context, *Prompt, *RequestOptions) (*Response, error) {
	idx := m.calls
	m.calls++
	if idx < len(m.errors) && m.errors[idx] != nil {
		return nil, m.errors[idx]
	}
	if idx < len(m.responses) {
		return m.responses[idx], nil
	}
	return &Response{Content: "ok"}, nil
}

func (m *mockRetryProvider) Embed(context.Context, []string) ([][]float32, error) {
	idx := m.calls
	m.calls++
	if idx < len(m.errors) && m.errors[idx] != nil {
		return nil, m.errors[idx]
	}
	return [][]float32{{1, 0}}, nil
}

// fastRetryConfig keeps backoff delays out of test runtime.
func fastRetryConfig(maxRetries int) *RetryConfig {
	return &RetryConfig{
		MaxRetries: maxRetries,
		RetryDelay: time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Timeout:    time.Second,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	if cfg.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", cfg.MaxRetries)
	}
	if cfg.RetryDelay != 2*time.Second {
		t.Errorf("RetryDelay = %v, want 2s", cfg.RetryDelay)
	}
	if cfg.MaxDelay != 30*time.Second {
		t.Errorf("MaxDelay = %v, want 30s", cfg.MaxDelay)
	}
	if cfg.Timeout != 2*time.Minute {
		t.Errorf("Timeout = %v, want 2m", cfg.Timeout)
	}
}

func TestNewRetryProvider_NilConfig(t *testing.T) {
	r := NewRetryProvider(&mockRetryProvider{name: "mock"}, nil)
	if r.config.MaxRetries != DefaultRetryConfig().MaxRetries {
		t.Errorf("nil config did not fall back to defaults")
	}
	if r.Name() != "mock" {
		t.Errorf("Name() = %q, want mock", r.Name())
	}
}

func TestRetryProvider_Complete_SucceedsFirstTry(t *testing.T) {
	mock := &mockRetryProvider{name: "mock", responses: []*Response{{Content: "hi"}}}
	r := NewRetryProvider(mock, fastRetryConfig(3))

	resp, err := r.Complete(context.Background(), UserPrompt("", "q"), nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "hi" {
		t.Errorf("content = %q", resp.Content)
	}
	if mock.calls != 1 {
		t.Errorf("calls = %d, want 1", mock.calls)
	}
}

func TestRetryProvider_Complete_RetriesOnRetryableError(t *testing.T) {
	mock := &mockRetryProvider{
		name:      "mock",
		errors:    []error{errors.New("status 503"), errors.New("status 429: Too Many Requests"), nil},
		responses: []*Response{nil, nil, {Content: "finally"}},
	}
	r := NewRetryProvider(mock, fastRetryConfig(3))

	resp, err := r.Complete(context.Background(), UserPrompt("", "q"), nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "finally" {
		t.Errorf("content = %q", resp.Content)
	}
	if mock.calls != 3 {
		t.Errorf("calls = %d, want 3", mock.calls)
	}
}

func TestRetryProvider_Complete_FailsNonRetryableError(t *testing.T) {
	mock := &mockRetryProvider{name: "mock", errors: []error{errors.New("status 401: unauthorized")}}
	r := NewRetryProvider(mock, fastRetryConfig(3))

	_, err := r.Complete(context.Background(), UserPrompt("", "q"), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "non-retryable") {
		t.Errorf("err = %v, want non-retryable", err)
	}
	if mock.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retries)", mock.calls)
	}
}

func TestRetryProvider_Complete_ExhaustsRetries(t *testing.T) {
	mock := &mockRetryProvider{
		name:   "mock",
		errors: []error{errors.New("502"), errors.New("502"), errors.New("502")},
	}
	r := NewRetryProvider(mock, fastRetryConfig(2))

	_, err := r.Complete(context.Background(), UserPrompt("", "q"), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "max retries") {
		t.Errorf("err = %v, want max retries exceeded", err)
	}
	if mock.calls != 3 {
		t.Errorf("calls = %d, want 3 (initial + 2 retries)", mock.calls)
	}
}

func TestRetryProvider_Embed_Retries(t *testing.T) {
	mock := &mockRetryProvider{name: "mock", errors: []error{errors.New("503"), nil}}
	r := NewRetryProvider(mock, fastRetryConfig(3))

	vecs, err := r.Embed(context.Background(), []string{"a"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 1 {
		t.Errorf("vecs = %d, want 1", len(vecs))
	}
	if mock.calls != 2 {
		t.Errorf("calls = %d, want 2", mock.calls)
	}
}

func TestRetryProvider_CancelledContext(t *testing.T) {
	mock := &mockRetryProvider{
		name:   "mock",
		errors: []error{errors.New("503"), errors.New("503")},
	}
	r := NewRetryProvider(mock, fastRetryConfig(5))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Complete(ctx, UserPrompt("", "q"), nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"rate limited", errors.New("API error: 429 Too Many Requests"), true},
		{"daily quota", errors.New("429: rate limit for tokens per day reached"), false},
		{"daily quota short code", errors.New("429: TPD limit hit"), false},
		{"internal error", errors.New("unexpected status 500"), true},
		{"bad gateway", errors.New("502 Bad Gateway"), true},
		{"unavailable", errors.New("503 Service Unavailable"), true},
		{"gateway timeout", errors.New("504"), true},
		{"bad request", errors.New("status 400: invalid model"), false},
		{"unauthorized", errors.New("status 401"), false},
		{"forbidden", errors.New("status 403"), false},
		{"not found", errors.New("status 404"), false},
		{"unknown defaults to retry", errors.New("connection reset by peer"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryable(tt.err); got != tt.want {
				t.Errorf("retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestBackoff_CapsAtMaxDelay(t *testing.T) {
	r := NewRetryProvider(&mockRetryProvider{name: "mock"}, &RetryConfig{
		MaxRetries: 10,
		RetryDelay: time.Second,
		MaxDelay:   4 * time.Second,
		Timeout:    time.Second,
	})

	if got := r.backoff(1); got != time.Second {
		t.Errorf("backoff(1) = %v, want 1s", got)
	}
	if got := r.backoff(2); got != 2*time.Second {
		t.Errorf("backoff(2) = %v, want 2s", got)
	}
	if got := r.backoff(3); got != 4*time.Second {
		t.Errorf("backoff(3) = %v, want 4s", got)
	}
	if got := r.backoff(8); got != 4*time.Second {
		t.Errorf("backoff(8) = %v, want capped at 4s", got)
	}
}

func TestWrapWithRetry(t *testing.T) {
	if got := WrapWithRetry(nil, ProviderConfig{}); got != nil {
		t.Errorf("wrapping nil provider = %v, want nil", got)
	}

	wrapped := WrapWithRetry(&mockRetryProvider{name: "mock"}, ProviderConfig{})
	r, ok := wrapped.(*RetryProvider)
	if !ok {
		t.Fatalf("wrapped = %T, want *RetryProvider", wrapped)
	}
	if r.config.Timeout != 2*time.Minute {
		t.Errorf("default timeout = %v, want 2m", r.config.Timeout)
	}
	if r.config.MaxRetries != 3 {
		t.Errorf("default max retries = %d, want 3", r.config.MaxRetries)
	}
	if r.config.RetryDelay != time.Second {
		t.Errorf("default retry delay = %v, want 1s", r.config.RetryDelay)
	}
}
