package llm

import (
	"context"
	"strings"
	"testing"
	"time"
)

type mockFactoryProvider struct{ name string }

func (m *mockFactoryProvider) Name() string { return m.name }

func (m *mockFactoryProvider) Complete(context.Context, *Prompt, *RequestOptions) (*Response, error) {
	return &Response{Content: "ok"}, nil
}

func (m *mockFactoryProvider) Embed(context.Context, []string) ([][]float32, error) {
	return nil, nil
}

func TestFactory_Create(t *testing.T) {
	f := NewFactory()
	f.Register("mock", func(cfg ProviderConfig) (Provider, error) {
		return &mockFactoryProvider{name: "mock"}, nil
	})

	p, err := f.Create(ProviderConfig{Provider: "mock"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Name() != "mock" {
		t.Errorf("Name() = %q, want mock", p.Name())
	}
}

func TestFactory_Create_NoneReturnsNil(t *testing.T) {
	f := NewFactory()

	for _, provider := range []string{"", "none"} {
		p, err := f.Create(ProviderConfig{Provider: provider})
		if err != nil {
			t.Errorf("Create(%q): %v", provider, err)
		}
		if p != nil {
			t.Errorf("Create(%q) = %v, want nil for retrieval-only mode", provider, p)
		}
	}
}

func TestFactory_Create_UnknownProvider(t *testing.T) {
	f := NewFactory()
	f.Register("mock", func(cfg ProviderConfig) (Provider, error) {
		return &mockFactoryProvider{name: "mock"}, nil
	})

	_, err := f.Create(ProviderConfig{Provider: "nonexistent"})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if !strings.Contains(err.Error(), "mock") {
		t.Errorf("error should list registered providers: %v", err)
	}
}

func TestFactory_Create_WrapsWithRetry(t *testing.T) {
	f := NewFactory()
	f.Register("mock", func(cfg ProviderConfig) (Provider, error) {
		return &mockFactoryProvider{name: "mock"}, nil
	})

	p, err := f.Create(ProviderConfig{Provider: "mock", MaxRetries: 2, Timeout: time.Second})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, ok := p.(*RetryProvider); !ok {
		t.Errorf("provider = %T, want *RetryProvider when retries configured", p)
	}

	// Without retry settings the raw provider comes back.
	p, err = f.Create(ProviderConfig{Provider: "mock"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, ok := p.(*mockFactoryProvider); !ok {
		t.Errorf("provider = %T, want unwrapped *mockFactoryProvider", p)
	}
}

func TestDefaultProviderConfig(t *testing.T) {
	cfg := DefaultProviderConfig()
	if cfg.Timeout != 2*time.Minute || cfg.MaxRetries != 3 || cfg.RetryDelay != time.Second {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestKnownProviders(t *testing.T) {
	for _, name := range []string{"anthropic", "openai", "groq", "ollama", "together", "deepseek"} {
		if KnownProviders[name] == "" {
			t.Errorf("KnownProviders missing %q", name)
		}
	}
}
