package llm

import (
	"fmt"
	"time"
)

// ProviderConfig holds everything needed to construct any provider.
type ProviderConfig struct {
	Provider   string // "anthropic", "openai", "groq", "ollama", "custom", "none"
	APIKey     string
	Model      string
	BaseURL    string // Override for self-hosted / custom endpoints
	EmbedModel string // Embedding model (OpenAI-compatible providers only)

	Timeout    time.Duration // Per-request timeout (default: 2 minutes)
	MaxRetries int           // Max retry attempts (default: 3)
	RetryDelay time.Duration // Initial retry delay for exponential backoff (default: 1s)
}

// DefaultProviderConfig returns a config with sensible defaults.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Timeout:    2 * time.Minute,
		MaxRetries: 3,
		RetryDelay: 1 * time.Second,
	}
}

// Constructor builds a Provider from config.
type Constructor func(cfg ProviderConfig) (Provider, error)

// Factory creates Provider instances by registered name.
type Factory struct {
	constructors map[string]Constructor
}

// NewFactory creates an empty factory; callers register backends explicitly.
func NewFactory() *Factory {
	return &Factory{constructors: make(map[string]Constructor)}
}

// Register adds a provider constructor under the given name.
func (f *Factory) Register(name string, ctor Constructor) {
	f.constructors[name] = ctor
}

// Create builds a Provider from config. Returns nil (no error) when provider
// is empty or "none", allowing retrieval-only operation without an LLM.
// The returned provider is wrapped with retry logic if configured.
func (f *Factory) Create(cfg ProviderConfig) (Provider, error) {
	if cfg.Provider == "" || cfg.Provider == "none" {
		return nil, nil
	}

	ctor, ok := f.constructors[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider %q — registered: %v", cfg.Provider, f.names())
	}

	provider, err := ctor(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Timeout > 0 || cfg.MaxRetries > 0 {
		return WrapWithRetry(provider, cfg), nil
	}
	return provider, nil
}

func (f *Factory) names() []string {
	var out []string
	for k := range f.constructors {
		out = append(out, k)
	}
	return out
}

// KnownProviders maps built-in presets to their default base URLs.
// Everything except "anthropic" speaks the OpenAI chat/embeddings wire format,
// so Groq, Ollama, Together etc. reuse the openai client with a different URL.
var KnownProviders = map[string]string{
	"anthropic":   "https://api.anthropic.com/v1",
	"openai":      "https://api.openai.com/v1",
	"groq":        "https://api.groq.com/openai/v1",
	"huggingface": "https://api-inference.huggingface.co/v1",
	"ollama":      "http://localhost:11434/v1",
	"together":    "https://api.together.xyz/v1",
	"deepseek":    "https://api.deepseek.com/v1",
}
