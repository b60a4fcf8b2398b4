// Package secrets resolves credentials from env vars, a JSON file, or Vault,
// so API keys stay out of config files.
package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Well-known secret keys.
const (
	KeyLLMAPIKey       = "llm_api_key"
	KeyEmbeddingAPIKey = "embedding_api_key"
	KeyAuthSecret      = "auth_secret"
	KeyGraphPassword   = "graph_password"
)

// Provider is one secret backend.
type Provider interface {
	Get(ctx context.Context, key string) (string, error)
	// Set stores a secret. Not all backends support writes.
	Set(ctx context.Context, key, value string) error
	Name() string
}

// Config selects and configures the backend.
type Config struct {
	// Provider is "env", "file", or "vault". Empty means env.
	Provider string
	Vault    *VaultConfig
	File     *FileConfig
	// EnvPrefix for environment variable lookups (default "KILN_").
	EnvPrefix string
}

// Manager resolves secrets from a primary backend with env fallback.
type Manager struct {
	primary  Provider
	fallback Provider

	mu    sync.RWMutex
	cache map[string]string
}

// NewManager creates a Manager for cfg. A nil cfg uses env vars only.
func NewManager(cfg *Config) (*Manager, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	var primary Provider
	var err error
	switch cfg.Provider {
	case "", "env":
		primary = NewEnvProvider(cfg.EnvPrefix)
	case "file":
		if cfg.File == nil {
			return nil, fmt.Errorf("file config required for file provider")
		}
		primary, err = NewFileProvider(cfg.File)
		if err != nil {
			return nil, err
		}
	case "vault":
		if cfg.Vault == nil {
			return nil, fmt.Errorf("vault config required for vault provider")
		}
		primary, err = NewVaultProvider(cfg.Vault)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown secrets provider: %s", cfg.Provider)
	}

	return &Manager{
		primary:  primary,
		fallback: NewEnvProvider(cfg.EnvPrefix),
		cache:    make(map[string]string),
	}, nil
}

// Get resolves key from the primary backend, then the env fallback.
func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	val, ok := m.cache[key]
	m.mu.RUnlock()
	if ok {
		return val, nil
	}

	val, err := m.primary.Get(ctx, key)
	if err != nil || val == "" {
		val, err = m.fallback.Get(ctx, key)
	}
	if err != nil || val == "" {
		return "", fmt.Errorf("secret not found: %s", key)
	}

	m.mu.Lock()
	m.cache[key] = val
	m.mu.Unlock()
	return val, nil
}

// GetOrDefault resolves key or returns defaultVal when the secret is absent.
func (m *Manager) GetOrDefault(ctx context.Context, key, defaultVal string) string {
	val, err := m.Get(ctx, key)
	if err != nil || val == "" {
		return defaultVal
	}
	return val
}

// Set writes to the primary backend and refreshes the cache.
func (m *Manager) Set(ctx context.Context, key, value string) error {
	if err := m.primary.Set(ctx, key, value); err != nil {
		return err
	}
	m.mu.Lock()
	m.cache[key] = value
	m.mu.Unlock()
	return nil
}

// EnvProvider reads secrets from environment variables.
type EnvProvider struct {
	prefix string
}

// NewEnvProvider creates an env-based provider. Empty prefix means "KILN_".
func NewEnvProvider(prefix string) *EnvProvider {
	if prefix == "" {
		prefix = "KILN_"
	}
	return &EnvProvider{prefix: prefix}
}

func (p *EnvProvider) Name() string { return "env" }

func (p *EnvProvider) Get(_ context.Context, key string) (string, error) {
	envKey := p.prefix + strings.ToUpper(key)
	if val := os.Getenv(envKey); val != "" {
		return val, nil
	}
	if val := os.Getenv(strings.ToUpper(key)); val != "" {
		return val, nil
	}
	return "", fmt.Errorf("env var not set: %s", envKey)
}

func (p *EnvProvider) Set(_ context.Context, key, value string) error {
	return os.Setenv(p.prefix+strings.ToUpper(key), value)
}
