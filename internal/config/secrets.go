package config

import (
	"context"
	"fmt"

	"github.com/efebarandurmaz/kiln/internal/secrets"
)

// LoadWithSecrets reads configuration like Load and then resolves any
// credential left empty in the file through the configured secrets backend.
// Every binary loads through this so a committed config file without keys
// behaves the same everywhere.
func LoadWithSecrets(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ResolveSecrets(context.Background()); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResolveSecrets fills empty credential fields from the configured secrets
// backend. Values set explicitly in the config file are left alone.
func (c *Config) ResolveSecrets(ctx context.Context) error {
	scfg := &secrets.Config{Provider: c.Secrets.Provider}
	switch c.Secrets.Provider {
	case "file":
		scfg.File = &secrets.FileConfig{Path: c.Secrets.Path}
	case "vault":
		scfg.Vault = &secrets.VaultConfig{Address: c.Secrets.VaultAddr, Token: c.Secrets.VaultToken}
	}
	mgr, err := secrets.NewManager(scfg)
	if err != nil {
		return fmt.Errorf("secrets: %w", err)
	}

	if c.LLM.APIKey == "" {
		c.LLM.APIKey = mgr.GetOrDefault(ctx, secrets.KeyLLMAPIKey, "")
	}
	if c.Embedding.APIKey == "" {
		c.Embedding.APIKey = mgr.GetOrDefault(ctx, secrets.KeyEmbeddingAPIKey, "")
	}
	if c.Auth.Secret == "" {
		c.Auth.Secret = mgr.GetOrDefault(ctx, secrets.KeyAuthSecret, "")
	}
	if c.Graph.Password == "" {
		c.Graph.Password = mgr.GetOrDefault(ctx, secrets.KeyGraphPassword, "")
	}
	return nil
}
