package secrets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// VaultConfig configures the HashiCorp Vault KV v2 backend.
type VaultConfig struct {
	// Address of the Vault server, e.g. "http://localhost:8200".
	Address string
	Token   string
	// MountPath of the KV engine (default "secret").
	MountPath string
	// SecretPath under the mount holding all kiln secrets (default "kiln").
	SecretPath string
	Timeout    time.Duration
}

// VaultProvider reads and writes one KV v2 path holding all secrets.
type VaultProvider struct {
	cfg    *VaultConfig
	client *http.Client
}

// NewVaultProvider creates a Vault provider.
func NewVaultProvider(cfg *VaultConfig) (*VaultProvider, error) {
	if cfg == nil || cfg.Address == "" {
		return nil, fmt.Errorf("vault address required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("vault token required")
	}
	if cfg.MountPath == "" {
		cfg.MountPath = "secret"
	}
	if cfg.SecretPath == "" {
		cfg.SecretPath = "kiln"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &VaultProvider{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

func (p *VaultProvider) Name() string { return "vault" }

func (p *VaultProvider) url() string {
	return fmt.Sprintf("%s/v1/%s/data/%s",
		strings.TrimSuffix(p.cfg.Address, "/"), p.cfg.MountPath, p.cfg.SecretPath)
}

func (p *VaultProvider) Get(ctx context.Context, key string) (string, error) {
	data, err := p.readData(ctx)
	if err != nil {
		return "", err
	}
	val, ok := data[key]
	if !ok {
		return "", fmt.Errorf("key not found in vault: %s", key)
	}
	if s, ok := val.(string); ok {
		return s, nil
	}
	return fmt.Sprintf("%v", val), nil
}

func (p *VaultProvider) Set(ctx context.Context, key, value string) error {
	// KV v2 replaces the whole path, so merge with what is already there.
	data, err := p.readData(ctx)
	if err != nil {
		data = make(map[string]any)
	}
	data[key] = value
	return p.writeData(ctx, data)
}

func (p *VaultProvider) readData(ctx context.Context) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Vault-Token", p.cfg.Token)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vault request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("secret path not found: %s", p.cfg.SecretPath)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("vault error %d: %s", resp.StatusCode, body)
	}

	var result struct {
		Data struct {
			Data map[string]any `json:"data"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return result.Data.Data, nil
}

func (p *VaultProvider) writeData(ctx context.Context, data map[string]any) error {
	body, err := json.Marshal(map[string]any{"data": data})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Vault-Token", p.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("vault request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("vault error %d: %s", resp.StatusCode, respBody)
	}
	return nil
}
