package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileConfig configures the JSON file backend. Development only.
type FileConfig struct {
	Path string
	// CreateIfMissing writes an empty file when Path does not exist.
	CreateIfMissing bool
}

// FileProvider reads secrets from a flat JSON object on disk.
type FileProvider struct {
	path string

	mu   sync.RWMutex
	data map[string]string
}

// NewFileProvider creates a file-based provider.
func NewFileProvider(cfg *FileConfig) (*FileProvider, error) {
	if cfg == nil || cfg.Path == "" {
		return nil, fmt.Errorf("secrets file path required")
	}

	p := &FileProvider{path: cfg.Path, data: make(map[string]string)}
	if err := p.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading secrets file: %w", err)
		}
		if cfg.CreateIfMissing {
			if err := p.save(); err != nil {
				return nil, fmt.Errorf("creating secrets file: %w", err)
			}
		}
	}
	return p, nil
}

func (p *FileProvider) Name() string { return "file" }

func (p *FileProvider) Get(_ context.Context, key string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	val, ok := p.data[key]
	if !ok || val == "" {
		return "", fmt.Errorf("secret not in file: %s", key)
	}
	return val, nil
}

func (p *FileProvider) Set(_ context.Context, key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data[key] = value
	return p.save()
}

func (p *FileProvider) load() error {
	raw, err := os.ReadFile(p.path)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, &p.data)
}

func (p *FileProvider) save() error {
	raw, err := json.MarshalIndent(p.data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return err
	}
	// Secrets file is owner-readable only.
	return os.WriteFile(p.path, raw, 0o600)
}
