package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kiln.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadWithSecrets_EnvFallback(t *testing.T) {
	t.Setenv("KILN_AUTH_SECRET", "from-env")
	path := writeConfig(t, "llm:\n  provider: none\n")

	cfg, err := LoadWithSecrets(path)
	if err != nil {
		t.Fatalf("LoadWithSecrets: %v", err)
	}
	if cfg.Auth.Secret != "from-env" {
		t.Errorf("auth secret = %q, want from-env", cfg.Auth.Secret)
	}
}

func TestLoadWithSecrets_FileProvider(t *testing.T) {
	dir := t.TempDir()
	secretsPath := filepath.Join(dir, "secrets.json")
	if err := os.WriteFile(secretsPath, []byte(`{"llm_api_key": "sk-from-file"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	path := writeConfig(t, "llm:\n  provider: openai\nsecrets:\n  provider: file\n  path: "+secretsPath+"\n")

	cfg, err := LoadWithSecrets(path)
	if err != nil {
		t.Fatalf("LoadWithSecrets: %v", err)
	}
	if cfg.LLM.APIKey != "sk-from-file" {
		t.Errorf("api key = %q, want sk-from-file", cfg.LLM.APIKey)
	}
}

func TestLoadWithSecrets_ExplicitValueWins(t *testing.T) {
	dir := t.TempDir()
	secretsPath := filepath.Join(dir, "secrets.json")
	if err := os.WriteFile(secretsPath, []byte(`{"llm_api_key": "sk-from-file"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	path := writeConfig(t, "llm:\n  provider: openai\n  api_key: sk-from-config\nsecrets:\n  provider: file\n  path: "+secretsPath+"\n")

	cfg, err := LoadWithSecrets(path)
	if err != nil {
		t.Fatalf("LoadWithSecrets: %v", err)
	}
	if cfg.LLM.APIKey != "sk-from-config" {
		t.Errorf("api key = %q, config file value should win", cfg.LLM.APIKey)
	}
}
