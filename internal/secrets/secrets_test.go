package secrets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestEnvProvider(t *testing.T) {
	t.Setenv("KILN_LLM_API_KEY", "sk-from-env")

	p := NewEnvProvider("")
	val, err := p.Get(context.Background(), KeyLLMAPIKey)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if val != "sk-from-env" {
		t.Errorf("val = %q", val)
	}
}

func TestEnvProvider_UnprefixedFallback(t *testing.T) {
	t.Setenv("AUTH_SECRET", "bare")

	p := NewEnvProvider("")
	val, err := p.Get(context.Background(), KeyAuthSecret)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if val != "bare" {
		t.Errorf("val = %q", val)
	}
}

func TestEnvProvider_Missing(t *testing.T) {
	p := NewEnvProvider("KILNTEST_")
	if _, err := p.Get(context.Background(), "definitely_not_set"); err == nil {
		t.Error("expected error for unset var")
	}
}

func TestFileProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")
	if err := os.WriteFile(path, []byte(`{"llm_api_key":"sk-from-file"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	p, err := NewFileProvider(&FileConfig{Path: path})
	if err != nil {
		t.Fatalf("NewFileProvider: %v", err)
	}

	val, err := p.Get(context.Background(), KeyLLMAPIKey)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if val != "sk-from-file" {
		t.Errorf("val = %q", val)
	}
}

func TestFileProvider_SetPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")

	p, err := NewFileProvider(&FileConfig{Path: path, CreateIfMissing: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Set(context.Background(), KeyGraphPassword, "s3cret"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// A fresh provider sees the written value.
	p2, err := NewFileProvider(&FileConfig{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	val, err := p2.Get(context.Background(), KeyGraphPassword)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if val != "s3cret" {
		t.Errorf("val = %q", val)
	}
}

func TestFileProvider_MissingWithoutCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", "secrets.json")
	if _, err := NewFileProvider(&FileConfig{Path: path}); err != nil {
		t.Fatalf("missing file without CreateIfMissing should not error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("provider should not create the file unless asked")
	}
}

func TestVaultProvider(t *testing.T) {
	store := map[string]any{"llm_api_key": "sk-from-vault"}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Vault-Token") != "root-token" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{"data": store},
			})
		case http.MethodPost:
			var payload struct {
				Data map[string]any `json:"data"`
			}
			json.NewDecoder(r.Body).Decode(&payload)
			store = payload.Data
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer ts.Close()

	p, err := NewVaultProvider(&VaultConfig{Address: ts.URL, Token: "root-token"})
	if err != nil {
		t.Fatal(err)
	}

	val, err := p.Get(context.Background(), KeyLLMAPIKey)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if val != "sk-from-vault" {
		t.Errorf("val = %q", val)
	}

	// Set merges with existing keys instead of clobbering the path.
	if err := p.Set(context.Background(), KeyAuthSecret, "hs256"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if store["llm_api_key"] != "sk-from-vault" || store["auth_secret"] != "hs256" {
		t.Errorf("store = %v", store)
	}
}

func TestVaultProvider_RequiresToken(t *testing.T) {
	if _, err := NewVaultProvider(&VaultConfig{Address: "http://localhost:8200"}); err == nil {
		t.Error("expected error without token")
	}
}

func TestManager_FallbackToEnv(t *testing.T) {
	t.Setenv("KILN_EMBEDDING_API_KEY", "sk-env-fallback")

	path := filepath.Join(t.TempDir(), "secrets.json")
	os.WriteFile(path, []byte(`{}`), 0o600)

	m, err := NewManager(&Config{Provider: "file", File: &FileConfig{Path: path}})
	if err != nil {
		t.Fatal(err)
	}

	val, err := m.Get(context.Background(), KeyEmbeddingAPIKey)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if val != "sk-env-fallback" {
		t.Errorf("val = %q", val)
	}
}

func TestManager_GetOrDefault(t *testing.T) {
	m, err := NewManager(nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := m.GetOrDefault(context.Background(), "unset_key_for_test", "fallback"); got != "fallback" {
		t.Errorf("got %q", got)
	}
}

func TestManager_Caches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")
	os.WriteFile(path, []byte(`{"auth_secret":"first"}`), 0o600)

	m, err := NewManager(&Config{Provider: "file", File: &FileConfig{Path: path}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Get(context.Background(), KeyAuthSecret); err != nil {
		t.Fatal(err)
	}

	// Mutating the file does not change cached reads.
	os.WriteFile(path, []byte(`{"auth_secret":"second"}`), 0o600)
	val, _ := m.Get(context.Background(), KeyAuthSecret)
	if val != "first" {
		t.Errorf("val = %q, want cached first", val)
	}
}

func TestManager_UnknownProvider(t *testing.T) {
	if _, err := NewManager(&Config{Provider: "keychain"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}
