package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	LLM        LLMConfig        `mapstructure:"llm"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Vector     VectorConfig     `mapstructure:"vector"`
	Chunking   ChunkingConfig   `mapstructure:"chunking"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	Generation GenerationConfig `mapstructure:"generation"`
	Auth       AuthConfig       `mapstructure:"auth"`
	History    HistoryConfig    `mapstructure:"history"`
	Graph      GraphConfig      `mapstructure:"graph"`
	Temporal   TemporalConfig   `mapstructure:"temporal"`
	Server     ServerConfig     `mapstructure:"server"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Secrets    SecretsConfig    `mapstructure:"secrets"`
	Log        LogConfig        `mapstructure:"log"`
}

type LLMConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float64 `mapstructure:"temperature"`
	// TopP enables nucleus sampling when set in (0, 1]. 0 leaves the
	// provider default in place.
	TopP      float64 `mapstructure:"top_p"`
	MaxTokens int     `mapstructure:"max_tokens"`

	// Per-role overrides. Keys are role names (e.g. "judge", "reranker",
	// "generator"). Each override inherits unset fields from the top-level
	// LLM config.
	Roles map[string]LLMRoleOverride `mapstructure:"roles"`
}

// LLMRoleOverride allows per-role LLM provider configuration.
type LLMRoleOverride struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
}

// ResolveForRole returns an LLMConfig with role-specific overrides applied.
func (c LLMConfig) ResolveForRole(role string) LLMConfig {
	override, ok := c.Roles[role]
	if !ok {
		return c
	}
	resolved := c
	if override.Provider != "" {
		resolved.Provider = override.Provider
	}
	if override.Model != "" {
		resolved.Model = override.Model
	}
	if override.APIKey != "" {
		resolved.APIKey = override.APIKey
	}
	if override.BaseURL != "" {
		resolved.BaseURL = override.BaseURL
	}
	return resolved
}

type EmbeddingConfig struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
	// Dimensions must match the vector collection schema.
	Dimensions int `mapstructure:"dimensions"`
}

type VectorConfig struct {
	// Backend selects "memory" or "qdrant".
	Backend    string `mapstructure:"backend"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
}

type ChunkingConfig struct {
	Size    int `mapstructure:"size"`
	Overlap int `mapstructure:"overlap"`
}

type RetrievalConfig struct {
	TopK int `mapstructure:"top_k"`
	// RerankEnabled turns on LLM-based reordering of retrieved chunks.
	RerankEnabled bool    `mapstructure:"rerank_enabled"`
	RerankBlend   float64 `mapstructure:"rerank_blend"`
	// MinScore drops hits below this cosine similarity (0 = keep all).
	MinScore float64 `mapstructure:"min_score"`
}

type GenerationConfig struct {
	// Persona selects the answer style prompt ("default", "concise", "teacher").
	Persona string `mapstructure:"persona"`
	// ChainOfThought asks the model to reason step by step before answering.
	ChainOfThought bool `mapstructure:"chain_of_thought"`
	// ContextBudget caps the characters of retrieved context sent to the model.
	ContextBudget int `mapstructure:"context_budget"`
}

type AuthConfig struct {
	// Secret signs JWTs. Required when the server is enabled.
	Secret string `mapstructure:"secret"`
	// TokenTTL is the access token lifetime.
	TokenTTL time.Duration `mapstructure:"token_ttl"`
	// UsersPath points at a JSON seed file of users (optional).
	UsersPath string `mapstructure:"users_path"`
}

type HistoryConfig struct {
	// Backend selects "memory" or "sqlite".
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
	// MaxTurns bounds the sliding window of prior exchanges sent to the model.
	MaxTurns int `mapstructure:"max_turns"`
}

type GraphConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type TemporalConfig struct {
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// OTLPEndpoint enables trace export when set.
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	// AuditPath enables JSONL audit logging ("stdout", "stderr", or a file).
	AuditPath string `mapstructure:"audit_path"`
}

type IngestConfig struct {
	// Dir is the document directory watched and ingested.
	Dir string `mapstructure:"dir"`
	// Watch re-ingests files on change.
	Watch bool `mapstructure:"watch"`
}

type SecretsConfig struct {
	// Provider selects "env", "file", or "vault". Credentials left empty in
	// this file are resolved through the selected backend.
	Provider   string `mapstructure:"provider"`
	Path       string `mapstructure:"path"`
	VaultAddr  string `mapstructure:"vault_addr"`
	VaultToken string `mapstructure:"vault_token"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.LLM.Provider != "" && c.LLM.Provider != "none" && c.LLM.APIKey == "" && c.LLM.Provider != "ollama" {
		warnings = append(warnings, fmt.Sprintf("LLM provider '%s' is configured but api_key is empty", c.LLM.Provider))
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2.0 {
		warnings = append(warnings, fmt.Sprintf("LLM temperature %.2f is outside recommended range [0.0, 2.0]", c.LLM.Temperature))
	}

	if c.LLM.TopP < 0 || c.LLM.TopP > 1 {
		warnings = append(warnings, fmt.Sprintf("LLM top_p %.2f is outside [0.0, 1.0]", c.LLM.TopP))
	}

	if c.LLM.MaxTokens < 0 {
		warnings = append(warnings, fmt.Sprintf("LLM max_tokens %d is negative", c.LLM.MaxTokens))
	}

	if c.Chunking.Overlap >= c.Chunking.Size && c.Chunking.Size > 0 {
		warnings = append(warnings, fmt.Sprintf("chunking overlap %d >= size %d, every chunk would repeat", c.Chunking.Overlap, c.Chunking.Size))
	}

	if c.Retrieval.RerankBlend < 0 || c.Retrieval.RerankBlend > 1 {
		warnings = append(warnings, fmt.Sprintf("retrieval rerank_blend %.2f is outside [0.0, 1.0]", c.Retrieval.RerankBlend))
	}

	if c.Auth.Secret == "" {
		warnings = append(warnings, "auth secret is empty, generated tokens will not survive restarts")
	}

	return warnings
}

// Default returns a Config with working local defaults.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "ollama",
			Model:       "llama3.2",
			Temperature: 0.2,
			MaxTokens:   1024,
		},
		Embedding: EmbeddingConfig{
			Provider:   "ollama",
			Model:      "nomic-embed-text",
			Dimensions: 768,
		},
		Vector: VectorConfig{
			Backend:    "memory",
			Host:       "localhost",
			Port:       6334,
			Collection: "kiln_chunks",
		},
		Chunking:  ChunkingConfig{Size: 800, Overlap: 150},
		Retrieval: RetrievalConfig{TopK: 4, RerankBlend: 0.5},
		Generation: GenerationConfig{
			Persona:       "default",
			ContextBudget: 8000,
		},
		Auth:     AuthConfig{TokenTTL: 30 * time.Minute},
		History:  HistoryConfig{Backend: "memory", MaxTurns: 5},
		Temporal: TemporalConfig{Host: "localhost:7233", Namespace: "default", TaskQueue: "kiln-ingest"},
		Server:   ServerConfig{Addr: ":8080"},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads configuration from file and environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("KILN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return cfg, nil
}
