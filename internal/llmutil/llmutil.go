// Package llmutil provides provider registration and output-cleaning helpers
// shared by the CLI, the worker, and the evaluation judge.
package llmutil

import (
	"strings"

	"github.com/efebarandurmaz/kiln/internal/llm"
	"github.com/efebarandurmaz/kiln/internal/llm/anthropic"
	"github.com/efebarandurmaz/kiln/internal/llm/openai"
)

// RegisterDefaultProviders registers all built-in LLM provider constructors
// (anthropic, openai, and every OpenAI-compatible preset) into factory.
// cmd/kiln and cmd/worker both call this so registration lives in one place.
func RegisterDefaultProviders(factory *llm.Factory) {
	factory.Register("anthropic", func(c llm.ProviderConfig) (llm.Provider, error) {
		return anthropic.New(c.APIKey, c.Model, c.BaseURL), nil
	})
	factory.Register("openai", func(c llm.ProviderConfig) (llm.Provider, error) {
		return openai.New(c.APIKey, c.Model, c.BaseURL, c.EmbedModel), nil
	})
	for _, p := range []struct{ name, url string }{
		{"groq", llm.KnownProviders["groq"]},
		{"huggingface", llm.KnownProviders["huggingface"]},
		{"ollama", llm.KnownProviders["ollama"]},
		{"together", llm.KnownProviders["together"]},
		{"deepseek", llm.KnownProviders["deepseek"]},
		{"custom", ""},
	} {
		p := p
		factory.Register(p.name, func(c llm.ProviderConfig) (llm.Provider, error) {
			base := c.BaseURL
			if base == "" {
				base = p.url
			}
			return openai.New(c.APIKey, c.Model, base, c.EmbedModel), nil
		})
	}
}

// StripMarkdownFences removes the outermost ``` fence pair from LLM output.
// The judge asks for bare JSON but models routinely wrap it anyway.
func StripMarkdownFences(s string) string {
	s = llm.StripThinkingTags(s)

	lines := strings.Split(s, "\n")

	start := 0
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			start = i + 1
			break
		}
	}

	end := len(lines)
	for i := len(lines) - 1; i >= start; i-- {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), "```") {
			end = i
			break
		}
	}

	if start == 0 && end == len(lines) {
		return s
	}
	return strings.Join(lines[start:end], "\n")
}

// ExtractJSONObject returns the first balanced {...} object in s, or "" if
// none is found. Used to dig rubric verdicts out of chatty completions.
func ExtractJSONObject(s string) string {
	s = StripMarkdownFences(s)
	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
