// Package generator produces grounded answers from retrieved context.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/efebarandurmaz/kiln/internal/llm"
	"github.com/efebarandurmaz/kiln/internal/retriever"
)

// NoContextAnswer is returned without calling the model when retrieval
// comes back empty. Answering from model memory alone would defeat the
// point of grounding.
const NoContextAnswer = "I couldn't find anything relevant in the indexed documents. Try rephrasing the question or ingesting more material."

// Options configure answer generation.
type Options struct {
	// Persona selects the answer style. Unknown values fall back to "default".
	Persona string
	// ChainOfThought asks the model to reason before answering.
	ChainOfThought bool
	// ContextBudget caps total context characters sent to the model.
	// <= 0 defaults to 8000.
	ContextBudget int
	Temperature   float64
	// TopP enables nucleus sampling when in (0, 1]. 0 keeps the provider
	// default.
	TopP      float64
	MaxTokens int
}

// Answer is a generated response with token accounting.
type Answer struct {
	Text         string `json:"text"`
	Model        string `json:"model,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
	// Grounded is false when the canned no-context answer was returned.
	Grounded bool `json:"grounded"`
}

var personas = map[string]string{
	"default": "You are a helpful assistant. Answer using ONLY the provided context. If the context does not contain the answer, say you don't know rather than guessing.",
	"concise": "You are a terse assistant. Answer in at most three sentences, using ONLY the provided context. Say you don't know when the context is insufficient.",
	"teacher": "You are a patient teacher. Explain the answer step by step for a beginner, using ONLY the provided context. Say you don't know when the context is insufficient.",
}

const cotInstruction = "Think through the context carefully before answering. Reason step by step, then give your final answer."

// Generator builds prompts and calls the completion provider.
type Generator struct {
	provider llm.Provider
	opts     Options
	logger   *slog.Logger
}

// New creates a Generator.
func New(provider llm.Provider, opts Options, logger *slog.Logger) *Generator {
	if opts.ContextBudget <= 0 {
		opts.ContextBudget = 8000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{provider: provider, opts: opts, logger: logger}
}

// Answer generates a grounded answer for query. history carries prior
// conversation turns, oldest first. Empty hits short-circuit to the canned
// answer without touching the model.
func (g *Generator) Answer(ctx context.Context, query string, hits []retriever.Hit, history []llm.Message) (*Answer, error) {
	if len(hits) == 0 {
		return &Answer{Text: NoContextAnswer, Grounded: false}, nil
	}

	msgs := append([]llm.Message{}, history...)
	msgs = append(msgs, llm.Message{
		Role:    llm.RoleUser,
		Content: g.userMessage(query, hits),
	})
	prompt := &llm.Prompt{
		SystemPrompt: g.systemPrompt(),
		Messages:     msgs,
	}

	opts := &llm.RequestOptions{}
	if g.opts.Temperature > 0 {
		t := g.opts.Temperature
		opts.Temperature = &t
	}
	if g.opts.TopP > 0 && g.opts.TopP <= 1 {
		p := g.opts.TopP
		opts.TopP = &p
	}
	if g.opts.MaxTokens > 0 {
		m := g.opts.MaxTokens
		opts.MaxTokens = &m
	}

	resp, err := g.provider.Complete(ctx, prompt, opts)
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	text := llm.StripThinkingTags(resp.Content)
	g.logger.Debug("generated answer",
		"chars", len(text),
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens)

	return &Answer{
		Text:         text,
		Model:        resp.Model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		Grounded:     true,
	}, nil
}

func (g *Generator) systemPrompt() string {
	persona, ok := personas[g.opts.Persona]
	if !ok {
		persona = personas["default"]
	}
	if g.opts.ChainOfThought {
		return persona + "\n\n" + cotInstruction
	}
	return persona
}

// userMessage renders numbered context blocks and the question. Context is
// cut at the budget on whole chunks, never mid-chunk.
func (g *Generator) userMessage(query string, hits []retriever.Hit) string {
	var b strings.Builder
	b.WriteString("Context:\n")

	used := 0
	included := 0
	for i, h := range hits {
		if included > 0 && used+len(h.Text) > g.opts.ContextBudget {
			break
		}
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, h.Text)
		used += len(h.Text)
		included++
	}

	b.WriteString("Question: ")
	b.WriteString(query)
	return b.String()
}
