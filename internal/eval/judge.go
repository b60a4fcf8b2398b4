package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/efebarandurmaz/kiln/internal/llm"
	"github.com/efebarandurmaz/kiln/internal/llmutil"
)

const judgeSystemPrompt = `You are grading an assistant's answer to a question.
Score three dimensions from 1 (worst) to 10 (best):
- faithfulness: is every claim supported by the provided context?
- relevance: does the answer address the question?
- completeness: does it cover what the context allows?
Respond with JSON only: {"faithfulness": N, "relevance": N, "completeness": N}`

// Verdict is one rubric scoring from the judge model. Dimensions are
// clamped to [1, 10].
type Verdict struct {
	Faithfulness float64 `json:"faithfulness"`
	Relevance    float64 `json:"relevance"`
	Completeness float64 `json:"completeness"`
	// Overall is the mean of the three dimensions.
	Overall float64 `json:"overall"`
}

// Judge scores answers with an LLM rubric. A nil provider disables judging.
type Judge struct {
	provider llm.Provider
}

// NewJudge creates a Judge. provider may be nil.
func NewJudge(provider llm.Provider) *Judge {
	return &Judge{provider: provider}
}

// Enabled reports whether a judge model is configured.
func (j *Judge) Enabled() bool { return j != nil && j.provider != nil }

// Score grades one answer. contexts may be empty (baseline answers); the
// judge is told so and grades faithfulness against general plausibility.
func (j *Judge) Score(ctx context.Context, query, answer string, contexts []string, reference string) (*Verdict, error) {
	if !j.Enabled() {
		return nil, fmt.Errorf("no judge provider configured")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", query)
	if len(contexts) > 0 {
		b.WriteString("Context:\n")
		for i, c := range contexts {
			fmt.Fprintf(&b, "[%d] %s\n", i+1, c)
		}
		b.WriteString("\n")
	} else {
		b.WriteString("Context: (none was retrieved)\n\n")
	}
	if reference != "" {
		fmt.Fprintf(&b, "Reference answer: %s\n\n", reference)
	}
	fmt.Fprintf(&b, "Answer to grade:\n%s", answer)

	resp, err := j.provider.Complete(ctx, llm.UserPrompt(judgeSystemPrompt, b.String()), nil)
	if err != nil {
		return nil, fmt.Errorf("judge completion: %w", err)
	}

	return parseVerdict(resp.Content)
}

func parseVerdict(raw string) (*Verdict, error) {
	obj := llmutil.ExtractJSONObject(raw)
	if obj == "" {
		return nil, fmt.Errorf("judge returned no JSON: %q", snippet(raw))
	}
	var v Verdict
	if err := json.Unmarshal([]byte(obj), &v); err != nil {
		return nil, fmt.Errorf("parsing judge verdict: %w", err)
	}
	v.Faithfulness = clampDim(v.Faithfulness)
	v.Relevance = clampDim(v.Relevance)
	v.Completeness = clampDim(v.Completeness)
	v.Overall = (v.Faithfulness + v.Relevance + v.Completeness) / 3
	return &v, nil
}

func clampDim(x float64) float64 {
	if x < 1 {
		return 1
	}
	if x > 10 {
		return 10
	}
	return x
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}
