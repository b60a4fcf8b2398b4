package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/efebarandurmaz/kiln/internal/llm"
)

const rerankSystemPrompt = `You grade how relevant a passage is to a question.
Reply with a single integer from 0 (irrelevant) to 10 (directly answers it).
No explanation, just the number.`

// Reranker reorders hits by blending the vector similarity score with an
// LLM relevance grade. On any LLM failure it returns the hits unchanged, so
// reranking can only refine the ordering, never break retrieval.
type Reranker struct {
	provider llm.Provider
	// blend weights the LLM grade against the similarity score.
	// 1.0 trusts the LLM entirely, 0.0 disables its influence.
	blend  float64
	logger *slog.Logger
}

// NewReranker creates a Reranker. blend is clamped to [0, 1].
func NewReranker(provider llm.Provider, blend float64, logger *slog.Logger) *Reranker {
	if blend < 0 {
		blend = 0
	}
	if blend > 1 {
		blend = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{provider: provider, blend: blend, logger: logger}
}

// Rerank grades each hit against the query and re-sorts by the blended
// score. The original order is returned if any grading call fails.
func (rr *Reranker) Rerank(ctx context.Context, query string, hits []Hit) []Hit {
	if len(hits) < 2 {
		return hits
	}

	reranked := make([]Hit, len(hits))
	copy(reranked, hits)

	for i := range reranked {
		grade, err := rr.grade(ctx, query, reranked[i].Text)
		if err != nil {
			rr.logger.Warn("rerank failed, keeping similarity order", "error", err)
			return hits
		}
		reranked[i].Score = rr.blend*grade + (1-rr.blend)*reranked[i].Score
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].Score > reranked[j].Score
	})
	return reranked
}

// grade asks the LLM to score one passage, normalized to [0, 1].
func (rr *Reranker) grade(ctx context.Context, query, passage string) (float64, error) {
	content := fmt.Sprintf("Question: %s\n\nPassage:\n%s", query, passage)
	resp, err := rr.provider.Complete(ctx, llm.UserPrompt(rerankSystemPrompt, content), nil)
	if err != nil {
		return 0, err
	}

	score, err := parseGrade(resp.Content)
	if err != nil {
		return 0, err
	}
	return score / 10, nil
}

// parseGrade extracts the first integer from model output and clamps it
// to [0, 10].
func parseGrade(s string) (float64, error) {
	s = llm.StripThinkingTags(s)
	start := -1
	for i, r := range s {
		if r >= '0' && r <= '9' {
			start = i
			break
		}
	}
	if start == -1 {
		return 0, fmt.Errorf("no grade in %q", truncate(s, 80))
	}
	end := start
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[start:end])
	if err != nil {
		return 0, err
	}
	if n > 10 {
		n = 10
	}
	return float64(n), nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
