// Package retriever turns a query into the most relevant stored chunks.
package retriever

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/efebarandurmaz/kiln/internal/llm"
	"github.com/efebarandurmaz/kiln/internal/vector"
)

// Hit is a retrieved chunk with its relevance score.
type Hit struct {
	ChunkID    string            `json:"chunk_id"`
	DocumentID string            `json:"document_id"`
	Text       string            `json:"text"`
	Score      float64           `json:"score"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Options configure a Retriever.
type Options struct {
	// TopK is how many hits to return. <= 0 defaults to 4.
	TopK int
	// MinScore drops hits below this similarity (0 keeps all).
	MinScore float64
	// Reranker reorders hits when set.
	Reranker *Reranker
}

// Retriever embeds queries and searches the vector store. The query must be
// embedded by the same provider that embedded the corpus, otherwise scores
// are meaningless.
type Retriever struct {
	embedder llm.Provider
	repo     vector.Repository
	opts     Options
	logger   *slog.Logger
}

// New creates a Retriever.
func New(embedder llm.Provider, repo vector.Repository, opts Options, logger *slog.Logger) *Retriever {
	if opts.TopK <= 0 {
		opts.TopK = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{embedder: embedder, repo: repo, opts: opts, logger: logger}
}

// Retrieve returns the top-k chunks most similar to query, reranked when a
// reranker is configured. An empty store yields an empty slice, not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]Hit, error) {
	vecs, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedding query: got %d vectors, want 1", len(vecs))
	}

	// Over-fetch when reranking so the second pass has candidates to demote.
	fetch := r.opts.TopK
	if r.opts.Reranker != nil {
		fetch = r.opts.TopK * 3
	}

	results, err := r.repo.Search(ctx, vecs[0], fetch)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, res := range results {
		score := float64(res.Score)
		if r.opts.MinScore > 0 && score < r.opts.MinScore {
			continue
		}
		hits = append(hits, Hit{
			ChunkID:    res.ID,
			DocumentID: res.DocumentID,
			Text:       res.Content,
			Score:      score,
			Metadata:   res.Metadata,
		})
	}

	if r.opts.Reranker != nil {
		hits = r.opts.Reranker.Rerank(ctx, query, hits)
	}
	if len(hits) > r.opts.TopK {
		hits = hits[:r.opts.TopK]
	}

	r.logger.Debug("retrieved chunks", "query_len", len(query), "hits", len(hits))
	return hits, nil
}
