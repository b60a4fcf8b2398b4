package vector

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/efebarandurmaz/kiln/internal/llm"
)

// Indexer embeds chunk texts and stores them in a repository.
type Indexer struct {
	provider llm.Provider
	repo     Repository
	// batchSize bounds how many texts go to the embedding API per call.
	batchSize int
}

// NewIndexer creates an Indexer. batchSize <= 0 defaults to 64.
func NewIndexer(provider llm.Provider, repo Repository, batchSize int) *Indexer {
	if batchSize <= 0 {
		batchSize = 64
	}
	return &Indexer{provider: provider, repo: repo, batchSize: batchSize}
}

// IndexChunks embeds texts and upserts one entry per chunk. It returns the
// generated entry IDs in input order.
func (ix *Indexer) IndexChunks(ctx context.Context, documentID string, texts []string, metadata map[string]string) ([]string, error) {
	ids := make([]string, 0, len(texts))

	for start := 0; start < len(texts); start += ix.batchSize {
		end := start + ix.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		vectors, err := ix.provider.Embed(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("embedding batch at %d: %w", start, err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(batch))
		}

		entries := make([]Entry, len(batch))
		for i, text := range batch {
			meta := map[string]string{
				"chunk_index": strconv.Itoa(start + i),
			}
			for k, v := range metadata {
				meta[k] = v
			}
			id := uuid.NewString()
			entries[i] = Entry{
				ID:         id,
				DocumentID: documentID,
				Content:    text,
				Vector:     vectors[i],
				Metadata:   meta,
			}
			ids = append(ids, id)
		}
		if err := ix.repo.Upsert(ctx, entries); err != nil {
			return nil, fmt.Errorf("upserting batch at %d: %w", start, err)
		}
	}
	return ids, nil
}

// Reindex replaces a document's entries: delete everything under its ID,
// then index the new chunks.
func (ix *Indexer) Reindex(ctx context.Context, documentID string, texts []string, metadata map[string]string) ([]string, error) {
	if err := ix.repo.DeleteByDocument(ctx, documentID); err != nil {
		return nil, fmt.Errorf("clearing document %s: %w", documentID, err)
	}
	return ix.IndexChunks(ctx, documentID, texts, metadata)
}
