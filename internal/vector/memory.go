package vector

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryRepository is a brute-force cosine-similarity store. It holds all
// entries in memory and scans them on every search, which is fine for
// development and for corpora in the low tens of thousands of chunks.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryRepository {
	return &MemoryRepository{entries: make(map[string]Entry)}
}

func (r *MemoryRepository) Upsert(_ context.Context, entries []Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		r.entries[e.ID] = e
	}
	return nil
}

func (r *MemoryRepository) Search(_ context.Context, vector []float32, topK int) ([]SearchResult, error) {
	if topK <= 0 {
		return nil, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]SearchResult, 0, len(r.entries))
	for _, e := range r.entries {
		results = append(results, SearchResult{
			ID:         e.ID,
			DocumentID: e.DocumentID,
			Score:      Cosine(vector, e.Vector),
			Content:    e.Content,
			Metadata:   e.Metadata,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (r *MemoryRepository) DeleteByDocument(_ context.Context, documentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.entries {
		if e.DocumentID == documentID {
			delete(r.entries, id)
		}
	}
	return nil
}

func (r *MemoryRepository) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries), nil
}

func (r *MemoryRepository) Close() error { return nil }

// Cosine computes cosine similarity between two vectors. Mismatched lengths
// and zero vectors score 0.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
