// Package vector provides embedding storage and similarity search over
// document chunks.
package vector

import "context"

// Entry is a chunk with its embedding, ready for storage.
type Entry struct {
	ID         string
	DocumentID string
	Content    string
	Vector     []float32
	Metadata   map[string]string
}

// SearchResult is a single match from a similarity search.
type SearchResult struct {
	ID         string
	DocumentID string
	Score      float32
	Content    string
	Metadata   map[string]string
}

// Repository provides vector storage and similarity search.
type Repository interface {
	// Upsert inserts or updates entries.
	Upsert(ctx context.Context, entries []Entry) error
	// Search finds the top-k most similar entries.
	Search(ctx context.Context, vector []float32, topK int) ([]SearchResult, error)
	// DeleteByDocument removes every entry belonging to a document.
	DeleteByDocument(ctx context.Context, documentID string) error
	// Count reports how many entries are stored.
	Count(ctx context.Context) (int, error)
	// Close releases resources.
	Close() error
}
