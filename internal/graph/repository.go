// Package graph records where indexed chunks came from, so answers can be
// traced back to their source documents.
package graph

import "context"

// DocumentNode describes a source document in the provenance graph.
type DocumentNode struct {
	ID          string
	Source      string
	Title       string
	Fingerprint string
	ChunkCount  int
}

// ChunkNode describes one indexed chunk of a document.
type ChunkNode struct {
	ID    string
	Index int
	Chars int
}

// Repository provides provenance storage.
type Repository interface {
	// RecordDocument upserts a document node and its chunk nodes, replacing
	// any chunks from a previous ingestion of the same document.
	RecordDocument(ctx context.Context, doc DocumentNode, chunks []ChunkNode) error
	// DocumentForChunk resolves a chunk ID to its source document.
	DocumentForChunk(ctx context.Context, chunkID string) (*DocumentNode, error)
	// Documents lists all recorded documents.
	Documents(ctx context.Context) ([]DocumentNode, error)
	// Close releases resources.
	Close(ctx context.Context) error
}
