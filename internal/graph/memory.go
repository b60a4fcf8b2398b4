package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryRepository keeps provenance in memory. Used when no Neo4j instance
// is configured.
type MemoryRepository struct {
	mu        sync.RWMutex
	docs      map[string]DocumentNode
	chunkDocs map[string]string
}

// NewMemory creates an empty in-memory provenance repository.
func NewMemory() *MemoryRepository {
	return &MemoryRepository{
		docs:      make(map[string]DocumentNode),
		chunkDocs: make(map[string]string),
	}
}

func (r *MemoryRepository) RecordDocument(_ context.Context, doc DocumentNode, chunks []ChunkNode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for chunkID, docID := range r.chunkDocs {
		if docID == doc.ID {
			delete(r.chunkDocs, chunkID)
		}
	}

	doc.ChunkCount = len(chunks)
	r.docs[doc.ID] = doc
	for _, c := range chunks {
		r.chunkDocs[c.ID] = doc.ID
	}
	return nil
}

func (r *MemoryRepository) DocumentForChunk(_ context.Context, chunkID string) (*DocumentNode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	docID, ok := r.chunkDocs[chunkID]
	if !ok {
		return nil, fmt.Errorf("no document for chunk %s", chunkID)
	}
	doc := r.docs[docID]
	return &doc, nil
}

func (r *MemoryRepository) Documents(_ context.Context) ([]DocumentNode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	docs := make([]DocumentNode, 0, len(r.docs))
	for _, d := range r.docs {
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Source < docs[j].Source })
	return docs, nil
}

func (r *MemoryRepository) Close(context.Context) error { return nil }

var _ Repository = (*MemoryRepository)(nil)
