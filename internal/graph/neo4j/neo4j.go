// Package neo4j implements graph.Repository on Neo4j.
package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/efebarandurmaz/kiln/internal/graph"
)

// Repository stores provenance as (:Document)-[:CONTAINS]->(:Chunk) nodes.
type Repository struct {
	driver neo4j.DriverWithContext
}

// New connects to Neo4j and verifies connectivity.
func New(ctx context.Context, uri, username, password string) (*Repository, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return &Repository{driver: driver}, nil
}

func (r *Repository) RecordDocument(ctx context.Context, doc graph.DocumentNode, chunks []graph.ChunkNode) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		// Old chunks go first so re-ingestion replaces rather than accretes.
		_, err := tx.Run(ctx,
			"MATCH (d:Document {id: $id})-[:CONTAINS]->(c:Chunk) DETACH DELETE c",
			map[string]any{"id": doc.ID})
		if err != nil {
			return nil, err
		}

		_, err = tx.Run(ctx,
			"MERGE (d:Document {id: $id}) "+
				"SET d.source = $source, d.title = $title, d.fingerprint = $fingerprint, d.chunk_count = $count",
			map[string]any{
				"id":          doc.ID,
				"source":      doc.Source,
				"title":       doc.Title,
				"fingerprint": doc.Fingerprint,
				"count":       len(chunks),
			})
		if err != nil {
			return nil, err
		}

		for _, c := range chunks {
			_, err := tx.Run(ctx,
				"MERGE (c:Chunk {id: $cid}) SET c.idx = $idx, c.chars = $chars "+
					"WITH c MATCH (d:Document {id: $did}) MERGE (d)-[:CONTAINS]->(c)",
				map[string]any{"cid": c.ID, "idx": c.Index, "chars": c.Chars, "did": doc.ID})
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("recording document %s: %w", doc.ID, err)
	}
	return nil
}

func (r *Repository) DocumentForChunk(ctx context.Context, chunkID string) (*graph.DocumentNode, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx,
			"MATCH (d:Document)-[:CONTAINS]->(:Chunk {id: $cid}) "+
				"RETURN d.id, d.source, d.title, d.fingerprint, d.chunk_count LIMIT 1",
			map[string]any{"cid": chunkID})
		if err != nil {
			return nil, err
		}
		if !records.Next(ctx) {
			return nil, fmt.Errorf("no document for chunk %s", chunkID)
		}
		return documentFromRecord(records.Record()), nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*graph.DocumentNode), nil
}

func (r *Repository) Documents(ctx context.Context) ([]graph.DocumentNode, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx,
			"MATCH (d:Document) RETURN d.id, d.source, d.title, d.fingerprint, d.chunk_count ORDER BY d.source",
			nil)
		if err != nil {
			return nil, err
		}
		var docs []graph.DocumentNode
		for records.Next(ctx) {
			docs = append(docs, *documentFromRecord(records.Record()))
		}
		return docs, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]graph.DocumentNode), nil
}

func documentFromRecord(rec *neo4j.Record) *graph.DocumentNode {
	doc := &graph.DocumentNode{}
	if v, ok := rec.Get("d.id"); ok && v != nil {
		doc.ID = v.(string)
	}
	if v, ok := rec.Get("d.source"); ok && v != nil {
		doc.Source = v.(string)
	}
	if v, ok := rec.Get("d.title"); ok && v != nil {
		doc.Title = v.(string)
	}
	if v, ok := rec.Get("d.fingerprint"); ok && v != nil {
		doc.Fingerprint = v.(string)
	}
	if v, ok := rec.Get("d.chunk_count"); ok && v != nil {
		doc.ChunkCount = int(v.(int64))
	}
	return doc
}

func (r *Repository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

var _ graph.Repository = (*Repository)(nil)
