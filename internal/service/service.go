// Package service orchestrates the retrieval pipeline: ingestion, search,
// grounded answering, and conversation history.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/efebarandurmaz/kiln/internal/chunker"
	"github.com/efebarandurmaz/kiln/internal/generator"
	"github.com/efebarandurmaz/kiln/internal/graph"
	"github.com/efebarandurmaz/kiln/internal/history"
	"github.com/efebarandurmaz/kiln/internal/ingest"
	"github.com/efebarandurmaz/kiln/internal/observability"
	"github.com/efebarandurmaz/kiln/internal/retriever"
	"github.com/efebarandurmaz/kiln/internal/vector"
)

// Service wires the pipeline stages together.
type Service struct {
	splitter  *chunker.Splitter
	indexer   *vector.Indexer
	retriever *retriever.Retriever
	generator *generator.Generator
	history   history.Store
	graph     graph.Repository
	maxTurns  int
	logger    *slog.Logger

	mu           sync.Mutex
	fingerprints map[string]string // document ID -> last ingested fingerprint
}

// Deps are the stage implementations a Service needs. History and Graph
// fall back to in-memory implementations when nil.
type Deps struct {
	Splitter  *chunker.Splitter
	Indexer   *vector.Indexer
	Retriever *retriever.Retriever
	Generator *generator.Generator
	History   history.Store
	Graph     graph.Repository
	// MaxTurns bounds the conversation window sent to the model.
	MaxTurns int
	Logger   *slog.Logger
}

// New creates a Service.
func New(deps Deps) *Service {
	if deps.History == nil {
		deps.History = history.NewMemory()
	}
	if deps.Graph == nil {
		deps.Graph = graph.NewMemory()
	}
	if deps.MaxTurns <= 0 {
		deps.MaxTurns = 5
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		splitter:     deps.Splitter,
		indexer:      deps.Indexer,
		retriever:    deps.Retriever,
		generator:    deps.Generator,
		history:      deps.History,
		graph:        deps.Graph,
		maxTurns:     deps.MaxTurns,
		logger:       deps.Logger,
		fingerprints: make(map[string]string),
	}
}

// LoadFingerprints seeds the skip cache from recorded provenance, so a
// restarted service does not re-embed unchanged documents.
func (s *Service) LoadFingerprints(ctx context.Context) error {
	docs, err := s.graph.Documents(ctx)
	if err != nil {
		return fmt.Errorf("loading provenance: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		if d.Fingerprint != "" {
			s.fingerprints[d.ID] = d.Fingerprint
		}
	}
	return nil
}

// IngestResult reports one document's ingestion outcome.
type IngestResult struct {
	DocumentID string `json:"document_id"`
	Source     string `json:"source"`
	Chunks     int    `json:"chunks"`
	// Skipped is true when the document's fingerprint was unchanged.
	Skipped bool `json:"skipped"`
}

// IngestDocument chunks, embeds, indexes, and records provenance for one
// document. Unchanged documents are skipped by fingerprint.
func (s *Service) IngestDocument(ctx context.Context, doc *ingest.Document) (*IngestResult, error) {
	ctx, span := observability.StartIngestSpan(ctx, doc.Source)
	defer span.End()

	s.mu.Lock()
	unchanged := s.fingerprints[doc.ID] == doc.Fingerprint && doc.Fingerprint != ""
	s.mu.Unlock()
	if unchanged {
		observability.RecordIngestResult(span, 0, true)
		s.logger.Debug("document unchanged, skipping", "source", doc.Source)
		return &IngestResult{DocumentID: doc.ID, Source: doc.Source, Skipped: true}, nil
	}

	texts := s.splitter.Split(doc.Text)
	if len(texts) == 0 {
		observability.RecordIngestResult(span, 0, true)
		return &IngestResult{DocumentID: doc.ID, Source: doc.Source, Skipped: true}, nil
	}

	meta := map[string]string{"source": doc.Source, "title": doc.Title}
	for k, v := range doc.Metadata {
		meta[k] = v
	}

	chunkIDs, err := s.indexer.Reindex(ctx, doc.ID, texts, meta)
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("indexing %s: %w", doc.Source, err)
	}

	chunkNodes := make([]graph.ChunkNode, len(chunkIDs))
	for i, id := range chunkIDs {
		chunkNodes[i] = graph.ChunkNode{ID: id, Index: i, Chars: len(texts[i])}
	}
	err = s.graph.RecordDocument(ctx, graph.DocumentNode{
		ID:          doc.ID,
		Source:      doc.Source,
		Title:       doc.Title,
		Fingerprint: doc.Fingerprint,
	}, chunkNodes)
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("recording provenance for %s: %w", doc.Source, err)
	}

	s.mu.Lock()
	s.fingerprints[doc.ID] = doc.Fingerprint
	s.mu.Unlock()

	observability.RecordIngestResult(span, len(chunkIDs), false)
	s.logger.Info("document ingested", "source", doc.Source, "chunks", len(chunkIDs))
	return &IngestResult{DocumentID: doc.ID, Source: doc.Source, Chunks: len(chunkIDs)}, nil
}

// IngestSummary aggregates a directory ingestion.
type IngestSummary struct {
	Documents int           `json:"documents"`
	Skipped   int           `json:"skipped"`
	Chunks    int           `json:"chunks"`
	Duration  time.Duration `json:"duration"`
}

// IngestDir loads and ingests every supported file under dir.
func (s *Service) IngestDir(ctx context.Context, dir string) (*IngestSummary, error) {
	start := time.Now()
	docs, err := ingest.LoadDir(dir)
	if err != nil {
		return nil, err
	}

	summary := &IngestSummary{}
	for _, doc := range docs {
		res, err := s.IngestDocument(ctx, doc)
		if err != nil {
			return nil, err
		}
		summary.Documents++
		if res.Skipped {
			summary.Skipped++
		}
		summary.Chunks += res.Chunks
	}
	summary.Duration = time.Since(start)
	return summary, nil
}

// IngestPath loads and ingests a single file.
func (s *Service) IngestPath(ctx context.Context, path string) (*IngestResult, error) {
	doc, err := ingest.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return s.IngestDocument(ctx, doc)
}

// AskResult is a grounded answer with its supporting hits.
type AskResult struct {
	TurnID    string          `json:"turn_id"`
	SessionID string          `json:"session_id"`
	Answer    string          `json:"answer"`
	Grounded  bool            `json:"grounded"`
	Hits      []retriever.Hit `json:"hits,omitempty"`
}

// Ask retrieves context, generates an answer with conversation history,
// and records the turn.
func (s *Service) Ask(ctx context.Context, sessionID, query string) (*AskResult, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	turns, err := s.history.Recent(ctx, sessionID, s.maxTurns)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	hits, err := s.retrieve(ctx, query)
	if err != nil {
		return nil, err
	}

	genCtx, genSpan := observability.StartGenerateSpan(ctx, "")
	answer, err := s.generator.Answer(genCtx, query, hits, history.Window(turns, s.maxTurns))
	if err != nil {
		observability.RecordError(genSpan, err)
		genSpan.End()
		return nil, err
	}
	observability.RecordLLMMetrics(genSpan, answer.InputTokens, answer.OutputTokens, 0)
	genSpan.End()

	chunkIDs := make([]string, len(hits))
	for i, h := range hits {
		chunkIDs[i] = h.ChunkID
	}
	turn := &history.Turn{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Query:     query,
		Answer:    answer.Text,
		ChunkIDs:  chunkIDs,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.history.Append(ctx, turn); err != nil {
		return nil, fmt.Errorf("recording turn: %w", err)
	}

	return &AskResult{
		TurnID:    turn.ID,
		SessionID: sessionID,
		Answer:    answer.Text,
		Grounded:  answer.Grounded,
		Hits:      hits,
	}, nil
}

// Search returns raw retrieval hits without generation.
func (s *Service) Search(ctx context.Context, query string) ([]retriever.Hit, error) {
	return s.retrieve(ctx, query)
}

// Feedback records a thumbs up (+1) or down (-1) on a turn.
func (s *Service) Feedback(ctx context.Context, turnID string, feedback int) error {
	if feedback < -1 || feedback > 1 {
		return fmt.Errorf("feedback must be -1, 0, or 1, got %d", feedback)
	}
	return s.history.RecordFeedback(ctx, turnID, feedback)
}

// History returns up to n recent turns for a session, oldest first.
func (s *Service) History(ctx context.Context, sessionID string, n int) ([]history.Turn, error) {
	return s.history.Recent(ctx, sessionID, n)
}

// Provenance resolves a chunk to its source document.
func (s *Service) Provenance(ctx context.Context, chunkID string) (*graph.DocumentNode, error) {
	return s.graph.DocumentForChunk(ctx, chunkID)
}

// EvalAnswer runs the pipeline without session state, returning the answer
// and the retrieved context texts. Used by the evaluation harness.
func (s *Service) EvalAnswer(ctx context.Context, query string) (string, []string, error) {
	hits, err := s.retrieve(ctx, query)
	if err != nil {
		return "", nil, err
	}
	answer, err := s.generator.Answer(ctx, query, hits, nil)
	if err != nil {
		return "", nil, err
	}
	contexts := make([]string, len(hits))
	for i, h := range hits {
		contexts[i] = h.Text
	}
	return answer.Text, contexts, nil
}

func (s *Service) retrieve(ctx context.Context, query string) ([]retriever.Hit, error) {
	ctx, span := observability.StartRetrieveSpan(ctx, 0)
	defer span.End()

	hits, err := s.retriever.Retrieve(ctx, query)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	top := 0.0
	if len(hits) > 0 {
		top = hits[0].Score
	}
	observability.RecordRetrieveResult(span, len(hits), top)
	return hits, nil
}
