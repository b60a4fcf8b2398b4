// Package metrics collects statistics for an ingestion run.
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// IngestMetrics collects statistics for a full ingestion run.
type IngestMetrics struct {
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at,omitempty"`
	Duration   time.Duration  `json:"duration_ms,omitempty"`
	Corpus     CorpusMetrics  `json:"corpus"`
	Stages     []StageMetrics `json:"stages,omitempty"`
	Errors     []string       `json:"errors,omitempty"`
}

type CorpusMetrics struct {
	Path       string `json:"path"`
	Files      int    `json:"files"`
	Documents  int    `json:"documents"`
	Skipped    int    `json:"skipped"`
	Chunks     int    `json:"chunks"`
	TotalBytes int    `json:"total_bytes"`
}

// StageMetrics records a single pipeline stage's timing.
type StageMetrics struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration_ms"`
	Items    int           `json:"items"`
}

// New starts tracking an ingestion run.
func New(path string) *IngestMetrics {
	return &IngestMetrics{
		StartedAt: time.Now(),
		Corpus:    CorpusMetrics{Path: path},
	}
}

// AddDocument records one document's outcome.
func (m *IngestMetrics) AddDocument(bytes, chunks int, skipped bool) {
	m.Corpus.Files++
	if skipped {
		m.Corpus.Skipped++
		return
	}
	m.Corpus.Documents++
	m.Corpus.Chunks += chunks
	m.Corpus.TotalBytes += bytes
}

// AddStage records a single stage's timing.
func (m *IngestMetrics) AddStage(name string, d time.Duration, items int) {
	m.Stages = append(m.Stages, StageMetrics{Name: name, Duration: d, Items: items})
}

// AddError records a non-fatal per-file failure.
func (m *IngestMetrics) AddError(err string) {
	m.Errors = append(m.Errors, err)
}

// Finish marks the run as complete.
func (m *IngestMetrics) Finish() {
	m.FinishedAt = time.Now()
	m.Duration = m.FinishedAt.Sub(m.StartedAt)
}

// PrintSummary writes a human-readable summary.
func (m *IngestMetrics) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "\n╔══════════════════════════════════════╗\n")
	fmt.Fprintf(w, "║         KILN INGEST REPORT           ║\n")
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ Duration:    %-23s║\n", m.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ CORPUS (%s)\n", m.Corpus.Path)
	fmt.Fprintf(w, "║   Files:       %d\n", m.Corpus.Files)
	fmt.Fprintf(w, "║   Indexed:     %d\n", m.Corpus.Documents)
	fmt.Fprintf(w, "║   Unchanged:   %d\n", m.Corpus.Skipped)
	fmt.Fprintf(w, "║   Chunks:      %d\n", m.Corpus.Chunks)
	fmt.Fprintf(w, "║   Total Size:  %s\n", formatBytes(m.Corpus.TotalBytes))
	if len(m.Stages) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ STAGES\n")
		for _, s := range m.Stages {
			fmt.Fprintf(w, "║   %-14s %8s  %d items\n", s.Name, s.Duration.Round(time.Millisecond), s.Items)
		}
	}
	if len(m.Errors) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ ERRORS\n")
		for _, e := range m.Errors {
			fmt.Fprintf(w, "║   • %s\n", e)
		}
	}
	fmt.Fprintf(w, "╚══════════════════════════════════════╝\n")
}

// JSON returns the metrics as formatted JSON.
func (m *IngestMetrics) JSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

func formatBytes(b int) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
