package temporal

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/efebarandurmaz/kiln/internal/ingest"
	"github.com/efebarandurmaz/kiln/internal/service"
)

// IngestDocumentResult is the serializable per-document outcome.
type IngestDocumentResult struct {
	DocumentID string
	Source     string
	Chunks     int
	Skipped    bool
}

// Dependencies holds shared resources injected into activities.
type Dependencies struct {
	Service *service.Service
}

var deps *Dependencies

// SetDependencies injects shared resources (called during worker setup).
func SetDependencies(d *Dependencies) {
	deps = d
}

// ListDocumentsActivity walks path and returns every supported file,
// sorted for a deterministic workflow history.
func ListDocumentsActivity(_ context.Context, path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if !ingest.Supported(path) {
			return nil, fmt.Errorf("unsupported file type: %s", path)
		}
		return []string{path}, nil
	}

	var sources []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && ingest.Supported(p) {
			sources = append(sources, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(sources)
	return sources, nil
}

// IngestDocumentActivity chunks, embeds, and indexes one file.
func IngestDocumentActivity(ctx context.Context, source string) (IngestDocumentResult, error) {
	if deps == nil || deps.Service == nil {
		return IngestDocumentResult{}, fmt.Errorf("worker dependencies not configured")
	}

	res, err := deps.Service.IngestPath(ctx, source)
	if err != nil {
		return IngestDocumentResult{}, err
	}
	return IngestDocumentResult{
		DocumentID: res.DocumentID,
		Source:     res.Source,
		Chunks:     res.Chunks,
		Skipped:    res.Skipped,
	}, nil
}
