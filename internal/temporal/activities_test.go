package temporal

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/efebarandurmaz/kiln/internal/chunker"
	"github.com/efebarandurmaz/kiln/internal/generator"
	"github.com/efebarandurmaz/kiln/internal/llm"
	"github.com/efebarandurmaz/kiln/internal/retriever"
	"github.com/efebarandurmaz/kiln/internal/service"
	"github.com/efebarandurmaz/kiln/internal/vector"
)

type stubProvider struct{}

func (stubProvider) Name() string { return "stub" }

func (stubProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		vecs[i] = []float32{float32(len(t)), 1}
	}
	return vecs, nil
}

func (stubProvider) Complete(context.Context, *llm.Prompt, *llm.RequestOptions) (*llm.Response, error) {
	return &llm.Response{Content: "ok"}, nil
}

func setupService() *service.Service {
	provider := stubProvider{}
	repo := vector.NewMemory()
	return service.New(service.Deps{
		Splitter:  chunker.New(200, 40),
		Indexer:   vector.NewIndexer(provider, repo, 0),
		Retriever: retriever.New(provider, repo, retriever.Options{}, nil),
		Generator: generator.New(provider, generator.Options{}, nil),
	})
}

func corpusDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"a.txt":    "First document about compilers.",
		"b.md":     "# Second\n\nSecond document about linkers.",
		"skip.bin": "not supported",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestSetDependencies(t *testing.T) {
	svc := setupService()
	SetDependencies(&Dependencies{Service: svc})

	if deps == nil || deps.Service != svc {
		t.Fatal("SetDependencies did not store the service")
	}
}

func TestListDocumentsActivity(t *testing.T) {
	dir := corpusDir(t)

	sources, err := ListDocumentsActivity(context.Background(), dir)
	if err != nil {
		t.Fatalf("ListDocumentsActivity: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("sources = %v, want a.txt and b.md", sources)
	}
	if sources[0] >= sources[1] {
		t.Errorf("sources not sorted: %v", sources)
	}
}

func TestListDocumentsActivity_SingleFile(t *testing.T) {
	dir := corpusDir(t)
	path := filepath.Join(dir, "a.txt")

	sources, err := ListDocumentsActivity(context.Background(), path)
	if err != nil {
		t.Fatalf("ListDocumentsActivity: %v", err)
	}
	if len(sources) != 1 || sources[0] != path {
		t.Errorf("sources = %v, want [%s]", sources, path)
	}
}

func TestListDocumentsActivity_UnsupportedFile(t *testing.T) {
	dir := corpusDir(t)

	_, err := ListDocumentsActivity(context.Background(), filepath.Join(dir, "skip.bin"))
	if err == nil {
		t.Fatal("expected error for unsupported file")
	}
}

func TestIngestDocumentActivity(t *testing.T) {
	SetDependencies(&Dependencies{Service: setupService()})
	dir := corpusDir(t)

	result, err := IngestDocumentActivity(context.Background(), filepath.Join(dir, "a.txt"))
	if err != nil {
		t.Fatalf("IngestDocumentActivity: %v", err)
	}
	if result.DocumentID == "" || result.Chunks == 0 {
		t.Errorf("result = %+v, want document ID and chunks", result)
	}
	if result.Skipped {
		t.Error("first ingest should not be skipped")
	}

	// Unchanged content skips the embed and index work.
	again, err := IngestDocumentActivity(context.Background(), filepath.Join(dir, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !again.Skipped {
		t.Error("second ingest of unchanged file should be skipped")
	}
}

func TestIngestDocumentActivity_NoDependencies(t *testing.T) {
	SetDependencies(nil)
	t.Cleanup(func() { SetDependencies(&Dependencies{Service: setupService()}) })

	_, err := IngestDocumentActivity(context.Background(), "whatever.txt")
	if err == nil {
		t.Fatal("expected error when dependencies are not configured")
	}
}
