package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoadFile_Text(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.txt", "some plain text")

	doc, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if doc.Text != "some plain text" {
		t.Errorf("text = %q", doc.Text)
	}
	if doc.Title != "notes" {
		t.Errorf("title = %q, want notes", doc.Title)
	}
	if doc.Metadata["filename"] != "notes.txt" {
		t.Errorf("filename metadata = %q", doc.Metadata["filename"])
	}
	if doc.Fingerprint == "" || len(doc.Fingerprint) != 64 {
		t.Errorf("fingerprint = %q, want sha256 hex", doc.Fingerprint)
	}
}

func TestLoadFile_CSV(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "faq.csv", "question,answer\nWhat is Go?,A programming language\nWho made it?,Google\n")

	doc, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if !strings.Contains(doc.Text, "question: What is Go?") {
		t.Errorf("csv text missing header-prefixed cell: %q", doc.Text)
	}
	if !strings.Contains(doc.Text, "answer: Google") {
		t.Errorf("csv text missing second row: %q", doc.Text)
	}
	if got := strings.Count(doc.Text, "\n"); got != 2 {
		t.Errorf("expected one line per data row, got %d lines", got)
	}
}

func TestLoadFile_Unsupported(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "image.png", "not really an image")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "alpha")
	writeFile(t, dir, "b.md", "# beta")
	writeFile(t, dir, "skip.bin", "binary")

	sub := filepath.Join(dir, "nested")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, sub, "c.txt", "gamma")

	docs, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("got %d docs, want 3", len(docs))
	}
}

func TestDocumentID_Stable(t *testing.T) {
	a := DocumentID("/corpus/notes.txt")
	b := DocumentID("/corpus/notes.txt")
	c := DocumentID("/corpus/other.txt")
	if a != b {
		t.Error("same source should give same ID")
	}
	if a == c {
		t.Error("different sources should give different IDs")
	}
	if len(a) != 36 {
		t.Errorf("ID %q is not a UUID", a)
	}
}

func TestFingerprint_ChangesWithContent(t *testing.T) {
	if Fingerprint([]byte("a")) == Fingerprint([]byte("b")) {
		t.Error("different content should give different fingerprints")
	}
	if Fingerprint([]byte("a")) != Fingerprint([]byte("a")) {
		t.Error("fingerprint should be deterministic")
	}
}
