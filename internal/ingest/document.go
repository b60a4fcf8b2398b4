// Package ingest loads documents from disk and prepares them for indexing.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// Document is a loaded source file. Immutable after load.
type Document struct {
	ID       string            `json:"id"`
	Source   string            `json:"source"`
	Title    string            `json:"title"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
	// Fingerprint is the SHA-256 of the raw file content. Unchanged
	// fingerprint means the document can be skipped on re-ingestion.
	Fingerprint string `json:"fingerprint"`
}

// DocumentID derives a stable UUID from the document source path, so
// re-ingesting the same file replaces its entries instead of duplicating.
func DocumentID(source string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("kiln:"+source)).String()
}

// Fingerprint computes the SHA-256 hex digest of raw content.
func Fingerprint(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}
