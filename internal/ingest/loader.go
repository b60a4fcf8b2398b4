package ingest

import (
	"encoding/csv"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// SupportedExtensions lists file types the loader understands.
var SupportedExtensions = []string{".txt", ".md", ".csv"}

// Supported reports whether path has a loadable extension.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// LoadFile reads a single document. CSV files are flattened to one
// "header: value" line per cell so rows stay retrievable as text.
func LoadFile(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var text string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		text = string(raw)
	case ".csv":
		text, err = flattenCSV(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported file type: %s", path)
	}

	name := filepath.Base(path)
	return &Document{
		ID:     DocumentID(path),
		Source: path,
		Title:  strings.TrimSuffix(name, filepath.Ext(name)),
		Text:   text,
		Metadata: map[string]string{
			"filename": name,
		},
		Fingerprint: Fingerprint(raw),
	}, nil
}

// LoadDir walks dir and loads every supported file. Unsupported files are
// skipped silently; unreadable supported files fail the whole load.
func LoadDir(dir string) ([]*Document, error) {
	var docs []*Document
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !Supported(path) {
			return nil
		}
		doc, err := LoadFile(path)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	return docs, nil
}

// flattenCSV renders each record as "header: value" pairs joined with "; ",
// one record per line. The first record is treated as the header row.
func flattenCSV(raw []byte) (string, error) {
	r := csv.NewReader(strings.NewReader(string(raw)))
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", nil
	}

	header := records[0]
	var b strings.Builder
	for _, rec := range records[1:] {
		var parts []string
		for i, cell := range rec {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			key := fmt.Sprintf("col%d", i)
			if i < len(header) {
				key = strings.TrimSpace(header[i])
			}
			parts = append(parts, key+": "+cell)
		}
		if len(parts) > 0 {
			b.WriteString(strings.Join(parts, "; "))
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}
