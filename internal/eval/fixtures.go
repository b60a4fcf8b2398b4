// Package eval measures answer quality over a fixed query set, comparing
// the retrieval pipeline against a bare-LLM baseline.
package eval

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Fixture is one evaluation query with grading hints.
type Fixture struct {
	ID string `json:"id"`
	// Query is sent to both the pipeline and the baseline.
	Query string `json:"query"`
	// Keywords are terms a good answer should mention.
	Keywords []string `json:"keywords,omitempty"`
	// Reference is an optional gold answer shown to the judge.
	Reference string `json:"reference,omitempty"`
}

// ReadFixtures loads a JSONL file of fixtures. Blank lines are skipped;
// malformed lines fail with their line number.
func ReadFixtures(path string) ([]Fixture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening fixtures: %w", err)
	}
	defer f.Close()

	var fixtures []Fixture
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var fx Fixture
		if err := json.Unmarshal([]byte(line), &fx); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		if fx.Query == "" {
			return nil, fmt.Errorf("%s:%d: fixture has no query", path, lineNo)
		}
		if fx.ID == "" {
			fx.ID = fmt.Sprintf("q%d", lineNo)
		}
		fixtures = append(fixtures, fx)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading fixtures: %w", err)
	}
	if len(fixtures) == 0 {
		return nil, fmt.Errorf("%s: no fixtures found", path)
	}
	return fixtures, nil
}
