package eval

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Hello, World!", []string{"hello", "world"}},
		{"CPU-bound at 99%", []string{"cpu", "bound", "at", "99"}},
		{"", nil},
		{"...", nil},
	}
	for _, tt := range tests {
		got := Tokenize(tt.in)
		if len(got) != len(tt.want) {
			t.Errorf("Tokenize(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("Tokenize(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
			}
		}
	}
}

func TestKeywordCoverage(t *testing.T) {
	tests := []struct {
		name     string
		answer   string
		keywords []string
		want     float64
	}{
		{"all_present", "Go compiles fast and has goroutines", []string{"goroutines", "compiles"}, 1},
		{"half", "Go compiles fast", []string{"compiles", "goroutines"}, 0.5},
		{"case_insensitive", "GOROUTINES are great", []string{"goroutines"}, 1},
		{"none", "unrelated text", []string{"kafka"}, 0},
		{"no_keywords", "anything", nil, 0},
		{"multiword_keyword", "uses a vector store for search", []string{"vector store"}, 1},
		{"multiword_partial", "uses vectors", []string{"vector store"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := KeywordCoverage(tt.answer, tt.keywords)
			if !almostEqual(got, tt.want) {
				t.Errorf("KeywordCoverage = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFaithfulness(t *testing.T) {
	contexts := []string{"Go is a compiled language designed at Google."}

	if got := Faithfulness("Go is a compiled language", contexts); !almostEqual(got, 1) {
		t.Errorf("fully supported answer = %v, want 1", got)
	}
	if got := Faithfulness("Go invented quantum pizza", contexts); got >= 0.5 {
		t.Errorf("mostly unsupported answer = %v, want < 0.5", got)
	}
	if got := Faithfulness("", contexts); got != 0 {
		t.Errorf("empty answer = %v, want 0", got)
	}
	if got := Faithfulness("anything", nil); got != 0 {
		t.Errorf("no context = %v, want 0", got)
	}
}

func TestComputeHeuristics(t *testing.T) {
	h := ComputeHeuristics(
		"Go is compiled",
		[]string{"compiled"},
		[]string{"Go is a compiled language"},
	)
	if !almostEqual(h.KeywordCoverage, 1) {
		t.Errorf("keyword coverage = %v", h.KeywordCoverage)
	}
	if !almostEqual(h.Faithfulness, 1) {
		t.Errorf("faithfulness = %v", h.Faithfulness)
	}
	if !almostEqual(h.Hallucination, 0) {
		t.Errorf("hallucination = %v", h.Hallucination)
	}
	if h.AnswerWords != 3 {
		t.Errorf("answer words = %d, want 3", h.AnswerWords)
	}
}
