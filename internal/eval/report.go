package eval

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Result is the scored outcome for one fixture.
type Result struct {
	Fixture         Fixture    `json:"fixture"`
	RAGAnswer       string     `json:"rag_answer,omitempty"`
	BaselineAnswer  string     `json:"baseline_answer,omitempty"`
	ContextCount    int        `json:"context_count"`
	RAG             Heuristics `json:"rag"`
	Baseline        Heuristics `json:"baseline"`
	RAGVerdict      *Verdict   `json:"rag_verdict,omitempty"`
	BaselineVerdict *Verdict   `json:"baseline_verdict,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// Aggregate holds mean scores over all successful fixtures.
type Aggregate struct {
	KeywordCoverage float64 `json:"keyword_coverage"`
	Faithfulness    float64 `json:"faithfulness"`
	Hallucination   float64 `json:"hallucination"`
	AnswerWords     float64 `json:"answer_words"`
	JudgeOverall    float64 `json:"judge_overall,omitempty"`
	Judged          int     `json:"judged"`
}

// Report is the full evaluation outcome.
type Report struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Results    []Result  `json:"results"`

	Fixtures int       `json:"fixtures"`
	Failures int       `json:"failures"`
	RAG      Aggregate `json:"rag_summary"`
	Baseline Aggregate `json:"baseline_summary"`
}

func (r *Report) aggregate() {
	r.Fixtures = len(r.Results)
	ok := 0
	for _, res := range r.Results {
		if res.Error != "" {
			r.Failures++
			continue
		}
		ok++
		r.RAG.KeywordCoverage += res.RAG.KeywordCoverage
		r.RAG.Faithfulness += res.RAG.Faithfulness
		r.RAG.Hallucination += res.RAG.Hallucination
		r.RAG.AnswerWords += float64(res.RAG.AnswerWords)
		if res.RAGVerdict != nil {
			r.RAG.JudgeOverall += res.RAGVerdict.Overall
			r.RAG.Judged++
		}

		r.Baseline.KeywordCoverage += res.Baseline.KeywordCoverage
		r.Baseline.Faithfulness += res.Baseline.Faithfulness
		r.Baseline.Hallucination += res.Baseline.Hallucination
		r.Baseline.AnswerWords += float64(res.Baseline.AnswerWords)
		if res.BaselineVerdict != nil {
			r.Baseline.JudgeOverall += res.BaselineVerdict.Overall
			r.Baseline.Judged++
		}
	}
	if ok > 0 {
		div := float64(ok)
		r.RAG.KeywordCoverage /= div
		r.RAG.Faithfulness /= div
		r.RAG.Hallucination /= div
		r.RAG.AnswerWords /= div
		r.Baseline.KeywordCoverage /= div
		r.Baseline.Faithfulness /= div
		r.Baseline.Hallucination /= div
		r.Baseline.AnswerWords /= div
	}
	if r.RAG.Judged > 0 {
		r.RAG.JudgeOverall /= float64(r.RAG.Judged)
	}
	if r.Baseline.Judged > 0 {
		r.Baseline.JudgeOverall /= float64(r.Baseline.Judged)
	}
}

// WriteJSON writes the full report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// PrintSummary writes a human-readable comparison table.
func (r *Report) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "\n╔══════════════════════════════════════════════╗\n")
	fmt.Fprintf(w, "║            KILN EVALUATION REPORT            ║\n")
	fmt.Fprintf(w, "╠══════════════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ Fixtures:    %-32d║\n", r.Fixtures)
	fmt.Fprintf(w, "║ Failures:    %-32d║\n", r.Failures)
	fmt.Fprintf(w, "║ Duration:    %-32s║\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(w, "╠══════════════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ %-20s %10s %12s\n", "METRIC", "RAG", "BASELINE")
	fmt.Fprintf(w, "║ %-20s %10.2f %12.2f\n", "Keyword coverage", r.RAG.KeywordCoverage, r.Baseline.KeywordCoverage)
	fmt.Fprintf(w, "║ %-20s %10.2f %12.2f\n", "Faithfulness", r.RAG.Faithfulness, r.Baseline.Faithfulness)
	fmt.Fprintf(w, "║ %-20s %10.2f %12.2f\n", "Hallucination", r.RAG.Hallucination, r.Baseline.Hallucination)
	fmt.Fprintf(w, "║ %-20s %10.1f %12.1f\n", "Answer words", r.RAG.AnswerWords, r.Baseline.AnswerWords)
	if r.RAG.Judged > 0 || r.Baseline.Judged > 0 {
		fmt.Fprintf(w, "║ %-20s %10.2f %12.2f\n", "Judge overall (1-10)", r.RAG.JudgeOverall, r.Baseline.JudgeOverall)
	}
	if r.Failures > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ FAILURES\n")
		for _, res := range r.Results {
			if res.Error != "" {
				fmt.Fprintf(w, "║   • %s: %s\n", res.Fixture.ID, res.Error)
			}
		}
	}
	fmt.Fprintf(w, "╚══════════════════════════════════════════════╝\n")
}
