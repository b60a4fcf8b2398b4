package eval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/efebarandurmaz/kiln/internal/llm"
)

const baselineSystemPrompt = "You are a helpful assistant. Answer the question from your own knowledge."

// Pipeline is the retrieval-augmented answer path under evaluation.
type Pipeline interface {
	// EvalAnswer returns the generated answer and the retrieved context
	// texts used to produce it.
	EvalAnswer(ctx context.Context, query string) (answer string, contexts []string, err error)
}

// Runner executes fixtures against the pipeline and an optional bare-LLM
// baseline, scoring both.
type Runner struct {
	pipeline Pipeline
	baseline llm.Provider
	judge    *Judge
	logger   *slog.Logger
}

// NewRunner creates a Runner. baseline and judge may be nil to skip the
// comparison and rubric scoring respectively.
func NewRunner(pipeline Pipeline, baseline llm.Provider, judge *Judge, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{pipeline: pipeline, baseline: baseline, judge: judge, logger: logger}
}

// Run evaluates every fixture. Per-fixture failures are recorded in the
// result rather than aborting the run.
func (r *Runner) Run(ctx context.Context, fixtures []Fixture) (*Report, error) {
	if len(fixtures) == 0 {
		return nil, fmt.Errorf("no fixtures to run")
	}

	report := &Report{StartedAt: time.Now().UTC()}
	for _, fx := range fixtures {
		res := r.runOne(ctx, fx)
		report.Results = append(report.Results, res)
		if res.Error != "" {
			r.logger.Warn("fixture failed", "id", fx.ID, "error", res.Error)
		} else {
			r.logger.Info("fixture scored", "id", fx.ID,
				"rag_faithfulness", res.RAG.Faithfulness,
				"rag_keywords", res.RAG.KeywordCoverage)
		}
	}
	report.FinishedAt = time.Now().UTC()
	report.aggregate()
	return report, nil
}

func (r *Runner) runOne(ctx context.Context, fx Fixture) Result {
	res := Result{Fixture: fx}

	answer, contexts, err := r.pipeline.EvalAnswer(ctx, fx.Query)
	if err != nil {
		res.Error = fmt.Sprintf("pipeline: %v", err)
		return res
	}
	res.RAGAnswer = answer
	res.ContextCount = len(contexts)
	res.RAG = ComputeHeuristics(answer, fx.Keywords, contexts)

	if r.judge.Enabled() {
		verdict, err := r.judge.Score(ctx, fx.Query, answer, contexts, fx.Reference)
		if err != nil {
			r.logger.Warn("judge failed for pipeline answer", "id", fx.ID, "error", err)
		} else {
			res.RAGVerdict = verdict
		}
	}

	if r.baseline != nil {
		baseAnswer, err := r.baselineAnswer(ctx, fx.Query)
		if err != nil {
			res.Error = fmt.Sprintf("baseline: %v", err)
			return res
		}
		res.BaselineAnswer = baseAnswer
		res.Baseline = ComputeHeuristics(baseAnswer, fx.Keywords, nil)

		if r.judge.Enabled() {
			verdict, err := r.judge.Score(ctx, fx.Query, baseAnswer, nil, fx.Reference)
			if err != nil {
				r.logger.Warn("judge failed for baseline answer", "id", fx.ID, "error", err)
			} else {
				res.BaselineVerdict = verdict
			}
		}
	}
	return res
}

func (r *Runner) baselineAnswer(ctx context.Context, query string) (string, error) {
	resp, err := r.baseline.Complete(ctx, llm.UserPrompt(baselineSystemPrompt, query), nil)
	if err != nil {
		return "", err
	}
	return llm.StripThinkingTags(resp.Content), nil
}
