// Package temporal orchestrates corpus ingestion as a durable workflow,
// so large re-index runs survive worker restarts.
package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// IngestInput holds the workflow parameters.
type IngestInput struct {
	Path string // file or directory to ingest
}

// IngestOutput summarizes one ingestion run.
type IngestOutput struct {
	Documents int
	Skipped   int
	Chunks    int
	Errors    []string
}

// IngestWorkflow lists the corpus, then ingests each document in its own
// activity so one poisoned file cannot fail the whole run.
func IngestWorkflow(ctx workflow.Context, input IngestInput) (*IngestOutput, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: time.Second,
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var sources []string
	if err := workflow.ExecuteActivity(ctx, ListDocumentsActivity, input.Path).Get(ctx, &sources); err != nil {
		return nil, fmt.Errorf("listing corpus: %w", err)
	}

	output := &IngestOutput{}
	for _, source := range sources {
		var result IngestDocumentResult
		if err := workflow.ExecuteActivity(ctx, IngestDocumentActivity, source).Get(ctx, &result); err != nil {
			output.Errors = append(output.Errors, fmt.Sprintf("%s: %v", source, err))
			continue
		}
		output.Documents++
		if result.Skipped {
			output.Skipped++
		}
		output.Chunks += result.Chunks
	}
	return output, nil
}
