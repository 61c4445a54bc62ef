package workflows

import (
	"strings"
	"time"

	"dory/internal/activities"
	"dory/internal/models"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	QueryGetIndexBuildProgress = "GetIndexBuildProgress"
	QueryGetCorpusStatus       = "GetCorpusStatus"
)

// IndexBuildWorkflow rebuilds every requested corpus in a child workflow, then
// verifies that the index loads and records a build report. A failed corpus does
// not stop the others; the previous files of that corpus stay in place.
func IndexBuildWorkflow(ctx workflow.Context, input IndexBuildInput) (string, error) {
	corpora := input.Corpora
	if len(corpora) == 0 {
		for _, d := range models.Domains {
			corpora = append(corpora, string(d))
		}
	}
	progress := IndexBuildProgress{
		RunID:     input.RunID,
		Total:     len(corpora),
		Status:    "running",
		PerCorpus: map[string]string{},
		Children:  map[string]string{},
		Rows:      map[string]int{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetIndexBuildProgress, func() (IndexBuildProgress, error) {
		return progress, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	futures := make([]workflow.ChildWorkflowFuture, 0, len(corpora))
	for _, c := range corpora {
		progress.PerCorpus[c] = "processing"
		workflowID := "index-" + sanitizeID(input.RunID) + "-" + sanitizeID(c)
		childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{WorkflowID: workflowID})
		futures = append(futures, workflow.ExecuteChildWorkflow(childCtx, CorpusIndexWorkflow, CorpusIndexInput{Corpus: c}))
		progress.Children[c] = workflowID
	}

	statuses := map[string]CorpusStatus{}
	for i, f := range futures {
		c := corpora[i]
		var st CorpusStatus
		if err := f.Get(ctx, &st); err != nil {
			progress.Failed++
			progress.PerCorpus[c] = "failed"
			statuses[c] = CorpusStatus{Status: "failed", FailReason: err.Error()}
			continue
		}
		statuses[c] = st
		if st.Status == "failed" {
			progress.Failed++
		}
		progress.Done++
		progress.PerCorpus[c] = st.Status
	}

	var verify activities.VerifyIndexOutput
	verifyErr := workflow.ExecuteActivity(ctx, "VerifyIndexActivity").Get(ctx, &verify)
	for _, r := range verify.Corpora {
		progress.Rows[r.Corpus] = r.Rows
	}

	switch {
	case verifyErr != nil:
		progress.Status = "index_invalid"
	case progress.Failed > 0:
		progress.Status = "partial"
	default:
		progress.Status = "completed"
	}

	report := map[string]any{
		"run_id":       input.RunID,
		"status":       progress.Status,
		"corpora":      statuses,
		"rows":         progress.Rows,
		"generated_at": workflow.Now(ctx),
	}
	if verifyErr != nil {
		report["verify_error"] = verifyErr.Error()
	}
	_ = workflow.ExecuteActivity(ctx, "WriteBuildReportActivity", activities.WriteBuildReportInput{RunID: input.RunID, Report: report}).Get(ctx, nil)

	return progress.Status, nil
}

// CorpusIndexWorkflow runs manifest, ingest and embed for one corpus.
func CorpusIndexWorkflow(ctx workflow.Context, input CorpusIndexInput) (CorpusStatus, error) {
	status := CorpusStatus{CurrentStep: "init", Status: "processing", Steps: map[string]string{}}
	if err := workflow.SetQueryHandler(ctx, QueryGetCorpusStatus, func() (CorpusStatus, error) {
		return status, nil
	}); err != nil {
		return status, err
	}

	short := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    2,
		},
	})
	// embedding a full corpus against a hosted API can take a while
	long := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Hour,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    10 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    2 * time.Minute,
			MaximumAttempts:    3,
		},
	})
	in := activities.CorpusInput{Corpus: input.Corpus}

	fail := func(err error) (CorpusStatus, error) {
		status.Status = "failed"
		status.FailReason = err.Error()
		status.Steps[status.CurrentStep] = "failed"
		return status, nil
	}

	status.CurrentStep = "manifest"
	status.Steps[status.CurrentStep] = "processing"
	var manifestOut activities.BuildManifestOutput
	if err := workflow.ExecuteActivity(short, "BuildManifestActivity", in).Get(ctx, &manifestOut); err != nil {
		return fail(err)
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "ingest"
	status.Steps[status.CurrentStep] = "processing"
	var ingestOut activities.IngestCorpusOutput
	if err := workflow.ExecuteActivity(short, "IngestCorpusActivity", in).Get(ctx, &ingestOut); err != nil {
		return fail(err)
	}
	status.Files = ingestOut.Result.Files
	status.Skipped = ingestOut.Result.Skipped
	status.Chunks = ingestOut.Result.Chunks
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "embed"
	status.Steps[status.CurrentStep] = "processing"
	var embedOut activities.EmbedCorpusOutput
	if err := workflow.ExecuteActivity(long, "EmbedCorpusActivity", in).Get(ctx, &embedOut); err != nil {
		return fail(err)
	}
	status.Rows = embedOut.Result.Rows
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "done"
	status.Status = "processed"
	if manifestOut.Files == 0 || status.Chunks == 0 {
		status.Status = "empty"
	}
	return status, nil
}

func sanitizeID(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "_", "-")
	s = strings.ReplaceAll(s, ".", "-")
	s = strings.ReplaceAll(s, "/", "-")
	return s
}
