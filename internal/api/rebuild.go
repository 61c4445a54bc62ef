package api

import (
	"context"
	"errors"
	"fmt"

	"dory/internal/workflows"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	tclient "go.temporal.io/sdk/client"
)

// IndexBuildWorkflowID is fixed so that only one rebuild runs at a time.
const IndexBuildWorkflowID = "index-build"

var ErrBuildRunning = errors.New("index build already running")

type IndexRebuilder interface {
	StartIndexBuild(ctx context.Context, corpora []string) (string, error)
	IndexBuildProgress(ctx context.Context) (workflows.IndexBuildProgress, error)
}

// TemporalRebuilder starts the index build workflow. When onDone is set it is
// called once each started run finishes, successful or not, so the serving
// process can drop its cached index.
type TemporalRebuilder struct {
	client    tclient.Client
	taskQueue string
	logger    arbor.ILogger
	onDone    func()
}

func NewTemporalRebuilder(c tclient.Client, taskQueue string, logger arbor.ILogger, onDone func()) *TemporalRebuilder {
	return &TemporalRebuilder{client: c, taskQueue: taskQueue, logger: logger, onDone: onDone}
}

// buildRun is the part of a workflow run the rebuilder waits on.
type buildRun interface {
	GetRunID() string
	Get(ctx context.Context, valuePtr interface{}) error
}

func (t *TemporalRebuilder) StartIndexBuild(ctx context.Context, corpora []string) (string, error) {
	runID := uuid.NewString()
	we, err := t.client.ExecuteWorkflow(ctx, tclient.StartWorkflowOptions{
		ID:                                       IndexBuildWorkflowID,
		TaskQueue:                                t.taskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.IndexBuildWorkflow, workflows.IndexBuildInput{RunID: runID, Corpora: corpora})
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			return "", ErrBuildRunning
		}
		return "", fmt.Errorf("start index build: %w", err)
	}
	if t.onDone != nil {
		go t.awaitBuild(context.Background(), we)
	}
	return we.GetRunID(), nil
}

func (t *TemporalRebuilder) awaitBuild(ctx context.Context, run buildRun) {
	var status string
	err := run.Get(ctx, &status)
	if err != nil {
		t.logger.Warn().Err(err).Str("run_id", run.GetRunID()).Msg("Index build ended with an error; reloading whatever was written")
	} else {
		t.logger.Info().Str("run_id", run.GetRunID()).Str("status", status).Msg("Index build finished")
	}
	t.onDone()
}

func (t *TemporalRebuilder) IndexBuildProgress(ctx context.Context) (workflows.IndexBuildProgress, error) {
	var prog workflows.IndexBuildProgress
	resp, err := t.client.QueryWorkflow(ctx, IndexBuildWorkflowID, "", workflows.QueryGetIndexBuildProgress)
	if err != nil {
		var nf *serviceerror.NotFound
		if errors.As(err, &nf) {
			return prog, errNotFound
		}
		return prog, fmt.Errorf("query index build: %w", err)
	}
	if err := resp.Get(&prog); err != nil {
		return prog, fmt.Errorf("decode index build progress: %w", err)
	}
	return prog, nil
}
