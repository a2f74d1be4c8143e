package workflows

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/samirrijal/geodash/internal/core/domain"
)

// MediaDerivativesWorkflow renders every derivative of one upload and attaches
// them to the media row. If rendering or attaching fails, the derivatives
// already stored are deleted and the media is marked failed (saga
// compensation).
func MediaDerivativesWorkflow(ctx workflow.Context, job domain.MediaJob) error {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting media derivatives workflow", "mediaID", job.MediaID)

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	var a *MediaActivities

	if err := workflow.ExecuteActivity(ctx, a.MarkProcessing, job.MediaID).Get(ctx, nil); err != nil {
		return err
	}

	keys := make(map[string]string, len(domain.Derivatives))
	compensate := func(cause error) error {
		logger.Warn("derivative step failed, compensating", "error", cause)
		dctx, cancel := workflow.NewDisconnectedContext(ctx)
		defer cancel()
		stored := make([]string, 0, len(keys))
		for _, d := range domain.Derivatives {
			if k, ok := keys[d.Name]; ok {
				stored = append(stored, k)
			}
		}
		if len(stored) > 0 {
			if err := workflow.ExecuteActivity(dctx, a.DeleteObjects, stored).Get(dctx, nil); err != nil {
				logger.Error("derivative cleanup failed", "error", err)
			}
		}
		if err := workflow.ExecuteActivity(dctx, a.MarkFailed, job.MediaID, cause.Error()).Get(dctx, nil); err != nil {
			logger.Error("mark failed", "error", err)
		}
		return cause
	}

	for _, d := range domain.Derivatives {
		var key string
		if err := workflow.ExecuteActivity(ctx, a.RenderDerivative, job, d.Name).Get(ctx, &key); err != nil {
			return compensate(err)
		}
		keys[d.Name] = key
	}

	if err := workflow.ExecuteActivity(ctx, a.Attach, job.MediaID, keys).Get(ctx, nil); err != nil {
		return compensate(err)
	}

	logger.Info("Media derivatives ready", "mediaID", job.MediaID, "count", len(keys))
	return nil
}

// Register adds the media workflow and its activities to a worker.
func Register(w worker.Registry, acts *MediaActivities) {
	w.RegisterWorkflow(MediaDerivativesWorkflow)
	w.RegisterActivity(acts)
}

// Pipeline implements ports.MediaPipeline by starting a workflow per upload.
type Pipeline struct {
	client    client.Client
	taskQueue string
}

// NewPipeline creates a pipeline that schedules work on taskQueue.
func NewPipeline(c client.Client, taskQueue string) *Pipeline {
	return &Pipeline{client: c, taskQueue: taskQueue}
}

// WorkflowID is the deterministic id of the workflow for a media row, so a
// duplicate submission joins the running execution.
func WorkflowID(mediaID string) string {
	return "media-derivatives-" + mediaID
}

func (p *Pipeline) Submit(ctx context.Context, job *domain.MediaJob) error {
	opts := client.StartWorkflowOptions{
		ID:                       WorkflowID(job.MediaID),
		TaskQueue:                p.taskQueue,
		WorkflowExecutionTimeout: 15 * time.Minute,
	}
	if _, err := p.client.ExecuteWorkflow(ctx, opts, MediaDerivativesWorkflow, *job); err != nil {
		return fmt.Errorf("start media workflow: %w", err)
	}
	return nil
}
