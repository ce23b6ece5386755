package workflows

import (
	"time"

	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/stanstork/linkdoc-import/internal/temporal"
	"github.com/stanstork/linkdoc-import/internal/temporal/activities"
	"github.com/stanstork/linkdoc-import/internal/worker"
)

// DrainWorkflow runs queued import jobs one activity at a time until the queue is
// idle or the batch is spent. It is started on a cron schedule.
func DrainWorkflow(ctx workflow.Context, params temporal.DrainParams) (temporal.DrainResult, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: temporal.DefaultActivityTimeout,
		HeartbeatTimeout:    4 * temporal.HeartbeatInterval,
		// A job that started is completed by the runner either way; never re-run it.
		RetryPolicy: &sdktemporal.RetryPolicy{
			InitialInterval: 5 * time.Second,
			MaximumAttempts: 1,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	logger := workflow.GetLogger(ctx)
	if params.BatchSize <= 0 {
		params.BatchSize = 1
	}
	logger.Info("Starting drain workflow", "WorkerID", params.WorkerID, "BatchSize", params.BatchSize)

	var a *activities.Activities
	var result temporal.DrainResult
	for result.Processed < params.BatchSize {
		var outcome string
		err := workflow.ExecuteActivity(ctx, a.RunOnceActivity, params.WorkerID).Get(ctx, &outcome)
		if err != nil {
			logger.Error("Drain pass stopped.", "error", err)
			return result, err
		}
		if outcome == worker.OutcomeIdle.String() {
			break
		}
		result.Processed++
		result.Outcomes = append(result.Outcomes, outcome)
	}

	logger.Info("Drain workflow completed.", "Processed", result.Processed)
	return result, nil
}
