package temporal

import (
	"context"

	"github.com/pkg/errors"
	"go.temporal.io/sdk/client"
)

// ScheduleOptions configures the cron run of the drain workflow.
type ScheduleOptions struct {
	TaskQueue    string
	CronSchedule string
	Params       DrainParams
}

// StartDrainCron starts the cron drain workflow. When it is already running the
// existing run is returned.
func StartDrainCron(ctx context.Context, c client.Client, workflow interface{}, opts ScheduleOptions) (client.WorkflowRun, error) {
	if opts.TaskQueue == "" {
		opts.TaskQueue = TaskQueueName
	}
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:           DrainWorkflowID,
		TaskQueue:    opts.TaskQueue,
		CronSchedule: opts.CronSchedule,
	}, workflow, opts.Params)
	if err != nil {
		return nil, errors.Wrap(err, "start drain workflow")
	}
	return run, nil
}
