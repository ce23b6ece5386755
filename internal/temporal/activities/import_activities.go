package activities

import (
	"context"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/stanstork/linkdoc-import/internal/temporal"
	"github.com/stanstork/linkdoc-import/internal/worker"
)

type Activities struct {
	Runner worker.JobRunner
	// HeartbeatInterval overrides temporal.HeartbeatInterval when set.
	HeartbeatInterval time.Duration
}

// RunOnceActivity processes at most one queued import job and returns the outcome name.
// Job failures are recorded on the queue by the runner, so only claim errors fail the activity.
func (a *Activities) RunOnceActivity(ctx context.Context, workerID string) (string, error) {
	logger := activity.GetLogger(ctx)

	interval := a.HeartbeatInterval
	if interval <= 0 {
		interval = temporal.HeartbeatInterval
	}
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()

	outcome, err := a.Runner.RunOnce(ctx, workerID)
	if err != nil && outcome == worker.OutcomeIdle {
		logger.Error("Failed to claim import job", "workerID", workerID, "error", err)
		return outcome.String(), err
	}
	if err != nil {
		logger.Warn("Import job finished with error", "workerID", workerID, "outcome", outcome.String(), "error", err)
	} else {
		logger.Info("Import job run finished", "workerID", workerID, "outcome", outcome.String())
	}
	return outcome.String(), nil
}
