package activities

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/stanstork/linkdoc-import/internal/worker"
)

type stubRunner struct {
	outcome worker.Outcome
	err     error
	workers []string
	delay   time.Duration
}

func (s *stubRunner) RunOnce(ctx context.Context, workerID string) (worker.Outcome, error) {
	s.workers = append(s.workers, workerID)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.outcome, s.err
}

func runActivity(t *testing.T, a *Activities) (string, error) {
	t.Helper()
	var s testsuite.WorkflowTestSuite
	env := s.NewTestActivityEnvironment()
	env.RegisterActivity(a)
	val, err := env.ExecuteActivity(a.RunOnceActivity, "w1")
	if err != nil {
		return "", err
	}
	var out string
	require.NoError(t, val.Get(&out))
	return out, nil
}

func TestRunOnceActivity(t *testing.T) {
	runner := &stubRunner{outcome: worker.OutcomeSucceeded, delay: 20 * time.Millisecond}
	out, err := runActivity(t, &Activities{Runner: runner, HeartbeatInterval: 5 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, "succeeded", out)
	assert.Equal(t, []string{"w1"}, runner.workers)
}

func TestRunOnceActivityJobFailureIsNotActivityFailure(t *testing.T) {
	runner := &stubRunner{outcome: worker.OutcomeFailed, err: errors.New("validate csv: schema mismatch")}
	out, err := runActivity(t, &Activities{Runner: runner})
	require.NoError(t, err)
	assert.Equal(t, "failed", out)
}

func TestRunOnceActivityClaimError(t *testing.T) {
	runner := &stubRunner{outcome: worker.OutcomeIdle, err: errors.New("claim next import job: connection refused")}
	_, err := runActivity(t, &Activities{Runner: runner})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}
