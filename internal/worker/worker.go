package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// JobRunner runs at most one queued job per call.
type JobRunner interface {
	RunOnce(ctx context.Context, workerID string) (Outcome, error)
}

type WorkerConfig struct {
	ID           string
	PollInterval time.Duration
	// BatchSize caps how many jobs one tick drains while the queue keeps yielding.
	BatchSize int
}

type Worker struct {
	cfg    WorkerConfig
	runner JobRunner
	logger zerolog.Logger
}

func NewWorker(cfg WorkerConfig, runner JobRunner, logger zerolog.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	return &Worker{
		cfg:    cfg,
		runner: runner,
		logger: logger.With().Str("component", "worker").Str("worker_id", cfg.ID).Logger(),
	}
}

func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info().Dur("poll_interval", w.cfg.PollInterval).Int("batch_size", w.cfg.BatchSize).Msg("worker started, polling for import jobs")
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("worker stopped")
			return ctx.Err()
		case <-ticker.C:
			w.Drain(ctx)
		}
	}
}

// Drain runs jobs until the queue is empty, the batch is spent or ctx ends. It
// returns how many jobs were processed.
func (w *Worker) Drain(ctx context.Context) int {
	processed := 0
	for processed < w.cfg.BatchSize {
		if ctx.Err() != nil {
			return processed
		}
		outcome, err := w.runner.RunOnce(ctx, w.cfg.ID)
		if err != nil {
			// Log the error, but continue processing other jobs
			w.logger.Error().Err(err).Str("outcome", outcome.String()).Msg("error processing import job")
		}
		if outcome == OutcomeIdle {
			return processed
		}
		processed++
	}
	return processed
}
