package worker

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/linkdoc-import/internal/csvtransform"
	"github.com/stanstork/linkdoc-import/internal/importapi"
	"github.com/stanstork/linkdoc-import/internal/models"
	"github.com/stanstork/linkdoc-import/internal/notification"
)

// ErrNotSupported is returned for jobs whose file type has no pipeline.
var ErrNotSupported = errors.New("file type not supported")

// Outcome is what one RunOnce call did.
type Outcome int

const (
	OutcomeIdle Outcome = iota
	OutcomeSucceeded
	OutcomeFailed
	OutcomeNotSupported
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIdle:
		return "idle"
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeNotSupported:
		return "not_supported"
	}
	return "unknown"
}

// Queue is the part of the import queue the runner drives.
type Queue interface {
	ClaimNext(ctx context.Context, workerID string) (*models.ImportJob, error)
	MarkClaimed(ctx context.Context, id int64, workerID string) error
	MarkCompleted(ctx context.Context, id int64, success bool) error
	LogStatus(ctx context.Context, id int64, message string) error
	Get(ctx context.Context, id int64) (models.ImportJob, error)
}

type Importer interface {
	Run(ctx context.Context, req importapi.Request) (*importapi.Result, error)
}

// OutcomeNotifier is satisfied by notification.Service.
type OutcomeNotifier interface {
	NotifyImportSucceeded(ctx context.Context, summary notification.ImportSummary) error
	NotifyImportTimedOut(ctx context.Context, summary notification.ImportSummary) error
	NotifyImportFailed(ctx context.Context, summary notification.ImportSummary, reason string) error
	NotifyImportNotSupported(ctx context.Context, summary notification.ImportSummary) error
}

// DefaultPipelines maps each supported file type to the schema its CSV must match.
// Drive Links files have a schema but no target mapping yet, so they are not
// dispatched; register csvtransform.DriveLinks through WithPipelines to enable them.
func DefaultPipelines() map[models.FileType]csvtransform.Schema {
	return map[models.FileType]csvtransform.Schema{
		models.FileTypeGmailMetadata: csvtransform.GmailMetadata,
	}
}

type Runner struct {
	queue     Queue
	importer  Importer
	notifier  OutcomeNotifier
	pipelines map[models.FileType]csvtransform.Schema
	pathMap   PathMapping
	logger    zerolog.Logger
}

// PathMapping rewrites a local file path into the one the remote service reads.
type PathMapping struct {
	LocalRoot  string
	RemoteRoot string
}

func (m PathMapping) Remote(local string) string {
	if m.LocalRoot == "" || m.RemoteRoot == "" {
		return local
	}
	root := filepath.Clean(m.LocalRoot)
	clean := filepath.Clean(local)
	rel, err := filepath.Rel(root, clean)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return local
	}
	sep := "/"
	if strings.Contains(m.RemoteRoot, `\`) {
		sep = `\`
	}
	return strings.TrimRight(m.RemoteRoot, `/\`) + sep + strings.ReplaceAll(filepath.ToSlash(rel), "/", sep)
}

type RunnerOpt func(*Runner)

func WithPipelines(p map[models.FileType]csvtransform.Schema) RunnerOpt {
	return func(r *Runner) { r.pipelines = p }
}

func WithPathMapping(m PathMapping) RunnerOpt {
	return func(r *Runner) { r.pathMap = m }
}

func WithNotifier(n OutcomeNotifier) RunnerOpt {
	return func(r *Runner) { r.notifier = n }
}

func NewRunner(queue Queue, importer Importer, logger zerolog.Logger, opts ...RunnerOpt) *Runner {
	r := &Runner{
		queue:     queue,
		importer:  importer,
		pipelines: DefaultPipelines(),
		logger:    logger.With().Str("component", "runner").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunOnce claims the oldest pending job and processes it to completion.
func (r *Runner) RunOnce(ctx context.Context, workerID string) (Outcome, error) {
	job, err := r.queue.ClaimNext(ctx, workerID)
	if err != nil {
		return OutcomeIdle, errors.Wrap(err, "claim next import job")
	}
	if job == nil {
		r.logger.Debug().Str("worker_id", workerID).Msg("no pending import jobs")
		return OutcomeIdle, nil
	}
	return r.process(ctx, workerID, job)
}

// RunJob claims a specific job and processes it. It fails with the queue's
// ErrAlreadyClaimed when another worker holds the job.
func (r *Runner) RunJob(ctx context.Context, workerID string, id int64) (Outcome, error) {
	job, err := r.ClaimJob(ctx, workerID, id)
	if err != nil {
		return OutcomeIdle, err
	}
	return r.RunClaimed(ctx, workerID, job)
}

// ClaimJob takes the claim on job id for workerID without processing it.
func (r *Runner) ClaimJob(ctx context.Context, workerID string, id int64) (*models.ImportJob, error) {
	if err := r.queue.MarkClaimed(ctx, id, workerID); err != nil {
		return nil, err
	}
	job, err := r.queue.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "load import job %d", id)
	}
	if job.CompletedAt != nil {
		return nil, errors.Errorf("import job %d is already completed", id)
	}
	return &job, nil
}

// RunClaimed processes a job the caller already holds the claim on.
func (r *Runner) RunClaimed(ctx context.Context, workerID string, job *models.ImportJob) (Outcome, error) {
	return r.process(ctx, workerID, job)
}

func (r *Runner) process(ctx context.Context, workerID string, job *models.ImportJob) (Outcome, error) {
	logger := r.logger.With().
		Str("import_identifier", job.ImportIdentifier.String()).
		Int64("job_id", job.ID).
		Str("worker_id", workerID).
		Logger()
	ctx = logger.WithContext(ctx)

	logger.Info().Str("file_type", string(job.FileType)).Str("file_path", job.FilePath).Msg("processing import job")
	summary := notification.ImportSummary{
		JobID:            job.ID,
		ImportIdentifier: job.ImportIdentifier.String(),
		FileType:         string(job.FileType),
		FilePath:         job.FilePath,
	}

	schema, ok := r.pipelines[job.FileType]
	if !ok {
		r.status(ctx, job.ID, "Error: file type "+string(job.FileType)+" is not supported")
		logger.Warn().Str("file_type", string(job.FileType)).Msg("unsupported file type, marking job failed")
		r.complete(ctx, job.ID, false)
		if r.notifier != nil {
			if err := r.notifier.NotifyImportNotSupported(ctx, summary); err != nil {
				logger.Warn().Err(err).Msg("failed to publish not supported notification")
			}
		}
		return OutcomeNotSupported, errors.Wrapf(ErrNotSupported, "job %d file type %q", job.ID, job.FileType)
	}

	res, stage, err := r.runPipeline(ctx, job, schema)
	if err == nil && res == nil {
		stage, err = "remote import", errors.New("importer returned no result")
	}
	if err == nil && res.State == importapi.StateFailed {
		stage = "remote import"
		err = errors.Errorf("remote import %s finished in state %s", res.ImportID, res.State)
	}
	if res != nil {
		summary.RemoteState = string(res.State)
		if res.Progress != nil {
			summary.TotalRecords = res.Progress.TotalRecords
			summary.ImportedRecords = res.Progress.ImportedRecords
			summary.ErroredRecords = res.Progress.ErroredRecords
		}
	}

	if err != nil {
		logger.Error().Err(err).Str("stage", stage).Msg("import job failed")
		r.status(ctx, job.ID, "Error: "+stage+": "+err.Error())
		r.complete(ctx, job.ID, false)
		if r.notifier != nil {
			if nerr := r.notifier.NotifyImportFailed(ctx, summary, stage+": "+err.Error()); nerr != nil {
				logger.Warn().Err(nerr).Msg("failed to publish failure notification")
			}
		}
		return OutcomeFailed, errors.Wrapf(err, "import job %d failed at %s", job.ID, stage)
	}

	switch res.State {
	case importapi.StateCompletedWithErrors:
		logger.Warn().Int64("errored_records", summary.ErroredRecords).Msg("remote import completed with item errors")
	case importapi.StateTimedOut:
		logger.Warn().Msg("remote import not confirmed before polling gave up")
	}
	r.status(ctx, job.ID, "Import completed successfully")
	r.complete(ctx, job.ID, true)

	if r.notifier != nil {
		var nerr error
		if res.State == importapi.StateTimedOut {
			nerr = r.notifier.NotifyImportTimedOut(ctx, summary)
		} else {
			nerr = r.notifier.NotifyImportSucceeded(ctx, summary)
		}
		if nerr != nil {
			logger.Warn().Err(nerr).Msg("failed to publish success notification")
		}
	}
	logger.Info().Str("remote_state", string(res.State)).Msg("import job finished")
	return OutcomeSucceeded, nil
}

// runPipeline validates, augments and writes the CSV, then hands it to the importer.
// It returns the stage that failed alongside any error.
func (r *Runner) runPipeline(ctx context.Context, job *models.ImportJob, schema csvtransform.Schema) (*importapi.Result, string, error) {
	logger := zerolog.Ctx(ctx)

	if _, err := os.Stat(job.FilePath); err != nil {
		return nil, "locate file", errors.Wrapf(err, "source file %s", job.FilePath)
	}

	r.status(ctx, job.ID, "Validating CSV file")
	table, stats, err := csvtransform.Parse(ctx, job.FilePath, schema, *logger)
	if err != nil {
		return nil, "validate csv", err
	}
	csvtransform.LogFieldStats(logger, stats, schema.Columns)

	r.status(ctx, job.ID, "Creating modified CSV with identifiers")
	augmented := csvtransform.Augment(table, job.ImportIdentifier.String())
	outPath, err := csvtransform.Write(augmented, job.FilePath)
	if err != nil {
		return nil, "write csv", err
	}
	logger.Info().Str("output_path", outPath).Int("rows", augmented.Len()).Msg("wrote csv with identifiers")

	r.status(ctx, job.ID, "Importing data")
	res, err := r.importer.Run(ctx, importapi.Request{
		JobID:              job.ID,
		WorkspaceID:        job.WorkspaceID,
		TargetObjectTypeID: job.TargetObjectTypeID,
		FilePath:           r.pathMap.Remote(outPath),
		FieldMappings:      importapi.FieldMappingsFor(augmented.Columns),
	})
	if err != nil {
		return res, "remote import", err
	}
	return res, "", nil
}

func (r *Runner) status(ctx context.Context, id int64, message string) {
	if err := r.queue.LogStatus(context.WithoutCancel(ctx), id, message); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("status", message).Msg("failed to record job status")
	}
}

func (r *Runner) complete(ctx context.Context, id int64, success bool) {
	// Completion is written even when the job context was cancelled.
	if err := r.queue.MarkCompleted(context.WithoutCancel(ctx), id, success); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Bool("success", success).Msg("failed to mark job completed")
	}
}
