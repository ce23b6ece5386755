package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stanstork/linkdoc-import/internal/models"
)

var (
	// ErrJobNotFound is returned when no queue row has the requested id.
	ErrJobNotFound = errors.New("import job not found")
	// ErrAlreadyClaimed signals that another worker holds the claim on a job.
	ErrAlreadyClaimed = errors.New("import job already claimed")
)

type ImportQueueRepository interface {
	Enqueue(ctx context.Context, job models.NewImportJob) (int64, error)
	ClaimNext(ctx context.Context, workerID string) (*models.ImportJob, error)
	MarkClaimed(ctx context.Context, id int64, workerID string) error
	MarkCompleted(ctx context.Context, id int64, success bool) error
	RecordRemoteIDs(ctx context.Context, id int64, remoteImportID, remoteSourceID uuid.UUID)
	LogStatus(ctx context.Context, id int64, message string) error

	Get(ctx context.Context, id int64) (models.ImportJob, error)
	List(ctx context.Context, limit, offset int) ([]models.ImportJob, error)
	Events(ctx context.Context, id int64) ([]models.ImportJobEvent, error)
	ListStale(ctx context.Context, claimedBefore time.Time) ([]models.ImportJob, error)
	Stats(ctx context.Context) (models.QueueStat, error)
}

type importQueueRepository struct {
	db      *sql.DB
	dialect Dialect
	logger  zerolog.Logger
	now     func() time.Time
}

func NewImportQueueRepository(db *sql.DB, dialect Dialect, logger zerolog.Logger) ImportQueueRepository {
	return &importQueueRepository{
		db:      db,
		dialect: dialect,
		logger:  logger.With().Str("component", "import_queue").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

const jobColumns = `id, import_identifier, file_path, workspace_id, target_object_type_id,
	source_record_id, file_type, custodian_id, submitted_at, claimed_by, claimed_at,
	completed_at, remote_import_id, remote_source_id`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanImportJob(row rowScanner) (models.ImportJob, error) {
	var (
		job          models.ImportJob
		submittedAt  nullTime
		claimedBy    sql.NullString
		claimedAt    nullTime
		completedAt  nullTime
		remoteImport uuid.NullUUID
		remoteSource uuid.NullUUID
	)
	err := row.Scan(
		&job.ID,
		&job.ImportIdentifier,
		&job.FilePath,
		&job.WorkspaceID,
		&job.TargetObjectTypeID,
		&job.SourceRecordID,
		&job.FileType,
		&job.CustodianID,
		&submittedAt,
		&claimedBy,
		&claimedAt,
		&completedAt,
		&remoteImport,
		&remoteSource,
	)
	if err != nil {
		return job, err
	}
	if submittedAt.Valid {
		job.SubmittedAt = submittedAt.Time
	}
	if claimedBy.Valid {
		job.ClaimedBy = &claimedBy.String
	}
	job.ClaimedAt = claimedAt.ptr()
	job.CompletedAt = completedAt.ptr()
	if remoteImport.Valid {
		job.RemoteImportID = &remoteImport.UUID
	}
	if remoteSource.Valid {
		job.RemoteSourceID = &remoteSource.UUID
	}
	return job, nil
}

func (r *importQueueRepository) Enqueue(ctx context.Context, job models.NewImportJob) (int64, error) {
	if strings.TrimSpace(job.FilePath) == "" {
		return 0, errors.New("file path is required")
	}
	if job.FileType == "" {
		return 0, errors.New("file type is required")
	}
	if job.ImportIdentifier == uuid.Nil {
		job.ImportIdentifier = uuid.New()
	}

	query := r.dialect.rebind(`
		INSERT INTO import_jobs (import_identifier, file_path, workspace_id, target_object_type_id,
			source_record_id, file_type, custodian_id, submitted_at, claimed_by, claimed_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL, NULL, NULL)
		RETURNING id
	`)
	var id int64
	err := r.db.QueryRowContext(ctx, query,
		job.ImportIdentifier,
		job.FilePath,
		job.WorkspaceID,
		job.TargetObjectTypeID,
		job.SourceRecordID,
		string(job.FileType),
		job.CustodianID,
		r.now(),
	).Scan(&id)
	if err != nil {
		r.logger.Error().Err(err).Str("import_identifier", job.ImportIdentifier.String()).Msg("failed to enqueue import job")
		return 0, fmt.Errorf("enqueue import job: %w", err)
	}

	r.logger.Info().
		Int64("job_id", id).
		Str("import_identifier", job.ImportIdentifier.String()).
		Str("file_type", string(job.FileType)).
		Msg("import job enqueued")
	return id, nil
}

// ClaimNext claims the oldest submitted, unclaimed job in one conditional update.
// It returns nil when nothing is eligible.
func (r *importQueueRepository) ClaimNext(ctx context.Context, workerID string) (*models.ImportJob, error) {
	if strings.TrimSpace(workerID) == "" {
		return nil, errors.New("worker id is required")
	}

	query := r.dialect.rebind(fmt.Sprintf(`
		UPDATE import_jobs
		SET claimed_at = $1, claimed_by = $2
		WHERE id = (
			SELECT id
			FROM import_jobs
			WHERE submitted_at IS NOT NULL
			  AND claimed_at IS NULL
			  AND claimed_by IS NULL
			ORDER BY submitted_at ASC, id ASC
			LIMIT 1
			%s
		)
		  AND claimed_at IS NULL
		  AND claimed_by IS NULL
		RETURNING %s
	`, r.dialect.lockClause(), jobColumns))

	job, err := scanImportJob(r.db.QueryRowContext(ctx, query, r.now(), workerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error().Err(err).Str("worker_id", workerID).Msg("failed to claim next import job")
		return nil, fmt.Errorf("claim next import job: %w", err)
	}
	return &job, nil
}

func (r *importQueueRepository) MarkClaimed(ctx context.Context, id int64, workerID string) error {
	query := r.dialect.rebind(`
		UPDATE import_jobs
		SET claimed_at = $1, claimed_by = $2
		WHERE id = $3 AND claimed_at IS NULL
	`)
	res, err := r.db.ExecContext(ctx, query, r.now(), workerID, id)
	if err != nil {
		r.logger.Error().Err(err).Int64("job_id", id).Msg("failed to mark import job claimed")
		return fmt.Errorf("mark import job %d claimed: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark import job %d claimed: %w", id, err)
	}
	if affected == 1 {
		return nil
	}

	var holder sql.NullString
	err = r.db.QueryRowContext(ctx, r.dialect.rebind(`SELECT claimed_by FROM import_jobs WHERE id = $1`), id).Scan(&holder)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("read claim holder of import job %d: %w", id, err)
	}
	if holder.Valid && holder.String == workerID {
		// ClaimNext already set the claim for this worker.
		return nil
	}

	r.logger.Warn().Int64("job_id", id).Str("worker_id", workerID).Str("claimed_by", holder.String).Msg("import job already claimed by another worker")
	return ErrAlreadyClaimed
}

func (r *importQueueRepository) MarkCompleted(ctx context.Context, id int64, success bool) error {
	query := r.dialect.rebind(`
		UPDATE import_jobs
		SET completed_at = $1
		WHERE id = $2 AND completed_at IS NULL
	`)
	res, err := r.db.ExecContext(ctx, query, r.now(), id)
	if err != nil {
		r.logger.Error().Err(err).Int64("job_id", id).Msg("failed to mark import job completed")
		return fmt.Errorf("mark import job %d completed: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark import job %d completed: %w", id, err)
	}
	if affected == 0 {
		r.logger.Warn().Int64("job_id", id).Bool("success", success).Msg("no pending completion for import job, nothing updated")
		return nil
	}

	outcome := "Completed: success"
	if !success {
		outcome = "Completed: failure"
	}
	if err := r.LogStatus(ctx, id, outcome); err != nil {
		r.logger.Warn().Err(err).Int64("job_id", id).Msg("failed to record completion event")
	}

	r.logger.Info().Int64("job_id", id).Bool("success", success).Msg("import job marked completed")
	return nil
}

func (r *importQueueRepository) RecordRemoteIDs(ctx context.Context, id int64, remoteImportID, remoteSourceID uuid.UUID) {
	query := r.dialect.rebind(`
		UPDATE import_jobs
		SET remote_import_id = $1, remote_source_id = $2
		WHERE id = $3
	`)
	res, err := r.db.ExecContext(ctx, query, remoteImportID, remoteSourceID, id)
	if err != nil {
		r.logger.Error().Err(err).Int64("job_id", id).Msg("failed to record remote import ids")
		return
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		r.logger.Warn().Int64("job_id", id).Msg("no import job to record remote ids on")
		return
	}
	r.logger.Info().
		Int64("job_id", id).
		Str("remote_import_id", remoteImportID.String()).
		Str("remote_source_id", remoteSourceID.String()).
		Msg("recorded remote import ids")
}

func (r *importQueueRepository) LogStatus(ctx context.Context, id int64, message string) error {
	if id <= 0 {
		return errors.New("import job id must be greater than zero")
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return errors.New("status message cannot be empty")
	}

	query := r.dialect.rebind(`INSERT INTO import_job_events (job_id, message, created_at) VALUES ($1, $2, $3)`)
	if _, err := r.db.ExecContext(ctx, query, id, message, r.now()); err != nil {
		r.logger.Error().Err(err).Int64("job_id", id).Msg("failed to record import job status")
		return fmt.Errorf("record status for import job %d: %w", id, err)
	}
	r.logger.Info().Int64("job_id", id).Str("status", message).Msg("import job status")
	return nil
}

func (r *importQueueRepository) Get(ctx context.Context, id int64) (models.ImportJob, error) {
	query := r.dialect.rebind(fmt.Sprintf(`SELECT %s FROM import_jobs WHERE id = $1`, jobColumns))
	job, err := scanImportJob(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return job, ErrJobNotFound
		}
		return job, fmt.Errorf("get import job %d: %w", id, err)
	}
	return job, nil
}

func (r *importQueueRepository) List(ctx context.Context, limit, offset int) ([]models.ImportJob, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := r.dialect.rebind(fmt.Sprintf(`
		SELECT %s
		FROM import_jobs
		ORDER BY id DESC
		LIMIT $1 OFFSET $2
	`, jobColumns))
	return r.queryJobs(ctx, query, limit, offset)
}

// ListStale reports jobs claimed before the cutoff that never completed.
func (r *importQueueRepository) ListStale(ctx context.Context, claimedBefore time.Time) ([]models.ImportJob, error) {
	query := r.dialect.rebind(fmt.Sprintf(`
		SELECT %s
		FROM import_jobs
		WHERE claimed_at IS NOT NULL
		  AND claimed_at < $1
		  AND completed_at IS NULL
		ORDER BY claimed_at ASC, id ASC
	`, jobColumns))
	return r.queryJobs(ctx, query, claimedBefore.UTC())
}

func (r *importQueueRepository) queryJobs(ctx context.Context, query string, args ...interface{}) ([]models.ImportJob, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query import jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.ImportJob
	for rows.Next() {
		job, err := scanImportJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan import job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *importQueueRepository) Events(ctx context.Context, id int64) ([]models.ImportJobEvent, error) {
	query := r.dialect.rebind(`
		SELECT id, job_id, message, created_at
		FROM import_job_events
		WHERE job_id = $1
		ORDER BY id ASC
	`)
	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("query events of import job %d: %w", id, err)
	}
	defer rows.Close()

	var events []models.ImportJobEvent
	for rows.Next() {
		var (
			evt       models.ImportJobEvent
			createdAt nullTime
		)
		if err := rows.Scan(&evt.ID, &evt.JobID, &evt.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("scan import job event: %w", err)
		}
		evt.CreatedAt = createdAt.Time
		events = append(events, evt)
	}
	return events, rows.Err()
}

func (r *importQueueRepository) Stats(ctx context.Context) (models.QueueStat, error) {
	var stat models.QueueStat
	query := `
		SELECT
			COUNT(CASE WHEN submitted_at IS NOT NULL AND claimed_at IS NULL AND completed_at IS NULL THEN 1 END),
			COUNT(CASE WHEN claimed_at IS NOT NULL AND completed_at IS NULL THEN 1 END),
			COUNT(CASE WHEN completed_at IS NOT NULL THEN 1 END)
		FROM import_jobs
	`
	if err := r.db.QueryRowContext(ctx, query).Scan(&stat.Pending, &stat.InProgress, &stat.Completed); err != nil {
		return stat, fmt.Errorf("count import jobs: %w", err)
	}

	oldest := func(q string) (*time.Time, error) {
		var ts nullTime
		err := r.db.QueryRowContext(ctx, q).Scan(&ts)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return ts.ptr(), nil
	}

	var err error
	stat.OldestPendingAt, err = oldest(`
		SELECT submitted_at FROM import_jobs
		WHERE submitted_at IS NOT NULL AND claimed_at IS NULL AND completed_at IS NULL
		ORDER BY submitted_at ASC LIMIT 1`)
	if err != nil {
		return stat, fmt.Errorf("oldest pending import job: %w", err)
	}
	stat.OldestInProgress, err = oldest(`
		SELECT claimed_at FROM import_jobs
		WHERE claimed_at IS NOT NULL AND completed_at IS NULL
		ORDER BY claimed_at ASC LIMIT 1`)
	if err != nil {
		return stat, fmt.Errorf("oldest in-progress import job: %w", err)
	}
	return stat, nil
}
