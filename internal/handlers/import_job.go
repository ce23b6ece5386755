package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stanstork/linkdoc-import/internal/authz"
	"github.com/stanstork/linkdoc-import/internal/models"
	"github.com/stanstork/linkdoc-import/internal/repository"
	"github.com/stanstork/linkdoc-import/internal/worker"
)

const defaultStaleAge = 2 * time.Hour

// ImportQueue is the read and submit side of the queue the handler needs.
type ImportQueue interface {
	Enqueue(ctx context.Context, job models.NewImportJob) (int64, error)
	Get(ctx context.Context, id int64) (models.ImportJob, error)
	List(ctx context.Context, limit, offset int) ([]models.ImportJob, error)
	Events(ctx context.Context, id int64) ([]models.ImportJobEvent, error)
	ListStale(ctx context.Context, claimedBefore time.Time) ([]models.ImportJob, error)
	Stats(ctx context.Context) (models.QueueStat, error)
}

type ImportRunner interface {
	RunOnce(ctx context.Context, workerID string) (worker.Outcome, error)
	ClaimJob(ctx context.Context, workerID string, id int64) (*models.ImportJob, error)
	RunClaimed(ctx context.Context, workerID string, job *models.ImportJob) (worker.Outcome, error)
}

type ImportJobHandler struct {
	queue    ImportQueue
	runner   ImportRunner
	workerID string
	logger   zerolog.Logger
	// launch runs triggered imports off the request goroutine.
	launch func(func())

	// runs started over HTTP live under baseCtx and are tracked by inflight.
	baseCtx  context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
}

func NewImportJobHandler(queue ImportQueue, runner ImportRunner, workerID string, logger zerolog.Logger) *ImportJobHandler {
	ctx, cancel := context.WithCancel(context.Background())
	return &ImportJobHandler{
		queue:    queue,
		runner:   runner,
		workerID: workerID,
		logger:   logger.With().Str("handler", "import_job").Logger(),
		launch:   func(f func()) { go f() },
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// start runs f in the background under the handler's base context.
func (h *ImportJobHandler) start(f func(ctx context.Context)) {
	h.inflight.Add(1)
	h.launch(func() {
		defer h.inflight.Done()
		f(h.baseCtx)
	})
}

func (h *ImportJobHandler) shuttingDown(w http.ResponseWriter) bool {
	if h.baseCtx.Err() != nil {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return true
	}
	return false
}

// Shutdown cancels runs started over HTTP and waits for them to record their
// outcome. It returns ctx's error if they have not finished when ctx ends.
func (h *ImportJobHandler) Shutdown(ctx context.Context) error {
	h.cancel()
	done := make(chan struct{})
	go func() {
		h.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type importJobView struct {
	models.ImportJob
	Status string `json:"status"`
}

func viewOf(job models.ImportJob) importJobView {
	return importJobView{ImportJob: job, Status: job.Status()}
}

func (h *ImportJobHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var payload models.NewImportJob
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.FilePath) == "" || payload.FileType == "" {
		http.Error(w, "file_path and file_type are required", http.StatusBadRequest)
		return
	}
	if payload.WorkspaceID <= 0 {
		http.Error(w, "workspace_id must be positive", http.StatusBadRequest)
		return
	}
	if payload.ImportIdentifier == uuid.Nil {
		payload.ImportIdentifier = uuid.New()
	}

	id, err := h.queue.Enqueue(r.Context(), payload)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to enqueue import job")
		http.Error(w, "Failed to enqueue import job", http.StatusInternalServerError)
		return
	}
	if sub, ok := authz.SubjectFromRequest(r); ok {
		h.logger.Info().Int64("job_id", id).Str("submitted_by", sub).Msg("import job submitted")
	}

	job, err := h.queue.Get(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusCreated, map[string]interface{}{"id": id, "import_identifier": payload.ImportIdentifier})
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(job))
}

func (h *ImportJobHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.queue.List(r.Context(), intQuery(r, "limit", 50), intQuery(r, "offset", 0))
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list import jobs")
		http.Error(w, "Failed to list import jobs", http.StatusInternalServerError)
		return
	}
	views := make([]importJobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, viewOf(j))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": views})
}

func (h *ImportJobHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDFromRequest(r)
	if !ok {
		http.Error(w, "Invalid job ID", http.StatusBadRequest)
		return
	}
	job, err := h.queue.Get(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(job))
}

func (h *ImportJobHandler) Events(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDFromRequest(r)
	if !ok {
		http.Error(w, "Invalid job ID", http.StatusBadRequest)
		return
	}
	if _, err := h.queue.Get(r.Context(), id); err != nil {
		h.writeLookupError(w, id, err)
		return
	}
	events, err := h.queue.Events(r.Context(), id)
	if err != nil {
		h.logger.Error().Err(err).Int64("job_id", id).Msg("failed to list import job events")
		http.Error(w, "Failed to list events", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

// Stale reports jobs claimed longer ago than ?older_than (a Go duration) that never completed.
func (h *ImportJobHandler) Stale(w http.ResponseWriter, r *http.Request) {
	age := defaultStaleAge
	if raw := strings.TrimSpace(r.URL.Query().Get("older_than")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "older_than must be a positive duration", http.StatusBadRequest)
			return
		}
		age = parsed
	}
	jobs, err := h.queue.ListStale(r.Context(), time.Now().Add(-age))
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list stale import jobs")
		http.Error(w, "Failed to list stale jobs", http.StatusInternalServerError)
		return
	}
	views := make([]importJobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, viewOf(j))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"older_than": age.String(), "jobs": views})
}

func (h *ImportJobHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to read queue stats")
		http.Error(w, "Failed to read queue stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// RunOnce starts one worker iteration in the background.
func (h *ImportJobHandler) RunOnce(w http.ResponseWriter, r *http.Request) {
	if h.shuttingDown(w) {
		return
	}
	h.start(func(ctx context.Context) {
		outcome, err := h.runner.RunOnce(ctx, h.workerID)
		if err != nil {
			h.logger.Error().Err(err).Str("outcome", outcome.String()).Msg("triggered run failed")
			return
		}
		h.logger.Info().Str("outcome", outcome.String()).Msg("triggered run finished")
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// RunJob claims a specific job and processes it in the background.
func (h *ImportJobHandler) RunJob(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDFromRequest(r)
	if !ok {
		http.Error(w, "Invalid job ID", http.StatusBadRequest)
		return
	}
	if h.shuttingDown(w) {
		return
	}
	job, err := h.runner.ClaimJob(r.Context(), h.workerID, id)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrAlreadyClaimed):
			http.Error(w, "Import job already claimed", http.StatusConflict)
		case errors.Is(err, repository.ErrJobNotFound):
			http.Error(w, "Import job not found", http.StatusNotFound)
		default:
			h.logger.Error().Err(err).Int64("job_id", id).Msg("failed to claim import job")
			http.Error(w, err.Error(), http.StatusConflict)
		}
		return
	}

	h.start(func(ctx context.Context) {
		outcome, err := h.runner.RunClaimed(ctx, h.workerID, job)
		if err != nil {
			h.logger.Error().Err(err).Int64("job_id", id).Str("outcome", outcome.String()).Msg("triggered job run failed")
		}
	})
	writeJSON(w, http.StatusAccepted, viewOf(*job))
}

func (h *ImportJobHandler) writeLookupError(w http.ResponseWriter, id int64, err error) {
	if errors.Is(err, repository.ErrJobNotFound) {
		http.Error(w, "Import job not found", http.StatusNotFound)
		return
	}
	h.logger.Error().Err(err).Int64("job_id", id).Msg("failed to load import job")
	http.Error(w, "Failed to load import job", http.StatusInternalServerError)
}
