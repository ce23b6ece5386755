package importapi

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	DefaultApplicationName   = "GmailMetadata-Import"
	DefaultCorrelationPrefix = "GmailMetadataImport"
	DefaultPollInterval      = 10 * time.Second
	DefaultMaxPollAttempts   = 180
	DefaultProgressLogEvery  = 10
)

type Config struct {
	ApplicationName   string
	CorrelationPrefix string
	PollInterval      time.Duration
	MaxPollAttempts   int
	ProgressLogEvery  int
}

func (c Config) withDefaults() Config {
	if c.ApplicationName == "" {
		c.ApplicationName = DefaultApplicationName
	}
	if c.CorrelationPrefix == "" {
		c.CorrelationPrefix = DefaultCorrelationPrefix
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxPollAttempts <= 0 {
		c.MaxPollAttempts = DefaultMaxPollAttempts
	}
	if c.ProgressLogEvery <= 0 {
		c.ProgressLogEvery = DefaultProgressLogEvery
	}
	return c
}

// RemoteIDRecorder persists the remote ids of a job. It must not fail the import.
type RemoteIDRecorder interface {
	RecordRemoteIDs(ctx context.Context, jobID int64, remoteImportID, remoteSourceID uuid.UUID)
}

type Request struct {
	JobID              int64
	WorkspaceID        int64
	TargetObjectTypeID int64
	// FilePath is the augmented file as the remote service sees it.
	FilePath      string
	FieldMappings []FieldMapping
}

type Result struct {
	State         State
	ImportID      uuid.UUID
	SourceID      uuid.UUID
	CorrelationID string
	Progress      *Progress
	PollAttempts  int
}

// Orchestrator drives one remote import from creation to a terminal state.
type Orchestrator struct {
	client   *Client
	cfg      Config
	recorder RemoteIDRecorder
	logger   zerolog.Logger

	newID func() uuid.UUID
	sleep func(ctx context.Context, d time.Duration) error
}

func NewOrchestrator(client *Client, cfg Config, recorder RemoteIDRecorder, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		client:   client,
		cfg:      cfg.withDefaults(),
		recorder: recorder,
		logger:   logger.With().Str("component", "import_api").Logger(),
		newID:    uuid.New,
		sleep:    sleepContext,
	}
}

// Run submits the file and waits for the remote import to settle. Failures before
// polling return the partial result and an error; a poll timeout is not an error.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	if len(req.FieldMappings) == 0 {
		return nil, errors.New("no field mappings")
	}
	logger := o.loggerFor(ctx)

	res := &Result{
		ImportID: o.newID(),
		SourceID: o.newID(),
	}
	res.CorrelationID = o.cfg.CorrelationPrefix + "-" + o.newID().String()
	logger.Info().
		Int64("workspace_id", req.WorkspaceID).
		Str("import_id", res.ImportID.String()).
		Str("source_id", res.SourceID.String()).
		Str("correlation_id", res.CorrelationID).
		Msg("creating import job")

	if err := o.client.CreateJob(ctx, req.WorkspaceID, res.ImportID, o.cfg.ApplicationName, res.CorrelationID); err != nil {
		return res, errors.Wrap(err, "create import job")
	}
	res.State = StateCreated
	if o.recorder != nil {
		o.recorder.RecordRemoteIDs(ctx, req.JobID, res.ImportID, res.SourceID)
	}
	logger.Info().Msg("import job created")

	if err := o.client.ConfigureRdo(ctx, req.WorkspaceID, res.ImportID, req.TargetObjectTypeID, req.FieldMappings); err != nil {
		return res, errors.Wrap(err, "configure field mappings")
	}
	res.State = StateRdoConfigured
	logger.Info().Int("fields", len(req.FieldMappings)).Msg("rdo configuration added")

	if err := o.client.AddDataSource(ctx, req.WorkspaceID, res.ImportID, res.SourceID, LoadFileSettings(req.FilePath)); err != nil {
		return res, errors.Wrap(err, "add data source")
	}
	res.State = StateSourceAdded
	logger.Info().Str("path", req.FilePath).Msg("data source added")

	if err := o.client.Begin(ctx, req.WorkspaceID, res.ImportID); err != nil {
		return res, errors.Wrap(err, "begin import job")
	}
	res.State = StateBegun
	logger.Info().Msg("import job started")

	if err := o.client.End(ctx, req.WorkspaceID, res.ImportID); err != nil {
		return res, errors.Wrap(err, "end import job")
	}
	res.State = StateEnded
	logger.Info().
		Int64("workspace_id", req.WorkspaceID).
		Str("import_id", res.ImportID.String()).
		Str("source_id", res.SourceID.String()).
		Msg("import job submitted")

	if err := o.poll(ctx, req, res); err != nil {
		return res, err
	}
	return res, nil
}

func (o *Orchestrator) poll(ctx context.Context, req Request, res *Result) error {
	logger := o.loggerFor(ctx)
	res.State = StatePolling
	logger.Info().Msg("monitoring import progress")

	for attempt := 1; attempt <= o.cfg.MaxPollAttempts; attempt++ {
		res.PollAttempts = attempt

		state, ok, err := o.client.SourceState(ctx, req.WorkspaceID, res.ImportID, res.SourceID)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn().Err(err).Int("attempt", attempt).Msg("error while checking import status")
		case !ok:
			logger.Debug().Int("attempt", attempt).Msg("import status not available yet")
		default:
			if attempt%o.cfg.ProgressLogEvery == 0 {
				logger.Info().Str("state", string(state)).Int("attempt", attempt).Msg("import data source state")
				o.logProgress(ctx, req, res, "import progress")
			}
			if state.Terminal() {
				res.State = state
				o.logProgress(ctx, req, res, "final import progress")
				logger.Info().Str("state", string(state)).Int("attempts", attempt).Msg("import finished")
				return nil
			}
		}

		if attempt < o.cfg.MaxPollAttempts {
			if err := o.sleep(ctx, o.cfg.PollInterval); err != nil {
				return err
			}
		}
	}

	res.State = StateTimedOut
	logger.Warn().Int("attempts", res.PollAttempts).Msg("import monitoring timed out, import is still running")
	logger.Warn().Msg("the import continues remotely but this worker will not wait for it")
	logger.Warn().
		Int64("workspace_id", req.WorkspaceID).
		Str("import_id", res.ImportID.String()).
		Str("source_id", res.SourceID.String()).
		Msg("check the remote import for its final status")
	return nil
}

func (o *Orchestrator) logProgress(ctx context.Context, req Request, res *Result, msg string) {
	logger := o.loggerFor(ctx)
	progress, err := o.client.SourceProgress(ctx, req.WorkspaceID, res.ImportID, res.SourceID)
	if err != nil {
		logger.Debug().Err(err).Msg("import progress unavailable")
		return
	}
	res.Progress = progress
	logger.Info().
		Int64("total_records", progress.TotalRecords).
		Int64("imported_records", progress.ImportedRecords).
		Int64("errored_records", progress.ErroredRecords).
		Msg(msg)
}

func (o *Orchestrator) loggerFor(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &o.logger
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
