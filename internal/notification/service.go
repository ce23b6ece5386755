package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stanstork/linkdoc-import/internal/models"
	"github.com/stanstork/linkdoc-import/internal/repository"
)

type Event struct {
	Event            models.NotificationEvent
	Severity         models.NotificationSeverity
	JobID            int64
	ImportIdentifier string
	Title            string
	Message          string
	Metadata         map[string]interface{}
}

// ImportSummary describes a finished import for outcome notifications.
type ImportSummary struct {
	JobID            int64
	ImportIdentifier string
	FileType         string
	FilePath         string
	RemoteState      string
	TotalRecords     int64
	ImportedRecords  int64
	ErroredRecords   int64
}

type Service interface {
	Publish(ctx context.Context, evt Event) (models.Notification, error)
	NotifyImportSucceeded(ctx context.Context, summary ImportSummary) error
	NotifyImportTimedOut(ctx context.Context, summary ImportSummary) error
	NotifyImportFailed(ctx context.Context, summary ImportSummary, reason string) error
	NotifyImportNotSupported(ctx context.Context, summary ImportSummary) error
	ListRecent(ctx context.Context, limit int) ([]models.Notification, error)
}

type service struct {
	repo      repository.NotificationRepository
	logger    zerolog.Logger
	notifiers []Notifier
}

func NewService(repo repository.NotificationRepository, logger zerolog.Logger, notifiers ...Notifier) Service {
	active := make([]Notifier, 0, len(notifiers))
	for _, notifier := range notifiers {
		if notifier != nil {
			active = append(active, notifier)
		}
	}
	return &service{
		repo:      repo,
		logger:    logger.With().Str("component", "notification_service").Logger(),
		notifiers: active,
	}
}

func (s *service) Publish(ctx context.Context, evt Event) (models.Notification, error) {
	if evt.Event == "" {
		return models.Notification{}, fmt.Errorf("event type is required")
	}
	if evt.Severity == "" {
		evt.Severity = models.NotificationSeverityInfo
	}
	title := strings.TrimSpace(evt.Title)
	message := strings.TrimSpace(evt.Message)
	if title == "" {
		title = string(evt.Event)
	}

	notif, err := s.repo.Create(ctx, repository.CreateNotificationParams{
		Event:            evt.Event,
		Severity:         evt.Severity,
		JobID:            evt.JobID,
		ImportIdentifier: evt.ImportIdentifier,
		Title:            title,
		Message:          message,
		Metadata:         evt.Metadata,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", string(evt.Event)).Int64("job_id", evt.JobID).Msg("failed to persist notification")
		return models.Notification{}, err
	}
	for _, notifier := range s.notifiers {
		if err := notifier.Notify(ctx, notif); err != nil {
			logNotifyError(s.logger, err, notifierChannelName(notifier), notif)
		}
	}
	return notif, nil
}

func (s *service) NotifyImportSucceeded(ctx context.Context, summary ImportSummary) error {
	_, err := s.Publish(ctx, Event{
		Event:            models.NotificationEventImportSucceeded,
		Severity:         severityFor(summary),
		JobID:            summary.JobID,
		ImportIdentifier: summary.ImportIdentifier,
		Title:            fmt.Sprintf("Import succeeded: job %d", summary.JobID),
		Message: fmt.Sprintf("Import %s finished in state %s: %d of %d records imported, %d with errors.",
			summary.ImportIdentifier, summary.RemoteState, summary.ImportedRecords, summary.TotalRecords, summary.ErroredRecords),
		Metadata: summary.metadata(),
	})
	return err
}

func (s *service) NotifyImportTimedOut(ctx context.Context, summary ImportSummary) error {
	_, err := s.Publish(ctx, Event{
		Event:            models.NotificationEventImportTimedOut,
		Severity:         models.NotificationSeverityWarning,
		JobID:            summary.JobID,
		ImportIdentifier: summary.ImportIdentifier,
		Title:            fmt.Sprintf("Import still running: job %d", summary.JobID),
		Message:          fmt.Sprintf("Stopped waiting for import %s. It continues remotely; check its final status there.", summary.ImportIdentifier),
		Metadata:         summary.metadata(),
	})
	return err
}

func (s *service) NotifyImportFailed(ctx context.Context, summary ImportSummary, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "Unknown error"
	}
	metadata := summary.metadata()
	metadata["reason"] = reason
	_, err := s.Publish(ctx, Event{
		Event:            models.NotificationEventImportFailed,
		Severity:         models.NotificationSeverityError,
		JobID:            summary.JobID,
		ImportIdentifier: summary.ImportIdentifier,
		Title:            fmt.Sprintf("Import failed: job %d", summary.JobID),
		Message:          fmt.Sprintf("Import %s failed: %s", summary.ImportIdentifier, reason),
		Metadata:         metadata,
	})
	return err
}

func (s *service) NotifyImportNotSupported(ctx context.Context, summary ImportSummary) error {
	_, err := s.Publish(ctx, Event{
		Event:            models.NotificationEventImportNotSupported,
		Severity:         models.NotificationSeverityWarning,
		JobID:            summary.JobID,
		ImportIdentifier: summary.ImportIdentifier,
		Title:            fmt.Sprintf("Import not supported: job %d", summary.JobID),
		Message:          fmt.Sprintf("File type %q of import %s is not supported.", summary.FileType, summary.ImportIdentifier),
		Metadata:         summary.metadata(),
	})
	return err
}

func (s *service) ListRecent(ctx context.Context, limit int) ([]models.Notification, error) {
	return s.repo.ListRecent(ctx, limit)
}

func severityFor(summary ImportSummary) models.NotificationSeverity {
	if summary.ErroredRecords > 0 {
		return models.NotificationSeverityWarning
	}
	return models.NotificationSeverityInfo
}

func (s ImportSummary) metadata() map[string]interface{} {
	metadata := map[string]interface{}{
		"job_id":            s.JobID,
		"import_identifier": s.ImportIdentifier,
		"file_type":         s.FileType,
	}
	if s.FilePath != "" {
		metadata["file_path"] = s.FilePath
	}
	if s.RemoteState != "" {
		metadata["remote_state"] = s.RemoteState
	}
	if s.TotalRecords > 0 {
		metadata["total_records"] = s.TotalRecords
		metadata["imported_records"] = s.ImportedRecords
		metadata["errored_records"] = s.ErroredRecords
	}
	return metadata
}

func notifierChannelName(n Notifier) string {
	type named interface {
		String() string
	}
	if v, ok := n.(named); ok {
		return v.String()
	}
	return fmt.Sprintf("%T", n)
}
