package notification

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stanstork/linkdoc-import/internal/models"
)

type Notifier interface {
	Notify(ctx context.Context, notification models.Notification) error
}

// LogNotifier writes every notification to the structured log.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("notifier", "log").Logger()}
}

func (n *LogNotifier) Notify(_ context.Context, notif models.Notification) error {
	var evt *zerolog.Event
	switch notif.Severity {
	case models.NotificationSeverityError:
		evt = n.logger.Error()
	case models.NotificationSeverityWarning:
		evt = n.logger.Warn()
	default:
		evt = n.logger.Info()
	}
	evt.Str("notification_id", notif.ID).
		Str("event_type", string(notif.EventType)).
		Int64("job_id", notif.JobID).
		Str("import_identifier", notif.ImportIdentifier).
		Str("title", notif.Title).
		Msg(notif.Message)
	return nil
}

func (n *LogNotifier) String() string {
	return "LogNotifier"
}

func sanitizeRecipients(recipients []string) []string {
	var cleaned []string
	for _, recipient := range recipients {
		if recipient = strings.TrimSpace(recipient); recipient != "" {
			cleaned = append(cleaned, recipient)
		}
	}
	return cleaned
}

func logNotifyError(logger zerolog.Logger, err error, channel string, notif models.Notification) {
	if err == nil {
		return
	}
	logger.Warn().
		Err(err).
		Str("notification_id", notif.ID).
		Str("event_type", string(notif.EventType)).
		Str("channel", channel).
		Msg("failed to deliver notification")
}
