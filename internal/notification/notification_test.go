package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/linkdoc-import/internal/config"
	"github.com/stanstork/linkdoc-import/internal/database"
	"github.com/stanstork/linkdoc-import/internal/migration"
	"github.com/stanstork/linkdoc-import/internal/models"
	"github.com/stanstork/linkdoc-import/internal/repository"
)

type captureNotifier struct {
	got []models.Notification
	err error
}

func (c *captureNotifier) Notify(_ context.Context, n models.Notification) error {
	c.got = append(c.got, n)
	return c.err
}

func newRepo(t *testing.T) repository.NotificationRepository {
	t.Helper()
	db, err := database.Open(database.Options{Driver: database.DriverSQLite, URL: ":memory:"}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migration.RunMigrations(context.Background(), db, database.DriverSQLite))
	return repository.NewNotificationRepository(db, repository.DialectSQLite)
}

func TestPublishPersistsAndFansOut(t *testing.T) {
	ctx := context.Background()
	first := &captureNotifier{err: errors.New("smtp down")}
	second := &captureNotifier{}
	svc := NewService(newRepo(t), zerolog.Nop(), first, nil, second)

	err := svc.NotifyImportFailed(ctx, ImportSummary{ImportIdentifier: "abc", FileType: string(models.FileTypeGmailMetadata)}, "  ")
	require.NoError(t, err)

	require.Len(t, first.got, 1)
	require.Len(t, second.got, 1, "a failing notifier does not stop the others")

	n := second.got[0]
	assert.Equal(t, models.NotificationEventImportFailed, n.EventType)
	assert.Equal(t, models.NotificationSeverityError, n.Severity)
	assert.Contains(t, n.Message, "Unknown error")
	assert.NotEmpty(t, n.ID)

	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(n.Metadata, &meta))
	assert.Equal(t, "Unknown error", meta["reason"])

	recent, err := svc.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, n.ID, recent[0].ID)
}

func TestOutcomeEvents(t *testing.T) {
	ctx := context.Background()
	capture := &captureNotifier{}
	svc := NewService(newRepo(t), zerolog.Nop(), capture)

	summary := ImportSummary{ImportIdentifier: "id-1", RemoteState: "CompletedWithItemErrors", TotalRecords: 3, ImportedRecords: 2, ErroredRecords: 1}
	require.NoError(t, svc.NotifyImportSucceeded(ctx, summary))
	require.NoError(t, svc.NotifyImportTimedOut(ctx, summary))
	require.NoError(t, svc.NotifyImportNotSupported(ctx, ImportSummary{ImportIdentifier: "id-2", FileType: "Zip"}))

	require.Len(t, capture.got, 3)
	assert.Equal(t, models.NotificationEventImportSucceeded, capture.got[0].EventType)
	assert.Equal(t, models.NotificationSeverityWarning, capture.got[0].Severity, "item errors downgrade success to a warning")
	assert.Contains(t, capture.got[0].Message, "2 of 3 records imported")
	assert.Equal(t, models.NotificationEventImportTimedOut, capture.got[1].EventType)
	assert.Equal(t, models.NotificationEventImportNotSupported, capture.got[2].EventType)
	assert.Contains(t, capture.got[2].Message, `"Zip"`)
}

func TestPublishRequiresEvent(t *testing.T) {
	svc := NewService(newRepo(t), zerolog.Nop())
	_, err := svc.Publish(context.Background(), Event{})
	assert.Error(t, err)
}

func TestEmailNotifier(t *testing.T) {
	_, err := NewEmailNotifier(config.EmailConfig{From: "a@b"}, zerolog.Nop())
	assert.Error(t, err)

	n, err := NewEmailNotifier(config.EmailConfig{
		SMTPHost:        "smtp.example.com",
		From:            "ldimport@example.com",
		Username:        "user",
		Password:        "pass",
		AlertRecipients: []string{" ops@example.com ", ""},
	}, zerolog.Nop())
	require.NoError(t, err)

	var (
		sentTo  []string
		addr    string
		payload string
	)
	n.send = func(a string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		addr, sentTo, payload = a, to, string(msg)
		return nil
	}

	require.NoError(t, n.Notify(context.Background(), models.Notification{Severity: models.NotificationSeverityInfo, Title: "quiet"}))
	assert.Empty(t, payload, "info is below the default threshold")

	require.NoError(t, n.Notify(context.Background(), models.Notification{
		EventType: models.NotificationEventImportFailed,
		Severity:  models.NotificationSeverityError,
		JobID:     9,
		Title:     "Import failed: job 9",
		Message:   "boom",
	}))
	assert.Equal(t, "smtp.example.com:587", addr)
	assert.Equal(t, []string{"ops@example.com"}, sentTo)
	assert.True(t, strings.Contains(payload, "Subject: [ldimport] Import failed: job 9\r\n"))
	assert.Contains(t, payload, "Job: 9")
}
