package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stanstork/linkdoc-import/internal/models"
)

type NotificationRepository interface {
	Create(ctx context.Context, params CreateNotificationParams) (models.Notification, error)
	ListRecent(ctx context.Context, limit int) ([]models.Notification, error)
	ListForJob(ctx context.Context, jobID int64) ([]models.Notification, error)
}

type notificationRepository struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

type CreateNotificationParams struct {
	Event            models.NotificationEvent
	Severity         models.NotificationSeverity
	JobID            int64
	ImportIdentifier string
	Title            string
	Message          string
	Metadata         map[string]interface{}
}

func NewNotificationRepository(db *sql.DB, dialect Dialect) NotificationRepository {
	return &notificationRepository{
		db:      db,
		dialect: dialect,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

const notificationColumns = `id, event_type, severity, job_id, import_identifier, title, message, metadata, created_at`

func (r *notificationRepository) Create(ctx context.Context, params CreateNotificationParams) (models.Notification, error) {
	query := r.dialect.rebind(fmt.Sprintf(`
		INSERT INTO import_notifications (id, event_type, severity, job_id, import_identifier, title, message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING %s
	`, notificationColumns))

	var jobID interface{}
	if params.JobID > 0 {
		jobID = params.JobID
	}

	var metadata interface{}
	if len(params.Metadata) > 0 {
		bytes, err := json.Marshal(params.Metadata)
		if err != nil {
			return models.Notification{}, fmt.Errorf("marshal metadata: %w", err)
		}
		metadata = string(bytes)
	}

	row := r.db.QueryRowContext(ctx, query,
		uuid.NewString(),
		string(params.Event),
		string(params.Severity),
		jobID,
		strings.TrimSpace(params.ImportIdentifier),
		params.Title,
		params.Message,
		metadata,
		r.now(),
	)
	return scanNotification(row)
}

func (r *notificationRepository) ListRecent(ctx context.Context, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	query := r.dialect.rebind(fmt.Sprintf(`
		SELECT %s
		FROM import_notifications
		ORDER BY created_at DESC
		LIMIT $1
	`, notificationColumns))
	return r.query(ctx, query, limit)
}

func (r *notificationRepository) ListForJob(ctx context.Context, jobID int64) ([]models.Notification, error) {
	query := r.dialect.rebind(fmt.Sprintf(`
		SELECT %s
		FROM import_notifications
		WHERE job_id = $1
		ORDER BY created_at ASC
	`, notificationColumns))
	return r.query(ctx, query, jobID)
}

func (r *notificationRepository) query(ctx context.Context, query string, args ...interface{}) ([]models.Notification, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		notif, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, notif)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return notifications, nil
}

func scanNotification(scanner rowScanner) (models.Notification, error) {
	var (
		notif       models.Notification
		jobID       sql.NullInt64
		metadataRaw []byte
		createdAt   nullTime
	)

	if err := scanner.Scan(
		&notif.ID,
		&notif.EventType,
		&notif.Severity,
		&jobID,
		&notif.ImportIdentifier,
		&notif.Title,
		&notif.Message,
		&metadataRaw,
		&createdAt,
	); err != nil {
		return models.Notification{}, err
	}

	if jobID.Valid {
		notif.JobID = jobID.Int64
	}
	if len(metadataRaw) > 0 {
		notif.Metadata = metadataRaw
	}
	notif.CreatedAt = createdAt.Time
	return notif, nil
}
