package models

import (
	"encoding/json"
	"time"
)

type NotificationSeverity string

const (
	NotificationSeverityInfo    NotificationSeverity = "info"
	NotificationSeverityWarning NotificationSeverity = "warning"
	NotificationSeverityError   NotificationSeverity = "error"
)

type NotificationEvent string

const (
	NotificationEventImportSucceeded    NotificationEvent = "import_succeeded"
	NotificationEventImportFailed       NotificationEvent = "import_failed"
	NotificationEventImportNotSupported NotificationEvent = "import_not_supported"
	NotificationEventImportTimedOut     NotificationEvent = "import_timed_out"
)

type Notification struct {
	ID               string               `json:"id"`
	EventType        NotificationEvent    `json:"event_type"`
	Severity         NotificationSeverity `json:"severity"`
	JobID            int64                `json:"job_id"`
	ImportIdentifier string               `json:"import_identifier"`
	Title            string               `json:"title"`
	Message          string               `json:"message"`
	Metadata         json.RawMessage      `json:"metadata,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
}
