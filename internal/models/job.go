package models

import (
	"time"

	"github.com/google/uuid"
)

// FileType selects the pipeline a job is processed with.
type FileType string

const (
	FileTypeGmailMetadata FileType = "G - Email Metadata (.csv)"
	FileTypeDriveLinks    FileType = "G - Drive Links (.csv)"
)

// NewImportJob is the payload an external submitter hands to the queue.
type NewImportJob struct {
	ImportIdentifier   uuid.UUID `json:"import_identifier"`
	FilePath           string    `json:"file_path"`
	WorkspaceID        int64     `json:"workspace_id"`
	TargetObjectTypeID int64     `json:"target_object_type_id"`
	SourceRecordID     int64     `json:"source_record_id"`
	FileType           FileType  `json:"file_type"`
	CustodianID        int64     `json:"custodian_id"`
}

type ImportJob struct {
	ID                 int64      `json:"id" db:"id"`
	ImportIdentifier   uuid.UUID  `json:"import_identifier" db:"import_identifier"`
	FilePath           string     `json:"file_path" db:"file_path"`
	WorkspaceID        int64      `json:"workspace_id" db:"workspace_id"`
	TargetObjectTypeID int64      `json:"target_object_type_id" db:"target_object_type_id"`
	SourceRecordID     int64      `json:"source_record_id" db:"source_record_id"`
	FileType           FileType   `json:"file_type" db:"file_type"`
	CustodianID        int64      `json:"custodian_id" db:"custodian_id"`
	SubmittedAt        time.Time  `json:"submitted_at" db:"submitted_at"`
	ClaimedBy          *string    `json:"claimed_by" db:"claimed_by"`
	ClaimedAt          *time.Time `json:"claimed_at" db:"claimed_at"`
	CompletedAt        *time.Time `json:"completed_at" db:"completed_at"`
	RemoteImportID     *uuid.UUID `json:"remote_import_id" db:"remote_import_id"`
	RemoteSourceID     *uuid.UUID `json:"remote_source_id" db:"remote_source_id"`
}

// Status derives the queue state from the nullable claim/complete columns.
func (j ImportJob) Status() string {
	switch {
	case j.CompletedAt != nil:
		return "completed"
	case j.ClaimedAt != nil:
		return "in_progress"
	default:
		return "pending"
	}
}

// ImportJobEvent is one status message recorded against a job.
type ImportJobEvent struct {
	ID        int64     `json:"id" db:"id"`
	JobID     int64     `json:"job_id" db:"job_id"`
	Message   string    `json:"message" db:"message"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
