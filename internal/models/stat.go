package models

import "time"

// QueueStat is a point-in-time count of jobs per queue state.
type QueueStat struct {
	Pending          int        `json:"pending" db:"pending"`
	InProgress       int        `json:"in_progress" db:"in_progress"`
	Completed        int        `json:"completed" db:"completed"`
	OldestPendingAt  *time.Time `json:"oldest_pending_at" db:"oldest_pending_at"`
	OldestInProgress *time.Time `json:"oldest_in_progress_at" db:"oldest_in_progress_at"`
}
