package model

import "time"

// SyncStatus is the lifecycle state of a reconciliation run.
type SyncStatus string

const (
	SyncStatusRunning  SyncStatus = "running"
	SyncStatusComplete SyncStatus = "complete"
	SyncStatusFailed   SyncStatus = "failed"
)

// SyncEntry is one row of the sync log.
type SyncEntry struct {
	ID          int64      `json:"id"`
	Source      string     `json:"source"`
	Status      SyncStatus `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Processed   int64      `json:"processed"`
	Error       string     `json:"error,omitempty"`
}
