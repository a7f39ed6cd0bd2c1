package db

import (
	"time"

	"github.com/google/uuid"
)

// Sync run triggers
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
	TriggerCLI       = "cli"
)

// Sync run statuses
const (
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusPartial = "partial"
	RunStatusFailed  = "failed"
)

// SyncRun represents one catalog sync run record
type SyncRun struct {
	ID            uuid.UUID  `json:"id"`
	Trigger       string     `json:"trigger"`
	Status        string     `json:"status"`
	MaxPages      *int       `json:"max_pages,omitempty"`
	TotalReported int        `json:"total_reported"`
	Processed     int        `json:"processed"`
	Saved         int        `json:"saved"`
	Failed        int        `json:"failed"`
	Degraded      int        `json:"degraded"`
	Skipped       int        `json:"skipped"`
	Error         *string    `json:"error,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}
