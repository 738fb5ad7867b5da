package core

import "time"

// AttemptRecord is the persisted trace of one linking attempt.
type AttemptRecord struct {
	ID          string
	AccountID   int64
	AccountName string
	Provider    Provider
	State       LinkState
	Reason      string
	StartedAt   time.Time
	FinishedAt  *time.Time
	RolledBack  bool
}

// SyncRun is the persisted trace of one sync request.
type SyncRun struct {
	ID        int64
	AccountID int64
	Kind      ConnectionKind
	Trigger   string
	Message   string
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}

// Sync triggers
const (
	TriggerManual   = "manual"
	TriggerLink     = "link"
	TriggerQueue    = "queue"
	TriggerSchedule = "schedule"
)
