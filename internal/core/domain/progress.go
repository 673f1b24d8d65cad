package domain

import (
	"strings"
	"time"
)

// SyncProgress is a point-in-time view of a source's sync task.
// It is replaced as a whole on every transition, so a value read by a
// client is always internally consistent.
type SyncProgress struct {
	SourceID string

	// IsSyncing is true while the task is running.
	IsSyncing bool

	// Percent is 0-100. When IsSyncing is false it is either 0 or 100.
	Percent int

	// StatusMessage is human-readable.
	StatusMessage string

	// MessagesSeen counts messages newly added to the index.
	MessagesSeen int

	// MessagesTotal counts messages fetched in this run.
	MessagesTotal int

	// LastCompletedAt is set when a run finishes successfully.
	LastCompletedAt *time.Time

	// DurationSeconds is the wall-clock time of the last successful run.
	DurationSeconds float64
}

// Idle reports whether no sync task is running.
func (p SyncProgress) Idle() bool {
	return !p.IsSyncing
}

// Failed reports whether the last run ended without completing.
func (p SyncProgress) Failed() bool {
	return !p.IsSyncing && strings.HasPrefix(p.StatusMessage, SyncFailedPrefix)
}

// Status messages reported by the sync task.
const (
	SyncStatusCreated   = "Created"
	SyncStatusFetching  = "Fetching messages..."
	SyncStatusFinishing = "Finalizing sync..."
	SyncStatusNoNew     = "Sync complete - no new messages found"
	SyncFailedPrefix    = "Sync failed: "
)
