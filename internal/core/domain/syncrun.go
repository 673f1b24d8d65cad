package domain

import "time"

// SyncRun records the outcome of one finished sync.
type SyncRun struct {
	SourceID  string    `json:"source_id"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	// Fetched is how many messages the source returned.
	Fetched int `json:"fetched"`
	// Added is how many of them were new to the index.
	Added int `json:"added"`
}

// Duration returns how long the run took.
func (r SyncRun) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// DefaultHistoryKeep is how many runs per source are retained.
const DefaultHistoryKeep = 50
