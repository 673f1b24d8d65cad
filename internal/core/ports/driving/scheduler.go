package driving

import (
	"context"
	"time"
)

// Scheduler runs periodic sync of connected sources.
type Scheduler interface {
	// Start registers the schedule and begins running it in the background.
	Start(ctx context.Context) error

	// Stop halts the schedule and waits for a running job to finish.
	Stop() error

	// RunOnce triggers a sync of all connected sources immediately.
	RunOnce(ctx context.Context) error

	// IsRunning reports whether the schedule is active.
	IsRunning() bool

	// NextRun returns the next scheduled time, or zero when stopped.
	NextRun() time.Time
}
