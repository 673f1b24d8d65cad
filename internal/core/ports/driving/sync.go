package driving

import (
	"context"

	"github.com/custodia-labs/homeqa/internal/core/domain"
)

// SyncOrchestrator owns registered sources, their connection lifecycle and
// their sync tasks.
type SyncOrchestrator interface {
	// RegisterSource validates and registers a new source. The source starts disconnected.
	RegisterSource(ctx context.Context, sourceType, name string, config map[string]string) (string, error)

	// ListSources returns all registered sources.
	ListSources(ctx context.Context) []domain.SourceConnection

	// GetSource returns one registered source.
	GetSource(ctx context.Context, sourceID string) (domain.SourceConnection, error)

	// Connect connects a source. The bool mirrors the source's own result.
	Connect(ctx context.Context, sourceID string) (bool, error)

	// Disconnect disconnects a source.
	Disconnect(ctx context.Context, sourceID string) (bool, error)

	// TestConnection checks a connected source is still reachable.
	TestConnection(ctx context.Context, sourceID string) (bool, error)

	// StartSync launches a background sync task and returns immediately.
	StartSync(ctx context.Context, sourceID string) (*SyncHandle, error)

	// SyncAll starts a sync for every connected, idle source.
	SyncAll(ctx context.Context) error

	// GetProgress returns the latest progress snapshot.
	GetProgress(sourceID string) (domain.SyncProgress, error)

	// RemoveSource disconnects and forgets a source.
	RemoveSource(ctx context.Context, sourceID string) error

	// History returns the most recent finished runs for a source, newest first.
	History(ctx context.Context, sourceID string, limit int) ([]domain.SyncRun, error)
}

// SyncHandle observes a running sync task. It cannot cancel the task.
type SyncHandle struct {
	SourceID string

	done     <-chan struct{}
	progress func() domain.SyncProgress
}

// NewSyncHandle creates a handle over a done channel and a progress reader.
func NewSyncHandle(sourceID string, done <-chan struct{}, progress func() domain.SyncProgress) *SyncHandle {
	return &SyncHandle{SourceID: sourceID, done: done, progress: progress}
}

// Done is closed when the task has reached a terminal state.
func (h *SyncHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the task finishes or ctx is done, then returns the
// latest progress snapshot.
func (h *SyncHandle) Wait(ctx context.Context) (domain.SyncProgress, error) {
	select {
	case <-h.done:
		return h.Progress(), nil
	case <-ctx.Done():
		return h.Progress(), ctx.Err()
	}
}

// Progress returns the current progress snapshot.
func (h *SyncHandle) Progress() domain.SyncProgress {
	if h.progress == nil {
		return domain.SyncProgress{SourceID: h.SourceID}
	}
	return h.progress()
}
