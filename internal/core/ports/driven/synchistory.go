package driven

import (
	"context"

	"github.com/custodia-labs/homeqa/internal/core/domain"
)

// SyncHistoryStore keeps a bounded log of finished syncs per source.
type SyncHistoryStore interface {
	// RecordRun appends a finished run.
	RecordRun(ctx context.Context, run domain.SyncRun) error

	// ListRuns returns up to limit runs for a source, most recent first.
	ListRuns(ctx context.Context, sourceID string, limit int) ([]domain.SyncRun, error)

	// PruneRuns keeps only the most recent keep runs per source.
	PruneRuns(ctx context.Context, keep int) error

	// DeleteRuns drops all runs for a source.
	DeleteRuns(ctx context.Context, sourceID string) error
}
