package sqlite

import (
	"context"
	"fmt"

	"github.com/custodia-labs/homeqa/internal/core/domain"
	"github.com/custodia-labs/homeqa/internal/core/ports/driven"
)

// syncHistoryStore implements driven.SyncHistoryStore.
type syncHistoryStore struct {
	store *Store
}

var _ driven.SyncHistoryStore = (*syncHistoryStore)(nil)

// RecordRun appends a finished run.
func (s *syncHistoryStore) RecordRun(ctx context.Context, run domain.SyncRun) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO sync_runs (source_id, started_at, ended_at, success, error, fetched, added)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.SourceID, formatTime(run.StartedAt), formatTime(run.EndedAt), run.Success, run.Error, run.Fetched, run.Added)
	if err != nil {
		return fmt.Errorf("recording sync run: %w", err)
	}
	return nil
}

// ListRuns returns runs newest first. A limit below 1 returns all runs.
func (s *syncHistoryStore) ListRuns(ctx context.Context, sourceID string, limit int) ([]domain.SyncRun, error) {
	if limit < 1 {
		limit = -1
	}
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT source_id, started_at, ended_at, success, error, fetched, added
		FROM sync_runs WHERE source_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sync runs: %w", err)
	}
	defer rows.Close()

	runs := []domain.SyncRun{}
	for rows.Next() {
		var (
			run            domain.SyncRun
			started, ended string
		)
		if err := rows.Scan(&run.SourceID, &started, &ended, &run.Success, &run.Error, &run.Fetched, &run.Added); err != nil {
			return nil, fmt.Errorf("scanning sync run: %w", err)
		}
		run.StartedAt = parseTime(started)
		run.EndedAt = parseTime(ended)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sync runs: %w", err)
	}
	return runs, nil
}

// PruneRuns keeps the newest keep runs per source.
func (s *syncHistoryStore) PruneRuns(ctx context.Context, keep int) error {
	_, err := s.store.db.ExecContext(ctx, `
		DELETE FROM sync_runs WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					PARTITION BY source_id ORDER BY started_at DESC, id DESC
				) AS rn
				FROM sync_runs
			) WHERE rn > ?
		)
	`, keep)
	if err != nil {
		return fmt.Errorf("pruning sync runs: %w", err)
	}
	return nil
}

// DeleteRuns drops a source's history.
func (s *syncHistoryStore) DeleteRuns(ctx context.Context, sourceID string) error {
	if _, err := s.store.db.ExecContext(ctx, "DELETE FROM sync_runs WHERE source_id = ?", sourceID); err != nil {
		return fmt.Errorf("deleting sync runs: %w", err)
	}
	return nil
}
