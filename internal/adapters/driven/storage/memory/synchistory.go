package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/homeqa/internal/core/domain"
	"github.com/custodia-labs/homeqa/internal/core/ports/driven"
)

// Ensure SyncHistoryStore implements the interface.
var _ driven.SyncHistoryStore = (*SyncHistoryStore)(nil)

// SyncHistoryStore is an in-memory driven.SyncHistoryStore.
type SyncHistoryStore struct {
	mu   sync.RWMutex
	runs map[string][]domain.SyncRun
}

// NewSyncHistoryStore creates an empty history.
func NewSyncHistoryStore() *SyncHistoryStore {
	return &SyncHistoryStore{runs: make(map[string][]domain.SyncRun)}
}

// RecordRun appends a run.
func (s *SyncHistoryStore) RecordRun(_ context.Context, run domain.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.SourceID] = append(s.runs[run.SourceID], run)
	return nil
}

// ListRuns returns the newest runs first.
func (s *SyncHistoryStore) ListRuns(_ context.Context, sourceID string, limit int) ([]domain.SyncRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := newestFirst(s.runs[sourceID])
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// PruneRuns keeps the newest keep runs per source.
func (s *SyncHistoryStore) PruneRuns(_ context.Context, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, runs := range s.runs {
		if len(runs) > keep {
			s.runs[id] = newestFirst(runs)[:keep]
		}
	}
	return nil
}

// DeleteRuns drops a source's history.
func (s *SyncHistoryStore) DeleteRuns(_ context.Context, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, sourceID)
	return nil
}

func newestFirst(runs []domain.SyncRun) []domain.SyncRun {
	out := append([]domain.SyncRun(nil), runs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}
