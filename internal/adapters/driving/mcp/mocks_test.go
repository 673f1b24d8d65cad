package mcp

import (
	"context"

	"github.com/custodia-labs/homeqa/internal/core/domain"
	"github.com/custodia-labs/homeqa/internal/core/ports/driving"
)

// mockAnswerService is a mock implementation of driving.AnswerService.
type mockAnswerService struct {
	answer     domain.Answer
	results    []domain.RankedResult
	stats      domain.IndexStats
	err        error
	lastQuery  string
	lastLimit  int
	lastFilter domain.MetadataFilter
}

func (m *mockAnswerService) Ask(_ context.Context, query string, filter domain.MetadataFilter) domain.Answer {
	m.lastQuery = query
	m.lastFilter = filter
	return m.answer
}

func (m *mockAnswerService) Search(_ context.Context, query string, limit int) ([]domain.RankedResult, error) {
	m.lastQuery = query
	m.lastLimit = limit
	return m.results, m.err
}

func (m *mockAnswerService) IndexStats(context.Context) domain.IndexStats {
	return m.stats
}

// mockSyncOrchestrator implements the read side of driving.SyncOrchestrator.
// Methods the MCP server never calls panic through the nil embedded interface.
type mockSyncOrchestrator struct {
	driving.SyncOrchestrator
	sources  []domain.SourceConnection
	progress map[string]domain.SyncProgress
	runs     []domain.SyncRun
	err      error
}

func (m *mockSyncOrchestrator) ListSources(context.Context) []domain.SourceConnection {
	return m.sources
}

func (m *mockSyncOrchestrator) GetProgress(sourceID string) (domain.SyncProgress, error) {
	if m.err != nil {
		return domain.SyncProgress{}, m.err
	}
	p, ok := m.progress[sourceID]
	if !ok {
		return domain.SyncProgress{}, domain.ErrNotFound
	}
	return p, nil
}

func (m *mockSyncOrchestrator) History(_ context.Context, _ string, _ int) ([]domain.SyncRun, error) {
	return m.runs, m.err
}
