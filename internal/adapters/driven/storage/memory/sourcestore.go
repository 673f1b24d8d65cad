package memory

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/custodia-labs/homeqa/internal/core/domain"
	"github.com/custodia-labs/homeqa/internal/core/ports/driven"
)

// Ensure SourceStore implements the interface.
var _ driven.SourceStore = (*SourceStore)(nil)

// SourceStore is an in-memory implementation of driven.SourceStore.
type SourceStore struct {
	mu      sync.RWMutex
	sources map[string]domain.SourceDefinition
}

// NewSourceStore creates a new in-memory source store.
func NewSourceStore() *SourceStore {
	return &SourceStore{
		sources: make(map[string]domain.SourceDefinition),
	}
}

// Save stores or updates a source definition.
func (s *SourceStore) Save(_ context.Context, def domain.SourceDefinition) error {
	if def.ID == "" {
		return domain.Validationf("source id is required")
	}
	def.Config = maps.Clone(def.Config)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[def.ID] = def
	return nil
}

// Get retrieves a definition by ID.
func (s *SourceStore) Get(_ context.Context, id string) (*domain.SourceDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.sources[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	def.Config = maps.Clone(def.Config)
	return &def, nil
}

// Delete removes a definition.
func (s *SourceStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sources, id)
	return nil
}

// List returns all definitions, oldest first.
func (s *SourceStore) List(_ context.Context) ([]domain.SourceDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.SourceDefinition, 0, len(s.sources))
	for _, def := range s.sources {
		def.Config = maps.Clone(def.Config)
		result = append(result, def)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}
