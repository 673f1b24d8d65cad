package driven

import (
	"context"

	"github.com/custodia-labs/homeqa/internal/core/domain"
)

// SourceStore persists registered source definitions.
type SourceStore interface {
	// Save stores or updates a source definition.
	Save(ctx context.Context, def domain.SourceDefinition) error

	// Get retrieves a definition by ID.
	Get(ctx context.Context, id string) (*domain.SourceDefinition, error)

	// Delete removes a definition.
	Delete(ctx context.Context, id string) error

	// List returns all definitions ordered by creation time.
	List(ctx context.Context) ([]domain.SourceDefinition, error)
}
