package driven

import (
	"context"

	"github.com/custodia-labs/homeqa/internal/core/domain"
)

// SourceBuilder creates a MessageSource from a registered definition.
type SourceBuilder func(ctx context.Context, def domain.SourceDefinition) (MessageSource, error)

// SourceFactory creates message sources from source definitions.
// It maintains a registry of source types and their builders.
type SourceFactory interface {
	// Create returns a MessageSource for the given definition.
	// Returns ErrUnsupportedType if the type is unknown.
	Create(ctx context.Context, def domain.SourceDefinition) (MessageSource, error)

	// Register adds a builder for the given type.
	Register(sourceType domain.SourceType, builder SourceBuilder)

	// SupportedTypes returns all registered source types, sorted by ID.
	SupportedTypes() []domain.SourceType

	// Validate checks a type and config before a source is registered.
	Validate(sourceType string, config map[string]string) error
}
