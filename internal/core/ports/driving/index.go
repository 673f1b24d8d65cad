package driving

import (
	"context"

	"github.com/custodia-labs/homeqa/internal/core/domain"
)

// IndexService is the semantic index over ingested messages.
type IndexService interface {
	// Initialize prepares the backend. Safe to call repeatedly.
	Initialize(ctx context.Context) error

	// AddDocuments embeds and stores messages not already indexed.
	// Returns the number newly inserted.
	AddDocuments(ctx context.Context, messages []domain.Message) (int, error)

	// Query returns up to limit results ordered by score, highest first.
	Query(ctx context.Context, text string, limit int, filter domain.MetadataFilter) ([]domain.RankedResult, error)

	// Stats describes the index. It never fails.
	Stats(ctx context.Context) domain.IndexStats
}
