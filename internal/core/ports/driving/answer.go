package driving

import (
	"context"

	"github.com/custodia-labs/homeqa/internal/core/domain"
)

// AnswerService answers natural-language questions from indexed messages.
type AnswerService interface {
	// Ask never fails. Errors are folded into an apologetic answer.
	Ask(ctx context.Context, query string, filter domain.MetadataFilter) domain.Answer

	// Search returns ranked passages for query. Empty queries are rejected.
	Search(ctx context.Context, query string, limit int) ([]domain.RankedResult, error)

	// IndexStats describes the underlying index.
	IndexStats(ctx context.Context) domain.IndexStats
}
