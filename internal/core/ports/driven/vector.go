package driven

import (
	"context"

	"github.com/custodia-labs/homeqa/internal/core/domain"
)

// VectorStore persists indexed documents and answers similarity queries.
// Implementations: in-memory, SQLite, Chroma.
type VectorStore interface {
	// Init prepares the collection for vectors of the given dimension.
	// It must be idempotent.
	Init(ctx context.Context, dimensions int) error

	// Insert stores documents whose DocID is not already present and
	// returns how many were inserted. Existing IDs are left untouched.
	Insert(ctx context.Context, docs []domain.IndexedDocument) (int, error)

	// Exists reports which of the given IDs are already stored.
	Exists(ctx context.Context, ids []string) (map[string]bool, error)

	// Search returns up to k nearest documents matching filter.
	Search(ctx context.Context, query []float32, k int, filter domain.MetadataFilter) ([]VectorHit, error)

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)

	// Delete removes a document. Missing IDs are not an error.
	Delete(ctx context.Context, id string) error

	// Name identifies the backend and collection, e.g. "sqlite:messages".
	Name() string

	// Close releases resources.
	Close() error
}

// VectorHit represents a similarity search result.
type VectorHit struct {
	Document domain.IndexedDocument

	// Distance is the cosine distance (1 - cosine similarity).
	Distance float64

	// Seq increases with insertion order. Higher is more recent.
	Seq int64
}
