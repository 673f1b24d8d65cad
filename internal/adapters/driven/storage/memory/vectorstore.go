package memory

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/custodia-labs/homeqa/internal/adapters/driven/storage/vecmath"
	"github.com/custodia-labs/homeqa/internal/core/domain"
	"github.com/custodia-labs/homeqa/internal/core/ports/driven"
)

// Ensure VectorStore implements the interface.
var _ driven.VectorStore = (*VectorStore)(nil)

type entry struct {
	doc domain.IndexedDocument
	seq int64
}

// VectorStore is a brute-force in-memory vector store.
type VectorStore struct {
	mu         sync.RWMutex
	collection string
	dims       int
	docs       map[string]entry
	seq        int64
}

// NewVectorStore creates an empty store for the named collection.
func NewVectorStore(collection string) *VectorStore {
	return &VectorStore{collection: collection, docs: make(map[string]entry)}
}

// Init sets the vector dimension. Calling it again with the same
// dimension is a no-op.
func (s *VectorStore) Init(_ context.Context, dimensions int) error {
	if dimensions <= 0 {
		return domain.Validationf("dimensions must be positive, got %d", dimensions)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dims != 0 && s.dims != dimensions {
		return domain.Validationf("collection %s has dimension %d, not %d", s.collection, s.dims, dimensions)
	}
	s.dims = dimensions
	return nil
}

func (s *VectorStore) ready() error {
	if s.dims == 0 {
		return fmt.Errorf("%w: vector store not initialised", domain.ErrInvalidState)
	}
	return nil
}

// Insert adds documents whose IDs are new.
func (s *VectorStore) Insert(_ context.Context, docs []domain.IndexedDocument) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return 0, err
	}
	for _, d := range docs {
		if len(d.Embedding) != s.dims {
			return 0, domain.Validationf("document %s has %d dimensions, expected %d", d.DocID, len(d.Embedding), s.dims)
		}
	}

	added := 0
	for _, d := range docs {
		if _, ok := s.docs[d.DocID]; ok {
			continue
		}
		s.seq++
		d.Embedding = append([]float32(nil), d.Embedding...)
		d.Metadata = maps.Clone(d.Metadata)
		s.docs[d.DocID] = entry{doc: d, seq: s.seq}
		added++
	}
	return added, nil
}

// Exists reports which IDs are stored.
func (s *VectorStore) Exists(_ context.Context, ids []string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := s.docs[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}

// Search scans every document matching filter.
func (s *VectorStore) Search(_ context.Context, query []float32, k int, filter domain.MetadataFilter) ([]driven.VectorHit, error) {
	if k < 1 {
		return nil, domain.Validationf("k must be at least 1, got %d", k)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return nil, err
	}

	hits := make([]driven.VectorHit, 0, len(s.docs))
	for _, e := range s.docs {
		if !filter.Matches(e.doc.Metadata) {
			continue
		}
		doc := e.doc
		doc.Metadata = maps.Clone(doc.Metadata)
		hits = append(hits, driven.VectorHit{
			Document: doc,
			Distance: vecmath.CosineDistance(query, e.doc.Embedding),
			Seq:      e.seq,
		})
	}
	return vecmath.Rank(hits, k), nil
}

// Count returns the number of documents.
func (s *VectorStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}

// Delete removes a document.
func (s *VectorStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	return nil
}

// Name returns "memory:<collection>".
func (s *VectorStore) Name() string { return "memory:" + s.collection }

// Close is a no-op.
func (s *VectorStore) Close() error { return nil }
