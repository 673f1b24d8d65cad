// Package chroma provides a VectorStore backed by a Chroma server.
//
// Embeddings are computed by the caller and passed explicitly, so the
// collection's own embedding function is never invoked. The collection
// uses cosine space so Chroma's distances match the other backends.
package chroma

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"

	"github.com/custodia-labs/homeqa/internal/core/domain"
	"github.com/custodia-labs/homeqa/internal/core/ports/driven"
	"github.com/custodia-labs/homeqa/internal/logger"
)

// DefaultURL is the default Chroma server address.
const DefaultURL = "http://localhost:8000"

// Reserved metadata keys.
const (
	metaJSON = "_meta"
	metaSeq  = "_seq"
)

// Ensure Store implements the interface.
var _ driven.VectorStore = (*Store)(nil)

// Store is a Chroma-backed vector store.
type Store struct {
	url        string
	collection string

	mu   sync.Mutex
	cli  chroma.Client
	col  chroma.Collection
	dims int
	// last issued sequence; nanosecond clock, bumped when the clock stalls
	seq int64
}

// New creates a store for collection on the server at url. No connection
// is made until Init.
func New(url, collection string) *Store {
	if url == "" {
		url = DefaultURL
	}
	return &Store{url: url, collection: collection}
}

// Init connects and gets or creates the collection.
func (s *Store) Init(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		return domain.Validationf("dimensions must be positive, got %d", dimensions)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.col != nil {
		if s.dims != dimensions {
			return domain.Validationf("collection %s has dimension %d, not %d", s.collection, s.dims, dimensions)
		}
		return nil
	}

	cli, err := chroma.NewHTTPClient(chroma.WithBaseURL(s.url))
	if err != nil {
		return fmt.Errorf("%w: chroma client: %w", domain.ErrBackendUnavailable, err)
	}
	col, err := cli.GetOrCreateCollection(ctx, s.collection,
		chroma.WithEmbeddingFunctionCreate(embeddings.NewConsistentHashEmbeddingFunction()),
		chroma.WithHNSWSpaceCreate(embeddings.COSINE),
	)
	if err != nil {
		cli.Close() //nolint:errcheck // already failing
		return fmt.Errorf("%w: chroma collection %s: %w", domain.ErrBackendUnavailable, s.collection, err)
	}

	s.cli, s.col, s.dims = cli, col, dimensions
	logger.Info("chroma: using collection %s at %s", s.collection, s.url)
	return nil
}

func (s *Store) collectionRef() (chroma.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.col == nil {
		return nil, fmt.Errorf("%w: vector store not initialised", domain.ErrInvalidState)
	}
	return s.col, nil
}

func (s *Store) nextSeq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UnixNano()
	if now <= s.seq {
		now = s.seq + 1
	}
	s.seq = now
	return now
}

// Insert adds documents whose IDs are not yet in the collection.
// The check and the add are not atomic; callers serialise inserts.
func (s *Store) Insert(ctx context.Context, docs []domain.IndexedDocument) (int, error) {
	col, err := s.collectionRef()
	if err != nil {
		return 0, err
	}

	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		if len(d.Embedding) != s.dims {
			return 0, domain.Validationf("document %s has %d dimensions, expected %d", d.DocID, len(d.Embedding), s.dims)
		}
		ids = append(ids, d.DocID)
	}
	present, err := s.Exists(ctx, ids)
	if err != nil {
		return 0, err
	}

	var (
		newIDs []chroma.DocumentID
		texts  []string
		metas  []chroma.DocumentMetadata
		vecs   []embeddings.Embedding
		seen   = make(map[string]bool, len(docs))
	)
	for _, d := range docs {
		if present[d.DocID] || seen[d.DocID] {
			continue
		}
		seen[d.DocID] = true
		md, err := toMetadata(d.Metadata, s.nextSeq())
		if err != nil {
			return 0, err
		}
		newIDs = append(newIDs, chroma.DocumentID(d.DocID))
		texts = append(texts, d.Content)
		metas = append(metas, md)
		vecs = append(vecs, embeddings.NewEmbeddingFromFloat32(d.Embedding))
	}
	if len(newIDs) == 0 {
		return 0, nil
	}

	err = col.Add(ctx,
		chroma.WithIDs(newIDs...),
		chroma.WithTexts(texts...),
		chroma.WithMetadatas(metas...),
		chroma.WithEmbeddings(vecs...),
	)
	if err != nil {
		return 0, fmt.Errorf("chroma add: %w", err)
	}
	return len(newIDs), nil
}

// Exists reports which IDs are in the collection.
func (s *Store) Exists(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	col, err := s.collectionRef()
	if err != nil {
		return nil, err
	}

	docIDs := make([]chroma.DocumentID, len(ids))
	for i, id := range ids {
		docIDs[i] = chroma.DocumentID(id)
	}
	res, err := col.Get(ctx, chroma.WithIDsGet(docIDs...))
	if err != nil {
		return nil, fmt.Errorf("chroma get: %w", err)
	}
	for _, id := range res.GetIDs() {
		out[string(id)] = true
	}
	return out, nil
}

// Search queries the collection with an explicit embedding.
func (s *Store) Search(ctx context.Context, query []float32, k int, filter domain.MetadataFilter) ([]driven.VectorHit, error) {
	if k < 1 {
		return nil, domain.Validationf("k must be at least 1, got %d", k)
	}
	col, err := s.collectionRef()
	if err != nil {
		return nil, err
	}

	opts := []chroma.CollectionQueryOption{
		chroma.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(query)),
		chroma.WithNResults(k),
	}
	if where := whereFor(filter); where != nil {
		opts = append(opts, chroma.WithWhereQuery(where))
	}

	res, err := col.Query(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("chroma query: %w", err)
	}
	if res == nil || res.CountGroups() == 0 {
		return []driven.VectorHit{}, nil
	}

	ids := res.GetIDGroups()[0]
	docs := res.GetDocumentsGroups()
	metas := res.GetMetadatasGroups()
	dists := res.GetDistancesGroups()

	hits := make([]driven.VectorHit, 0, len(ids))
	for i, id := range ids {
		hit := driven.VectorHit{Document: domain.IndexedDocument{DocID: string(id)}, Distance: 1}
		if len(docs) > 0 && i < len(docs[0]) && docs[0][i] != nil {
			hit.Document.Content = docs[0][i].ContentString()
		}
		if len(metas) > 0 && i < len(metas[0]) && metas[0][i] != nil {
			hit.Document.Metadata, hit.Seq = fromMetadata(metas[0][i])
		}
		if len(dists) > 0 && i < len(dists[0]) {
			hit.Distance = float64(dists[0][i])
		}
		hits = append(hits, hit)
	}
	return rankTies(hits), nil
}

// Count returns the collection size.
func (s *Store) Count(ctx context.Context) (int, error) {
	col, err := s.collectionRef()
	if err != nil {
		return 0, err
	}
	n, err := col.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("chroma count: %w", err)
	}
	return n, nil
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, id string) error {
	col, err := s.collectionRef()
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, chroma.WithIDsDelete(chroma.DocumentID(id))); err != nil {
		return fmt.Errorf("chroma delete: %w", err)
	}
	return nil
}

// Name returns "chroma:<collection>".
func (s *Store) Name() string { return "chroma:" + s.collection }

// Close closes the HTTP client.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cli == nil {
		return nil
	}
	err := s.cli.Close()
	s.cli, s.col = nil, nil
	return err
}

// toMetadata stores each value as a string attribute for where filters,
// plus the whole map as JSON for exact round trips.
func toMetadata(meta map[string]string, seq int64) (chroma.DocumentMetadata, error) {
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshalling metadata: %w", err)
	}
	m := make(map[string]interface{}, len(meta)+2)
	for k, v := range meta {
		m[k] = v
	}
	m[metaJSON] = string(raw)
	m[metaSeq] = strconv.FormatInt(seq, 10)
	return chroma.NewDocumentMetadataFromMap(m)
}

func fromMetadata(md chroma.DocumentMetadata) (map[string]string, int64) {
	var meta map[string]string
	if raw, ok := md.GetString(metaJSON); ok {
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			logger.Warn("chroma: bad metadata json: %v", err)
		}
	}
	var seq int64
	if raw, ok := md.GetString(metaSeq); ok {
		seq, _ = strconv.ParseInt(raw, 10, 64) //nolint:errcheck // zero on corruption
	}
	return meta, seq
}

// whereFor builds an AND of string equality clauses, or nil for no filter.
func whereFor(filter domain.MetadataFilter) chroma.WhereClause {
	keys := filter.Keys()
	if len(keys) == 0 {
		return nil
	}
	active := filter.Active()
	clauses := make([]chroma.WhereClause, 0, len(keys))
	for _, k := range keys {
		clauses = append(clauses, chroma.EqString(k, active[k]))
	}
	if len(clauses) == 1 {
		return clauses[0]
	}
	return chroma.And(clauses...)
}

// rankTies reorders equal-distance neighbours newest first. Chroma
// already returns hits by distance.
func rankTies(hits []driven.VectorHit) []driven.VectorHit {
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].Distance == hits[j-1].Distance && hits[j].Seq > hits[j-1].Seq; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
	return hits
}
