package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/homeqa/internal/core/domain"
	"github.com/custodia-labs/homeqa/internal/core/ports/driven"
	"github.com/custodia-labs/homeqa/internal/core/ports/driving"
	"github.com/custodia-labs/homeqa/internal/logger"
	"github.com/custodia-labs/homeqa/internal/metrics"
)

// Ensure VectorIndex implements the interface.
var _ driving.IndexService = (*VectorIndex)(nil)

// VectorIndex embeds messages and stores them in a VectorStore.
//
// Initialisation is lazy: the first operation that needs the store
// prepares it. A failed initialisation is retried by the next caller.
// The existence check and insert of AddDocuments run under one mutex so
// overlapping syncs never index a message twice; stores also insert only
// absent IDs.
type VectorIndex struct {
	store      driven.VectorStore
	embedder   driven.EmbeddingService
	collection string
	metrics    *metrics.Metrics

	initMu      sync.Mutex
	initialized bool

	writeMu sync.Mutex
}

// NewVectorIndex creates an index over store using embedder for both
// documents and queries.
func NewVectorIndex(
	store driven.VectorStore,
	embedder driven.EmbeddingService,
	collection string,
	m *metrics.Metrics,
) *VectorIndex {
	return &VectorIndex{
		store:      store,
		embedder:   embedder,
		collection: collection,
		metrics:    m,
	}
}

// Initialize prepares the store for the embedder's dimension.
func (x *VectorIndex) Initialize(ctx context.Context) error {
	x.initMu.Lock()
	defer x.initMu.Unlock()

	if x.initialized {
		return nil
	}
	if x.store == nil || x.embedder == nil {
		return fmt.Errorf("%w: index has no store or embedder", domain.ErrBackendUnavailable)
	}

	logger.Debug("Initialising %s with %s (%d dims)", x.store.Name(), x.embedder.ModelName(), x.embedder.Dimensions())
	if err := x.store.Init(ctx, x.embedder.Dimensions()); err != nil {
		return fmt.Errorf("%w: initialising %s: %w", domain.ErrBackendUnavailable, x.store.Name(), err)
	}
	x.initialized = true
	return nil
}

func (x *VectorIndex) isInitialized() bool {
	x.initMu.Lock()
	defer x.initMu.Unlock()
	return x.initialized
}

// AddDocuments indexes messages whose ID is not yet stored and returns
// how many were added. Within one batch the first message with an ID wins.
func (x *VectorIndex) AddDocuments(ctx context.Context, messages []domain.Message) (int, error) {
	if len(messages) == 0 {
		return 0, domain.Validationf("no messages to index")
	}
	for i := range messages {
		if err := messages[i].Validate(); err != nil {
			return 0, fmt.Errorf("message %d: %w", i, err)
		}
	}
	if err := x.Initialize(ctx); err != nil {
		return 0, err
	}

	batch := uniqueByID(messages)
	ids := make([]string, len(batch))
	for i := range batch {
		ids[i] = batch[i].ID
	}

	x.writeMu.Lock()
	defer x.writeMu.Unlock()

	existing, err := x.store.Exists(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("checking existing documents: %w", err)
	}

	fresh := make([]domain.Message, 0, len(batch))
	for i := range batch {
		if !existing[batch[i].ID] {
			fresh = append(fresh, batch[i])
		}
	}
	if len(fresh) == 0 {
		logger.Debug("All %d messages already indexed", len(batch))
		return 0, nil
	}

	texts := make([]string, len(fresh))
	for i := range fresh {
		texts[i] = fresh[i].EmbeddingText()
	}
	vectors, err := x.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding messages: %w", err)
	}
	if len(vectors) != len(fresh) {
		return 0, fmt.Errorf("%w: embedder returned %d vectors for %d texts",
			domain.ErrBackendUnavailable, len(vectors), len(fresh))
	}

	docs := make([]domain.IndexedDocument, len(fresh))
	for i := range fresh {
		docs[i] = ToIndexedDocument(&fresh[i], vectors[i])
	}

	added, err := x.store.Insert(ctx, docs)
	if err != nil {
		return 0, fmt.Errorf("storing documents: %w", err)
	}
	logger.Info("Indexed %d new of %d messages", added, len(messages))
	return added, nil
}

// Query returns up to limit results for text, best first. Results with
// equal scores are ordered most recently indexed first.
func (x *VectorIndex) Query(
	ctx context.Context,
	text string,
	limit int,
	filter domain.MetadataFilter,
) ([]domain.RankedResult, error) {
	if limit < 1 {
		return nil, domain.Validationf("limit must be at least 1, got %d", limit)
	}
	if strings.TrimSpace(text) == "" {
		return nil, domain.Validationf("query text is required")
	}
	if err := x.Initialize(ctx); err != nil {
		return nil, err
	}
	x.metrics.QueryServed()

	vec, err := x.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := x.store.Search(ctx, vec, limit, filter.Active())
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", x.store.Name(), err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		si, sj := Score(hits[i].Distance), Score(hits[j].Distance)
		if si != sj {
			return si > sj
		}
		return hits[i].Seq > hits[j].Seq
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}

	results := make([]domain.RankedResult, len(hits))
	for i, h := range hits {
		results[i] = domain.RankedResult{
			DocID:    h.Document.DocID,
			Content:  h.Document.Content,
			Metadata: h.Document.Metadata,
			Score:    Score(h.Distance),
		}
	}
	logger.Debug("Query %q returned %d results", text, len(results))
	return results, nil
}

// Stats describes the index. Backend problems are reported in the Error
// field with zero counts.
func (x *VectorIndex) Stats(ctx context.Context) domain.IndexStats {
	stats := domain.IndexStats{CollectionName: x.collection}
	if x.embedder != nil {
		stats.EmbeddingModel = x.embedder.ModelName()
		stats.Dimensions = x.embedder.Dimensions()
	}
	if x.store != nil {
		stats.Backend = x.store.Name()
	}

	if err := x.Initialize(ctx); err != nil {
		stats.Error = err.Error()
		return stats
	}
	stats.Initialized = true

	count, err := x.store.Count(ctx)
	if err != nil {
		stats.Error = err.Error()
		return stats
	}
	stats.TotalDocuments = count
	return stats
}

// Close releases the store and embedder.
func (x *VectorIndex) Close() error {
	var storeErr, embedErr error
	if x.store != nil {
		storeErr = x.store.Close()
	}
	if x.embedder != nil {
		embedErr = x.embedder.Close()
	}
	if storeErr != nil {
		return storeErr
	}
	return embedErr
}

// Score maps a cosine distance to a similarity in [0, 1].
func Score(distance float64) float64 {
	s := 1 - distance
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// ToIndexedDocument projects a message into the index.
func ToIndexedDocument(m *domain.Message, embedding []float32) domain.IndexedDocument {
	meta := map[string]string{
		domain.MetaSubject:    m.Subject,
		domain.MetaSender:     m.Sender,
		domain.MetaRecipients: strings.Join(m.Recipients, ","),
		domain.MetaSourceID:   m.SourceID,
		domain.MetaLabels:     strings.Join(m.Labels, ","),
		domain.MetaOriginalID: m.ID,
		domain.MetaDate:       "",
	}
	if !m.Timestamp.IsZero() {
		meta[domain.MetaDate] = m.Timestamp.UTC().Format(time.RFC3339)
	}

	return domain.IndexedDocument{
		DocID:     m.ID,
		Content:   fmt.Sprintf("Subject: %s\n\nFrom: %s\n\nContent: %s", m.Subject, m.Sender, m.Body),
		Embedding: embedding,
		Metadata:  meta,
	}
}

func uniqueByID(messages []domain.Message) []domain.Message {
	seen := make(map[string]struct{}, len(messages))
	out := make([]domain.Message, 0, len(messages))
	for i := range messages {
		if _, ok := seen[messages[i].ID]; ok {
			logger.Warn("Duplicate message id %s in batch, keeping the first", messages[i].ID)
			continue
		}
		seen[messages[i].ID] = struct{}{}
		out = append(out, messages[i])
	}
	return out
}
