package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/custodia-labs/homeqa/internal/adapters/driven/storage/vecmath"
	"github.com/custodia-labs/homeqa/internal/core/domain"
	"github.com/custodia-labs/homeqa/internal/core/ports/driven"
)

// vectorStore implements driven.VectorStore over the documents table.
type vectorStore struct {
	store      *Store
	collection string

	mu   sync.RWMutex
	dims int
}

var _ driven.VectorStore = (*vectorStore)(nil)

// Init registers the collection, or checks its dimension if it exists.
func (v *vectorStore) Init(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		return domain.Validationf("dimensions must be positive, got %d", dimensions)
	}
	_, err := v.store.db.ExecContext(ctx, `
		INSERT INTO collections (name, dimensions) VALUES (?, ?)
		ON CONFLICT(name) DO NOTHING
	`, v.collection, dimensions)
	if err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}

	var existing int
	err = v.store.db.QueryRowContext(ctx, "SELECT dimensions FROM collections WHERE name = ?", v.collection).Scan(&existing)
	if err != nil {
		return fmt.Errorf("reading collection: %w", err)
	}
	if existing != dimensions {
		return domain.Validationf("collection %s has dimension %d, not %d; choose another collection or embedding size",
			v.collection, existing, dimensions)
	}

	v.mu.Lock()
	v.dims = dimensions
	v.mu.Unlock()
	return nil
}

func (v *vectorStore) dimensions() (int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.dims == 0 {
		return 0, fmt.Errorf("%w: vector store not initialised", domain.ErrInvalidState)
	}
	return v.dims, nil
}

// Insert adds documents whose IDs are new, in one transaction.
func (v *vectorStore) Insert(ctx context.Context, docs []domain.IndexedDocument) (int, error) {
	dims, err := v.dimensions()
	if err != nil {
		return 0, err
	}
	for _, d := range docs {
		if len(d.Embedding) != dims {
			return 0, domain.Validationf("document %s has %d dimensions, expected %d", d.DocID, len(d.Embedding), dims)
		}
	}

	tx, err := v.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning insert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (collection, doc_id, content, embedding, metadata)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection, doc_id) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	added := 0
	for _, d := range docs {
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return 0, fmt.Errorf("marshalling metadata for %s: %w", d.DocID, err)
		}
		res, err := stmt.ExecContext(ctx, v.collection, d.DocID, d.Content, float32SliceToBytes(d.Embedding), string(meta))
		if err != nil {
			return 0, fmt.Errorf("inserting %s: %w", d.DocID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("inserting %s: %w", d.DocID, err)
		}
		added += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing insert: %w", err)
	}
	return added, nil
}

// Exists reports which IDs are stored.
func (v *vectorStore) Exists(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, v.collection)
	for _, id := range ids {
		args = append(args, id)
	}
	query := "SELECT doc_id FROM documents WHERE collection = ? AND doc_id IN (" +
		strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",") + ")"

	rows, err := v.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("checking documents: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning document id: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

// filterClause renders the filter as json_extract equality predicates.
func filterClause(filter domain.MetadataFilter) (string, []any, error) {
	var sb strings.Builder
	var args []any
	active := filter.Active()
	for _, key := range filter.Keys() {
		if strings.ContainsAny(key, `"\`) {
			return "", nil, domain.Validationf("invalid filter key %q", key)
		}
		sb.WriteString(" AND json_extract(metadata, ?) = ?")
		args = append(args, `$."`+key+`"`, active[key])
	}
	return sb.String(), args, nil
}

// Search ranks every candidate matching filter by cosine distance.
func (v *vectorStore) Search(ctx context.Context, query []float32, k int, filter domain.MetadataFilter) ([]driven.VectorHit, error) {
	if k < 1 {
		return nil, domain.Validationf("k must be at least 1, got %d", k)
	}
	if _, err := v.dimensions(); err != nil {
		return nil, err
	}

	clause, fargs, err := filterClause(filter)
	if err != nil {
		return nil, err
	}
	args := append([]any{v.collection}, fargs...)
	rows, err := v.store.db.QueryContext(ctx,
		"SELECT seq, doc_id, content, embedding, metadata FROM documents WHERE collection = ?"+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var hits []driven.VectorHit
	for rows.Next() {
		var (
			hit  driven.VectorHit
			blob []byte
			meta string
		)
		if err := rows.Scan(&hit.Seq, &hit.Document.DocID, &hit.Document.Content, &blob, &meta); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &hit.Document.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshalling metadata for %s: %w", hit.Document.DocID, err)
		}
		hit.Document.Embedding = bytesToFloat32Slice(blob)
		hit.Distance = vecmath.CosineDistance(query, hit.Document.Embedding)
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	if hits == nil {
		return []driven.VectorHit{}, nil
	}
	return vecmath.Rank(hits, k), nil
}

// Count returns the number of documents in the collection.
func (v *vectorStore) Count(ctx context.Context) (int, error) {
	var n int
	err := v.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE collection = ?", v.collection).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}

// Delete removes a document.
func (v *vectorStore) Delete(ctx context.Context, id string) error {
	_, err := v.store.db.ExecContext(ctx, "DELETE FROM documents WHERE collection = ? AND doc_id = ?", v.collection, id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

// Name returns "sqlite:<collection>".
func (v *vectorStore) Name() string { return "sqlite:" + v.collection }

// Close is a no-op; the Store owns the connection.
func (v *vectorStore) Close() error { return nil }
