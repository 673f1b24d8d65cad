package domain

import (
	"sort"
	"strings"
)

// Metadata keys written for every indexed message.
const (
	MetaSubject    = "subject"
	MetaSender     = "sender"
	MetaRecipients = "recipients"
	MetaDate       = "date"
	MetaSourceID   = "source_id"
	MetaLabels     = "labels"
	MetaOriginalID = "original_id"
)

// IndexedDocument is a message as stored in the vector index.
type IndexedDocument struct {
	// DocID equals the message ID.
	DocID string

	// Content is the human-readable rendering used for citations.
	Content string

	// Embedding is derived deterministically from subject, sender and body.
	Embedding []float32

	// Metadata holds the scalar fields used for filtering.
	Metadata map[string]string
}

// RankedResult is a query hit. Never persisted.
type RankedResult struct {
	DocID    string
	Content  string
	Metadata map[string]string
	// Score is in [0, 1]; higher is more similar.
	Score float64
}

// MetadataFilter is a conjunction of equality predicates over metadata.
// Entries with empty values are ignored.
type MetadataFilter map[string]string

// Active returns the non-empty predicates.
func (f MetadataFilter) Active() MetadataFilter {
	if len(f) == 0 {
		return nil
	}
	out := make(MetadataFilter, len(f))
	for k, v := range f {
		if k != "" && v != "" {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Matches reports whether metadata satisfies every active predicate.
func (f MetadataFilter) Matches(metadata map[string]string) bool {
	for k, v := range f.Active() {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

// Keys returns the active predicate keys in sorted order.
func (f MetadataFilter) Keys() []string {
	active := f.Active()
	keys := make([]string, 0, len(active))
	for k := range active {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParseFilter parses "key=value" pairs into a filter.
func ParseFilter(pairs []string) (MetadataFilter, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	f := make(MetadataFilter, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, Validationf("filter %q must be key=value", p)
		}
		f[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return f, nil
}

// IndexStats describes the vector index. Stats never fail; problems
// are reported in Error with zeroed counts.
type IndexStats struct {
	TotalDocuments int    `json:"total_documents"`
	CollectionName string `json:"collection_name"`
	EmbeddingModel string `json:"embedding_model"`
	Backend        string `json:"backend"`
	Dimensions     int    `json:"dimensions"`
	Initialized    bool   `json:"is_initialized"`
	Error          string `json:"error,omitempty"`
}
