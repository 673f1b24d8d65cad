// Package hashing provides a deterministic, offline embedding service.
//
// Text is tokenised, lightly stemmed and stripped of stopwords. Each token
// is hashed (FNV-1a) into one of a fixed number of buckets with a hash
// derived sign, weighted by sublinear term frequency, and the vector is L2
// normalised. Texts sharing vocabulary get a positive cosine similarity.
//
// The first line of a multi-line text is treated as its title and embedded
// separately from the rest, so a message subject outweighs a long body.
// Mail address fragments such as "com" and "gmail" are stopwords.
package hashing

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/custodia-labs/homeqa/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// DefaultDimensions is the default vector size.
const DefaultDimensions = 384

// modelPrefix starts every model name; the dimension is appended.
const modelPrefix = "hashing-fnv1a"

// Section weights applied before the combined vector is renormalised.
const (
	titleWeight = 0.8
	bodyWeight  = 0.6
)

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`a an and are as at be been but by can could did do does for
		from had has have he her him his i if in into is it its me my of on or our she so that the
		their them then there these they this those to too us was we were will with would you your
		what where when who whom which why how s t
		about any anything something tell know find show going happen happening
		com org net www http https gmail googlemail yahoo hotmail outlook`) {
		stopwords[w] = struct{}{}
	}
}

// Config holds configuration for the hashing embedder.
type Config struct {
	// Dimensions is the vector size (default 384).
	Dimensions int
}

// EmbeddingService embeds text by feature hashing.
type EmbeddingService struct {
	dims int
}

// NewEmbeddingService creates a hashing embedder.
func NewEmbeddingService(cfg Config) *EmbeddingService {
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	return &EmbeddingService{dims: cfg.Dimensions}
}

// Embed returns the normalised feature vector for text. Text with no
// indexable tokens embeds to the zero vector.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	title, body, multi := strings.Cut(text, "\n")
	if !multi {
		return s.output(s.section(text)), nil
	}

	t, b := s.section(title), s.section(body)
	switch {
	case t == nil:
		return s.output(b), nil
	case b == nil:
		return s.output(t), nil
	}
	vec := make([]float64, s.dims)
	for i := range vec {
		vec[i] = titleWeight*t[i] + bodyWeight*b[i]
	}
	return s.output(normalize(vec)), nil
}

// section returns the unit feature vector of text, or nil when no token
// survives tokenisation.
func (s *EmbeddingService) section(text string) []float64 {
	counts := make(map[string]int)
	for _, tok := range Tokenize(text) {
		counts[tok]++
	}

	vec := make([]float64, s.dims)
	for tok, n := range counts {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok)) //nolint:errcheck // hash writes never fail
		sum := h.Sum64()
		idx := int(sum % uint64(s.dims))
		weight := 1 + math.Log(float64(n))
		if sum>>63 == 1 {
			weight = -weight
		}
		vec[idx] += weight
	}
	return normalize(vec)
}

// normalize scales vec to unit length in place. A zero vector yields nil.
func normalize(vec []float64) []float64 {
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return nil
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// output converts vec for callers; nil becomes the zero vector.
func (s *EmbeddingService) output(vec []float64) []float32 {
	out := make([]float32, s.dims)
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}

// EmbedBatch embeds each text in turn.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := s.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the vector size.
func (s *EmbeddingService) Dimensions() int { return s.dims }

// ModelName identifies the scheme and size, e.g. "hashing-fnv1a-384".
func (s *EmbeddingService) ModelName() string {
	return fmt.Sprintf("%s-%d", modelPrefix, s.dims)
}

// Ping always succeeds.
func (s *EmbeddingService) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *EmbeddingService) Close() error { return nil }

// Tokenize lower-cases text, splits on anything but letters and digits,
// drops stopwords and stems what remains.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, stop := stopwords[f]; stop || len(f) < 2 {
			continue
		}
		out = append(out, stem(f))
	}
	return out
}

// stem strips a few common English suffixes. It only needs to map
// inflections onto a shared form, not produce real words.
func stem(w string) string {
	switch {
	case len(w) > 4 && strings.HasSuffix(w, "ies"):
		return w[:len(w)-3] + "y"
	case len(w) > 5 && strings.HasSuffix(w, "ing"):
		return w[:len(w)-3]
	case len(w) > 4 && strings.HasSuffix(w, "ed") && !strings.HasSuffix(w, "eed"):
		return w[:len(w)-2]
	case len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") && !strings.HasSuffix(w, "us"):
		return w[:len(w)-1]
	}
	return w
}
