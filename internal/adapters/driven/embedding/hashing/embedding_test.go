package hashing

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Where is the meeting?", []string{"meet"}},
		{"Team Meeting Friday 3pm", []string{"team", "meet", "friday", "3pm"}},
		{"What's happening this weekend", []string{"weekend"}},
		{"coach.mike@sportsclub.com", []string{"coach", "mike", "sportsclub"}},
		{"sarah@gmail.com", []string{"sarah"}},
		{"parties and practices", []string{"party", "practice"}},
		{"", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.in))
		})
	}
}

func TestEmbed_Deterministic(t *testing.T) {
	s := NewEmbeddingService(Config{})
	ctx := context.Background()

	a, err := s.Embed(ctx, "Football practice on Sunday")
	require.NoError(t, err)
	b, err := s.Embed(ctx, "Football practice on Sunday")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, DefaultDimensions)
	assert.InDelta(t, 1.0, cosine(a, a), 1e-6)
}

func TestEmbed_SharedVocabularyIsCloser(t *testing.T) {
	s := NewEmbeddingService(Config{})
	ctx := context.Background()

	doc, err := s.Embed(ctx, "Team Meeting\nboss@work.com\nTeam Meeting Friday 3pm at the office")
	require.NoError(t, err)
	query, err := s.Embed(ctx, "where is the meeting")
	require.NoError(t, err)
	other, err := s.Embed(ctx, "birthday party balloons")
	require.NoError(t, err)

	related := cosine(doc, query)
	assert.Greater(t, related, 0.3)
	assert.Greater(t, related, cosine(other, query))
}

func TestEmbed_TitleOutweighsBody(t *testing.T) {
	s := NewEmbeddingService(Config{})
	ctx := context.Background()

	query, err := s.Embed(ctx, "weekend")
	require.NoError(t, err)
	inTitle, err := s.Embed(ctx, "Weekend practice\ncoach bring boots water kit")
	require.NoError(t, err)
	inBody, err := s.Embed(ctx, "Practice\ncoach bring boots water kit weekend")
	require.NoError(t, err)

	assert.Greater(t, cosine(inTitle, query), cosine(inBody, query))
}

func TestEmbed_SubjectMatchClearsStrictThreshold(t *testing.T) {
	s := NewEmbeddingService(Config{})
	ctx := context.Background()

	doc, err := s.Embed(ctx, "Football Practice - This Weekend\ncoach.mike@sportsclub.com\n"+
		"Reminder: Football practice is this Sunday at 10am at the sports center. "+
		"Please bring football boots, water bottle, and team kit. "+
		"We'll have warm-ups starting at 9:45am. Coach Mike")
	require.NoError(t, err)
	query, err := s.Embed(ctx, "what is happening this weekend")
	require.NoError(t, err)

	assert.GreaterOrEqual(t, cosine(doc, query), 0.3)
}

func TestEmbed_EmptyTitleUsesBody(t *testing.T) {
	s := NewEmbeddingService(Config{})
	ctx := context.Background()

	withBlankTitle, err := s.Embed(ctx, "\nfootball practice")
	require.NoError(t, err)
	plain, err := s.Embed(ctx, "football practice")
	require.NoError(t, err)

	assert.InDelta(t, 1.0, cosine(withBlankTitle, plain), 1e-6)
}

func TestEmbed_OnlyStopwords(t *testing.T) {
	s := NewEmbeddingService(Config{Dimensions: 16})

	vec, err := s.Embed(context.Background(), "what is it")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 16), vec)

	vec, err = s.Embed(context.Background(), "what is it\ngmail.com")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 16), vec)
}

func TestEmbed_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEmbeddingService(Config{}).EmbedBatch(ctx, []string{"x"})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestMetadata(t *testing.T) {
	s := NewEmbeddingService(Config{Dimensions: 128})

	assert.Equal(t, 128, s.Dimensions())
	assert.Equal(t, "hashing-fnv1a-128", s.ModelName())
	assert.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, s.Close())
}
