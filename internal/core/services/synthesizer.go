package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/custodia-labs/homeqa/internal/core/domain"
	"github.com/custodia-labs/homeqa/internal/core/ports/driving"
	"github.com/custodia-labs/homeqa/internal/logger"
	"github.com/custodia-labs/homeqa/internal/metrics"
)

// Ensure Synthesizer implements the interface.
var _ driving.AnswerService = (*Synthesizer)(nil)

// DefaultTopK is how many passages an answer is composed from.
const DefaultTopK = 5

const (
	maxCitations      = 3
	maxCitationLength = 200
	truncationMarker  = "..."
)

// Fixed replies.
const (
	ErrorResponse      = "I encountered an error processing your request. Please try again."
	EmptyQueryResponse = "Please ask a question about your messages."
)

// fallbacks are checked in order against the lower-cased question.
var fallbacks = []struct{ keyword, text string }{
	{"weekend", "I didn't find specific weekend plans in your emails. " +
		"Try connecting more email accounts or syncing recent messages."},
	{"party", "I don't see any party invitations in your current emails. " +
		"Make sure your email accounts are connected and synced."},
	{"football", "No football-related activities found in your emails. " +
		"Check if your sports emails are being synced."},
}

// Synthesizer answers questions from ranked passages of the index.
type Synthesizer struct {
	index   driving.IndexService
	topK    int
	metrics *metrics.Metrics
}

// NewSynthesizer creates a synthesizer over index.
func NewSynthesizer(index driving.IndexService, topK int, m *metrics.Metrics) *Synthesizer {
	if topK < 1 {
		topK = DefaultTopK
	}
	return &Synthesizer{index: index, topK: topK, metrics: m}
}

// Ask composes an answer. It never fails: empty questions, missing
// evidence and internal errors all produce a valid reply.
func (s *Synthesizer) Ask(ctx context.Context, query string, filter domain.MetadataFilter) (answer domain.Answer) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Answer for %q panicked: %v", query, r)
			answer = errorAnswer()
		}
		answer.ProcessingTime = time.Since(start)
		s.metrics.AnswerServed(string(answer.Intent), answer.ProcessingTime)
	}()

	if strings.TrimSpace(query) == "" {
		return domain.Answer{Response: EmptyQueryResponse, Sources: []domain.Citation{}, Intent: domain.IntentFallback}
	}

	results, err := s.index.Query(ctx, query, s.topK, filter)
	if err != nil {
		logger.Error("Answer for %q: %v", query, err)
		return errorAnswer()
	}
	if len(results) == 0 {
		logger.Debug("No passages for %q", query)
		return fallbackAnswer(query)
	}

	c := Classify(query)
	kept := aboveThreshold(results, c.Threshold())
	logger.Debug("Question %q classified %s, %d of %d passages kept", query, c.Intent, len(kept), len(results))
	if len(kept) == 0 {
		return fallbackAnswer(query)
	}

	var text string
	var used []domain.RankedResult
	switch c.Intent {
	case domain.IntentTimeBased:
		text, used = timeBasedResponse(kept)
	case domain.IntentEvent:
		text, used = eventResponse(kept, c.Tag)
	case domain.IntentFactual:
		text, used = factualResponse(query, kept)
	default:
		text, used = generalResponse(kept)
	}
	if text == "" {
		return fallbackAnswer(query)
	}

	return domain.Answer{Response: text, Sources: Citations(used), Intent: c.Intent}
}

// Search returns ranked passages for query.
func (s *Synthesizer) Search(ctx context.Context, query string, limit int) ([]domain.RankedResult, error) {
	return s.index.Query(ctx, query, limit, nil)
}

// IndexStats describes the underlying index.
func (s *Synthesizer) IndexStats(ctx context.Context) domain.IndexStats {
	return s.index.Stats(ctx)
}

func errorAnswer() domain.Answer {
	return domain.Answer{Response: ErrorResponse, Sources: []domain.Citation{}, Intent: domain.IntentFallback}
}

func fallbackAnswer(query string) domain.Answer {
	return domain.Answer{Response: FallbackResponse(query), Sources: []domain.Citation{}, Intent: domain.IntentFallback}
}

// FallbackResponse returns the canned reply used when no passage is good
// enough to answer query.
func FallbackResponse(query string) string {
	q := strings.ToLower(query)
	for _, f := range fallbacks {
		if strings.Contains(q, f.keyword) {
			return f.text
		}
	}
	return fmt.Sprintf("I understand you're asking about '%s'. "+
		"Connect and sync your email accounts to get personalized answers based on your real messages!",
		strings.TrimSpace(query))
}

func aboveThreshold(results []domain.RankedResult, threshold float64) []domain.RankedResult {
	var out []domain.RankedResult
	for _, r := range results {
		if r.Score >= threshold {
			out = append(out, r)
		}
	}
	return out
}

func metaOr(r domain.RankedResult, key, def string) string {
	if v := strings.TrimSpace(r.Metadata[key]); v != "" {
		return v
	}
	return def
}

func timeBasedResponse(kept []domain.RankedResult) (string, []domain.RankedResult) {
	used := kept[:min(len(kept), maxCitations)]
	parts := []string{"Based on your emails, here's what I found for your query:\n"}
	for i, r := range used {
		parts = append(parts, fmt.Sprintf("%d. **%s**", i+1, metaOr(r, domain.MetaSubject, "Event")))
		if t, ok := ExtractTime(r.Content); ok {
			parts = append(parts, "   • Time: "+t)
		}
		if loc, ok := ExtractLocation(messageBody(r.Content)); ok {
			parts = append(parts, "   • Location: "+loc)
		}
		parts = append(parts, "   • From: "+metaOr(r, domain.MetaSender, "Unknown"), "")
	}
	return strings.Join(parts, "\n"), used
}

func eventResponse(kept []domain.RankedResult, tag string) (string, []domain.RankedResult) {
	best := kept[0]
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n\n", metaOr(best, domain.MetaSubject, "Event Details"))
	for _, line := range strings.Split(messageBody(best.Content), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			b.WriteString(line + "\n")
		}
	}
	fmt.Fprintf(&b, "\n*Source: Email from %s*", metaOr(best, domain.MetaSender, "Unknown"))

	used := kept[:1]
	if len(kept) > 1 {
		related := kept[1]
		heading := "Related information"
		if tag != "" {
			heading = fmt.Sprintf("Related %s information", tag)
		}
		fmt.Fprintf(&b, "\n\n**%s:**\n• %s\n", heading, metaOr(related, domain.MetaSubject, "Related event"))
		used = kept[:2]
	}
	return b.String(), used
}

func factualResponse(query string, kept []domain.RankedResult) (string, []domain.RankedResult) {
	best := kept[0]
	// The subject often carries the fact; sender lines never do.
	text := metaOr(best, domain.MetaSubject, "") + "\n" + messageBody(best.Content)
	relevant := relevantSentences(text, queryTerms(query), 2)
	if len(relevant) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("Based on your emails:\n\n")
	b.WriteString(strings.Join(relevant, ". ") + ".")

	var hints []string
	if t, ok := ExtractTime(best.Content); ok {
		hints = append(hints, "• Time: "+t)
	}
	if loc, ok := ExtractLocation(messageBody(best.Content)); ok {
		hints = append(hints, "• Location: "+loc)
	}
	if len(hints) > 0 {
		b.WriteString("\n\n" + strings.Join(hints, "\n"))
	}

	fmt.Fprintf(&b, "\n\n*From: %s by %s*",
		metaOr(best, domain.MetaSubject, "Email"), metaOr(best, domain.MetaSender, "Unknown"))
	return b.String(), kept[:1]
}

func generalResponse(kept []domain.RankedResult) (string, []domain.RankedResult) {
	used := kept[:min(len(kept), 2)]
	var b strings.Builder
	b.WriteString("I found some relevant information:\n\n")
	for i, r := range used {
		fmt.Fprintf(&b, "%d. **%s**\n", i+1, metaOr(r, domain.MetaSubject, "Information"))
		if s := sentences(messageBody(r.Content)); len(s) > 0 {
			fmt.Fprintf(&b, "   %s.\n\n", s[0])
		}
	}
	return strings.TrimRight(b.String(), "\n"), used
}

// Citations converts results into at most three citations with content
// truncated to 200 characters and scores rounded to three decimals. Ask
// passes only the results the chosen response handler used, so retrieved
// results the answer does not draw on are never cited.
func Citations(results []domain.RankedResult) []domain.Citation {
	out := make([]domain.Citation, 0, min(len(results), maxCitations))
	for _, r := range results[:min(len(results), maxCitations)] {
		content := r.Content
		if runes := []rune(content); len(runes) > maxCitationLength {
			content = string(runes[:maxCitationLength]) + truncationMarker
		}
		meta := make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			meta[k] = v
		}
		out = append(out, domain.Citation{
			Content:  content,
			Metadata: meta,
			Score:    math.Round(r.Score*1000) / 1000,
		})
	}
	return out
}
