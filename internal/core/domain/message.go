package domain

import (
	"strings"
	"time"
)

// Message is a single personal message fetched from a source.
// Messages are created at fetch time and never mutated.
type Message struct {
	// ID is stable and unique within its source. It is the deduplication key.
	ID string

	// Subject is the message subject line.
	Subject string

	// Sender is the originating address.
	Sender string

	// Recipients are the destination addresses in header order.
	Recipients []string

	// Timestamp is when the message was sent.
	Timestamp time.Time

	// Body is the plain text body.
	Body string

	// Labels are provider labels or folders. Duplicates are dropped by NewMessage.
	Labels []string

	// SourceID is the source that produced this message.
	SourceID string
}

// NewMessage builds a Message, normalising labels to set semantics while
// preserving first-seen order.
func NewMessage(id, subject, sender string, recipients []string, ts time.Time,
	body string, labels []string, sourceID string) Message {
	return Message{
		ID:         id,
		Subject:    subject,
		Sender:     sender,
		Recipients: append([]string(nil), recipients...),
		Timestamp:  ts,
		Body:       body,
		Labels:     UniqueStrings(labels),
		SourceID:   sourceID,
	}
}

// Validate checks the message can be indexed.
func (m *Message) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return Validationf("message id is required")
	}
	return nil
}

// EmbeddingText is the text an embedding is derived from.
func (m *Message) EmbeddingText() string {
	return m.Subject + "\n" + m.Sender + "\n" + m.Body
}

// UniqueStrings drops empty and repeated values, keeping first-seen order.
func UniqueStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
