package domain

import "time"

// Intent is the coarse category a question is routed to.
type Intent string

const (
	IntentTimeBased Intent = "time_based"
	IntentEvent     Intent = "event"
	IntentFactual   Intent = "factual"
	IntentGeneral   Intent = "general"
	// IntentFallback marks answers composed without index evidence.
	IntentFallback Intent = "fallback"
)

// Citation attributes part of an answer to an indexed document.
type Citation struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
	Score    float64           `json:"relevance_score"`
}

// Answer is the synthesised reply to a question.
type Answer struct {
	Response       string        `json:"response"`
	Sources        []Citation    `json:"sources"`
	ProcessingTime time.Duration `json:"-"`
	Intent         Intent        `json:"intent"`
}

// ProcessingSeconds returns ProcessingTime in seconds.
func (a Answer) ProcessingSeconds() float64 {
	return a.ProcessingTime.Seconds()
}
