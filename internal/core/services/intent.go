package services

import (
	"strings"

	"github.com/custodia-labs/homeqa/internal/core/domain"
)

// intentRule routes a question to a handler when any of its words occur
// in the lower-cased question.
type intentRule struct {
	intent domain.Intent
	tag    string
	words  []string
}

// intentRules are evaluated in order; the first match wins.
var intentRules = []intentRule{
	{intent: domain.IntentTimeBased, words: []string{"weekend", "saturday", "sunday", "today", "tomorrow", "this week"}},
	{intent: domain.IntentEvent, tag: "party", words: []string{"party", "birthday", "celebration"}},
	{intent: domain.IntentEvent, tag: "sports", words: []string{"football", "practice", "training", "sport"}},
}

var interrogatives = map[string]bool{"what": true, "where": true, "when": true, "who": true, "how": true}

// Minimum scores a result needs to be used by each handler.
const (
	strictThreshold  = 0.3
	lenientThreshold = 0.2
)

// Classification is the routing decision for a question.
type Classification struct {
	Intent domain.Intent
	// Tag narrows event questions ("party", "sports").
	Tag string
}

// Threshold returns the minimum score results must reach.
func (c Classification) Threshold() float64 {
	switch c.Intent {
	case domain.IntentTimeBased, domain.IntentFactual:
		return strictThreshold
	default:
		return lenientThreshold
	}
}

// Classify routes a question by keyword rules, falling back to factual
// for questions opening with an interrogative and general otherwise.
func Classify(query string) Classification {
	q := strings.ToLower(strings.TrimSpace(query))
	for _, rule := range intentRules {
		for _, w := range rule.words {
			if strings.Contains(q, w) {
				return Classification{Intent: rule.intent, Tag: rule.tag}
			}
		}
	}

	if fields := strings.Fields(q); len(fields) > 0 {
		first := strings.TrimFunc(fields[0], func(r rune) bool { return !isWordRune(r) })
		if interrogatives[first] {
			return Classification{Intent: domain.IntentFactual}
		}
	}
	return Classification{Intent: domain.IntentGeneral}
}

func isWordRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '\''
}
