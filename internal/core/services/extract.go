package services

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	timePattern     = regexp.MustCompile(`(?i)\b\d{1,2}(?:[:.]\d{2})?\s*[ap]m\b`)
	atPattern       = regexp.MustCompile(`(?i)\bat\s+`)
	sentenceEnd     = regexp.MustCompile(`[.!?;\n]`)
	nestedAt        = regexp.MustCompile(`(?i)\s+at\s+`)
	sentenceSplit   = regexp.MustCompile(`[.!?]+(?:\s+|$)|\n+`)
	contentSections = regexp.MustCompile(`(?m)^(?:Subject|From):.*$`)
)

// ExtractTime returns the first clock time such as "3pm" or "10:00 am".
func ExtractTime(text string) (string, bool) {
	m := timePattern.FindString(text)
	return m, m != ""
}

// ExtractLocation returns the first phrase after the word "at" that does
// not start with a digit, cut at sentence punctuation.
func ExtractLocation(text string) (string, bool) {
	for _, loc := range atPattern.FindAllStringIndex(text, -1) {
		rest := text[loc[1]:]
		if end := sentenceEnd.FindStringIndex(rest); end != nil {
			rest = rest[:end[0]]
		}
		if next := nestedAt.FindStringIndex(rest); next != nil {
			rest = rest[:next[0]]
		}
		phrase := strings.TrimSpace(strings.TrimRight(rest, ",:- "))
		if phrase == "" || unicode.IsDigit([]rune(phrase)[0]) {
			continue
		}
		return phrase, true
	}
	return "", false
}

// messageBody returns the Content section of an indexed document, or the
// whole text when it has none.
func messageBody(content string) string {
	if _, body, ok := strings.Cut(content, "Content:"); ok {
		return strings.TrimSpace(body)
	}
	return strings.TrimSpace(contentSections.ReplaceAllString(content, ""))
}

// sentences splits text into trimmed, non-empty sentences.
func sentences(text string) []string {
	var out []string
	for _, s := range sentenceSplit.Split(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

var queryNoise = map[string]bool{
	"what": true, "where": true, "when": true, "who": true, "how": true, "the": true,
	"and": true, "are": true, "for": true, "you": true, "was": true, "any": true, "have": true,
}

// queryTerms returns the lower-cased question words worth matching.
func queryTerms(query string) []string {
	var out []string
	for _, f := range strings.Fields(strings.ToLower(query)) {
		f = strings.TrimFunc(f, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		if len(f) > 2 && !queryNoise[f] {
			out = append(out, f)
		}
	}
	return out
}

// relevantSentences returns up to n sentences mentioning any term.
func relevantSentences(text string, terms []string, n int) []string {
	var out []string
	for _, s := range sentences(text) {
		lower := strings.ToLower(s)
		for _, t := range terms {
			if strings.Contains(lower, t) {
				out = append(out, s)
				break
			}
		}
		if len(out) == n {
			break
		}
	}
	return out
}
