package connectors

import (
	"html"
	"regexp"
	"strings"
)

var (
	invisibleBlocks = regexp.MustCompile(`(?is)<(script|style|noscript|head|svg)\b[^>]*>.*?</(script|style|noscript|head|svg)>`)
	htmlComment     = regexp.MustCompile(`(?s)<!--.*?-->`)
	lineBreakTags   = regexp.MustCompile(`(?i)<(br|hr)\s*/?>|</?(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)[^>]*>`)
	anyTag          = regexp.MustCompile(`<[^>]+>`)
	runOfBlanks     = regexp.MustCompile(`[ \t\x{00a0}]+`)
)

// HTMLToText renders an HTML mail body as plain text. Block elements
// become line breaks, invisible elements are dropped and entities are
// decoded. Empty lines are removed.
func HTMLToText(s string) string {
	s = invisibleBlocks.ReplaceAllString(s, "")
	s = htmlComment.ReplaceAllString(s, "")
	s = lineBreakTags.ReplaceAllString(s, "\n")
	s = anyTag.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)

	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(runOfBlanks.ReplaceAllString(line, " "))
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
