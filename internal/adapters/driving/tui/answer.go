package tui

import (
	"fmt"
	"strings"

	"github.com/custodia-labs/homeqa/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/homeqa/internal/core/domain"
)

// RenderAnswer formats an answer and its citations for a terminal.
func RenderAnswer(a domain.Answer, s *styles.Styles) string {
	if s == nil {
		s = styles.DefaultStyles()
	}

	var b strings.Builder
	b.WriteString(s.Answer.Render(strings.TrimSpace(a.Response)) + "\n")

	if len(a.Sources) > 0 {
		b.WriteString("\n" + s.Subtitle.Render("Sources") + "\n")
		for i, c := range a.Sources {
			subject := c.Metadata[domain.MetaSubject]
			if subject == "" {
				subject = "(no subject)"
			}
			line := fmt.Sprintf("[%d] %s", i+1, subject)
			if sender := c.Metadata[domain.MetaSender]; sender != "" {
				line += " from " + sender
			}
			line += fmt.Sprintf(" (%.3f)", c.Score)
			b.WriteString(s.Citation.Render(line) + "\n")
		}
	}

	b.WriteString(s.Muted.Render(fmt.Sprintf("%s in %.2fs", a.Intent, a.ProcessingSeconds())) + "\n")
	return b.String()
}
