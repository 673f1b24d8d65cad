package connectors

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	_ "github.com/emersion/go-message/charset" // non-UTF-8 charsets
	"github.com/emersion/go-message/mail"
)

// ParsedMail is the subset of an RFC 5322 message sources care about.
type ParsedMail struct {
	Subject   string
	From      string
	To        []string
	Date      time.Time
	Body      string
	MessageID string
}

// ParseMail reads an RFC 5322 message. The body is the first text/plain
// part, falling back to the text of the first text/html part.
func ParseMail(r io.Reader) (*ParsedMail, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("reading message: %w", err)
	}
	defer mr.Close()

	out := &ParsedMail{}
	out.Subject, _ = mr.Header.Subject() //nolint:errcheck // raw value kept on decode error
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		out.From = from[0].Address
	}
	if to, err := mr.Header.AddressList("To"); err == nil {
		for _, a := range to {
			out.To = append(out.To, a.Address)
		}
	}
	if date, err := mr.Header.Date(); err == nil {
		out.Date = date
	}
	out.MessageID, _ = mr.Header.MessageID() //nolint:errcheck // optional

	var plain, html string
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading part: %w", err)
		}

		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		content, err := io.ReadAll(p.Body)
		if err != nil {
			return nil, fmt.Errorf("reading part body: %w", err)
		}
		ct, _, _ := h.ContentType() //nolint:errcheck // empty means text/plain
		switch ct {
		case "", "text/plain":
			if plain == "" {
				plain = string(content)
			}
		case "text/html":
			if html == "" {
				html = string(content)
			}
		}
	}

	if plain != "" {
		out.Body = strings.TrimSpace(plain)
	} else {
		out.Body = HTMLToText(html)
	}
	return out, nil
}
