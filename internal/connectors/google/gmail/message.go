package gmail

import (
	"encoding/base64"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"google.golang.org/api/gmail/v1"

	"github.com/custodia-labs/homeqa/internal/connectors"
	"github.com/custodia-labs/homeqa/internal/core/domain"
)

// IDPrefix prefixes Gmail message IDs.
const IDPrefix = "gmail_"

// ToMessage converts a full-format Gmail message.
func ToMessage(msg *gmail.Message, sourceID string) domain.Message {
	var subject, sender, date string
	var recipients []string
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch strings.ToLower(h.Name) {
			case "subject":
				subject = h.Value
			case "from":
				sender = address(h.Value)
			case "to":
				recipients = addressList(h.Value)
			case "date":
				date = h.Value
			}
		}
	}

	ts := time.UnixMilli(msg.InternalDate).UTC()
	if msg.InternalDate == 0 && date != "" {
		if parsed, err := netmail.ParseDate(date); err == nil {
			ts = parsed.UTC()
		}
	}

	body := extractBody(msg.Payload, "text/plain")
	if body == "" {
		body = connectors.HTMLToText(extractBody(msg.Payload, "text/html"))
	}
	if body == "" {
		body = msg.Snippet
	}

	return domain.NewMessage(IDPrefix+msg.Id, subject, sender, recipients, ts, body, msg.LabelIds, sourceID)
}

func address(v string) string {
	if addr, err := mail.ParseAddress(v); err == nil {
		return addr.Address
	}
	return strings.TrimSpace(v)
}

func addressList(v string) []string {
	list, err := mail.ParseAddressList(v)
	if err != nil {
		return []string{strings.TrimSpace(v)}
	}
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.Address)
	}
	return out
}

// extractBody walks the MIME tree for the first part of mimeType.
func extractBody(part *gmail.MessagePart, mimeType string) string {
	if part == nil {
		return ""
	}
	if part.MimeType == mimeType && part.Body != nil && part.Body.Data != "" {
		return strings.TrimSpace(decode(part.Body.Data))
	}
	for _, child := range part.Parts {
		if text := extractBody(child, mimeType); text != "" {
			return text
		}
	}
	return ""
}

func decode(data string) string {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	if b, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	return ""
}

// ShouldInclude checks a message against the spam and trash filter.
func ShouldInclude(msg *gmail.Message, cfg *Config) bool {
	if cfg.IncludeSpamTrash {
		return true
	}
	for _, label := range msg.LabelIds {
		if label == "SPAM" || label == "TRASH" {
			return false
		}
	}
	return true
}
