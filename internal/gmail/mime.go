package gmail

import (
	"encoding/base64"
	"strings"
	"time"

	gmailv1 "google.golang.org/api/gmail/v1"

	"github.com/wheresmyjobat/wheresmyjobat/internal/mailbox"
	"github.com/wheresmyjobat/wheresmyjobat/internal/model"
)

// decodeMessage flattens a Gmail message into subject, sender, and a plain
// text body capped at maxChars.
func decodeMessage(msg *gmailv1.Message, maxChars int) model.EmailMessage {
	out := model.EmailMessage{ID: msg.Id}
	if msg.Payload == nil {
		return out
	}

	var rawDate string
	for _, h := range msg.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "subject":
			out.Subject = h.Value
		case "from":
			out.Sender = h.Value
		case "date":
			rawDate = h.Value
		}
	}
	out.Date = parseDate(rawDate)

	body := extractPlainText(msg.Payload)
	if body == "" {
		body = mailbox.HTMLToText(extractHTML(msg.Payload))
	}
	out.Body = mailbox.Truncate(strings.TrimSpace(body), maxChars)

	return out
}

// extractPlainText walks a MIME part tree and returns the first text/plain
// body found. For multipart/alternative it prefers text/plain over HTML.
func extractPlainText(part *gmailv1.MessagePart) string {
	if part == nil {
		return ""
	}

	if strings.EqualFold(part.MimeType, "text/plain") && part.Body != nil && part.Body.Data != "" {
		return decodeBase64URL(part.Body.Data)
	}

	for _, sub := range part.Parts {
		if strings.EqualFold(sub.MimeType, "text/plain") {
			if body := extractPlainText(sub); body != "" {
				return body
			}
		}
	}
	for _, sub := range part.Parts {
		if body := extractPlainText(sub); body != "" {
			return body
		}
	}

	return ""
}

// extractHTML walks a MIME part tree and returns the first text/html body.
func extractHTML(part *gmailv1.MessagePart) string {
	if part == nil {
		return ""
	}

	if strings.EqualFold(part.MimeType, "text/html") && part.Body != nil && part.Body.Data != "" {
		return decodeBase64URL(part.Body.Data)
	}

	for _, sub := range part.Parts {
		if body := extractHTML(sub); body != "" {
			return body
		}
	}

	return ""
}

func decodeBase64URL(data string) string {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		// Gmail uses unpadded base64url.
		b, err = base64.RawURLEncoding.DecodeString(data)
		if err != nil {
			return ""
		}
	}
	return string(b)
}

// parseDate tries the date formats Gmail emits in the Date header.
func parseDate(h string) time.Time {
	if h == "" {
		return time.Time{}
	}
	layouts := []string{
		time.RFC1123Z,
		time.RFC1123,
		time.RFC822Z,
		time.RFC822,
		time.RFC3339,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, h); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
