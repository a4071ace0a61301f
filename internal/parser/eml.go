// Package parser turns raw RFC 5322 messages into ParsedEmail values:
// decoded headers, threading identifiers, plain-text body and
// attachments.
package parser

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
)

func init() {
	// Register additional charsets that are commonly used in emails
	charset.RegisterEncoding("windows-1252", charmap.Windows1252)
	charset.RegisterEncoding("iso-8859-1", charmap.ISO8859_1)
	charset.RegisterEncoding("iso-8859-15", charmap.ISO8859_15)
	charset.RegisterEncoding("shift_jis", japanese.ShiftJIS)
	charset.RegisterEncoding("iso-2022-jp", japanese.ISO2022JP)
	charset.RegisterEncoding("euc-jp", japanese.EUCJP)
}

// stripTags reduces HTML to its text content for body previews
var stripTags = bluemonday.StrictPolicy()

// ParseMessage parses an email from a reader
func ParseMessage(r io.Reader) (*ParsedEmail, error) {
	// Read the entire message first to capture raw headers
	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, r); err != nil {
		return nil, fmt.Errorf("failed to read email: %w", err)
	}

	mr, err := mail.CreateReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("failed to create mail reader: %w", err)
	}

	parsed := &ParsedEmail{}
	parsed.RawHeaders = extractRawHeaders(buf.String())

	header := mr.Header

	if msgID := header.Get("Message-Id"); msgID != "" {
		parsed.MessageID = strings.TrimSpace(msgID)
	}

	if inReplyTo := header.Get("In-Reply-To"); inReplyTo != "" {
		// Some clients stack several IDs here; the first is the parent
		if ids := parseMessageIDList(inReplyTo); len(ids) > 0 {
			parsed.InReplyTo = ids[0]
		}
	}

	if references := header.Get("References"); references != "" {
		parsed.References = parseMessageIDList(references)
	}

	parsed.Subject = decodeMIMEWord(header.Get("Subject"))

	if fromAddrs, err := header.AddressList("From"); err == nil && len(fromAddrs) > 0 {
		parsed.Sender = fromAddrs[0].Address
		parsed.SenderName = fromAddrs[0].Name
	}

	if toAddrs, err := header.AddressList("To"); err == nil {
		for _, addr := range toAddrs {
			parsed.Recipients = append(parsed.Recipients, addr.Address)
		}
	}

	if ccAddrs, err := header.AddressList("Cc"); err == nil {
		for _, addr := range ccAddrs {
			parsed.CC = append(parsed.CC, addr.Address)
		}
	}

	if date, err := header.Date(); err == nil && !date.IsZero() {
		parsed.Date = date
	} else {
		// Use current time as fallback
		parsed.Date = time.Now()
	}

	// Parse body and attachments
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read part: %w", err)
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				return nil, fmt.Errorf("failed to read body: %w", err)
			}

			if strings.HasPrefix(contentType, "text/plain") {
				// Multipart emails carry both; the first plain part wins
				if parsed.BodyText == "" {
					parsed.BodyText = string(body)
				}
			} else if strings.HasPrefix(contentType, "text/html") {
				parsed.BodyHTML = string(body)
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()

			data, err := io.ReadAll(part.Body)
			if err != nil {
				return nil, fmt.Errorf("failed to read attachment: %w", err)
			}

			parsed.Attachments = append(parsed.Attachments, ParsedAttachment{
				Filename:    filename,
				ContentType: contentType,
				Size:        int64(len(data)),
				Data:        data,
			})
		}
	}

	// HTML-only emails still need a plain body for previews and prompts
	if parsed.BodyText == "" && parsed.BodyHTML != "" {
		parsed.BodyText = htmlToText(parsed.BodyHTML)
	}

	return parsed, nil
}

// htmlToText strips markup and collapses the leftover whitespace
func htmlToText(html string) string {
	text := stripTags.Sanitize(html)
	lines := strings.Split(text, "\n")
	var kept []string
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return strings.Join(kept, "\n")
}

// extractRawHeaders extracts the raw header section from the email
func extractRawHeaders(emailContent string) string {
	// Headers end at the first blank line
	parts := strings.SplitN(emailContent, "\r\n\r\n", 2)
	if len(parts) < 2 {
		parts = strings.SplitN(emailContent, "\n\n", 2)
	}
	if len(parts) > 0 {
		return parts[0]
	}
	return ""
}

// decodeMIMEWord decodes MIME-encoded words (RFC 2047)
// Example: =?UTF-8?Q?Invitaci=C3=B3n?= -> Invitación
func decodeMIMEWord(s string) string {
	dec := new(mime.WordDecoder)
	dec.CharsetReader = charset.Reader
	decoded, err := dec.DecodeHeader(s)
	if err != nil {
		// If decoding fails, return original string
		return s
	}
	return decoded
}

// parseMessageIDList parses a space-separated list of Message-IDs
// Example: "<id1@example.com> <id2@example.com>" -> ["<id1@example.com>", "<id2@example.com>"]
func parseMessageIDList(s string) []string {
	var ids []string
	for _, part := range strings.Fields(s) {
		if part != "" {
			ids = append(ids, part)
		}
	}
	return ids
}
