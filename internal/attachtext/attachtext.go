// Package attachtext extracts plain text from email attachments so the
// analyzer can feed them to the model alongside the body.
package attachtext

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/nananek/mail-check-ai/internal/parser"
)

// MaxTextLen bounds the extracted text per attachment, in runes
const MaxTextLen = 4000

// Extract returns the plain text of a single attachment, or "" when the
// content type is not one we can read
func Extract(att parser.ParsedAttachment) (string, error) {
	contentType := strings.ToLower(att.ContentType)
	name := strings.ToLower(att.Filename)

	switch {
	case strings.HasPrefix(contentType, "application/pdf") || strings.HasSuffix(name, ".pdf"):
		return extractPDF(att.Data)
	case strings.HasPrefix(contentType, "text/csv") || strings.HasSuffix(name, ".csv"):
		return truncate(string(att.Data)), nil
	case strings.HasPrefix(contentType, "text/plain") || strings.HasSuffix(name, ".txt"):
		return truncate(string(att.Data)), nil
	default:
		return "", nil
	}
}

// ExtractAll maps attachment filenames to their extracted text.
// Unreadable attachments are skipped with the error reported back so
// the caller can log and continue.
func ExtractAll(attachments []parser.ParsedAttachment) (map[string]string, []error) {
	texts := make(map[string]string)
	var errs []error
	for _, att := range attachments {
		text, err := Extract(att)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to extract %s: %w", att.Filename, err))
			continue
		}
		if text != "" {
			texts[att.Filename] = text
		}
	}
	return texts, errs
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	var sb strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A broken page should not discard the rest
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
		if sb.Len() > MaxTextLen*4 {
			break
		}
	}
	return truncate(sb.String()), nil
}

func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= MaxTextLen {
		return s
	}
	return string(runes[:MaxTextLen])
}
