package attachtext

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nananek/mail-check-ai/internal/parser"
)

// TestExtractCSV tests that CSV attachments pass through as text
func TestExtractCSV(t *testing.T) {
	att := parser.ParsedAttachment{
		Filename:    "report.csv",
		ContentType: "text/csv",
		Data:        []byte("id,name\n1,alice\n"),
	}

	text, err := Extract(att)
	require.NoError(t, err)
	assert.Contains(t, text, "alice")
}

// TestExtractPlainText tests .txt extraction by extension when the
// content type is generic
func TestExtractPlainText(t *testing.T) {
	att := parser.ParsedAttachment{
		Filename:    "notes.txt",
		ContentType: "application/octet-stream",
		Data:        []byte("remember the milk"),
	}

	text, err := Extract(att)
	require.NoError(t, err)
	assert.Equal(t, "remember the milk", text)
}

// TestExtractUnsupported tests that unknown types are skipped silently
func TestExtractUnsupported(t *testing.T) {
	att := parser.ParsedAttachment{
		Filename:    "photo.png",
		ContentType: "image/png",
		Data:        []byte{0x89, 0x50, 0x4e, 0x47},
	}

	text, err := Extract(att)
	require.NoError(t, err)
	assert.Empty(t, text)
}

// TestExtractBrokenPDF tests that a corrupt PDF reports an error
// instead of panicking
func TestExtractBrokenPDF(t *testing.T) {
	att := parser.ParsedAttachment{
		Filename:    "broken.pdf",
		ContentType: "application/pdf",
		Data:        []byte("not a pdf at all"),
	}

	_, err := Extract(att)
	assert.Error(t, err)
}

// TestExtractAll tests the map shape and error continuation
func TestExtractAll(t *testing.T) {
	attachments := []parser.ParsedAttachment{
		{Filename: "a.csv", ContentType: "text/csv", Data: []byte("x,y")},
		{Filename: "bad.pdf", ContentType: "application/pdf", Data: []byte("junk")},
		{Filename: "pic.png", ContentType: "image/png", Data: []byte{1, 2}},
	}

	texts, errs := ExtractAll(attachments)

	assert.Len(t, texts, 1, "Only the readable attachment should land in the map")
	assert.Equal(t, "x,y", texts["a.csv"])
	assert.Len(t, errs, 1, "The broken PDF should be reported, not fatal")
}

// TestTruncate tests the per-attachment length bound
func TestTruncate(t *testing.T) {
	long := strings.Repeat("a", MaxTextLen+500)
	att := parser.ParsedAttachment{Filename: "big.txt", ContentType: "text/plain", Data: []byte(long)}

	text, err := Extract(att)
	require.NoError(t, err)
	assert.Equal(t, MaxTextLen, len([]rune(text)))
}
