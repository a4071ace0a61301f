package thread

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestNormalizeStripsMarkers tests single and stacked marker stripping
func TestNormalizeStripsMarkers(t *testing.T) {
	n := NewNormalizer(nil)

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain subject", "Server outage", "Server outage"},
		{"single Re", "Re: Server outage", "Server outage"},
		{"lowercase re", "re: Server outage", "Server outage"},
		{"Fwd", "Fwd: Server outage", "Server outage"},
		{"Fw", "FW: Server outage", "Server outage"},
		{"stacked markers", "Re: Fwd: Re: Server outage", "Server outage"},
		{"space before colon", "Re : Server outage", "Server outage"},
		{"no space after colon", "Re:Server outage", "Server outage"},
		{"japanese reply", "返信: サーバー障害", "サーバー障害"},
		{"japanese forward fullwidth colon", "転送：サーバー障害", "サーバー障害"},
		{"mixed locales", "Re: 返信: Fwd: テスト", "テスト"},
		{"marker without colon kept", "Regards, Alice", "Regards, Alice"},
		{"marker inside word kept", "Forward planning", "Forward planning"},
		{"surrounding whitespace", "  Re: hello  ", "hello"},
		{"empty", "", ""},
		{"only marker", "Re:", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, n.Normalize(tt.input))
		})
	}
}

// TestNormalizeIdempotent tests normalize(normalize(s)) == normalize(s)
func TestNormalizeIdempotent(t *testing.T) {
	n := NewNormalizer(nil)

	subjects := []string{
		"Re: Fwd: Server outage",
		"返信: 転送: テスト",
		"Re:",
		"plain",
		"",
		"Re: Re: Re: deep",
	}
	for _, s := range subjects {
		once := n.Normalize(s)
		assert.Equal(t, once, n.Normalize(once), "Normalization should be idempotent for %q", s)
	}
}

// TestNormalizeCustomMarkers tests a configured marker set
func TestNormalizeCustomMarkers(t *testing.T) {
	n := NewNormalizer([]string{"AW", "SV"})

	assert.Equal(t, "Besprechung", n.Normalize("AW: Besprechung"))
	assert.Equal(t, "Möte", n.Normalize("Sv: Möte"))
	// Default markers are not in the custom set
	assert.Equal(t, "Re: hello", n.Normalize("Re: hello"))
}

// TestNormalizeCaseLengthChange tests markers whose lowercase form has
// a different byte length than the original
func TestNormalizeCaseLengthChange(t *testing.T) {
	// U+0130 LATIN CAPITAL LETTER I WITH DOT ABOVE is 2 bytes; its
	// lowercase form is 3 bytes
	n := NewNormalizer([]string{"İlet"})

	assert.Equal(t, "Merhaba", n.Normalize("İlet: Merhaba"))
	assert.Equal(t, "Merhaba", n.Normalize("İlet: İlet: Merhaba"))
	// A subject shorter than the marker must not match
	assert.Equal(t, "İle", n.Normalize("İle"))
	// Marker characters mid-word must not match
	assert.Equal(t, "İletişim: plan", n.Normalize("İletişim: plan"))
}
