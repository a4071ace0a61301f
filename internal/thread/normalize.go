// Package thread correlates incoming and outgoing emails into
// conversation threads: subject normalization, reference-chain
// resolution, thread creation/reuse and context windowing.
package thread

import (
	"strings"
	"unicode/utf8"
)

// DefaultMarkers are the reply/forward subject prefixes stripped by the
// normalizer. The set is locale-dependent; 返信 and 転送 are the
// Japanese reply/forward markers some clients emit.
var DefaultMarkers = []string{"Re", "Fwd", "Fw", "返信", "転送"}

// Normalizer strips reply/forward markers from subjects so that every
// message of a conversation maps to the same normalized subject.
type Normalizer struct {
	markers []string
}

// NewNormalizer creates a normalizer with the given marker set. An
// empty set falls back to DefaultMarkers.
func NewNormalizer(markers []string) *Normalizer {
	if len(markers) == 0 {
		markers = DefaultMarkers
	}
	return &Normalizer{markers: markers}
}

// Normalize strips leading reply/forward markers, repeatedly, until
// none remains. Markers match case-insensitively and may be followed by
// an ASCII or full-width colon. Idempotent; empty input stays empty.
func (n *Normalizer) Normalize(subject string) string {
	s := strings.TrimSpace(subject)
	for {
		stripped, ok := n.stripOne(s)
		if !ok {
			return s
		}
		s = stripped
	}
}

func (n *Normalizer) stripOne(s string) (string, bool) {
	for _, marker := range n.markers {
		rest, ok := trimPrefixFold(s, marker)
		if !ok {
			continue
		}
		trimmed := strings.TrimLeft(rest, " \t")
		if strings.HasPrefix(trimmed, ":") {
			return strings.TrimSpace(trimmed[1:]), true
		}
		if strings.HasPrefix(trimmed, "：") {
			return strings.TrimSpace(trimmed[len("："):]), true
		}
	}
	return s, false
}

// trimPrefixFold strips a case-insensitive prefix from s. The prefix
// boundary is measured in runes of s itself, so case pairs whose byte
// lengths differ never produce a mid-rune slice.
func trimPrefixFold(s, prefix string) (string, bool) {
	want := utf8.RuneCountInString(prefix)
	seen := 0
	for i := range s {
		if seen == want {
			if strings.EqualFold(s[:i], prefix) {
				return s[i:], true
			}
			return "", false
		}
		seen++
	}
	if seen == want && strings.EqualFold(s, prefix) {
		return "", true
	}
	return "", false
}
