package chat

import (
	"strings"
	"unicode/utf8"
)

const (
	// MaxTextChars is the number of characters kept from a message body.
	// Longer text is clipped silently.
	MaxTextChars = 5000

	// MaxReasonChars bounds the free-form reason on a report.
	MaxReasonChars = 1000
)

// ClipText returns the first max characters of text. Invalid UTF-8 sequences
// are replaced before counting so the stored body is always valid.
func ClipText(text string, max int) string {
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	n := 0
	for i := range text {
		if n == max {
			return text[:i]
		}
		n++
	}
	return text
}

// uniqueIDs returns ids with empty and repeated entries removed, keeping the
// first occurrence order.
func uniqueIDs(ids ...string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
