package utils

import (
	"strings"
	"unicode/utf8"
)

// Truncate returns s truncated to at most maxLen bytes, with "..." appended if
// truncated. The cut steps back to a rune boundary so the result is always
// valid UTF-8. If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// CollapseWhitespace trims s and collapses runs of whitespace into single spaces.
// Used for one-line log and excerpt rendering, never for stored chunk text.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
