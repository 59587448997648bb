package search

import (
	"strings"

	"github.com/oshigiri/kensaku/pkg/utils"
)

const excerptLength = 200

// BuildExcerpt renders a short display snippet from chunk content, centered
// on the first query-term occurrence when one exists.
func BuildExcerpt(content, query string) string {
	flat := utils.CollapseWhitespace(content)
	if len(flat) <= excerptLength {
		return flat
	}
	pos := -1
	lower := strings.ToLower(flat)
	for _, term := range strings.Fields(strings.ToLower(query)) {
		if i := strings.Index(lower, term); i >= 0 && (pos < 0 || i < pos) {
			pos = i
		}
	}
	if pos < 0 {
		return utils.Truncate(flat, excerptLength)
	}
	start := pos - excerptLength/4
	if start < 0 {
		start = 0
	}
	// Step back to a word boundary so the snippet does not open mid-word.
	if start > 0 {
		if i := strings.LastIndexByte(flat[:start], ' '); i >= 0 {
			start = i + 1
		}
	}
	snippet := utils.Truncate(flat[start:], excerptLength)
	if start > 0 {
		snippet = "..." + snippet
	}
	return snippet
}
