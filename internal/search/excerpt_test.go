package search

import (
	"strings"
	"testing"
)

func TestBuildExcerptShortContent(t *testing.T) {
	if got := BuildExcerpt("short chunk", "anything"); got != "short chunk" {
		t.Errorf("short content should pass through, got %q", got)
	}
}

func TestBuildExcerptCollapsesWhitespace(t *testing.T) {
	got := BuildExcerpt("line one\n\nline   two", "line")
	if got != "line one line two" {
		t.Errorf("got %q", got)
	}
}

func TestBuildExcerptCentersOnMatch(t *testing.T) {
	content := strings.Repeat("filler words here ", 30) + "needle in the haystack " + strings.Repeat("more filler ", 30)
	got := BuildExcerpt(content, "needle")
	if !strings.Contains(got, "needle") {
		t.Errorf("excerpt should contain the matched term, got %q", got)
	}
	if !strings.HasPrefix(got, "...") {
		t.Errorf("mid-content excerpt should be marked as continued, got %q", got)
	}
	if len(got) > excerptLength+10 {
		t.Errorf("excerpt too long: %d bytes", len(got))
	}
}

func TestBuildExcerptNoMatchTruncates(t *testing.T) {
	content := strings.Repeat("word ", 100)
	got := BuildExcerpt(content, "absent")
	if len(got) > excerptLength+3 {
		t.Errorf("excerpt too long: %d bytes", len(got))
	}
}
