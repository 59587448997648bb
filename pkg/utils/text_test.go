package utils

import (
	"testing"
	"unicode/utf8"
)

func TestTruncate(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Errorf("got %q", got)
	}
	if got := Truncate("hello world", 5); got != "hello..." {
		t.Errorf("got %q", got)
	}
	if got := Truncate("hello", 0); got != "hello" {
		t.Errorf("zero max must be a no-op, got %q", got)
	}
}

func TestTruncateKeepsRunesIntact(t *testing.T) {
	// Each rune is 3 bytes; a cut at 4 lands mid-rune and must step back.
	got := Truncate("日本語テキスト", 4)
	if got != "日..." {
		t.Errorf("got %q", got)
	}
	if !utf8.ValidString(got) {
		t.Errorf("truncation produced invalid UTF-8: %q", got)
	}
	for max := 1; max <= 9; max++ {
		if s := Truncate("日本語", max); !utf8.ValidString(s) {
			t.Errorf("maxLen %d produced invalid UTF-8: %q", max, s)
		}
	}
}

func TestCollapseWhitespace(t *testing.T) {
	if got := CollapseWhitespace("  a\tb\n\nc  "); got != "a b c" {
		t.Errorf("got %q", got)
	}
	if got := CollapseWhitespace("   "); got != "" {
		t.Errorf("got %q", got)
	}
}
