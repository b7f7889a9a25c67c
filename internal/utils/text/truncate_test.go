package text_test

import (
	"strings"
	"testing"

	"newsflow/internal/utils/text"
)

func TestSmartTruncate(t *testing.T) {
	long := "First sentence is here. Second sentence follows along. " + strings.Repeat("x", 300)
	got := text.SmartTruncate(long, 100)
	if text.CountRunes(got) > 100 {
		t.Fatalf("truncated text too long: %d runes", text.CountRunes(got))
	}
	if !strings.HasSuffix(got, ".") {
		t.Fatalf("want sentence-boundary cut, got %q", got)
	}

	short := "tiny"
	if text.SmartTruncate(short, 120) != "tiny" {
		t.Fatal("short input must pass through")
	}
}

func TestSmartTruncate_wordBoundaryFallback(t *testing.T) {
	noSentences := strings.Repeat("word ", 100)
	got := text.SmartTruncate(noSentences, 52)
	if strings.HasSuffix(got, "wor") {
		t.Fatalf("cut inside a word: %q", got)
	}
	if text.CountRunes(got) > 52 {
		t.Fatalf("over budget: %d", text.CountRunes(got))
	}
}

func TestCleanURL(t *testing.T) {
	got, changed := text.CleanURL("https://example.com/a​")
	if got != "https://example.com/a" {
		t.Fatalf("want zero-width stripped, got %q", got)
	}
	if !changed {
		t.Fatal("want changed=true")
	}

	got, changed = text.CleanURL("https://example.com/a")
	if changed || got != "https://example.com/a" {
		t.Fatalf("clean URL must pass through unchanged, got %q changed=%v", got, changed)
	}

	got, _ = text.CleanURL("  https://example.com/b \n")
	if got != "https://example.com/b" {
		t.Fatalf("want trimmed, got %q", got)
	}
}

func TestLetterRatio(t *testing.T) {
	if r := text.LetterRatio("abcd"); r != 1.0 {
		t.Fatalf("want 1.0, got %f", r)
	}
	if r := text.LetterRatio("ab12"); r != 0.5 {
		t.Fatalf("want 0.5, got %f", r)
	}
	if r := text.LetterRatio(""); r != 0 {
		t.Fatalf("want 0 for empty, got %f", r)
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	in := "a   b\t c\n\n\n\nd"
	want := "a b c\n\nd"
	if got := text.NormalizeWhitespace(in); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
