package text

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// invisible code points that occasionally leak into URLs copied from feeds
// and Telegram messages.
var invisibleRunes = map[rune]bool{
	'\u200b': true, // zero width space
	'\u200c': true, // zero width non-joiner
	'\u200d': true, // zero width joiner
	'\u2060': true, // word joiner
	'\ufeff': true, // byte order mark
	'\u00ad': true, // soft hyphen
	'\u180e': true, // mongolian vowel separator
}

// CleanURL strips invisible characters, applies Unicode NFKC normalization,
// and trims surrounding whitespace. Returns the cleaned URL and whether
// anything was changed.
func CleanURL(raw string) (string, bool) {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if invisibleRunes[r] {
			continue
		}
		b.WriteRune(r)
	}
	cleaned := strings.TrimSpace(norm.NFKC.String(b.String()))
	return cleaned, cleaned != raw
}
