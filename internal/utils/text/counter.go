// Package text provides utilities for text processing shared by the fetchers,
// the content extractor, and the AI client: rune counting, boundary-aware
// truncation, and URL hygiene.
package text

// CountRunes counts the number of Unicode characters (runes) in the given
// text. Cyrillic, emoji, and other multi-byte characters count as one each,
// which keeps summary and digest character budgets honest.
func CountRunes(text string) int {
	return len([]rune(text))
}
