package ai

import (
	"strings"
	"unicode"

	"newsflow/internal/utils/text"
)

// Summary contract thresholds.
const (
	minSummaryRunes = 60

	// maxSimilarityRatio rejects summaries that merely quote the source.
	maxSimilarityRatio = 0.80

	// similarityWindow bounds the source prefix used for comparison.
	similarityWindow = 1000

	// extractiveFallbackBudget caps the synthesized extractive summary.
	extractiveFallbackBudget = 700
)

// IsSummaryValid applies the summary contract: Russian narrative (contains
// Cyrillic), minimum length, and bounded similarity to the source text.
func IsSummaryValid(summary, original string) bool {
	summary = strings.TrimSpace(summary)
	if text.CountRunes(summary) < minSummaryRunes {
		return false
	}
	if !containsCyrillic(summary) {
		return false
	}
	window := original
	if runes := []rune(original); len(runes) > similarityWindow {
		window = string(runes[:similarityWindow])
	}
	return similarityRatio(summary, window) < maxSimilarityRatio
}

func containsCyrillic(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Cyrillic, r) {
			return true
		}
	}
	return false
}

// similarityRatio computes a Dice coefficient over character bigrams. A
// summary that copies the source verbatim scores near 1.0.
func similarityRatio(a, b string) float64 {
	bigramsA := bigrams(a)
	bigramsB := bigrams(b)
	if len(bigramsA) == 0 || len(bigramsB) == 0 {
		return 0
	}
	overlap := 0
	for gram, countA := range bigramsA {
		if countB, ok := bigramsB[gram]; ok {
			if countA < countB {
				overlap += countA
			} else {
				overlap += countB
			}
		}
	}
	totalA := 0
	for _, c := range bigramsA {
		totalA += c
	}
	totalB := 0
	for _, c := range bigramsB {
		totalB += c
	}
	return 2 * float64(overlap) / float64(totalA+totalB)
}

func bigrams(s string) map[string]int {
	runes := []rune(strings.ToLower(s))
	out := make(map[string]int, len(runes))
	for i := 0; i+1 < len(runes); i++ {
		out[string(runes[i:i+2])]++
	}
	return out
}

// ExtractiveSummary synthesizes a fallback summary from the first few
// informative sentences of the source, capped at the fallback budget.
func ExtractiveSummary(content string) string {
	return text.FirstSentences(content, 4, extractiveFallbackBudget, 25)
}
