package extractor

import (
	"regexp"
	"strings"

	"newsflow/internal/utils/text"
)

// Quality gate thresholds.
const (
	// MinContentLength is the minimum accepted content length in runes.
	MinContentLength = 200

	// MinQualityScore is the composite score floor for acceptance.
	MinQualityScore = 30

	// MaxContentLength is the post-acceptance truncation budget.
	MaxContentLength = 8000

	// shortContentWordFloor is the minimum count of domain-meaningful words
	// required for items near the length floor.
	shortContentWordFloor = 2
)

var lowQualityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)click here`),
	regexp.MustCompile(`(?i)subscribe`),
	regexp.MustCompile(`(?i)advertisement`),
	regexp.MustCompile(`(?i)sponsored`),
	regexp.MustCompile(`(?i)cookie policy`),
	regexp.MustCompile(`(?i)privacy policy`),
}

var boilerplatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Subscribe to.*?newsletter`),
	regexp.MustCompile(`(?i)Follow us on.*?social media`),
	regexp.MustCompile(`(?i)Share this article`),
	regexp.MustCompile(`(?i)Related articles?:?`),
	regexp.MustCompile(`(?i)Advertisement`),
	regexp.MustCompile(`(?i)Cookie policy`),
	regexp.MustCompile(`(?i)Privacy policy`),
	regexp.MustCompile(`(?i)Terms of service`),
	regexp.MustCompile(`(?i)Sign up for.*?updates`),
	regexp.MustCompile(`(?i)Click here to[^.\n]*`),
	regexp.MustCompile(`(?i)Read more:?`),
	regexp.MustCompile(`(?i)Continue reading`),
}

// QualityScore computes the composite quality score: length, sentence count,
// word count and letter ratio minus low-quality pattern penalties.
func QualityScore(content string) int {
	runes := text.CountRunes(content)
	if runes == 0 {
		return 0
	}
	score := 0

	switch {
	case runes >= 2000:
		score += 30
	case runes >= 1000:
		score += 25
	case runes >= 500:
		score += 20
	case runes >= MinContentLength:
		score += 10
	}

	sentences := len(text.SplitSentences(content))
	switch {
	case sentences >= 10:
		score += 20
	case sentences >= 5:
		score += 15
	case sentences >= 2:
		score += 10
	}

	words := len(strings.Fields(content))
	switch {
	case words >= 300:
		score += 15
	case words >= 100:
		score += 10
	case words >= 30:
		score += 5
	}

	ratio := text.LetterRatio(content)
	switch {
	case ratio > 0.7:
		score += 15
	case ratio > 0.6:
		score += 10
	case ratio > 0.5:
		score += 5
	}

	lower := strings.ToLower(content)
	for _, p := range lowQualityPatterns {
		if p.MatchString(lower) {
			score -= 5
		}
	}

	if score < 0 {
		return 0
	}
	return score
}

// IsGoodContent applies the acceptance gate.
func IsGoodContent(content string) bool {
	content = strings.TrimSpace(content)
	if text.CountRunes(content) < MinContentLength {
		return false
	}
	if QualityScore(content) < MinQualityScore {
		return false
	}
	// Short items must contain at least a couple of substantial words.
	if text.CountRunes(content) < 2*MinContentLength {
		meaningful := 0
		for _, w := range strings.Fields(content) {
			if text.CountRunes(w) >= 5 {
				meaningful++
			}
		}
		if meaningful < shortContentWordFloor {
			return false
		}
	}
	return true
}

// CleanContent normalizes accepted content: boilerplate stripped, whitespace
// collapsed, smart-truncated at a sentence boundary.
func CleanContent(content string) string {
	for _, p := range boilerplatePatterns {
		content = p.ReplaceAllString(content, "")
	}
	content = text.NormalizeWhitespace(content)
	return text.SmartTruncate(content, MaxContentLength)
}
