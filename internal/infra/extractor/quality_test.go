package extractor

import (
	"strings"
	"testing"

	"newsflow/internal/utils/text"
)

func longArticle() string {
	sentence := "The government announced a detailed infrastructure investment plan covering railways and hospitals. "
	return strings.Repeat(sentence, 30)
}

func TestIsGoodContent(t *testing.T) {
	if !IsGoodContent(longArticle()) {
		t.Fatal("substantial article text must pass the gate")
	}
	if IsGoodContent("too short") {
		t.Fatal("short text must fail the gate")
	}
	junk := strings.Repeat("@@ ## 12 34 !! ", 40)
	if IsGoodContent(junk) {
		t.Fatal("symbol soup must fail the gate")
	}
}

func TestQualityScore_acceptedContentMeetsFloor(t *testing.T) {
	if score := QualityScore(longArticle()); score < MinQualityScore {
		t.Fatalf("good article scored %d, below floor %d", score, MinQualityScore)
	}
}

func TestQualityScore_penalizesLowQualityMarkers(t *testing.T) {
	base := longArticle()
	spammy := base + " Click here to subscribe. Advertisement. Sponsored."
	if QualityScore(spammy) >= QualityScore(base) {
		t.Fatal("low-quality markers must reduce the score")
	}
}

func TestCleanContent_truncatesAndStripsBoilerplate(t *testing.T) {
	content := longArticle() + "\nSubscribe to our newsletter\n" + strings.Repeat("More text follows here. ", 500)
	cleaned := CleanContent(content)

	if text.CountRunes(cleaned) > MaxContentLength {
		t.Fatalf("content exceeds budget: %d runes", text.CountRunes(cleaned))
	}
	if strings.Contains(cleaned, "Subscribe to our newsletter") {
		t.Fatal("boilerplate must be stripped")
	}
	if !strings.HasSuffix(cleaned, ".") {
		t.Fatalf("truncation must land on a sentence boundary, got tail %q", cleaned[len(cleaned)-20:])
	}
}
