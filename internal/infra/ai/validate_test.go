package ai

import (
	"strings"
	"testing"
)

const russianSummary = "Правительство Сербии утвердило масштабный план развития железнодорожной инфраструктуры на ближайшие пять лет."

func TestIsSummaryValid(t *testing.T) {
	source := strings.Repeat("The government approved a large railway infrastructure plan. ", 20)

	if !IsSummaryValid(russianSummary, source) {
		t.Fatal("valid Russian summary rejected")
	}
	if IsSummaryValid("Коротко.", source) {
		t.Fatal("summary under 60 runes must be rejected")
	}
	if IsSummaryValid(strings.Repeat("A purely English summary of the article text. ", 3), source) {
		t.Fatal("summary without Cyrillic must be rejected")
	}
	// A verbatim copy of the source prefix is too similar.
	copyRu := "Правительство Сербии утвердило масштабный план. " + russianSummary
	if IsSummaryValid(copyRu, copyRu) {
		t.Fatal("verbatim copy must be rejected by the similarity gate")
	}
}

func TestSimilarityRatio(t *testing.T) {
	if r := similarityRatio("abcdef", "abcdef"); r < 0.99 {
		t.Fatalf("identical strings must score ~1.0, got %f", r)
	}
	if r := similarityRatio("совершенно разный текст", "nothing in common at all"); r > 0.3 {
		t.Fatalf("unrelated strings must score low, got %f", r)
	}
}

func TestExtractiveSummary(t *testing.T) {
	content := "Первое информативное предложение статьи о развитии экономики региона. " +
		"Второе предложение дополняет детали бюджета и инвестиций в отрасль. " +
		"Третье предложение описывает реакцию участников рынка на изменения. " +
		"Четвёртое предложение о долгосрочных прогнозах аналитиков по сектору. " +
		"Пятое предложение уже не должно попасть в выжимку по лимиту."
	summary := ExtractiveSummary(content)

	if summary == "" {
		t.Fatal("fallback summary must not be empty")
	}
	if len([]rune(summary)) > extractiveFallbackBudget+100 {
		t.Fatalf("fallback too long: %d runes", len([]rune(summary)))
	}
	if !strings.Contains(summary, "Первое информативное") {
		t.Fatal("fallback must start from the leading sentences")
	}
}

func TestParseJSONBlock(t *testing.T) {
	var out struct {
		Summary string `json:"summary"`
	}

	fenced := "```json\n{\"summary\": \"текст\"}\n```"
	if err := parseJSONBlock(fenced, &out); err != nil || out.Summary != "текст" {
		t.Fatalf("fenced JSON: err=%v out=%+v", err, out)
	}

	prose := "Вот результат: {\"summary\": \"ответ\"} — готово."
	if err := parseJSONBlock(prose, &out); err != nil || out.Summary != "ответ" {
		t.Fatalf("embedded JSON: err=%v out=%+v", err, out)
	}

	if err := parseJSONBlock("no json here", &out); err == nil {
		t.Fatal("missing JSON must error")
	}
}
