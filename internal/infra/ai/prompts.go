package ai

import (
	"fmt"
	"strings"
)

// analysis prompt: one combined call for summary, categories, advertising and
// publication date. The model must answer with bare JSON.
const analysisPromptTemplate = `Проанализируй новостную статью и верни строго JSON без пояснений.

Статья:
Заголовок: %s
URL: %s
Текст:
%s

Верни JSON следующей формы:
{
  "summary": "связный пересказ статьи на русском языке, минимум 60 символов, своими словами",
  "optimized_title": "улучшенный заголовок или пустая строка",
  "categories": [{"name": "категория", "confidence": 0.9}],
  "is_advertisement": false,
  "ad_confidence": 0.0,
  "ad_type": "",
  "ad_reasoning": "",
  "ad_markers": [],
  "publication_date": "YYYY-MM-DD или пустая строка"
}`

const strictSummaryAddendum = `

ВАЖНО: поле "summary" должно быть НАПИСАНО СВОИМИ СЛОВАМИ на русском языке,
не копируй предложения из исходного текста.`

const advertisingPromptTemplate = `Определи, является ли текст рекламой. Верни строго JSON.

Текст:
%s

Контекст источника: %s

Верни JSON:
{"is_advertisement": false, "confidence": 0.0, "ad_type": "", "reasoning": "", "markers": []}

Типы рекламы: product_promotion, service_promotion, affiliate, sponsored_content, self_promotion.`

const selectorDiscoveryTemplate = `Проанализируй HTML страницы и предложи CSS-селекторы для извлечения контента.
Верни строго JSON.

URL: %s
HTML:
%s

Верни JSON:
{
  "content_selectors": ["селекторы основного текста, лучшие первыми"],
  "title_selectors": ["селекторы заголовка"],
  "date_selectors": ["селекторы даты публикации"],
  "page_type": "changelog | news | blog | docs"
}`

const dateExtractionTemplate = `Найди дату публикации статьи в HTML. Верни строго JSON.

URL: %s
HTML:
%s

Верни JSON: {"date": "YYYY-MM-DD", "confidence": 0.0}`

const linkExtractionTemplate = `Найди ссылку на полную версию статьи в HTML. Верни строго JSON.

Базовый URL: %s
HTML:
%s

Верни JSON: {"url": "абсолютный URL", "confidence": 0.0}`

const summaryPromptTemplate = `Перескажи текст на русском языке в 3-5 предложениях своими словами:

%s`

// digest prompt: connected narrative prose in restricted Telegram HTML.
const digestPromptTemplate = `Составь вечерний дайджест новостей за %s на русском языке.

Правила:
- Заголовки разделов в <b>...</b>, других тегов кроме <b> не использовать.
- Связный повествовательный текст, НЕ списки и НЕ маркированные пункты.
- Бюджет: не более %d символов.

Новости по категориям:
%s`

func buildAnalysisPrompt(title, url, content string, strict bool) string {
	prompt := fmt.Sprintf(analysisPromptTemplate, title, url, clipForPrompt(content, 8000))
	if strict {
		prompt += strictSummaryAddendum
	}
	return prompt
}

func buildAdvertisingPrompt(content string, sourceInfo map[string]string) string {
	var info []string
	for k, v := range sourceInfo {
		info = append(info, k+"="+v)
	}
	return fmt.Sprintf(advertisingPromptTemplate, clipForPrompt(content, 4000), strings.Join(info, ", "))
}

// clipForPrompt bounds prompt payloads to keep token budgets predictable.
func clipForPrompt(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
