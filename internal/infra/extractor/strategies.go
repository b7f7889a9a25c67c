package extractor

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"newsflow/internal/utils/text"
)

// Strategy names recorded in the domain memory.
const (
	StrategyDirect      = "direct"
	StrategyReadability = "readability"
	StrategyHeuristic   = "heuristic"
	StrategyJSONLD      = "jsonld"
	StrategyMeta        = "meta"
	StrategyBrowser     = "browser"
	StrategyDiscovered  = "discovered"
)

// baseSelectors is the curated content selector set, modern patterns first:
// structured microdata, semantic HTML5, common CMS classes, utility-class
// patterns, then legacy fallbacks.
var baseSelectors = []string{
	`[itemprop="articleBody"]`,
	"article [class*='content-body']",
	"article .article-body",
	"article .post-content",
	"article .entry-content",
	"main article",
	"article",
	"[role='main'] .content",
	".article__body",
	".article-text",
	".post-body",
	".story-body",
	".news-text",
	".prose",
	"div[class*='article-content']",
	"div[class*='post-content']",
	"div[class*='rich-text']",
	"#article-body",
	"#content .text",
	"main",
	"#content",
	".content",
}

// selectorText extracts normalized text from the first matching selector with
// substantial content. Returns the text and the matching selector.
func selectorText(doc *goquery.Document, selectors []string) (string, string) {
	for _, selector := range selectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		// Drop script/style/nav debris inside the candidate.
		sel.Find("script, style, nav, header, footer, aside, form").Remove()
		content := text.NormalizeWhitespace(sel.Text())
		if text.CountRunes(content) >= MinContentLength {
			return content, selector
		}
	}
	return "", ""
}

// extractDirect runs the curated selector list over the document.
func extractDirect(doc *goquery.Document) (string, string) {
	return selectorText(doc, baseSelectors)
}

// extractHeuristic scores candidate containers by length, sentence count,
// letter ratio, paragraph count and indicator-class bonuses, picking the best.
func extractHeuristic(doc *goquery.Document) string {
	type candidate struct {
		content string
		score   int
	}
	var best candidate

	doc.Find("div, section, article, td").Each(func(_ int, sel *goquery.Selection) {
		clone := sel.Clone()
		clone.Find("script, style, nav, header, footer, aside").Remove()
		content := text.NormalizeWhitespace(clone.Text())
		runes := text.CountRunes(content)
		if runes < MinContentLength {
			return
		}

		score := QualityScore(content)
		score += 2 * sel.Find("p").Length()

		class, _ := sel.Attr("class")
		id, _ := sel.Attr("id")
		indicator := strings.ToLower(class + " " + id)
		for _, good := range []string{"content", "article", "post", "story", "text", "body"} {
			if strings.Contains(indicator, good) {
				score += 10
			}
		}
		for _, bad := range []string{"comment", "sidebar", "footer", "header", "menu", "nav", "related", "promo"} {
			if strings.Contains(indicator, bad) {
				score -= 15
			}
		}

		if score > best.score {
			best = candidate{content: content, score: score}
		}
	})

	return best.content
}

// jsonLDArticle mirrors the JSON-LD fields the extractor uses.
type jsonLDArticle struct {
	Type          any    `json:"@type"`
	ArticleBody   string `json:"articleBody"`
	Description   string `json:"description"`
	DatePublished string `json:"datePublished"`
}

func jsonLDTypeMatches(t any) bool {
	match := func(s string) bool {
		switch s {
		case "Article", "NewsArticle", "BlogPosting":
			return true
		}
		return false
	}
	switch v := t.(type) {
	case string:
		return match(v)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && match(s) {
				return true
			}
		}
	}
	return false
}

// extractJSONLD inspects ld+json blocks of Article-like types and returns
// articleBody or description, plus the declared publication date.
func extractJSONLD(doc *goquery.Document) (content, datePublished string) {
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		raw := strings.TrimSpace(sel.Text())
		if raw == "" {
			return true
		}

		// Blocks hold either one object or an array of them.
		var nodes []jsonLDArticle
		var single jsonLDArticle
		if err := json.Unmarshal([]byte(raw), &single); err == nil {
			nodes = append(nodes, single)
		} else if err := json.Unmarshal([]byte(raw), &nodes); err != nil {
			return true
		}

		for _, node := range nodes {
			if !jsonLDTypeMatches(node.Type) {
				continue
			}
			if node.ArticleBody != "" {
				content = text.NormalizeWhitespace(node.ArticleBody)
			} else if node.Description != "" {
				content = text.NormalizeWhitespace(node.Description)
			}
			datePublished = node.DatePublished
			if content != "" {
				return false
			}
		}
		return true
	})
	return content, datePublished
}

// extractMeta falls back to Open Graph / meta description for minimum viable
// content.
func extractMeta(doc *goquery.Document) string {
	for _, selector := range []string{
		`meta[property="og:description"]`,
		`meta[name="description"]`,
		`meta[name="twitter:description"]`,
	} {
		if value, ok := doc.Find(selector).First().Attr("content"); ok {
			value = text.NormalizeWhitespace(value)
			if value != "" {
				return value
			}
		}
	}
	return ""
}

// metaPublishedTime returns the article:published_time hint when present.
func metaPublishedTime(doc *goquery.Document) string {
	if value, ok := doc.Find(`meta[property="article:published_time"]`).First().Attr("content"); ok {
		return strings.TrimSpace(value)
	}
	return ""
}
