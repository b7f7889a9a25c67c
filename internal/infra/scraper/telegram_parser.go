package scraper

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"newsflow/internal/utils/text"
)

const (
	maxTitleLength   = 120
	maxHashtags      = 20
	maxExternalLinks = 5
	minTextLength    = 20
)

// socialBlacklist excludes social networks when picking the original link.
var socialBlacklist = []string{
	"facebook.com", "twitter.com", "x.com", "instagram.com",
	"vk.com", "ok.ru", "youtube.com", "youtu.be", "t.me", "telegram.me",
}

var hashtagPattern = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)

// telegram UI artifacts stripped from titles.
var telegramArtifacts = []string{"Forwarded from", "Переслано от", "t.me/"}

// parseMessage converts one rendered message widget into a normalized item.
// Each message parses independently; errors skip the message only.
func (f *TelegramFetcher) parseMessage(sel *goquery.Selection, pageFallback string) (Item, error) {
	content := f.messageText(sel, pageFallback)
	if content == "" {
		return Item{}, fmt.Errorf("message has no text content")
	}

	messageURL := f.messageURL(sel)
	externalLinks := externalLinks(sel)
	original := originalLink(externalLinks)

	item := Item{
		Title:       messageTitle(content),
		URL:         messageURL,
		Content:     content,
		PublishedAt: messageDate(sel),
		Media:       f.extractMedia(sel),
		Raw: map[string]string{
			RawTelegramURL: messageURL,
		},
	}
	if original != "" {
		item.Raw[RawOriginalLink] = original
		// The original article link is the canonical identity of the item.
		item.URL = original
	}
	if tags := hashtags(content); len(tags) > 0 {
		item.Raw[RawHashtags] = strings.Join(tags, ",")
	}
	for _, m := range item.Media {
		if m.Type == "image" && item.ImageURL == "" {
			item.ImageURL = m.URL
		}
	}
	return item, nil
}

// messageText prefers the widget text selector, then alternatives, then the
// whole container with footer chrome stripped, then the page's Open Graph
// description.
func (f *TelegramFetcher) messageText(sel *goquery.Selection, pageFallback string) string {
	selectors := []string{
		".tgme_widget_message_text",
		".js-message_text",
		".tgme_widget_message_bubble .tgme_widget_message_text",
	}
	for _, selector := range selectors {
		node := sel.Find(selector).First()
		if node.Length() == 0 {
			continue
		}
		content := text.NormalizeWhitespace(node.Text())
		if len([]rune(content)) >= minTextLength {
			return content
		}
	}

	// Whole container minus footer/info chrome.
	clone := sel.Clone()
	clone.Find(".tgme_widget_message_footer, .tgme_widget_message_info, .tgme_widget_message_date, script, style").Remove()
	content := text.NormalizeWhitespace(clone.Text())
	if len([]rune(content)) >= minTextLength {
		return content
	}

	if len([]rune(pageFallback)) >= minTextLength {
		return pageFallback
	}
	return content
}

// messageURL reads the permalink from the message-date anchor, falling back
// to the channel URL.
func (f *TelegramFetcher) messageURL(sel *goquery.Selection) string {
	if href, ok := sel.Find("a.tgme_widget_message_date").First().Attr("href"); ok && href != "" {
		cleaned, _ := text.CleanURL(href)
		return cleaned
	}
	return "https://t.me/s/" + f.channel
}

// messageDate parses time[datetime] (ISO) or data-time (epoch seconds),
// normalized to naive UTC. Missing dates default to now.
func messageDate(sel *goquery.Selection) time.Time {
	if iso, ok := sel.Find("time[datetime]").First().Attr("datetime"); ok {
		if parsed, err := time.Parse(time.RFC3339, iso); err == nil {
			return parsed.UTC()
		}
	}
	if epoch, ok := sel.Find("[data-time]").First().Attr("data-time"); ok {
		if secs, err := strconv.ParseInt(epoch, 10, 64); err == nil && secs > 0 {
			return time.Unix(secs, 0).UTC()
		}
	}
	return time.Now().UTC()
}

// externalLinks collects outbound links: link-preview containers first, then
// any anchors; Telegram's own hosts are dropped; capped and deduplicated.
func externalLinks(sel *goquery.Selection) []string {
	seen := make(map[string]bool)
	var links []string

	collect := func(s *goquery.Selection) {
		s.Each(func(_ int, a *goquery.Selection) {
			href, ok := a.Attr("href")
			if !ok {
				return
			}
			href, _ = text.CleanURL(href)
			if href == "" || !strings.HasPrefix(href, "http") {
				return
			}
			if isTelegramHost(href) {
				return
			}
			if !seen[href] && len(links) < maxExternalLinks {
				seen[href] = true
				links = append(links, href)
			}
		})
	}

	collect(sel.Find("a.tgme_widget_message_link_preview"))
	collect(sel.Find(".tgme_widget_message_link_preview a[href]"))
	collect(sel.Find("a[href]"))
	return links
}

func isTelegramHost(link string) bool {
	lower := strings.ToLower(link)
	return strings.Contains(lower, "//t.me/") || strings.Contains(lower, "//telegram.me/") ||
		strings.Contains(lower, "//telegram.org/")
}

// originalLink picks the first external link whose host is not a social
// network.
func originalLink(links []string) string {
	for _, link := range links {
		lower := strings.ToLower(link)
		blacklisted := false
		for _, social := range socialBlacklist {
			if strings.Contains(lower, social) {
				blacklisted = true
				break
			}
		}
		if !blacklisted {
			return link
		}
	}
	return ""
}

// messageTitle derives a title from the first substantial content line:
// artifacts and leading emoji removed, smart-truncated at a sentence or word
// boundary.
func messageTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		for _, artifact := range telegramArtifacts {
			line = strings.ReplaceAll(line, artifact, "")
		}
		line = trimLeadingEmoji(line)
		line = strings.TrimSpace(line)
		if len([]rune(line)) >= 10 {
			return text.SmartTruncate(line, maxTitleLength)
		}
	}
	return "Telegram Post"
}

// trimLeadingEmoji drops leading symbols, pictographs and punctuation until
// the first letter or digit.
func trimLeadingEmoji(s string) string {
	return strings.TrimLeftFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// hashtags extracts #tags, normalized, deduplicated and capped.
func hashtags(content string) []string {
	matches := hashtagPattern.FindAllStringSubmatch(content, -1)
	seen := make(map[string]bool)
	var out []string
	for _, m := range matches {
		tag := strings.ToLower(m[1])
		if !seen[tag] && len(out) < maxHashtags {
			seen[tag] = true
			out = append(out, tag)
		}
	}
	return out
}

// metaDescription returns the page's Open Graph or meta description.
func metaDescription(doc *goquery.Document) string {
	for _, selector := range []string{`meta[property="og:description"]`, `meta[name="description"]`} {
		if value, ok := doc.Find(selector).First().Attr("content"); ok {
			if value = text.NormalizeWhitespace(value); value != "" {
				return value
			}
		}
	}
	return ""
}
