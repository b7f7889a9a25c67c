// Package notifier dispatches digest messages through the Telegram bot API
// and enforces the bot's HTML contract: only the allowed tag set, anchors
// carrying nothing but href.
package notifier

import (
	"strings"

	"golang.org/x/net/html"

	"newsflow/internal/utils/text"
)

// allowedTags is the Telegram-allowed tag set.
var allowedTags = map[string]bool{
	"b": true, "strong": true, "i": true, "em": true,
	"u": true, "ins": true, "s": true, "strike": true, "del": true,
	"a": true, "code": true, "pre": true, "tg-spoiler": true,
}

// maxMessageLength is Telegram's practical per-message budget.
const maxMessageLength = 4000

// SanitizeHTML reserializes the fragment keeping only allowed tags. Anchor
// tags keep only href; every other attribute is dropped; disallowed tags are
// removed but their text content survives.
func SanitizeHTML(fragment string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(fragment))
	var b strings.Builder
	var openStack []string

	for {
		tokenType := tokenizer.Next()
		switch tokenType {
		case html.ErrorToken:
			// End of input: close anything left open.
			for i := len(openStack) - 1; i >= 0; i-- {
				b.WriteString("</" + openStack[i] + ">")
			}
			return b.String()

		case html.TextToken:
			b.WriteString(html.EscapeString(string(tokenizer.Text())))

		case html.StartTagToken:
			token := tokenizer.Token()
			name := token.Data
			if !allowedTags[name] {
				continue
			}
			if name == "a" {
				href := ""
				for _, attr := range token.Attr {
					if attr.Key == "href" {
						href = attr.Val
					}
				}
				if href == "" {
					continue
				}
				b.WriteString(`<a href="` + html.EscapeString(href) + `">`)
			} else {
				b.WriteString("<" + name + ">")
			}
			openStack = append(openStack, name)

		case html.EndTagToken:
			token := tokenizer.Token()
			name := token.Data
			if !allowedTags[name] {
				continue
			}
			// Close only tags we actually opened.
			for i := len(openStack) - 1; i >= 0; i-- {
				if openStack[i] == name {
					b.WriteString("</" + name + ">")
					openStack = append(openStack[:i], openStack[i+1:]...)
					break
				}
			}

		case html.SelfClosingTagToken:
			// None of the allowed tags self-close; drop.
		}
	}
}

// ValidateHTML reports whether the fragment already satisfies the contract.
func ValidateHTML(fragment string) bool {
	return SanitizeHTML(fragment) == fragment
}

// TruncateHTML shortens the fragment to the message budget at a sentence
// boundary and re-closes any tags the cut left open.
func TruncateHTML(fragment string, limit int) string {
	if limit <= 0 {
		limit = maxMessageLength
	}
	if text.CountRunes(fragment) <= limit {
		return fragment
	}
	cut := text.SmartTruncate(fragment, limit-64)
	// Sanitizing the cut fragment re-closes dangling tags.
	return SanitizeHTML(cut)
}
