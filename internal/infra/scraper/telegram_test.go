package scraper

import (
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
)

func TestNormalizeChannel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"https://t.me/s/foo", "foo"},
		{"t.me/foo", "foo"},
		{"@foo", "foo"},
		{"foo", "foo"},
		{"https://telegram.me/foo?single", "foo"},
		{"https://t.me/foo/123", "foo"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeChannel(tt.input); got != tt.want {
				t.Fatalf("NormalizeChannel(%q)=%q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

const sampleMessage = `
<div class="tgme_widget_message" data-post="newsch/123">
  <a class="tgme_widget_message_owner_photo" style="background-image:url('https://cdn.t.me/profile/ch.jpg')"></a>
  <div class="tgme_widget_message_bubble">
    <div class="tgme_widget_message_text">
      🔥 Правительство Сербии объявило новый план развития железных дорог страны.
      Подробности в статье. #новости #сербия
    </div>
    <a class="tgme_widget_message_photo_wrap" style="background-image:url('//cdn-telegram.org/file/photo123.jpg')"></a>
    <a class="tgme_widget_message_link_preview" href="https://www.b92.net/article-42"></a>
    <a href="https://facebook.com/share/x"></a>
  </div>
  <div class="tgme_widget_message_info">
    <a class="tgme_widget_message_date" href="https://t.me/newsch/123">
      <time datetime="2025-07-29T10:15:00+00:00"></time>
    </a>
  </div>
</div>`

func sampleFetcher() *TelegramFetcher {
	return &TelegramFetcher{channel: "newsch", newsDomains: defaultNewsDomains,
		logger: discardLogger()}
}

func parseSample(t *testing.T, html string) *goquery.Selection {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<html><body>" + html + "</body></html>"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc.Find(".tgme_widget_message").First()
}

func TestParseMessage_fullShape(t *testing.T) {
	f := sampleFetcher()
	item, err := f.parseMessage(parseSample(t, sampleMessage), "")
	if err != nil {
		t.Fatalf("parseMessage err=%v", err)
	}

	// Original link becomes the item identity; the permalink rides raw data.
	if item.URL != "https://www.b92.net/article-42" {
		t.Fatalf("url=%q", item.URL)
	}
	if item.Raw[RawTelegramURL] != "https://t.me/newsch/123" {
		t.Fatalf("telegram_url=%q", item.Raw[RawTelegramURL])
	}
	if item.Raw[RawOriginalLink] != "https://www.b92.net/article-42" {
		t.Fatalf("original_link=%q", item.Raw[RawOriginalLink])
	}

	// Title: leading emoji removed, capped length.
	if strings.HasPrefix(item.Title, "🔥") {
		t.Fatalf("emoji not stripped from title: %q", item.Title)
	}
	if len([]rune(item.Title)) > 120 {
		t.Fatalf("title too long: %d runes", len([]rune(item.Title)))
	}

	want := time.Date(2025, 7, 29, 10, 15, 0, 0, time.UTC)
	if !item.PublishedAt.Equal(want) {
		t.Fatalf("published_at=%v, want %v", item.PublishedAt, want)
	}

	if item.Raw[RawHashtags] != "новости,сербия" {
		t.Fatalf("hashtags=%q", item.Raw[RawHashtags])
	}

	// Media: content photo kept (protocol-relative absolutized), owner photo excluded.
	foundPhoto := false
	for _, m := range item.Media {
		if m.URL == "https://cdn-telegram.org/file/photo123.jpg" {
			foundPhoto = true
		}
		if strings.Contains(m.URL, "profile") {
			t.Fatalf("owner photo leaked into media: %v", m)
		}
	}
	if !foundPhoto {
		t.Fatalf("content photo missing from media: %+v", item.Media)
	}
}

func TestOriginalLink_skipsSocialNetworks(t *testing.T) {
	links := []string{
		"https://facebook.com/post/1",
		"https://youtube.com/watch?v=1",
		"https://danas.rs/vest-7",
	}
	if got := originalLink(links); got != "https://danas.rs/vest-7" {
		t.Fatalf("originalLink=%q", got)
	}
	if got := originalLink([]string{"https://t.me/other/1"}); got != "" {
		t.Fatalf("telegram links must never be original, got %q", got)
	}
}

func TestMessageTitle_fallback(t *testing.T) {
	if got := messageTitle("😀"); got != "Telegram Post" {
		t.Fatalf("want fallback title, got %q", got)
	}
}

func TestMessageDate_epochFallback(t *testing.T) {
	html := `<div class="tgme_widget_message"><span data-time="1753783200"></span></div>`
	sel := parseSample(t, html)
	got := messageDate(sel)
	if got.Year() != 2025 {
		t.Fatalf("epoch parse failed: %v", got)
	}
}

func TestHashtags_dedupAndCap(t *testing.T) {
	content := "#a #a #b " + strings.Repeat("#tag ", 30)
	tags := hashtags(content)
	if len(tags) > 20 {
		t.Fatalf("hashtags must cap at 20, got %d", len(tags))
	}
	if tags[0] != "a" || tags[1] != "b" {
		t.Fatalf("dedup failed: %v", tags[:2])
	}
}

func TestIsNewsDomain(t *testing.T) {
	f := sampleFetcher()
	if !f.isNewsDomain("https://www.b92.net/x") {
		t.Fatal("b92.net subdomain must match")
	}
	if f.isNewsDomain("https://promo.example.com/x") {
		t.Fatal("unknown domains must not match")
	}
}
