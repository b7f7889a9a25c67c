package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"newsflow/internal/domain/entity"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Example Feed</title>
  <item>
    <title>Apple earnings up</title>
    <link>https://ex.com/a1</link>
    <guid>tag:ex.com,2025:a1</guid>
    <author>reporter@ex.com</author>
    <category>Business</category>
    <pubDate>Mon, 29 Jul 2025 10:00:00 GMT</pubDate>
    <description>Apple reported record quarterly earnings driven by services.</description>
    <enclosure url="https://ex.com/a1.jpg" type="image/jpeg" length="1000"/>
  </item>
  <item>
    <title>Entry without date</title>
    <link>https://ex.com/a2</link>
    <description>Second entry.</description>
  </item>
</channel>
</rss>`

func TestRSSFetcher_FetchArticles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	fetcher, err := newRSSFetcher(testSource(entity.SourceTypeRSS, srv.URL), testDeps())
	if err != nil {
		t.Fatalf("newRSSFetcher: %v", err)
	}

	items, err := fetcher.FetchArticles(context.Background(), 0)
	if err != nil {
		t.Fatalf("FetchArticles: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("want 2 items, got %d", len(items))
	}

	first := items[0]
	if first.Title != "Apple earnings up" || first.URL != "https://ex.com/a1" {
		t.Fatalf("first item: %+v", first)
	}
	if first.PublishedAt.Format("2006-01-02 15:04") != "2025-07-29 10:00" {
		t.Fatalf("pubDate parse: %v", first.PublishedAt)
	}
	if first.ImageURL != "https://ex.com/a1.jpg" {
		t.Fatalf("enclosure image: %q", first.ImageURL)
	}
	if first.Raw[RawGUID] == "" || first.Raw[RawTags] != "Business" {
		t.Fatalf("raw side channel: %v", first.Raw)
	}

	// Missing dates default to now.
	if items[1].PublishedAt.IsZero() {
		t.Fatal("missing date must default to now")
	}
}

func TestRSSFetcher_TestConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	fetcher, _ := newRSSFetcher(testSource(entity.SourceTypeRSS, srv.URL), testDeps())
	if err := fetcher.TestConnection(context.Background()); err != nil {
		t.Fatalf("TestConnection: %v", err)
	}
}

func TestRegistry_CreateAndAliases(t *testing.T) {
	registry := NewRegistry()

	for _, sourceType := range []string{
		entity.SourceTypeRSS, entity.SourceTypeReddit,
		entity.SourceTypeNewsAPI, entity.SourceTypeCustom,
	} {
		if _, err := registry.Create(testSource(sourceType, "https://ex.com/feed"), testDeps()); err != nil {
			t.Fatalf("Create(%s): %v", sourceType, err)
		}
	}

	if _, err := registry.Create(testSource("bogus", "https://x"), testDeps()); err == nil {
		t.Fatal("unregistered type must fail")
	}
}

func TestItem_URLVariants(t *testing.T) {
	item := Item{
		URL: "https://news.rs/article",
		Raw: map[string]string{
			RawTelegramURL:  "https://t.me/ch/123",
			RawOriginalLink: "https://news.rs/article",
		},
	}
	variants := item.URLVariants()
	if len(variants) != 2 {
		t.Fatalf("want primary + telegram variant, got %v", variants)
	}
}
