package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"newsflow/internal/domain/entity"
	"newsflow/internal/infra/filecache"
)

func pageHTML(extra string) string {
	return `<html><body>
<h1>Product news</h1><p>All the news we announced and reported recently.</p>
<article><h2>First launch announced</h2><a href="/posts/first">read</a><time datetime="2025-07-28T09:00:00Z"></time></article>
<article><h2>Second release reported</h2><a href="/posts/second">read</a></article>
` + extra + `</body></html>`
}

func newTestMonitor(t *testing.T, url string) *PageMonitor {
	t.Helper()
	cache, err := filecache.New(t.TempDir())
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	deps := testDeps()
	deps.Snapshots = cache

	src := testSource(entity.SourceTypeGenericPage, url)
	fetcher, err := newPageMonitor(src, deps)
	if err != nil {
		t.Fatalf("newPageMonitor: %v", err)
	}
	return fetcher.(*PageMonitor)
}

func TestPageMonitor_firstSnapshotEmitsAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(pageHTML("")))
	}))
	defer srv.Close()

	monitor := newTestMonitor(t, srv.URL)
	items, err := monitor.FetchArticles(context.Background(), 0)
	if err != nil {
		t.Fatalf("FetchArticles: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("want 2 items on first snapshot, got %d", len(items))
	}
	for _, item := range items {
		if item.URL == "" || item.URL[0] == '/' {
			t.Fatalf("links must be absolute, got %q", item.URL)
		}
	}
}

func TestPageMonitor_changeDetection(t *testing.T) {
	var extra atomic.Value
	extra.Store("")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(pageHTML(extra.Load().(string))))
	}))
	defer srv.Close()

	monitor := newTestMonitor(t, srv.URL)

	if _, err := monitor.FetchArticles(context.Background(), 0); err != nil {
		t.Fatalf("first snapshot: %v", err)
	}

	// Unchanged page: nothing new.
	items, err := monitor.FetchArticles(context.Background(), 0)
	if err != nil {
		t.Fatalf("second snapshot: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("unchanged page must emit nothing, got %d", len(items))
	}

	// One new entry appears.
	extra.Store(`<article><h2>Third item just announced</h2><a href="/posts/third">read</a></article>`)
	items, err = monitor.FetchArticles(context.Background(), 0)
	if err != nil {
		t.Fatalf("third snapshot: %v", err)
	}
	if len(items) != 1 || items[0].URL != srv.URL+"/posts/third" {
		t.Fatalf("want only the new item, got %+v", items)
	}
}

func TestClassifyPage(t *testing.T) {
	if got := classifyPage("changelog version 2.1 fixed bugs improved speed"); got != "changelog" {
		t.Fatalf("want changelog, got %q", got)
	}
	if got := classifyPage("breaking news: government announced reforms, agencies reported"); got != "news" {
		t.Fatalf("want news, got %q", got)
	}
	if got := classifyPage("nothing matching here"); got != "general" {
		t.Fatalf("want general, got %q", got)
	}
}

func TestParseRelativeDate(t *testing.T) {
	now := time.Date(2025, 7, 29, 12, 0, 0, 0, time.UTC)

	got, ok := parseRelativeDate("2 days ago", now)
	if !ok || got.Format("2006-01-02") != "2025-07-27" {
		t.Fatalf("2 days ago -> %v ok=%v", got, ok)
	}

	got, ok = parseRelativeDate("yesterday", now)
	if !ok || got.Format("2006-01-02") != "2025-07-28" {
		t.Fatalf("yesterday -> %v ok=%v", got, ok)
	}

	if _, ok := parseRelativeDate("July 29, 2025", now); ok {
		t.Fatal("absolute dates are not relative forms")
	}
}

func TestPageMonitor_dateWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body>
<article><h2>Item from the far future</h2><a href="/f">x</a><time datetime="2027-01-01T00:00:00Z"></time></article>
</body></html>`))
	}))
	defer srv.Close()

	monitor := newTestMonitor(t, srv.URL)
	monitor.now = func() time.Time { return time.Date(2025, 7, 29, 12, 0, 0, 0, time.UTC) }

	items, err := monitor.FetchArticles(context.Background(), 0)
	if err != nil {
		t.Fatalf("FetchArticles: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("want 1 item, got %d", len(items))
	}
	// 2027 is rejected as too far in the future; the date falls back to now.
	if items[0].PublishedAt.Year() != 2025 {
		t.Fatalf("future date must be rejected, got %v", items[0].PublishedAt)
	}
}

func TestPageMonitor_absoluteDateFormats(t *testing.T) {
	for _, raw := range []string{"July 29, 2025", "29 Jul 2025"} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html><body>
<article><h2>Dated item headline</h2><a href="/d">x</a><span class="date">` + raw + `</span></article>
</body></html>`))
		}))

		monitor := newTestMonitor(t, srv.URL)
		monitor.now = func() time.Time { return time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC) }

		items, err := monitor.FetchArticles(context.Background(), 0)
		srv.Close()
		if err != nil {
			t.Fatalf("%q: %v", raw, err)
		}
		if len(items) != 1 {
			t.Fatalf("%q: want 1 item, got %d", raw, len(items))
		}
		if got := items[0].PublishedAt.Format("2006-01-02"); got != "2025-07-29" {
			t.Fatalf("%q parsed to %s, want 2025-07-29", raw, got)
		}
	}
}

func TestPageMonitor_listPageFallbackDetection(t *testing.T) {
	monitor := newTestMonitor(t, "https://ex.com/news")
	collapsed := []Item{
		{URL: "https://ex.com/news"},
		{URL: "https://ex.com/news"},
		{URL: "https://ex.com/other"},
	}
	if !monitor.isListPageFallback(collapsed) {
		t.Fatal("2/3 base-url links must trigger the fallback")
	}

	healthy := []Item{
		{URL: "https://ex.com/a"},
		{URL: "https://ex.com/b"},
	}
	if monitor.isListPageFallback(healthy) {
		t.Fatal("distinct links must not trigger the fallback")
	}
}
