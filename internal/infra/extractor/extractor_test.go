package extractor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"newsflow/internal/infra/httpclient"
)

func testExtractor(t *testing.T, analyzer PageAnalyzer) *Extractor {
	t.Helper()
	cfg := httpclient.DefaultConfig()
	client := httpclient.New(cfg)
	e := New(client, nil, NewMemoryStore(nil), analyzer,
		Config{LearningEnabled: true, BrowserEnabled: false}, nil)
	e.now = func() time.Time { return time.Date(2025, 7, 29, 12, 0, 0, 0, time.UTC) }
	return e
}

func articleHTML(body string) string {
	return fmt.Sprintf(`<html><head><title>t</title></head><body>
<article class="post-content">%s</article>
</body></html>`, body)
}

func substantialText() string {
	return strings.Repeat("The parliament passed the new budget after a lengthy debate over infrastructure spending. ", 20)
}

func TestExtract_directStrategy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(articleHTML(substantialText())))
	}))
	defer srv.Close()

	e := testExtractor(t, nil)
	res, err := e.Extract(context.Background(), srv.URL+"/a")
	if err != nil {
		t.Fatalf("Extract err=%v", err)
	}
	if res.Strategy != StrategyDirect {
		t.Fatalf("want direct strategy, got %s", res.Strategy)
	}
	if len([]rune(res.Content)) > MaxContentLength {
		t.Fatalf("content over budget: %d", len([]rune(res.Content)))
	}
}

func TestExtract_jsonLDFallback(t *testing.T) {
	body := fmt.Sprintf(`<html><body>
<div class="promo">tiny</div>
<script type="application/ld+json">{"@type":"NewsArticle","articleBody":%q,"datePublished":"2025-07-29"}</script>
</body></html>`, substantialText())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	e := testExtractor(t, nil)
	res, err := e.Extract(context.Background(), srv.URL+"/b")
	if err != nil {
		t.Fatalf("Extract err=%v", err)
	}
	if res.Strategy != StrategyJSONLD {
		t.Fatalf("want jsonld strategy, got %s", res.Strategy)
	}
	if res.PublicationDate == nil || res.PublicationDate.Format("2006-01-02") != "2025-07-29" {
		t.Fatalf("want publication date from JSON-LD, got %v", res.PublicationDate)
	}
}

func TestExtract_learnedSelectorShortcut(t *testing.T) {
	html := `<html><body><div class="prose">` + substantialText() + `</div></body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(html))
	}))
	defer srv.Close()

	e := testExtractor(t, nil)
	host := strings.TrimPrefix(srv.URL, "http://")
	host = strings.Split(host, ":")[0]

	// Teach the memory that .prose works for this host.
	for i := 0; i < 8; i++ {
		e.memory.RecordSuccess(context.Background(), host, StrategyBrowser, ".prose")
	}

	res, err := e.Extract(context.Background(), srv.URL+"/c")
	if err != nil {
		t.Fatalf("Extract err=%v", err)
	}
	if res.Selector != ".prose" {
		t.Fatalf("learned selector must be tried first, got strategy=%s selector=%q", res.Strategy, res.Selector)
	}
}

type stubAnalyzer struct {
	suggestion *SelectorSuggestion
	dateResult *DateResult
	linkResult *LinkResult
	calls      int
}

func (s *stubAnalyzer) DiscoverSelectors(_ context.Context, _, _ string) (*SelectorSuggestion, error) {
	s.calls++
	if s.suggestion == nil {
		return nil, errors.New("no suggestion")
	}
	return s.suggestion, nil
}

func (s *stubAnalyzer) ExtractPublicationDate(_ context.Context, _, _ string) (*DateResult, error) {
	return s.dateResult, nil
}

func (s *stubAnalyzer) ExtractFullArticleLink(_ context.Context, _, _ string) (*LinkResult, error) {
	return s.linkResult, nil
}

func TestExtract_discoveryAfterRepeatedFailures(t *testing.T) {
	html := `<html><body><div class="obscure-widget">` + substantialText() + `</div></body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(html))
	}))
	defer srv.Close()

	analyzer := &stubAnalyzer{suggestion: &SelectorSuggestion{
		ContentSelectors: []string{".wrong", ".obscure-widget"},
		PageType:         "news",
	}}
	e := testExtractor(t, analyzer)
	host := strings.Split(strings.TrimPrefix(srv.URL, "http://"), ":")[0]

	// Heuristic extraction will actually find the div (it scores containers
	// regardless of class), so force the discovery precondition directly.
	for i := 0; i < 4; i++ {
		e.memory.RecordFailure(context.Background(), host, StrategyDirect)
	}
	if !e.memory.ShouldDiscover(context.Background(), host, e.now()) {
		t.Fatal("precondition: discovery must be armed")
	}

	res, err := e.Extract(context.Background(), srv.URL+"/d")
	if err != nil {
		t.Fatalf("Extract err=%v", err)
	}
	// Heuristic may win before discovery; either way the content must pass.
	if !IsGoodContent(res.Content) {
		t.Fatal("extracted content must pass the quality gate")
	}
}

func TestAIFullArticleLink_confidenceGate(t *testing.T) {
	analyzer := &stubAnalyzer{linkResult: &LinkResult{URL: "https://ex.com/full", Confidence: 0.4}}
	e := testExtractor(t, analyzer)

	link, err := e.AIFullArticleLink(context.Background(), "<html></html>", "https://ex.com")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if link != "" {
		t.Fatal("confidence below 0.5 must be rejected")
	}

	analyzer.linkResult.Confidence = 0.9
	link, err = e.AIFullArticleLink(context.Background(), "<html></html>", "https://ex.com")
	if err != nil || link != "https://ex.com/full" {
		t.Fatalf("want accepted link, got %q err=%v", link, err)
	}
}

func TestAIPublicationDate_metaHintPreferred(t *testing.T) {
	e := testExtractor(t, &stubAnalyzer{})
	html := `<html><head><meta property="article:published_time" content="2025-07-29T10:00:00Z"></head><body></body></html>`

	date, err := e.AIPublicationDate(context.Background(), html, "https://ex.com/a")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if date == nil || date.Format("2006-01-02") != "2025-07-29" {
		t.Fatalf("meta hint must win, got %v", date)
	}
}
