package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"newsflow/internal/infra/filecache"
	"newsflow/internal/infra/httpclient"
)

// scriptedProvider returns canned responses in order.
type scriptedProvider struct {
	responses []string
	calls     atomic.Int32
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(_ context.Context, _ CompletionRequest) (string, error) {
	idx := int(p.calls.Add(1)) - 1
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	return p.responses[idx], nil
}

func validAnalysisJSON() string {
	return `{
  "summary": "Компания Apple отчиталась о рекордной квартальной выручке благодаря росту сервисного направления и продаж техники.",
  "optimized_title": "",
  "categories": [{"name": "Business", "confidence": 0.9}],
  "is_advertisement": false,
  "ad_confidence": 0.1,
  "ad_type": "",
  "ad_reasoning": "обычная новость",
  "ad_markers": [],
  "publication_date": "2025-07-29"
}`
}

func sourceContent() string {
	return strings.Repeat("Apple reported record quarterly earnings driven by services revenue growth. ", 20)
}

func TestAnalyzeArticleComplete_happyPath(t *testing.T) {
	provider := &scriptedProvider{responses: []string{validAnalysisJSON()}}
	client := NewClient(provider, nil, nil)

	analysis, err := client.AnalyzeArticleComplete(context.Background(), "Apple earnings up", sourceContent(), "https://ex.com/a1")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(analysis.Categories) != 1 || analysis.Categories[0].Name != "Business" {
		t.Fatalf("categories: %+v", analysis.Categories)
	}
	if analysis.Categories[0].AICategory != "Business" {
		t.Fatal("raw model label must be preserved in AICategory")
	}
	if analysis.IsAdvertisement {
		t.Fatal("0.1 confidence must not flag an ad")
	}
	if analysis.PublicationDate == nil || analysis.PublicationDate.Format("2006-01-02") != "2025-07-29" {
		t.Fatalf("publication date: %v", analysis.PublicationDate)
	}
	if client.APICalls() != 1 {
		t.Fatalf("api calls: %d", client.APICalls())
	}
}

func TestAnalyzeArticleComplete_adThreshold(t *testing.T) {
	adJSON := strings.Replace(validAnalysisJSON(), `"is_advertisement": false`, `"is_advertisement": true`, 1)
	adJSON = strings.Replace(adJSON, `"ad_confidence": 0.1`, `"ad_confidence": 0.85`, 1)

	provider := &scriptedProvider{responses: []string{adJSON}}
	client := NewClient(provider, nil, nil)

	analysis, err := client.AnalyzeArticleComplete(context.Background(), "t", sourceContent(), "https://ex.com/ad")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !analysis.IsAdvertisement || analysis.AdConfidence != 0.85 {
		t.Fatalf("ad verdict: %+v", analysis)
	}
}

func TestAnalyzeArticleComplete_malformedResponseIsNeutral(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"I cannot answer in JSON, sorry."}}
	client := NewClient(provider, nil, nil)

	analysis, err := client.AnalyzeArticleComplete(context.Background(), "t", sourceContent(), "https://ex.com/x")
	if err != nil {
		t.Fatalf("malformed response must not error, got %v", err)
	}
	if analysis.IsAdvertisement || len(analysis.Categories) != 0 {
		t.Fatalf("want neutral result, got %+v", analysis)
	}
	if client.ErrorCount() == 0 {
		t.Fatal("malformed response must increment the error counter")
	}
	// The summary falls back to the extractive synthesis.
	if analysis.Summary == "" {
		t.Fatal("extractive fallback summary expected")
	}
}

func TestAnalyzeArticleComplete_strictRetryOnInvalidSummary(t *testing.T) {
	badSummary := strings.Replace(validAnalysisJSON(),
		"Компания Apple отчиталась о рекордной квартальной выручке благодаря росту сервисного направления и продаж техники.",
		"Short english echo.", 1)

	provider := &scriptedProvider{responses: []string{badSummary, validAnalysisJSON()}}
	client := NewClient(provider, nil, nil)

	analysis, err := client.AnalyzeArticleComplete(context.Background(), "t", sourceContent(), "https://ex.com/r")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if provider.calls.Load() != 2 {
		t.Fatalf("want one strict retry, got %d calls", provider.calls.Load())
	}
	if !strings.Contains(analysis.Summary, "Apple") {
		t.Fatalf("retry summary not used: %q", analysis.Summary)
	}
}

func TestAnalyzeArticleComplete_cache(t *testing.T) {
	cache, err := filecache.New(t.TempDir())
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	provider := &scriptedProvider{responses: []string{validAnalysisJSON()}}
	client := NewClient(provider, cache, nil)

	for i := 0; i < 3; i++ {
		if _, err := client.AnalyzeArticleComplete(context.Background(), "t", sourceContent(), "https://ex.com/c"); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if provider.calls.Load() != 1 {
		t.Fatalf("cache must serve repeats, provider saw %d calls", provider.calls.Load())
	}
	// The open-question decision: the counter includes cache hits.
	if client.APICalls() != 3 {
		t.Fatalf("api_calls_made must count cache hits, got %d", client.APICalls())
	}
}

func TestDetectAdvertising_threshold(t *testing.T) {
	below := `{"is_advertisement": true, "confidence": 0.4, "ad_type": "product_promotion", "reasoning": "похоже", "markers": ["жми"]}`
	provider := &scriptedProvider{responses: []string{below}}
	client := NewClient(provider, nil, nil)

	verdict, err := client.DetectAdvertising(context.Background(), "Только сегодня! Купи!", nil)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if verdict.IsAdvertisement {
		t.Fatal("confidence 0.4 must not flip the flag")
	}
	if verdict.Reasoning == "" {
		t.Fatal("reasoning must be retained below the threshold")
	}
}

func TestKMProvider_wireContract(t *testing.T) {
	var gotAuth string
	var gotBody kmRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("X-KM-AccessKey")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ответ модели"}}]}`))
	}))
	defer srv.Close()

	cfg := httpclient.DefaultConfig()
	cfg.PostRatePerSecond = 1000
	provider := newKMProvider(Config{
		Endpoint: srv.URL,
		APIKey:   "secret-key",
		Model:    "constructor",
		Timeout:  5 * time.Second,
	}, httpclient.New(cfg))

	out, err := provider.Complete(context.Background(), CompletionRequest{
		Prompt:      "привет",
		MaxTokens:   100,
		Temperature: 0.2,
	})
	if err != nil {
		t.Fatalf("Complete err=%v", err)
	}
	if out != "ответ модели" {
		t.Fatalf("content: %q", out)
	}
	if gotAuth != "secret-key" {
		t.Fatalf("X-KM-AccessKey: %q", gotAuth)
	}
	if gotBody.Model != "constructor" || len(gotBody.Messages) != 1 || gotBody.Messages[0].Role != "user" {
		t.Fatalf("request body: %+v", gotBody)
	}
}
