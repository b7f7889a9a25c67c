package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/araddon/dateparse"
	"github.com/sony/gobreaker"

	"newsflow/internal/infra/extractor"
	"newsflow/internal/infra/filecache"
	"newsflow/internal/observability/metrics"
	"newsflow/internal/resilience/circuitbreaker"
	"newsflow/internal/resilience/retry"
)

// analysisCacheTTL keeps AI costs linear in unique article URLs.
const analysisCacheTTL = 24 * time.Hour

// adConfidenceThreshold flips is_advertisement to true.
const adConfidenceThreshold = 0.6

// CategoryScore is one proposed category, highest confidence first.
type CategoryScore struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	AICategory string  `json:"ai_category"`
}

// Analysis is the combined per-article enrichment result.
type Analysis struct {
	Summary         string          `json:"summary"`
	OptimizedTitle  string          `json:"optimized_title"`
	Categories      []CategoryScore `json:"categories"`
	IsAdvertisement bool            `json:"is_advertisement"`
	AdConfidence    float64         `json:"ad_confidence"`
	AdType          string          `json:"ad_type"`
	AdReasoning     string          `json:"ad_reasoning"`
	AdMarkers       []string        `json:"ad_markers"`
	PublicationDate *time.Time      `json:"publication_date,omitempty"`
}

// AdVerdict is the standalone advertising classifier output.
type AdVerdict struct {
	IsAdvertisement bool
	Confidence      float64
	Reasoning       string
	AdType          string
	Markers         []string
}

// SummaryMetadata pairs a summary with page metadata found along the way.
type SummaryMetadata struct {
	Summary         string
	PublicationDate *time.Time
	FullArticleURL  string
}

// Client is the AI facade used by the processor, the extractor and the
// digest builder.
type Client struct {
	provider Provider
	cache    *filecache.Cache
	extract  *extractor.Extractor
	breaker  *circuitbreaker.CircuitBreaker
	retryCfg retry.Config
	logger   *slog.Logger

	apiCalls atomic.Int64
	errCount atomic.Int64
}

// NewClient creates the facade. cache and extract may be nil (no response
// caching, no summary-with-metadata extraction path).
func NewClient(provider Provider, cache *filecache.Cache, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		provider: provider,
		cache:    cache,
		breaker:  circuitbreaker.New(circuitbreaker.AIAPIConfig()),
		retryCfg: retry.AIAPIConfig(),
		logger:   logger,
	}
}

// SetExtractor wires the content extractor for the metadata summary path.
// Set after construction because the extractor itself takes this client as
// its page analyzer.
func (c *Client) SetExtractor(e *extractor.Extractor) { c.extract = e }

// APICalls returns the cumulative request counter. Per the recorded design
// decision it includes cache hits.
func (c *Client) APICalls() int64 { return c.apiCalls.Load() }

// ErrorCount returns the cumulative malformed-response/error counter.
func (c *Client) ErrorCount() int64 { return c.errCount.Load() }

// complete runs one completion with retry and circuit breaker. Rate limiting
// is not retried here: it propagates so the enrichment loop can pause.
func (c *Client) complete(ctx context.Context, operation string, req CompletionRequest) (string, error) {
	start := time.Now()
	var out string

	err := retry.WithBackoff(ctx, c.retryCfg, func() error {
		result, err := c.breaker.Execute(func() (interface{}, error) {
			return c.provider.Complete(ctx, req)
		})
		if err != nil {
			var rateErr *RateLimitedError
			if errors.As(err, &rateErr) {
				return err // terminal for the retry loop, handled by caller
			}
			if errors.Is(err, gobreaker.ErrOpenState) {
				return fmt.Errorf("ai provider unavailable: circuit breaker open")
			}
			return err
		}
		out = result.(string)
		return nil
	})

	metrics.RecordAIRequest(operation, time.Since(start), err)
	if err != nil {
		return "", err
	}
	return out, nil
}

// parseJSONBlock extracts the first JSON object from a model response,
// tolerating code fences and prose around it.
func parseJSONBlock(raw string, out any) error {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in response")
	}
	return json.Unmarshal([]byte(s[start:end+1]), out)
}

// rawAnalysis mirrors the model's JSON shape before normalization.
type rawAnalysis struct {
	Summary        string `json:"summary"`
	OptimizedTitle string `json:"optimized_title"`
	Categories     []struct {
		Name       string  `json:"name"`
		Confidence float64 `json:"confidence"`
	} `json:"categories"`
	IsAdvertisement bool     `json:"is_advertisement"`
	AdConfidence    float64  `json:"ad_confidence"`
	AdType          string   `json:"ad_type"`
	AdReasoning     string   `json:"ad_reasoning"`
	AdMarkers       []string `json:"ad_markers"`
	PublicationDate string   `json:"publication_date"`
}

// AnalyzeArticleComplete derives summary, categories, advertising verdict
// and optional publication date for one article. Responses are cached for 24
// hours keyed by URL; the request counter increments on every call, cache
// hits included.
func (c *Client) AnalyzeArticleComplete(ctx context.Context, title, content, url string) (*Analysis, error) {
	c.apiCalls.Add(1)

	cacheKey := "ai_analysis:" + url
	if c.cache != nil {
		var cached Analysis
		if err := c.cache.Get(cacheKey, &cached); err == nil {
			metrics.AICacheHitsTotal.Inc()
			return &cached, nil
		}
	}

	analysis, err := c.runAnalysis(ctx, title, content, url, false)
	if err != nil {
		return nil, err
	}

	// Validate the summary contract; one stricter retry, then synthesize an
	// extractive fallback.
	if !IsSummaryValid(analysis.Summary, content) {
		c.logger.Debug("summary failed validation, retrying strict",
			slog.String("url", url))
		if second, err := c.runAnalysis(ctx, title, content, url, true); err == nil && IsSummaryValid(second.Summary, content) {
			analysis = second
		} else {
			analysis.Summary = ExtractiveSummary(content)
		}
	}

	if c.cache != nil {
		if err := c.cache.Set(cacheKey, analysis, analysisCacheTTL); err != nil {
			c.logger.Debug("analysis cache write failed", slog.Any("error", err))
		}
	}
	return analysis, nil
}

func (c *Client) runAnalysis(ctx context.Context, title, content, url string, strict bool) (*Analysis, error) {
	raw, err := c.complete(ctx, "analyze_article", CompletionRequest{
		Prompt:      buildAnalysisPrompt(title, url, content, strict),
		MaxTokens:   1500,
		Temperature: 0.3,
	})
	if err != nil {
		return nil, err
	}

	var decoded rawAnalysis
	if err := parseJSONBlock(raw, &decoded); err != nil {
		// Malformed responses degrade to a neutral result instead of
		// failing the pipeline.
		c.errCount.Add(1)
		c.logger.Warn("malformed analysis response, using neutral default",
			slog.String("url", url), slog.Any("error", err))
		return &Analysis{}, nil
	}

	analysis := &Analysis{
		Summary:        strings.TrimSpace(decoded.Summary),
		OptimizedTitle: strings.TrimSpace(decoded.OptimizedTitle),
		AdConfidence:   decoded.AdConfidence,
		AdType:         decoded.AdType,
		AdReasoning:    decoded.AdReasoning,
		AdMarkers:      decoded.AdMarkers,
	}
	for _, cat := range decoded.Categories {
		name := strings.TrimSpace(cat.Name)
		if name == "" {
			continue
		}
		confidence := cat.Confidence
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}
		analysis.Categories = append(analysis.Categories, CategoryScore{
			Name:       name,
			Confidence: confidence,
			AICategory: name,
		})
	}
	// Advertising verdict is thresholded: below the bar the flag stays
	// false and the reasoning is retained.
	analysis.IsAdvertisement = decoded.IsAdvertisement && decoded.AdConfidence >= adConfidenceThreshold
	if decoded.PublicationDate != "" {
		if parsed, err := dateparse.ParseAny(decoded.PublicationDate); err == nil {
			utc := parsed.UTC()
			analysis.PublicationDate = &utc
		}
	}
	return analysis, nil
}

// DetectAdvertising runs the standalone advertising classifier with the same
// thresholding contract as the combined analysis.
func (c *Client) DetectAdvertising(ctx context.Context, content string, sourceInfo map[string]string) (*AdVerdict, error) {
	c.apiCalls.Add(1)

	raw, err := c.complete(ctx, "detect_advertising", CompletionRequest{
		Prompt:      buildAdvertisingPrompt(content, sourceInfo),
		MaxTokens:   400,
		Temperature: 0.1,
	})
	if err != nil {
		return nil, err
	}

	var decoded struct {
		IsAdvertisement bool     `json:"is_advertisement"`
		Confidence      float64  `json:"confidence"`
		AdType          string   `json:"ad_type"`
		Reasoning       string   `json:"reasoning"`
		Markers         []string `json:"markers"`
	}
	if err := parseJSONBlock(raw, &decoded); err != nil {
		c.errCount.Add(1)
		return &AdVerdict{}, nil
	}
	return &AdVerdict{
		IsAdvertisement: decoded.IsAdvertisement && decoded.Confidence >= adConfidenceThreshold,
		Confidence:      decoded.Confidence,
		AdType:          decoded.AdType,
		Reasoning:       decoded.Reasoning,
		Markers:         decoded.Markers,
	}, nil
}

// DiscoverSelectors implements extractor.PageAnalyzer.
func (c *Client) DiscoverSelectors(ctx context.Context, html, pageURL string) (*extractor.SelectorSuggestion, error) {
	c.apiCalls.Add(1)

	raw, err := c.complete(ctx, "discover_selectors", CompletionRequest{
		Prompt:      fmt.Sprintf(selectorDiscoveryTemplate, pageURL, html),
		MaxTokens:   600,
		Temperature: 0.1,
	})
	if err != nil {
		return nil, err
	}

	var decoded struct {
		ContentSelectors []string `json:"content_selectors"`
		TitleSelectors   []string `json:"title_selectors"`
		DateSelectors    []string `json:"date_selectors"`
		PageType         string   `json:"page_type"`
	}
	if err := parseJSONBlock(raw, &decoded); err != nil {
		c.errCount.Add(1)
		return nil, fmt.Errorf("malformed selector discovery response: %w", err)
	}
	return &extractor.SelectorSuggestion{
		ContentSelectors: decoded.ContentSelectors,
		TitleSelectors:   decoded.TitleSelectors,
		DateSelectors:    decoded.DateSelectors,
		PageType:         decoded.PageType,
	}, nil
}

// ExtractPublicationDate implements extractor.PageAnalyzer.
func (c *Client) ExtractPublicationDate(ctx context.Context, html, pageURL string) (*extractor.DateResult, error) {
	c.apiCalls.Add(1)

	raw, err := c.complete(ctx, "extract_date", CompletionRequest{
		Prompt:      fmt.Sprintf(dateExtractionTemplate, pageURL, html),
		MaxTokens:   100,
		Temperature: 0,
	})
	if err != nil {
		return nil, err
	}

	var decoded struct {
		Date       string  `json:"date"`
		Confidence float64 `json:"confidence"`
	}
	if err := parseJSONBlock(raw, &decoded); err != nil || decoded.Date == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", decoded.Date)
	if err != nil {
		return nil, nil
	}
	return &extractor.DateResult{Date: parsed, Confidence: decoded.Confidence}, nil
}

// ExtractFullArticleLink implements extractor.PageAnalyzer.
func (c *Client) ExtractFullArticleLink(ctx context.Context, html, baseURL string) (*extractor.LinkResult, error) {
	c.apiCalls.Add(1)

	raw, err := c.complete(ctx, "extract_link", CompletionRequest{
		Prompt:      fmt.Sprintf(linkExtractionTemplate, baseURL, html),
		MaxTokens:   150,
		Temperature: 0,
	})
	if err != nil {
		return nil, err
	}

	var decoded struct {
		URL        string  `json:"url"`
		Confidence float64 `json:"confidence"`
	}
	if err := parseJSONBlock(raw, &decoded); err != nil || decoded.URL == "" {
		return nil, nil
	}
	return &extractor.LinkResult{URL: decoded.URL, Confidence: decoded.Confidence}, nil
}

// Summarize produces a standalone Russian summary of the content.
func (c *Client) Summarize(ctx context.Context, content string) (string, error) {
	c.apiCalls.Add(1)

	summary, err := c.complete(ctx, "summarize", CompletionRequest{
		Prompt:      fmt.Sprintf(summaryPromptTemplate, clipForPrompt(content, 8000)),
		MaxTokens:   800,
		Temperature: 0.3,
	})
	if err != nil {
		return "", err
	}
	summary = strings.TrimSpace(summary)
	if !IsSummaryValid(summary, content) {
		summary = ExtractiveSummary(content)
	}
	return summary, nil
}

// GetArticleSummaryWithMetadata extracts the article behind the URL and
// summarizes it. A full-article link found during extraction is recorded and
// not re-extracted.
func (c *Client) GetArticleSummaryWithMetadata(ctx context.Context, url string) (*SummaryMetadata, error) {
	if c.extract == nil {
		return nil, fmt.Errorf("no extractor configured")
	}
	result, err := c.extract.Extract(ctx, url)
	if err != nil {
		return nil, err
	}

	out := &SummaryMetadata{PublicationDate: result.PublicationDate}
	if link, err := c.extract.AIFullArticleLink(ctx, result.HTML, url); err == nil && link != "" {
		out.FullArticleURL = link
	}
	if out.PublicationDate == nil {
		if date, err := c.extract.AIPublicationDate(ctx, result.HTML, url); err == nil {
			out.PublicationDate = date
		}
	}

	summary, err := c.Summarize(ctx, result.Content)
	if err != nil {
		return nil, err
	}
	out.Summary = summary
	return out, nil
}

// DigestSection is one display category's articles for the digest prompt.
type DigestSection struct {
	Category string
	Articles []DigestArticle
}

// DigestArticle is one enriched article referenced by the digest.
type DigestArticle struct {
	Title   string
	Summary string
	URL     string
}

// GenerateDigest asks the model for the connected-prose HTML digest within
// the character budget.
func (c *Client) GenerateDigest(ctx context.Context, date string, sections []DigestSection, charBudget int) (string, error) {
	c.apiCalls.Add(1)

	var b strings.Builder
	for _, section := range sections {
		fmt.Fprintf(&b, "\n== %s ==\n", section.Category)
		for _, a := range section.Articles {
			summary := a.Summary
			if summary == "" {
				summary = a.Title
			}
			fmt.Fprintf(&b, "- %s: %s\n", a.Title, clipForPrompt(summary, 300))
		}
	}

	digest, err := c.complete(ctx, "generate_digest", CompletionRequest{
		Prompt:      fmt.Sprintf(digestPromptTemplate, date, charBudget, b.String()),
		MaxTokens:   2000,
		Temperature: 0.4,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(digest), nil
}

// TestConnection verifies the provider answers a trivial prompt.
func (c *Client) TestConnection(ctx context.Context) error {
	_, err := c.complete(ctx, "test_connection", CompletionRequest{
		Prompt:    "Ответь одним словом: ок",
		MaxTokens: 10,
	})
	return err
}
