// Package extractor recovers the main article body from arbitrary web pages.
// Strategies are tried in order until one passes the quality gate; outcomes
// feed a per-host learning memory that lets subsequent visits shortcut to
// whatever worked last time. When a host keeps failing, an AI-assisted
// selector discovery pass proposes new selectors for the memory.
package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	readability "github.com/go-shiori/go-readability"

	"newsflow/internal/infra/httpclient"
	"newsflow/internal/observability/metrics"
	"newsflow/internal/resilience/circuitbreaker"
	"newsflow/internal/utils/text"
)

// ErrNoContent reports that every strategy failed the quality gate. This is
// an expected outcome, not a pipeline failure.
var ErrNoContent = errors.New("no extractable content")

// Result is one successful extraction.
type Result struct {
	Content         string
	Strategy        string
	Selector        string
	PublicationDate *time.Time
	FullArticleURL  string

	// HTML is the raw page markup, kept for the AI-assisted secondary
	// operations (date and full-article-link extraction).
	HTML string
}

// Config toggles the optional extraction paths.
type Config struct {
	LearningEnabled bool
	BrowserEnabled  bool
}

// DefaultConfig enables learning and the browser path.
func DefaultConfig() Config {
	return Config{LearningEnabled: true, BrowserEnabled: true}
}

// Extractor is the multi-strategy content extractor.
type Extractor struct {
	client   *httpclient.Client
	browser  *Browser
	memory   *MemoryStore
	analyzer PageAnalyzer
	breaker  *circuitbreaker.CircuitBreaker
	cfg      Config
	logger   *slog.Logger

	now func() time.Time
}

// New creates an Extractor. browser and analyzer may be nil; the matching
// strategies are skipped.
func New(client *httpclient.Client, browser *Browser, memory *MemoryStore, analyzer PageAnalyzer, cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		client:   client,
		browser:  browser,
		memory:   memory,
		analyzer: analyzer,
		breaker:  circuitbreaker.New(circuitbreaker.ExtractorConfig()),
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Extract fetches the URL and returns the article body after the quality
// gate, or ErrNoContent when every strategy fails.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (*Result, error) {
	start := time.Now()
	defer func() { metrics.ExtractionDuration.Observe(time.Since(start).Seconds()) }()

	cleanURL, changed := text.CleanURL(rawURL)
	if changed {
		e.logger.Warn("anomalous URL corrected",
			slog.String("raw", rawURL),
			slog.String("cleaned", cleanURL))
	}
	parsed, err := url.Parse(cleanURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	host := parsed.Hostname()

	html, err := e.fetch(ctx, cleanURL)
	if err != nil {
		// A dead page still counts as a failed attempt for the host.
		e.memory.RecordFailure(ctx, host, StrategyDirect)
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	if res := e.tryLearned(ctx, host, doc, html); res != nil {
		return res, nil
	}
	if res := e.tryStatic(ctx, host, parsed, doc, html); res != nil {
		return res, nil
	}
	if res := e.tryBrowser(ctx, host, cleanURL); res != nil {
		return res, nil
	}
	if res := e.tryDiscovery(ctx, host, cleanURL, doc, html); res != nil {
		return res, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrNoContent, cleanURL)
}

func (e *Extractor) fetch(ctx context.Context, pageURL string) (string, error) {
	result, err := e.breaker.Execute(func() (interface{}, error) {
		return e.client.FetchText(ctx, pageURL, httpclient.BrowserHeaders())
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// tryLearned shortcuts through the host's best method and top selectors
// before the full strategy list runs.
func (e *Extractor) tryLearned(ctx context.Context, host string, doc *goquery.Document, html string) *Result {
	if !e.cfg.LearningEnabled {
		return nil
	}
	for _, key := range e.memory.TopSelectors(ctx, host) {
		strategy, selector, ok := strings.Cut(key, ":")
		if !ok || selector == "" {
			continue
		}
		content, matched := selectorText(doc, []string{selector})
		if matched == "" || !IsGoodContent(content) {
			continue
		}
		e.accept(ctx, host, strategy, selector)
		return e.result(content, strategy, selector, doc, html)
	}
	return nil
}

// tryStatic runs strategies 1-5 on the fetched document.
func (e *Extractor) tryStatic(ctx context.Context, host string, pageURL *url.URL, doc *goquery.Document, html string) *Result {
	// 1. Direct selector extraction.
	if content, selector := extractDirect(doc); IsGoodContent(content) {
		e.accept(ctx, host, StrategyDirect, selector)
		return e.result(content, StrategyDirect, selector, doc, html)
	}
	e.fail(ctx, host, StrategyDirect)

	// 2. Readability main-content algorithm.
	if article, err := readability.FromReader(bytes.NewReader([]byte(html)), pageURL); err == nil {
		content := text.NormalizeWhitespace(article.TextContent)
		if IsGoodContent(content) {
			e.accept(ctx, host, StrategyReadability, "")
			return e.result(content, StrategyReadability, "", doc, html)
		}
	}
	e.fail(ctx, host, StrategyReadability)

	// 3. Heuristic container scoring.
	if content := extractHeuristic(doc); IsGoodContent(content) {
		e.accept(ctx, host, StrategyHeuristic, "")
		return e.result(content, StrategyHeuristic, "", doc, html)
	}
	e.fail(ctx, host, StrategyHeuristic)

	// 4. JSON-LD structured data.
	if content, _ := extractJSONLD(doc); IsGoodContent(content) {
		e.accept(ctx, host, StrategyJSONLD, "")
		return e.result(content, StrategyJSONLD, "", doc, html)
	}
	e.fail(ctx, host, StrategyJSONLD)

	// 5. Open Graph / meta description fallback. The gate is relaxed to the
	// length floor: meta descriptions are minimum viable content.
	if content := extractMeta(doc); text.CountRunes(content) >= MinContentLength {
		e.accept(ctx, host, StrategyMeta, "")
		return e.result(content, StrategyMeta, "", doc, html)
	}
	e.fail(ctx, host, StrategyMeta)

	return nil
}

// tryBrowser renders the page in the shared headless browser and reruns the
// selector strategies on the rendered DOM.
func (e *Extractor) tryBrowser(ctx context.Context, host, pageURL string) *Result {
	if !e.cfg.BrowserEnabled || e.browser == nil {
		return nil
	}

	html, err := e.browser.RenderHTML(ctx, pageURL)
	if err != nil {
		e.logger.Debug("browser render failed",
			slog.String("url", pageURL), slog.Any("error", err))
		e.fail(ctx, host, StrategyBrowser)
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		e.fail(ctx, host, StrategyBrowser)
		return nil
	}

	// Learned selectors first, then the base list, on the rendered DOM.
	selectors := make([]string, 0, len(baseSelectors)+4)
	for _, key := range e.memory.TopSelectors(ctx, host) {
		if _, selector, ok := strings.Cut(key, ":"); ok && selector != "" {
			selectors = append(selectors, selector)
		}
	}
	selectors = append(selectors, baseSelectors...)

	if content, selector := selectorText(doc, selectors); IsGoodContent(content) {
		e.accept(ctx, host, StrategyBrowser, selector)
		return e.result(content, StrategyBrowser, selector, doc, html)
	}
	if content := extractHeuristic(doc); IsGoodContent(content) {
		e.accept(ctx, host, StrategyBrowser, "")
		return e.result(content, StrategyBrowser, "", doc, html)
	}

	e.fail(ctx, host, StrategyBrowser)
	return nil
}

// tryDiscovery asks the AI for selectors once the host has accumulated
// enough failures, validates the proposals against the current page, and
// persists accepted selectors into the memory.
func (e *Extractor) tryDiscovery(ctx context.Context, host, pageURL string, doc *goquery.Document, html string) *Result {
	if !e.cfg.LearningEnabled || e.analyzer == nil {
		return nil
	}
	if !e.memory.ShouldDiscover(ctx, host, e.now()) {
		return nil
	}

	suggestion, err := e.analyzer.DiscoverSelectors(ctx, sanitizeHTMLSample(html), pageURL)
	if err != nil {
		e.logger.Warn("selector discovery failed",
			slog.String("host", host), slog.Any("error", err))
		return nil
	}

	for _, selector := range suggestion.ContentSelectors {
		content, matched := selectorText(doc, []string{selector})
		if matched == "" || !IsGoodContent(content) {
			continue
		}
		e.memory.MarkAIAnalysis(ctx, host, StrategyDiscovered, []string{selector}, e.now())
		e.accept(ctx, host, StrategyDiscovered, selector)
		e.logger.Info("AI-discovered selector accepted",
			slog.String("host", host),
			slog.String("selector", selector),
			slog.String("page_type", suggestion.PageType))
		return e.result(content, StrategyDiscovered, selector, doc, html)
	}

	// Nothing validated; remember the analysis so the cooldown applies.
	e.memory.MarkAIAnalysis(ctx, host, StrategyDiscovered, nil, e.now())
	return nil
}

func (e *Extractor) accept(ctx context.Context, host, strategy, selector string) {
	metrics.RecordExtraction(strategy, true)
	e.memory.RecordSuccess(ctx, host, strategy, selector)
}

func (e *Extractor) fail(ctx context.Context, host, strategy string) {
	metrics.RecordExtraction(strategy, false)
	e.memory.RecordFailure(ctx, host, strategy)
}

// result assembles the accepted Result with cleaned content and any cheap
// metadata available on the page.
func (e *Extractor) result(content, strategy, selector string, doc *goquery.Document, html string) *Result {
	res := &Result{
		Content:  CleanContent(content),
		Strategy: strategy,
		Selector: selector,
		HTML:     html,
	}
	if raw := metaPublishedTime(doc); raw != "" {
		if parsed, err := dateparse.ParseAny(raw); err == nil {
			utc := parsed.UTC()
			res.PublicationDate = &utc
		}
	} else if _, ldDate := extractJSONLD(doc); ldDate != "" {
		if parsed, err := dateparse.ParseAny(ldDate); err == nil {
			utc := parsed.UTC()
			res.PublicationDate = &utc
		}
	}
	return res
}

// AIPublicationDate runs the AI-assisted publication date extraction with
// the article:published_time meta hint preferred and the confidence gate
// applied.
func (e *Extractor) AIPublicationDate(ctx context.Context, html, pageURL string) (*time.Time, error) {
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
		if raw := metaPublishedTime(doc); raw != "" {
			if parsed, err := dateparse.ParseAny(raw); err == nil {
				utc := parsed.UTC()
				return &utc, nil
			}
		}
	}
	if e.analyzer == nil {
		return nil, nil
	}
	result, err := e.analyzer.ExtractPublicationDate(ctx, sanitizeHTMLSample(html), pageURL)
	if err != nil {
		return nil, err
	}
	if result == nil || result.Confidence < minAIConfidence {
		return nil, nil
	}
	utc := result.Date.UTC()
	return &utc, nil
}

// AIFullArticleLink runs the AI-assisted full-article-link extraction,
// rejecting relative URLs and low-confidence answers.
func (e *Extractor) AIFullArticleLink(ctx context.Context, html, baseURL string) (string, error) {
	if e.analyzer == nil {
		return "", nil
	}
	result, err := e.analyzer.ExtractFullArticleLink(ctx, sanitizeHTMLSample(html), baseURL)
	if err != nil {
		return "", err
	}
	if result == nil || result.Confidence < minAIConfidence {
		return "", nil
	}
	parsed, err := url.Parse(result.URL)
	if err != nil || !parsed.IsAbs() {
		return "", nil
	}
	return result.URL, nil
}

// Memory exposes the learning store for the stats endpoint.
func (e *Extractor) Memory() *MemoryStore { return e.memory }
