package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"newsflow/internal/domain/entity"
	"newsflow/internal/infra/extractor"
	"newsflow/internal/infra/httpclient"
	"newsflow/internal/resilience/retry"
)

const (
	telegramDefaultLimit = 20

	// shortContentThreshold gates full-content replacement: only messages
	// this short are worth fetching the external article for.
	shortContentThreshold = 200

	// replacementGainFactor requires the extracted article to be at least
	// this many times longer than the Telegram text before replacing it.
	replacementGainFactor = 2
)

// previewHosts are the public preview endpoints, tried in order.
var previewHosts = []string{"t.me", "telegram.me"}

// defaultNewsDomains is the built-in allow-list for full-content extraction
// of external links found in Telegram messages. Overridable via
// TELEGRAM_NEWS_DOMAINS.
var defaultNewsDomains = []string{
	"euronews.rs", "blic.rs", "rts.rs", "b92.net", "danas.rs",
	"politika.rs", "novosti.rs", "telegraf.rs", "alo.rs",
	"kurir.rs", "n1info.rs", "beta.rs", "tanjug.rs",
	"balkaninsight.com", "balkaninfo.rs",
}

// TelegramFetcher reads a public channel through its web preview, with an
// optional headless-browser path for channels whose previews need scripts.
type TelegramFetcher struct {
	source      *entity.Source
	channel     string
	client      *httpclient.Client
	browser     *extractor.Browser
	extractor   *extractor.Extractor
	ads         AdDetector
	retryConfig retry.Config
	newsDomains []string
	logger      *slog.Logger
}

func newTelegramFetcher(src *entity.Source, deps Deps) (Fetcher, error) {
	channel := NormalizeChannel(src.URL)
	if channel == "" {
		return nil, fmt.Errorf("%w: cannot derive channel name from %q", entity.ErrInvalidInput, src.URL)
	}
	return &TelegramFetcher{
		source:      src,
		channel:     channel,
		client:      deps.Client,
		browser:     deps.Browser,
		extractor:   deps.Extractor,
		ads:         deps.Ads,
		retryConfig: retry.TelegramConfig(),
		newsDomains: newsDomainsFromEnv(),
		logger:      slog.Default().With(slog.String("channel", channel)),
	}, nil
}

// NormalizeChannel extracts the bare channel name from any accepted input
// form: full preview URLs, bare t.me links, @names, or the plain name.
func NormalizeChannel(input string) string {
	s := strings.TrimSpace(input)
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	for _, host := range []string{"t.me/", "telegram.me/"} {
		if rest, ok := strings.CutPrefix(s, host); ok {
			s = rest
			break
		}
	}
	s = strings.TrimPrefix(s, "s/")
	s = strings.TrimPrefix(s, "@")
	if idx := strings.IndexAny(s, "/?#"); idx >= 0 {
		s = s[:idx]
	}
	return s
}

func newsDomainsFromEnv() []string {
	if raw := os.Getenv("TELEGRAM_NEWS_DOMAINS"); raw != "" {
		var out []string
		for _, d := range strings.Split(raw, ",") {
			if d = strings.TrimSpace(strings.ToLower(d)); d != "" {
				out = append(out, d)
			}
		}
		return out
	}
	return defaultNewsDomains
}

// FetchArticles loads the channel preview and parses the latest messages.
func (f *TelegramFetcher) FetchArticles(ctx context.Context, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = telegramDefaultLimit
	}

	doc, err := f.loadPreview(ctx)
	if err != nil {
		return nil, err
	}

	messages := doc.Find(".tgme_widget_message")
	if messages.Length() == 0 && f.browser != nil {
		// HTTP preview served no widgets; render with the browser and let
		// the scroll cycles load the latest messages.
		doc, err = f.loadPreviewBrowser(ctx)
		if err != nil {
			return nil, err
		}
		messages = doc.Find(".tgme_widget_message")
	}
	if messages.Length() == 0 {
		return nil, fmt.Errorf("channel %s: no messages in preview", f.channel)
	}

	pageFallback := metaDescription(doc)

	var items []Item
	messages.Each(func(i int, sel *goquery.Selection) {
		if len(items) >= limit {
			return
		}
		item, err := f.parseMessage(sel, pageFallback)
		if err != nil {
			f.logger.Warn("skipping unparseable message",
				slog.Int("index", i), slog.Any("error", err))
			return
		}
		f.maybeReplaceWithFullContent(ctx, &item)
		f.maybeDetectAdvertising(ctx, &item)
		items = append(items, item)
	})
	return items, nil
}

// loadPreview tries the standard and alternative preview domains in order,
// rotating browser headers per attempt and adding anti-cache headers on
// retries. 404 is terminal: the channel does not exist or is private.
func (f *TelegramFetcher) loadPreview(ctx context.Context) (*goquery.Document, error) {
	// Initial browser attempt wakes up JS widgets on channels that lazy-load
	// their preview; errors here fall through to plain HTTP.
	if f.browser != nil {
		if doc, err := f.loadPreviewBrowser(ctx); err == nil && doc.Find(".tgme_widget_message").Length() > 0 {
			return doc, nil
		}
	}

	var lastErr error
	for _, host := range previewHosts {
		previewURL := fmt.Sprintf("https://%s/s/%s", host, f.channel)

		var body string
		attempt := 0
		err := retry.WithBackoff(ctx, f.retryConfig, func() error {
			headers := httpclient.BrowserHeaders()
			if attempt > 0 {
				headers = httpclient.AntiCacheHeaders(headers)
			}
			attempt++

			text, err := f.client.FetchText(ctx, previewURL, headers)
			if err != nil {
				return telegramFetchError(err)
			}
			body = text
			return nil
		})
		if err != nil {
			// 404 surfaces from the retry layer as its terminal HTTPError.
			var httpErr *retry.HTTPError
			if errors.As(err, &httpErr) && httpErr.StatusCode == 404 {
				return nil, fmt.Errorf("channel %s not found or private: %w", f.channel, err)
			}
			lastErr = err
			continue
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
		if err != nil {
			lastErr = fmt.Errorf("parse preview: %w", err)
			continue
		}
		return doc, nil
	}
	return nil, fmt.Errorf("channel %s: all preview paths failed: %w", f.channel, lastErr)
}

// telegramFetchError maps client errors onto the retry taxonomy: 403 and
// 429/5xx retry (with rotated headers), 404 stays terminal.
func telegramFetchError(err error) error {
	var httpErr *httpclient.HTTPError
	if errors.As(err, &httpErr) {
		return &retry.HTTPError{StatusCode: httpErr.Status, Message: httpErr.URL}
	}
	var rateErr *httpclient.RateLimitedError
	if errors.As(err, &rateErr) {
		return &retry.HTTPError{StatusCode: 429, Message: rateErr.URL}
	}
	return err
}

func (f *TelegramFetcher) loadPreviewBrowser(ctx context.Context) (*goquery.Document, error) {
	previewURL := fmt.Sprintf("https://t.me/s/%s", f.channel)
	html, err := f.browser.RenderAndScroll(ctx, previewURL, ".tgme_widget_message")
	if err != nil {
		return nil, fmt.Errorf("browser preview: %w", err)
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// maybeReplaceWithFullContent swaps short Telegram text for the full article
// behind the original link when the link's host is on the news-domain
// allow-list and the extraction gains enough length.
func (f *TelegramFetcher) maybeReplaceWithFullContent(ctx context.Context, item *Item) {
	if f.extractor == nil {
		return
	}
	if len([]rune(item.Content)) >= shortContentThreshold {
		return
	}
	original := item.Raw[RawOriginalLink]
	if original == "" || !f.isNewsDomain(original) {
		return
	}

	result, err := f.extractor.Extract(ctx, original)
	if err != nil {
		f.logger.Debug("full content extraction failed",
			slog.String("url", original), slog.Any("error", err))
		return
	}
	if len([]rune(result.Content)) >= replacementGainFactor*len([]rune(item.Content)) {
		item.Content = result.Content
	}
}

func (f *TelegramFetcher) isNewsDomain(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, domain := range f.newsDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// maybeDetectAdvertising runs the standalone classifier so obviously
// promotional posts carry their verdict before AI enrichment.
func (f *TelegramFetcher) maybeDetectAdvertising(ctx context.Context, item *Item) {
	if f.ads == nil || item.Content == "" {
		return
	}
	verdict, err := f.ads.DetectAdvertising(ctx, item.Content, map[string]string{
		"source_type": entity.SourceTypeTelegram,
		"channel":     f.channel,
	})
	if err != nil {
		f.logger.Debug("advertising detection failed", slog.Any("error", err))
		return
	}
	item.AdDetected = true
	item.IsAdvertisement = verdict.IsAdvertisement
	item.AdConfidence = verdict.Confidence
	item.AdType = verdict.AdType
	item.AdReasoning = verdict.Reasoning
	item.AdMarkers = verdict.Markers
}

// TestConnection fetches the preview and requires at least one message.
func (f *TelegramFetcher) TestConnection(ctx context.Context) error {
	doc, err := f.loadPreview(ctx)
	if err != nil {
		return err
	}
	if doc.Find(".tgme_widget_message").Length() == 0 {
		return fmt.Errorf("channel %s: preview has no messages", f.channel)
	}
	return nil
}
