// Package scraper provides the per-source-type fetchers: RSS/Atom feeds,
// Telegram public-channel previews, and generic pages without feeds. Each
// fetcher normalizes upstream items into Item values for the source manager.
package scraper

import (
	"context"
	"fmt"
	"time"

	"newsflow/internal/domain/entity"
	"newsflow/internal/infra/ai"
	"newsflow/internal/infra/extractor"
	"newsflow/internal/infra/filecache"
	"newsflow/internal/infra/httpclient"
)

// Raw side-channel keys carried on normalized items.
const (
	RawGUID         = "guid"
	RawAuthor       = "author"
	RawTags         = "tags"
	RawTelegramURL  = "telegram_url"
	RawOriginalLink = "original_link"
	RawHashtags     = "hashtags"
	RawPageType     = "page_type"
)

// Item is one normalized unit of content emitted by a fetcher.
type Item struct {
	Title       string
	URL         string
	Content     string
	ImageURL    string
	Media       []entity.MediaFile
	PublishedAt time.Time

	// Raw carries source-specific metadata (GUID, author, original link,
	// hashtags) used by deduplication and enrichment.
	Raw map[string]string

	// Advertising pre-detection (Telegram path). When AdDetected is true the
	// source manager persists the verdict with ad_processed already set.
	AdDetected      bool
	IsAdvertisement bool
	AdConfidence    float64
	AdType          string
	AdReasoning     string
	AdMarkers       []string
}

// URLVariants returns every URL under which this item may already be stored:
// the primary URL plus Telegram and original-link variants from the raw data.
func (it *Item) URLVariants() []string {
	variants := []string{it.URL}
	if v := it.Raw[RawTelegramURL]; v != "" && v != it.URL {
		variants = append(variants, v)
	}
	if v := it.Raw[RawOriginalLink]; v != "" && v != it.URL {
		variants = append(variants, v)
	}
	return variants
}

// Fetcher is the capability set every source type implements.
type Fetcher interface {
	// FetchArticles returns up to limit normalized items in the order the
	// upstream lists them; items are not sorted by date.
	// limit <= 0 means the fetcher's own default.
	FetchArticles(ctx context.Context, limit int) ([]Item, error)

	// TestConnection verifies the source is reachable and parseable.
	TestConnection(ctx context.Context) error
}

// AdDetector is the standalone advertising classifier used on the Telegram
// path before AI enrichment runs. Implemented by the ai package's client.
type AdDetector interface {
	DetectAdvertising(ctx context.Context, content string, sourceInfo map[string]string) (*ai.AdVerdict, error)
}

// Deps bundles the collaborators fetchers may need.
type Deps struct {
	Client    *httpclient.Client
	Extractor *extractor.Extractor
	Browser   *extractor.Browser
	Analyzer  extractor.PageAnalyzer
	Ads       AdDetector

	// Snapshots persists page-monitor snapshots between cycles.
	Snapshots *filecache.Cache
}

// Factory builds a fetcher for one source.
type Factory func(src *entity.Source, deps Deps) (Fetcher, error)

// Registry maps source types to fetcher factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates a registry with the built-in source types. The feed
// shapes (reddit, twitter mirrors, news_api, custom) ride the RSS fetcher:
// they are configured with feed-compatible endpoints.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(entity.SourceTypeRSS, newRSSFetcher)
	r.Register(entity.SourceTypeTelegram, newTelegramFetcher)
	r.Register(entity.SourceTypeGenericPage, newPageMonitor)
	r.Register(entity.SourceTypeReddit, newRSSFetcher)
	r.Register(entity.SourceTypeTwitter, newRSSFetcher)
	r.Register(entity.SourceTypeNewsAPI, newRSSFetcher)
	r.Register(entity.SourceTypeCustom, newRSSFetcher)
	return r
}

// Register adds or replaces a factory for a source type.
func (r *Registry) Register(sourceType string, factory Factory) {
	r.factories[sourceType] = factory
}

// Create instantiates the fetcher for the source's type.
func (r *Registry) Create(src *entity.Source, deps Deps) (Fetcher, error) {
	factory, ok := r.factories[src.SourceType]
	if !ok {
		return nil, fmt.Errorf("%w: no fetcher registered for source_type %q", entity.ErrInvalidInput, src.SourceType)
	}
	return factory(src, deps)
}

// Types lists the registered source types.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	return out
}
