package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"
	"github.com/sony/gobreaker"

	"newsflow/internal/domain/entity"
	"newsflow/internal/infra/httpclient"
	"newsflow/internal/resilience/circuitbreaker"
	"newsflow/internal/resilience/retry"
	"newsflow/internal/utils/text"
)

const rssDefaultLimit = 50

// RSSFetcher parses RSS/Atom feeds with the gofeed library, wrapped in
// circuit breaker and retry logic.
type RSSFetcher struct {
	source         *entity.Source
	client         *httpclient.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

func newRSSFetcher(src *entity.Source, deps Deps) (Fetcher, error) {
	return &RSSFetcher{
		source:         src,
		client:         deps.Client,
		circuitBreaker: circuitbreaker.New(circuitbreaker.FeedFetchConfig()),
		retryConfig:    retry.HTTPConfig(),
	}, nil
}

// FetchArticles retrieves and parses the feed, normalizing each entry.
func (f *RSSFetcher) FetchArticles(ctx context.Context, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = rssDefaultLimit
	}

	feed, err := f.fetchFeed(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(feed.Items))
	for i, entry := range feed.Items {
		if len(items) >= limit {
			break
		}
		item, err := f.normalize(entry)
		if err != nil {
			// Parse failures skip the item, never the batch.
			slog.Warn("skipping malformed feed entry",
				slog.String("feed", f.source.URL),
				slog.Int("index", i),
				slog.Any("error", err))
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (f *RSSFetcher) fetchFeed(ctx context.Context) (*gofeed.Feed, error) {
	var feed *gofeed.Feed

	retryErr := retry.WithBackoff(ctx, f.retryConfig, func() error {
		result, err := f.circuitBreaker.Execute(func() (interface{}, error) {
			return f.doFetch(ctx)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				slog.Warn("feed fetch circuit breaker open, request rejected",
					slog.String("url", f.source.URL),
					slog.String("state", f.circuitBreaker.State().String()))
			}
			return err
		}
		feed = result.(*gofeed.Feed)
		return nil
	})
	if retryErr != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", f.source.URL, retryErr)
	}
	return feed, nil
}

func (f *RSSFetcher) doFetch(ctx context.Context) (*gofeed.Feed, error) {
	body, err := f.client.FetchText(ctx, f.source.URL, nil)
	if err != nil {
		return nil, err
	}
	feed, err := gofeed.NewParser().ParseString(body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

func (f *RSSFetcher) normalize(entry *gofeed.Item) (Item, error) {
	link, _ := text.CleanURL(entry.Link)
	if link == "" {
		return Item{}, fmt.Errorf("entry has no link")
	}

	// Content preferred over description.
	content := entry.Content
	if content == "" {
		content = entry.Description
	}

	item := Item{
		Title:       strings.TrimSpace(entry.Title),
		URL:         link,
		Content:     content,
		PublishedAt: f.publishedAt(entry),
		ImageURL:    feedImage(entry),
		Raw:         map[string]string{},
	}
	if entry.GUID != "" {
		item.Raw[RawGUID] = entry.GUID
	}
	if entry.Author != nil && entry.Author.Name != "" {
		item.Raw[RawAuthor] = entry.Author.Name
	}
	if len(entry.Categories) > 0 {
		item.Raw[RawTags] = strings.Join(entry.Categories, ",")
	}
	return item, nil
}

// publishedAt normalizes the entry date to naive UTC, defaulting to now for
// entries without one.
func (f *RSSFetcher) publishedAt(entry *gofeed.Item) time.Time {
	if entry.PublishedParsed != nil {
		return entry.PublishedParsed.UTC()
	}
	if entry.UpdatedParsed != nil {
		return entry.UpdatedParsed.UTC()
	}
	// Some feeds carry nonstandard date strings gofeed leaves unparsed.
	for _, raw := range []string{entry.Published, entry.Updated} {
		if raw == "" {
			continue
		}
		if parsed, err := dateparse.ParseAny(raw); err == nil {
			return parsed.UTC()
		}
	}
	return time.Now().UTC()
}

// feedImage picks the first image enclosure or media attachment.
func feedImage(entry *gofeed.Item) string {
	for _, enc := range entry.Enclosures {
		if strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			return enc.URL
		}
	}
	if entry.Image != nil {
		return entry.Image.URL
	}
	return ""
}

// TestConnection verifies the feed fetches and parses with at least one
// entry, or at minimum parses cleanly.
func (f *RSSFetcher) TestConnection(ctx context.Context) error {
	feed, err := f.fetchFeed(ctx)
	if err != nil {
		return err
	}
	if len(feed.Items) == 0 {
		slog.Info("feed parses but has no entries", slog.String("url", f.source.URL))
	}
	return nil
}
