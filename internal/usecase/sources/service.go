// Package sources implements the source manager: registry-driven fetching,
// in-batch and database-level deduplication, and persistence of new items.
package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"newsflow/internal/domain/entity"
	"newsflow/internal/infra/scraper"
	"newsflow/internal/observability/metrics"
	"newsflow/internal/repository"
)

// ErrSourceNotFound is returned for operations on unknown sources.
var ErrSourceNotFound = errors.New("source not found")

const (
	// defaultMaxConcurrent bounds parallel per-source fetches in one cycle.
	defaultMaxConcurrent = 5

	// titleDedupWindow is the recent window for same-source title dedup.
	titleDedupWindow = 7 * 24 * time.Hour
)

// FetchStats aggregates one fetch pass.
type FetchStats struct {
	Sources    int
	Items      int64
	Inserted   int64
	Duplicated int64
	Errors     int64
	Duration   time.Duration
}

// Service is the source manager.
type Service struct {
	Sources  repository.SourceRepository
	Articles repository.ArticleRepository
	Registry *scraper.Registry
	Deps     scraper.Deps
	Logger   *slog.Logger

	MaxConcurrent int
	now           func() time.Time
}

// NewService creates the manager.
func NewService(sources repository.SourceRepository, articles repository.ArticleRepository, registry *scraper.Registry, deps scraper.Deps, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Sources:       sources,
		Articles:      articles,
		Registry:      registry,
		Deps:          deps,
		Logger:        logger,
		MaxConcurrent: defaultMaxConcurrent,
		now:           time.Now,
	}
}

// CreateInput carries the fields for a new source.
type CreateInput struct {
	Name                 string
	SourceType           string
	URL                  string
	Enabled              bool
	Config               map[string]string
	FetchIntervalSeconds int
}

// CreateSource validates and persists a new source.
func (s *Service) CreateSource(ctx context.Context, in CreateInput) (*entity.Source, error) {
	src := &entity.Source{
		Name:                 in.Name,
		SourceType:           in.SourceType,
		URL:                  strings.TrimSpace(in.URL),
		Enabled:              in.Enabled,
		Config:               in.Config,
		FetchIntervalSeconds: in.FetchIntervalSeconds,
	}
	if err := src.Validate(); err != nil {
		return nil, err
	}
	if err := entity.ValidateURL(src.URL); err != nil {
		return nil, fmt.Errorf("validate source URL: %w", err)
	}
	if err := s.Sources.Create(ctx, src); err != nil {
		return nil, fmt.Errorf("create source: %w", err)
	}
	return src, nil
}

// GetSources lists all sources.
func (s *Service) GetSources(ctx context.Context) ([]*entity.Source, error) {
	return s.Sources.List(ctx)
}

// UpdateInput carries partial source updates. Nil pointers leave the field
// unchanged.
type UpdateInput struct {
	ID                   int64
	Name                 *string
	URL                  *string
	SourceType           *string
	Enabled              *bool
	Config               map[string]string
	FetchIntervalSeconds *int
}

// UpdateSource applies the partial update.
func (s *Service) UpdateSource(ctx context.Context, in UpdateInput) (*entity.Source, error) {
	src, err := s.Sources.Get(ctx, in.ID)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return nil, ErrSourceNotFound
		}
		return nil, fmt.Errorf("get source: %w", err)
	}

	if in.Name != nil {
		src.Name = *in.Name
	}
	if in.URL != nil {
		if err := entity.ValidateURL(*in.URL); err != nil {
			return nil, fmt.Errorf("validate source URL: %w", err)
		}
		src.URL = *in.URL
	}
	if in.SourceType != nil {
		src.SourceType = *in.SourceType
	}
	if in.Enabled != nil {
		src.Enabled = *in.Enabled
	}
	if in.Config != nil {
		src.Config = in.Config
	}
	if in.FetchIntervalSeconds != nil {
		src.FetchIntervalSeconds = *in.FetchIntervalSeconds
	}

	if err := s.Sources.Update(ctx, src); err != nil {
		return nil, fmt.Errorf("update source: %w", err)
	}
	return src, nil
}

// DeleteSource removes a source, optionally cascading to its articles.
func (s *Service) DeleteSource(ctx context.Context, id int64, deleteArticles bool) error {
	if deleteArticles {
		if err := s.Articles.DeleteBySource(ctx, id); err != nil {
			return fmt.Errorf("delete source articles: %w", err)
		}
	}
	if err := s.Sources.Delete(ctx, id); err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return ErrSourceNotFound
		}
		return fmt.Errorf("delete source: %w", err)
	}
	return nil
}

// TestSourceConnection builds the fetcher and probes the upstream.
func (s *Service) TestSourceConnection(ctx context.Context, id int64) error {
	src, err := s.Sources.Get(ctx, id)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return ErrSourceNotFound
		}
		return err
	}
	fetcher, err := s.Registry.Create(src, s.Deps)
	if err != nil {
		return err
	}
	return fetcher.TestConnection(ctx)
}

// GetSourcesDueForFetch returns enabled sources whose interval has elapsed.
func (s *Service) GetSourcesDueForFetch(ctx context.Context) ([]*entity.Source, error) {
	enabled, err := s.Sources.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("list enabled sources: %w", err)
	}
	now := s.now()
	due := make([]*entity.Source, 0, len(enabled))
	for _, src := range enabled {
		if src.DueForFetch(now) {
			due = append(due, src)
		}
	}
	return due, nil
}

// FetchFromSource runs one per-source fetch: bookkeeping, fetch, dedup,
// persist. Returns the number of inserted articles.
func (s *Service) FetchFromSource(ctx context.Context, src *entity.Source, stats *FetchStats) (int64, error) {
	start := s.now()
	if err := s.Sources.MarkFetched(ctx, src.ID, start); err != nil {
		return 0, fmt.Errorf("mark fetched: %w", err)
	}

	inserted, err := s.fetchAndPersist(ctx, src, stats)
	metrics.RecordSourceFetch(src.SourceType, time.Since(start), err)
	if err != nil {
		atomic.AddInt64(&stats.Errors, 1)
		if markErr := s.Sources.MarkError(ctx, src.ID, err.Error()); markErr != nil {
			s.Logger.Warn("mark error failed", slog.Int64("source_id", src.ID), slog.Any("error", markErr))
		}
		return 0, fmt.Errorf("source %d (%s): %w", src.ID, src.Name, err)
	}

	if err := s.Sources.MarkSuccess(ctx, src.ID, s.now()); err != nil {
		s.Logger.Warn("mark success failed", slog.Int64("source_id", src.ID), slog.Any("error", err))
	}
	return inserted, nil
}

func (s *Service) fetchAndPersist(ctx context.Context, src *entity.Source, stats *FetchStats) (int64, error) {
	fetcher, err := s.Registry.Create(src, s.Deps)
	if err != nil {
		return 0, err
	}

	items, err := fetcher.FetchArticles(ctx, 0)
	if err != nil {
		return 0, err
	}

	// In-batch dedup state: URL variants and normalized titles seen in this
	// run.
	seenURLs := make(map[string]bool)
	seenTitles := make(map[string]bool)
	var inserted int64

	for i, item := range items {
		atomic.AddInt64(&stats.Items, 1)
		if s.isDuplicate(ctx, src, &item, seenURLs, seenTitles, stats) {
			continue
		}
		if err := s.persistItem(ctx, src, &item); err != nil {
			if errors.Is(err, entity.ErrDuplicate) {
				atomic.AddInt64(&stats.Duplicated, 1)
				continue
			}
			// One bad item does not fail the batch.
			s.Logger.Warn("persist item failed",
				slog.Int64("source_id", src.ID),
				slog.Int("index", i),
				slog.String("url", item.URL),
				slog.Any("error", err))
			atomic.AddInt64(&stats.Errors, 1)
			continue
		}
		inserted++
		atomic.AddInt64(&stats.Inserted, 1)
		metrics.ArticlesInsertedTotal.Inc()
	}
	return inserted, nil
}

// isDuplicate applies the three dedup tiers: in-batch, DB-by-URL (one
// IN-query over all variants), and the Telegram-safe same-source recent
// title check.
func (s *Service) isDuplicate(ctx context.Context, src *entity.Source, item *scraper.Item, seenURLs, seenTitles map[string]bool, stats *FetchStats) bool {
	variants := item.URLVariants()
	titleKey := strings.ToLower(strings.TrimSpace(item.Title))

	for _, u := range variants {
		if seenURLs[u] {
			atomic.AddInt64(&stats.Duplicated, 1)
			metrics.ArticlesDeduplicatedTotal.WithLabelValues("batch").Inc()
			return true
		}
	}
	if titleKey != "" && seenTitles[titleKey] {
		atomic.AddInt64(&stats.Duplicated, 1)
		metrics.ArticlesDeduplicatedTotal.WithLabelValues("batch").Inc()
		return true
	}
	for _, u := range variants {
		seenURLs[u] = true
	}
	if titleKey != "" {
		seenTitles[titleKey] = true
	}

	exists, err := s.Articles.ExistsByURLAny(ctx, variants)
	if err != nil {
		s.Logger.Warn("URL dedup check failed, keeping item",
			slog.Int64("source_id", src.ID), slog.Any("error", err))
		return false
	}
	if exists {
		atomic.AddInt64(&stats.Duplicated, 1)
		metrics.ArticlesDeduplicatedTotal.WithLabelValues("db_url").Inc()
		return true
	}

	similar, err := s.Articles.ExistsSimilarTitle(ctx, src.ID, item.Title, s.now().Add(-titleDedupWindow))
	if err != nil {
		s.Logger.Warn("title dedup check failed, keeping item",
			slog.Int64("source_id", src.ID), slog.Any("error", err))
		return false
	}
	if similar {
		atomic.AddInt64(&stats.Duplicated, 1)
		metrics.ArticlesDeduplicatedTotal.WithLabelValues("db_title").Inc()
		return true
	}
	return false
}

func (s *Service) persistItem(ctx context.Context, src *entity.Source, item *scraper.Item) error {
	article := &entity.Article{
		SourceID:    src.ID,
		Title:       item.Title,
		URL:         item.URL,
		Content:     item.Content,
		ImageURL:    item.ImageURL,
		MediaFiles:  item.Media,
		PublishedAt: item.PublishedAt,
		FetchedAt:   s.now(),
		HashContent: entity.ContentHash(item.Title, item.URL),
	}
	// The Telegram path may carry a pre-computed advertising verdict; it is
	// persisted with ad_processed already set so enrichment skips that step.
	if item.AdDetected {
		article.AdProcessed = true
		article.IsAdvertisement = item.IsAdvertisement
		article.AdConfidence = item.AdConfidence
		article.AdType = item.AdType
		article.AdReasoning = item.AdReasoning
		article.AdMarkers = item.AdMarkers
	}
	return s.Articles.Create(ctx, article)
}

// FetchFromAllSources runs per-source fetches for every due source, up to
// maxConcurrent in flight. A failed source never fails the cycle.
func (s *Service) FetchFromAllSources(ctx context.Context, maxConcurrent int) (*FetchStats, error) {
	if maxConcurrent <= 0 {
		maxConcurrent = s.MaxConcurrent
	}

	due, err := s.GetSourcesDueForFetch(ctx)
	if err != nil {
		return nil, err
	}

	stats := &FetchStats{Sources: len(due)}
	start := s.now()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(maxConcurrent)
	for _, src := range due {
		src := src
		eg.Go(func() error {
			if _, err := s.FetchFromSource(egCtx, src, stats); err != nil {
				// Isolated: logged, counted, never propagated.
				s.Logger.Warn("source fetch failed",
					slog.Int64("source_id", src.ID),
					slog.String("name", src.Name),
					slog.Any("error", err))
			}
			return nil
		})
	}
	_ = eg.Wait()

	stats.Duration = s.now().Sub(start)
	s.Logger.Info("all-sources fetch completed",
		slog.Int("sources", stats.Sources),
		slog.Int64("items", stats.Items),
		slog.Int64("inserted", stats.Inserted),
		slog.Int64("duplicated", stats.Duplicated),
		slog.Int64("errors", stats.Errors),
		slog.Duration("duration", stats.Duration))
	return stats, nil
}

// CleanupOlderThan prunes articles older than the given number of days.
func (s *Service) CleanupOlderThan(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, fmt.Errorf("%w: days must be positive", entity.ErrInvalidInput)
	}
	return s.Articles.DeleteOlderThan(ctx, time.Duration(days)*24*time.Hour)
}
