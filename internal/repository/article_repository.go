// Package repository defines persistence interfaces consumed by the use case
// layer. Implementations live under internal/infra/adapter/persistence and
// route every statement through the database queue.
package repository

import (
	"context"
	"time"

	"newsflow/internal/domain/entity"
)

// FeedFilter narrows the feed listing.
type FeedFilter struct {
	Limit      int
	Offset     int
	SinceHours int
	SourceID   *int64
	HideAds    bool
}

// SearchFilter narrows the substring search. Keywords are AND-combined.
type SearchFilter struct {
	Keywords   []string
	Limit      int
	Offset     int
	SinceHours int
	HideAds    bool
	Sort       string // relevance | date | title
}

// ArticleWithLabels pairs an article with its raw category label rows for
// read-time display mapping.
type ArticleWithLabels struct {
	Article *entity.Article
	Labels  []entity.ArticleCategory
}

// ArticleWithSource pairs an article with its eagerly loaded source.
type ArticleWithSource struct {
	Article *entity.Article
	Source  *entity.Source
}

// LabelRow is one raw AI label occurrence used for category counting.
type LabelRow struct {
	ArticleID  int64
	AICategory string
	CategoryID *int64
	Confidence float64
}

// ArticleRepository persists articles and their category labels.
type ArticleRepository interface {
	Create(ctx context.Context, article *entity.Article) error
	Get(ctx context.Context, id int64) (*entity.Article, error)
	GetWithLabels(ctx context.Context, id int64) (*ArticleWithLabels, error)

	// ExistsByURLAny reports whether any of the candidate URL variants is
	// already stored. One IN-query for the whole batch.
	ExistsByURLAny(ctx context.Context, urls []string) (bool, error)

	// ExistsSimilarTitle reports a same-source case-insensitive exact title
	// match within the recent window.
	ExistsSimilarTitle(ctx context.Context, sourceID int64, title string, since time.Time) (bool, error)

	// ListUnprocessed returns articles with at least one processing flag
	// still false, each with its source loaded eagerly.
	ListUnprocessed(ctx context.Context, limit int) ([]ArticleWithSource, error)

	// SaveEnrichment atomically applies the enrichment result: article
	// field updates, flag flips, and category label rows, in one transaction.
	SaveEnrichment(ctx context.Context, article *entity.Article, labels []entity.ArticleCategory) error

	// ListFeed returns feed articles with label rows, newest first.
	ListFeed(ctx context.Context, filter FeedFilter) ([]ArticleWithLabels, error)

	// Search performs AND-of-keywords substring matching over
	// title/summary/content with the given sort.
	Search(ctx context.Context, filter SearchFilter) ([]ArticleWithLabels, error)

	// ListForDate returns enriched articles published on the given day.
	ListForDate(ctx context.Context, day time.Time) ([]ArticleWithLabels, error)

	// ListLabelRows returns raw label rows for category counting.
	ListLabelRows(ctx context.Context, sinceHours int) ([]LabelRow, error)

	// CountAdvertisements counts flagged advertisement articles.
	CountAdvertisements(ctx context.Context, sinceHours int) (int64, error)

	// ListReprocessCandidates finds articles whose extraction likely
	// collapsed: title equals summary or content shorter than minContent.
	ListReprocessCandidates(ctx context.Context, minContent int, limit int) ([]ArticleWithSource, error)

	// ResetProcessingFlags clears all three flags for the given articles
	// (operator force path only).
	ResetProcessingFlags(ctx context.Context, ids []int64) error

	// UpdateContent replaces article content after a re-extraction.
	UpdateContent(ctx context.Context, id int64, content string) error

	DeleteBySource(ctx context.Context, sourceID int64) error
	DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error)
	CountAll(ctx context.Context) (int64, error)
}
