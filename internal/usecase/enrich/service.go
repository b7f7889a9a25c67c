// Package enrich runs the per-article AI pass: summary, categories and
// advertising verdict, each gated by its own monotonic processing flag and
// committed atomically per article.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"newsflow/internal/domain/entity"
	"newsflow/internal/infra/ai"
	"newsflow/internal/infra/extractor"
	"newsflow/internal/repository"
	"newsflow/internal/utils/text"
)

const (
	// BatchSize caps one enrichment pass.
	BatchSize = 50

	// minContentForReprocess marks articles below this content length as
	// collapsed extractions in force mode.
	minContentForReprocess = 1000
)

// Analyzer is the slice of the AI client the processor needs.
type Analyzer interface {
	AnalyzeArticleComplete(ctx context.Context, title, content, url string) (*ai.Analysis, error)
}

// Stats aggregates one enrichment pass.
type Stats struct {
	Processed int64
	Errors    int64
	RateLimit int64
	Duration  time.Duration
}

// Service is the AI processor.
type Service struct {
	Articles  repository.ArticleRepository
	Analyzer  Analyzer
	Extractor *extractor.Extractor
	Logger    *slog.Logger

	now func() time.Time
}

// NewService creates the processor. extractor may be nil (force mode then
// skips re-extraction).
func NewService(articles repository.ArticleRepository, analyzer Analyzer, ext *extractor.Extractor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Articles:  articles,
		Analyzer:  analyzer,
		Extractor: ext,
		Logger:    logger,
		now:       time.Now,
	}
}

// ProcessUnprocessed enriches up to BatchSize pending articles. Individual
// article failures are recorded and skipped; a rate-limited provider pauses
// the pass for the retry window once, then continues.
func (s *Service) ProcessUnprocessed(ctx context.Context) (*Stats, error) {
	start := s.now()
	stats := &Stats{}

	pending, err := s.Articles.ListUnprocessed(ctx, BatchSize)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed: %w", err)
	}

	for _, row := range pending {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := s.processOne(ctx, row.Article, row.Source); err != nil {
			var rateErr *ai.RateLimitedError
			if errors.As(err, &rateErr) {
				stats.RateLimit++
				s.Logger.Warn("AI provider rate limited, pausing enrichment",
					slog.Duration("retry_after", rateErr.RetryAfter))
				select {
				case <-time.After(rateErr.RetryAfter):
					continue
				case <-ctx.Done():
					return stats, ctx.Err()
				}
			}
			stats.Errors++
			s.Logger.Warn("article enrichment failed",
				slog.Int64("article_id", row.Article.ID),
				slog.String("url", row.Article.URL),
				slog.Any("error", err))
			continue
		}
		stats.Processed++
	}

	stats.Duration = s.now().Sub(start)
	return stats, nil
}

// processOne runs the full enrichment for one article. The three updates are
// committed atomically through the repository's transaction.
func (s *Service) processOne(ctx context.Context, article *entity.Article, source *entity.Source) error {
	sourceType := s.inferSourceType(article, source)

	content := article.Content
	if strings.TrimSpace(content) == "" {
		content = article.Title
	}

	analysis, err := s.Analyzer.AnalyzeArticleComplete(ctx, article.Title, content, article.URL)
	if err != nil {
		return err
	}

	// Optimized title: only a longer, cleaner proposal replaces the
	// original.
	if t := strings.TrimSpace(analysis.OptimizedTitle); t != "" && text.CountRunes(t) > text.CountRunes(article.Title) {
		article.Title = text.SmartTruncate(t, 200)
	}

	var labels []entity.ArticleCategory

	if !article.SummaryProcessed {
		summary := analysis.Summary
		if summary == "" {
			summary = ai.ExtractiveSummary(content)
		}
		article.Summary = summary
		article.SummaryProcessed = true
	}

	if !article.CategoryProcessed {
		for _, cat := range analysis.Categories {
			labels = append(labels, entity.ArticleCategory{
				ArticleID:  article.ID,
				AICategory: cat.AICategory,
				Confidence: cat.Confidence,
			})
		}
		article.CategoryProcessed = true
	}

	if !article.AdProcessed {
		article.IsAdvertisement = analysis.IsAdvertisement
		article.AdConfidence = analysis.AdConfidence
		article.AdType = analysis.AdType
		article.AdReasoning = analysis.AdReasoning
		article.AdMarkers = analysis.AdMarkers
		article.AdProcessed = true
	}

	if err := s.Articles.SaveEnrichment(ctx, article, labels); err != nil {
		return fmt.Errorf("save enrichment (source_type %s): %w", sourceType, err)
	}
	return nil
}

// inferSourceType prefers the eagerly loaded source relation, falling back
// to URL host heuristics.
func (s *Service) inferSourceType(article *entity.Article, source *entity.Source) string {
	if source != nil && source.SourceType != "" {
		return source.SourceType
	}
	u, err := url.Parse(article.URL)
	if err != nil {
		return entity.SourceTypeRSS
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case host == "t.me" || strings.HasSuffix(host, ".t.me") || strings.Contains(host, "telegram"):
		return entity.SourceTypeTelegram
	case strings.Contains(host, "reddit"):
		return entity.SourceTypeReddit
	default:
		return entity.SourceTypeRSS
	}
}

// ReprocessFailed is the operator force path: articles whose extraction
// likely collapsed (title equals summary, or very short content) get their
// flags reset, optionally re-extracted content, and a fresh enrichment pass.
func (s *Service) ReprocessFailed(ctx context.Context, reExtract bool) (*Stats, error) {
	candidates, err := s.Articles.ListReprocessCandidates(ctx, minContentForReprocess, BatchSize)
	if err != nil {
		return nil, fmt.Errorf("list reprocess candidates: %w", err)
	}
	if len(candidates) == 0 {
		return &Stats{}, nil
	}

	ids := make([]int64, 0, len(candidates))
	for _, row := range candidates {
		ids = append(ids, row.Article.ID)
	}
	if err := s.Articles.ResetProcessingFlags(ctx, ids); err != nil {
		return nil, fmt.Errorf("reset flags: %w", err)
	}

	if reExtract && s.Extractor != nil {
		for _, row := range candidates {
			result, err := s.Extractor.Extract(ctx, row.Article.URL)
			if err != nil {
				// ContentQuality is not an error: keep the old content.
				continue
			}
			if err := s.Articles.UpdateContent(ctx, row.Article.ID, result.Content); err != nil {
				s.Logger.Warn("content update failed",
					slog.Int64("article_id", row.Article.ID), slog.Any("error", err))
			}
		}
	}

	return s.ProcessUnprocessed(ctx)
}
