package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"newsflow/internal/domain/entity"
	"newsflow/internal/infra/ai"
	"newsflow/internal/infra/notifier"
	"newsflow/internal/infra/scraper"
	"newsflow/internal/repository"
	"newsflow/internal/usecase/enrich"
	"newsflow/internal/usecase/sources"
)

/* in-memory collaborators for the full-cycle test */

type memSources struct {
	repository.SourceRepository
	src *entity.Source
}

func (m *memSources) ListEnabled(context.Context) ([]*entity.Source, error) {
	return []*entity.Source{m.src}, nil
}

func (m *memSources) MarkFetched(_ context.Context, _ int64, at time.Time) error {
	m.src.LastFetch = &at
	return nil
}

func (m *memSources) MarkSuccess(_ context.Context, _ int64, at time.Time) error {
	m.src.LastSuccess = &at
	return nil
}

func (m *memSources) MarkError(_ context.Context, _ int64, msg string) error {
	m.src.LastError = msg
	return nil
}

type memArticles struct {
	repository.ArticleRepository
	mu     sync.Mutex
	byURL  map[string]*entity.Article
	labels map[int64][]entity.ArticleCategory
}

func newMemArticles() *memArticles {
	return &memArticles{byURL: map[string]*entity.Article{}, labels: map[int64][]entity.ArticleCategory{}}
}

func (m *memArticles) Create(_ context.Context, a *entity.Article) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byURL[a.URL]; ok {
		return entity.ErrDuplicate
	}
	a.ID = int64(len(m.byURL) + 1)
	m.byURL[a.URL] = a
	return nil
}

func (m *memArticles) ExistsByURLAny(_ context.Context, urls []string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range urls {
		if _, ok := m.byURL[u]; ok {
			return true, nil
		}
	}
	return false, nil
}

func (m *memArticles) ExistsSimilarTitle(context.Context, int64, string, time.Time) (bool, error) {
	return false, nil
}

func (m *memArticles) ListUnprocessed(context.Context, int) ([]repository.ArticleWithSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repository.ArticleWithSource
	for _, a := range m.byURL {
		if !(a.SummaryProcessed && a.CategoryProcessed && a.AdProcessed) {
			out = append(out, repository.ArticleWithSource{
				Article: a,
				Source:  &entity.Source{ID: a.SourceID, SourceType: entity.SourceTypeRSS},
			})
		}
	}
	return out, nil
}

func (m *memArticles) SaveEnrichment(_ context.Context, a *entity.Article, labels []entity.ArticleCategory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byURL[a.URL] = a
	m.labels[a.ID] = labels
	return nil
}

type memStats struct {
	repository.StatsRepository
	added []entity.ProcessingStat
}

func (m *memStats) AddDaily(_ context.Context, _ time.Time, delta entity.ProcessingStat) error {
	m.added = append(m.added, delta)
	return nil
}

type scriptedFetcher struct{ items []scraper.Item }

func (f *scriptedFetcher) FetchArticles(context.Context, int) ([]scraper.Item, error) {
	return f.items, nil
}

func (f *scriptedFetcher) TestConnection(context.Context) error { return nil }

type stubAnalyzer struct{ calls int }

func (s *stubAnalyzer) AnalyzeArticleComplete(context.Context, string, string, string) (*ai.Analysis, error) {
	s.calls++
	return &ai.Analysis{
		Summary:    "Компания Apple сообщила о значительном росте квартальной выручки и прибыли по итогам отчёта.",
		Categories: []ai.CategoryScore{{Name: "Business", Confidence: 0.9, AICategory: "Business"}},
	}, nil
}

func (s *stubAnalyzer) APICalls() int64 { return int64(s.calls) }

func TestRunFullCycle_rssHappyPath(t *testing.T) {
	srcRepo := &memSources{src: &entity.Source{
		ID: 1, Name: "feed", SourceType: entity.SourceTypeCustom,
		URL: "https://ex.com/rss", Enabled: true,
	}}
	artRepo := newMemArticles()
	statsRepo := &memStats{}
	analyzer := &stubAnalyzer{}

	registry := scraper.NewRegistry()
	registry.Register(entity.SourceTypeCustom, func(*entity.Source, scraper.Deps) (scraper.Fetcher, error) {
		return &scriptedFetcher{items: []scraper.Item{{
			Title:       "Apple earnings up",
			URL:         "https://ex.com/a1",
			Content:     strings.Repeat("Apple reported record earnings. ", 20),
			PublishedAt: time.Date(2025, 7, 29, 10, 0, 0, 0, time.UTC),
			Raw:         map[string]string{},
		}}}, nil
	})

	sourceMgr := sources.NewService(srcRepo, artRepo, registry, scraper.Deps{}, nil)
	enricher := enrich.NewService(artRepo, analyzer, nil, nil)
	svc := NewService(sourceMgr, enricher, nil, statsRepo, nil, analyzer, nil)

	report, err := svc.RunFullCycle(context.Background())
	if err != nil {
		t.Fatalf("RunFullCycle: %v", err)
	}
	if report.Fetch.Inserted != 1 || report.Enrich.Processed != 1 {
		t.Fatalf("report: fetch=%+v enrich=%+v", report.Fetch, report.Enrich)
	}

	a := artRepo.byURL["https://ex.com/a1"]
	if a == nil {
		t.Fatal("article missing")
	}
	if !a.SummaryProcessed || !a.CategoryProcessed || !a.AdProcessed {
		t.Fatalf("flags: %+v", a)
	}
	if len(artRepo.labels[a.ID]) != 1 || artRepo.labels[a.ID][0].AICategory != "Business" {
		t.Fatalf("labels: %+v", artRepo.labels[a.ID])
	}

	if len(statsRepo.added) != 1 {
		t.Fatalf("stats rows: %d", len(statsRepo.added))
	}
	delta := statsRepo.added[0]
	if delta.ArticlesFetched != 1 || delta.ArticlesProcessed < 1 {
		t.Fatalf("stats delta: %+v", delta)
	}
	if delta.APICallsMade < 1 {
		t.Fatalf("api calls not recorded: %+v", delta)
	}
}

type stubSender struct {
	sent   []string
	failOn int
}

func (s *stubSender) SendDigestPart(_ context.Context, html string, _ []notifier.Button) error {
	if s.failOn > 0 && len(s.sent)+1 == s.failOn {
		return errors.New("telegram unavailable")
	}
	s.sent = append(s.sent, html)
	return nil
}

func TestSendTelegramDigest_requiresSender(t *testing.T) {
	svc := &Service{}
	if _, err := svc.SendTelegramDigest(context.Background()); err == nil {
		t.Fatal("missing sender must error")
	}
}
