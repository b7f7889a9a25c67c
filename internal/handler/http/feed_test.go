package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"newsflow/internal/domain/entity"
	"newsflow/internal/repository"
	"newsflow/internal/usecase/categories"
)

type stubArticles struct {
	repository.ArticleRepository
	feed      []repository.ArticleWithLabels
	labels    []repository.LabelRow
	adCount   int64
	gotFilter repository.FeedFilter
}

func (s *stubArticles) ListFeed(_ context.Context, filter repository.FeedFilter) ([]repository.ArticleWithLabels, error) {
	s.gotFilter = filter
	if filter.HideAds {
		var out []repository.ArticleWithLabels
		for _, row := range s.feed {
			if !row.Article.IsAdvertisement {
				out = append(out, row)
			}
		}
		return out, nil
	}
	return s.feed, nil
}

func (s *stubArticles) ListLabelRows(context.Context, int) ([]repository.LabelRow, error) {
	return s.labels, nil
}

func (s *stubArticles) CountAdvertisements(context.Context, int) (int64, error) {
	return s.adCount, nil
}

func feedFixture() []repository.ArticleWithLabels {
	return []repository.ArticleWithLabels{
		{
			Article: &entity.Article{
				ID: 1, SourceID: 1, Title: "Новости бизнеса",
				URL: "https://ex.com/1", PublishedAt: time.Now(),
			},
			Labels: []entity.ArticleCategory{{AICategory: "business", Confidence: 0.9}},
		},
		{
			Article: &entity.Article{
				ID: 2, SourceID: 1, Title: "Только сегодня! Скидки",
				URL: "https://ex.com/2", PublishedAt: time.Now(),
				IsAdvertisement: true, AdConfidence: 0.85,
			},
			Labels: nil,
		},
	}
}

func TestFeedHandler_mapsDisplayCategories(t *testing.T) {
	repo := &stubArticles{feed: feedFixture()}
	h := FeedHandler{Articles: repo, Categories: categories.NewService(nil, nil)}

	req := httptest.NewRequest(http.MethodGet, "/feed?limit=10", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var body struct {
		Articles []ArticleDTO `json:"articles"`
		Count    int          `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 2 {
		t.Fatalf("count=%d", body.Count)
	}
	if len(body.Articles[0].Categories) != 1 || body.Articles[0].Categories[0].Name != "Business" {
		t.Fatalf("display mapping missing: %+v", body.Articles[0].Categories)
	}
	// Content must not leak into the feed listing.
	if body.Articles[0].Content != "" {
		t.Fatal("feed must omit full content")
	}
}

func TestFeedHandler_hideAds(t *testing.T) {
	repo := &stubArticles{feed: feedFixture()}
	h := FeedHandler{Articles: repo, Categories: categories.NewService(nil, nil)}

	req := httptest.NewRequest(http.MethodGet, "/feed?hide_ads=true", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body struct {
		Articles []ArticleDTO `json:"articles"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	for _, a := range body.Articles {
		if a.IsAdvertisement {
			t.Fatalf("hide_ads leaked an ad: %+v", a)
		}
	}
	if !repo.gotFilter.HideAds {
		t.Fatal("hide_ads flag not forwarded to the repository")
	}
}

func TestCategoriesHandler_countsAndAdsPseudoCategory(t *testing.T) {
	repo := &stubArticles{
		labels: []repository.LabelRow{
			{ArticleID: 1, AICategory: "business", Confidence: 0.9},
			{ArticleID: 1, AICategory: "economy", Confidence: 0.8}, // same article, same display cat
			{ArticleID: 3, AICategory: "serbia", Confidence: 0.7},
		},
		adCount: 1,
	}
	h := CategoriesHandler{Articles: repo, Categories: categories.NewService(nil, nil)}

	req := httptest.NewRequest(http.MethodGet, "/categories", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body struct {
		Categories []categoryCount `json:"categories"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}

	counts := map[string]int64{}
	for _, c := range body.Categories {
		counts[c.Name] = c.Count
	}
	if counts["Business"] != 1 {
		t.Fatalf("Business count: %d (same article must not double-count)", counts["Business"])
	}
	if counts["Serbia"] != 1 {
		t.Fatalf("Serbia count: %d", counts["Serbia"])
	}
	if counts["advertisements"] != 1 {
		t.Fatalf("advertisements pseudo-category: %d", counts["advertisements"])
	}
}

func TestSearchHandler_validation(t *testing.T) {
	h := SearchHandler{Articles: &stubArticles{}, Categories: categories.NewService(nil, nil)}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing q must 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search?q=apple&sort=bogus", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad sort must 400, got %d", rec.Code)
	}
}

func TestClampedInt(t *testing.T) {
	if got := clampedInt("", 20, 1, 100); got != 20 {
		t.Fatalf("default: %d", got)
	}
	if got := clampedInt("9999", 20, 1, 100); got != 100 {
		t.Fatalf("clamp high: %d", got)
	}
	if got := clampedInt("-5", 20, 0, 100); got != 0 {
		t.Fatalf("clamp low: %d", got)
	}
	if got := clampedInt("abc", 20, 1, 100); got != 20 {
		t.Fatalf("junk falls back to default: %d", got)
	}
}
