package handler

import (
	"net/http"
	"strconv"
	"strings"

	"newsflow/internal/handler/http/respond"
	"newsflow/internal/repository"
	"newsflow/internal/usecase/categories"
)

const (
	defaultFeedLimit = 20
	maxFeedLimit     = 100
)

// FeedHandler serves GET /feed: the paginated article list with mapped
// display categories.
type FeedHandler struct {
	Articles   repository.ArticleRepository
	Categories *categories.Service
}

func (h FeedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filter := repository.FeedFilter{
		Limit:      clampedInt(q.Get("limit"), defaultFeedLimit, 1, maxFeedLimit),
		Offset:     clampedInt(q.Get("offset"), 0, 0, 1<<30),
		SinceHours: clampedInt(q.Get("since_hours"), 0, 0, 24*365),
		HideAds:    q.Get("hide_ads") == "true",
	}
	if raw := q.Get("source"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter.SourceID = &id
		}
	}
	categoryFilter := strings.TrimSpace(q.Get("category"))

	// Over-fetch when filtering by display category: mapping happens at
	// read time, after the SQL page is cut.
	if categoryFilter != "" {
		filter.Limit = maxFeedLimit
	}

	rows, err := h.Articles.ListFeed(ctx, filter)
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}

	out := make([]ArticleDTO, 0, len(rows))
	for _, row := range rows {
		display := h.Categories.MapArticleLabels(ctx, row.Labels)
		if categoryFilter != "" && !hasCategory(display, categoryFilter) {
			continue
		}
		out = append(out, articleDTO(row, display, false))
	}
	respond.JSON(w, http.StatusOK, map[string]any{
		"articles": out,
		"count":    len(out),
	})
}

func hasCategory(display []categories.DisplayCategory, name string) bool {
	for _, c := range display {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

// ArticleHandler serves GET /article/{id}: the full article with content and
// media.
type ArticleHandler struct {
	Articles   repository.ArticleRepository
	Categories *categories.Service
}

func (h ArticleHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		respond.JSON(w, http.StatusBadRequest, map[string]string{"error": "invalid article id"})
		return
	}

	row, err := h.Articles.GetWithLabels(ctx, id)
	if err != nil {
		respond.SafeError(w, http.StatusNotFound, err)
		return
	}
	display := h.Categories.MapArticleLabels(ctx, row.Labels)
	respond.JSON(w, http.StatusOK, articleDTO(*row, display, true))
}

func clampedInt(raw string, def, min, max int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
