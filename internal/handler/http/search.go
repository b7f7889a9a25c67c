package handler

import (
	"net/http"
	"strings"

	"newsflow/internal/handler/http/respond"
	"newsflow/internal/repository"
	"newsflow/internal/usecase/categories"
)

// SearchHandler serves GET /search: AND-of-words substring matching over
// title/summary/content with relevance = 3·title + 2·summary + 1·content.
type SearchHandler struct {
	Articles   repository.ArticleRepository
	Categories *categories.Service
}

func (h SearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	query := strings.TrimSpace(q.Get("q"))
	if query == "" {
		respond.JSON(w, http.StatusBadRequest, map[string]string{"error": "q is required"})
		return
	}

	sort := q.Get("sort")
	switch sort {
	case "", "relevance":
		sort = "relevance"
	case "date", "title":
	default:
		respond.JSON(w, http.StatusBadRequest, map[string]string{"error": "sort must be relevance, date, or title"})
		return
	}

	filter := repository.SearchFilter{
		Keywords:   strings.Fields(query),
		Limit:      clampedInt(q.Get("limit"), defaultFeedLimit, 1, maxFeedLimit),
		Offset:     clampedInt(q.Get("offset"), 0, 0, 1<<30),
		SinceHours: clampedInt(q.Get("since_hours"), 0, 0, 24*365),
		HideAds:    q.Get("hide_ads") == "true",
		Sort:       sort,
	}
	categoryFilter := strings.TrimSpace(q.Get("category"))

	rows, err := h.Articles.Search(ctx, filter)
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
		"query":    query,
		"articles": out,
		"count":    len(out),
	})
}
