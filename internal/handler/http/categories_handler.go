package handler

import (
	"net/http"

	"newsflow/internal/handler/http/respond"
	"newsflow/internal/repository"
	"newsflow/internal/usecase/categories"
)

// CategoriesHandler serves GET /categories: article counts per fixed
// category plus the advertisements pseudo-category.
type CategoriesHandler struct {
	Articles   repository.ArticleRepository
	Categories *categories.Service
}

type categoryCount struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Color       string `json:"color"`
	Count       int64  `json:"count"`
}

func (h CategoriesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sinceHours := clampedInt(r.URL.Query().Get("since_hours"), 0, 0, 24*365)

	rows, err := h.Articles.ListLabelRows(ctx, sinceHours)
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}

	// Count distinct articles per mapped display category.
	perCategory := map[string]map[int64]bool{}
	for _, row := range rows {
		name := h.Categories.MapLabel(ctx, row.AICategory)
		if perCategory[name] == nil {
			perCategory[name] = map[int64]bool{}
		}
		perCategory[name][row.ArticleID] = true
	}

	out := make([]categoryCount, 0, len(categories.FixedCategories)+1)
	for _, name := range []string{
		categories.CategorySerbia, categories.CategoryTech, categories.CategoryBusiness,
		categories.CategoryScience, categories.CategoryPolitics,
		categories.CategoryInternational, categories.CategoryOther,
	} {
		meta := categories.FixedCategories[name]
		out = append(out, categoryCount{
			Name:        name,
			DisplayName: meta.DisplayName,
			Color:       meta.Color,
			Count:       int64(len(perCategory[name])),
		})
	}

	ads, err := h.Articles.CountAdvertisements(ctx, sinceHours)
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	out = append(out, categoryCount{
		Name:        "advertisements",
		DisplayName: "Реклама",
		Color:       "#ffc107",
		Count:       ads,
	})

	respond.JSON(w, http.StatusOK, map[string]any{"categories": out})
}
