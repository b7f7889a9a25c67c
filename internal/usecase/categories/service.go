// Package categories maps free-form AI labels onto the fixed display
// taxonomy at read time. Storage keeps the raw labels; policy changes (new
// operator mappings) apply instantly to historical data.
package categories

import (
	"context"
	_ "embed"
	"errors"
	"log/slog"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"newsflow/internal/domain/entity"
	"newsflow/internal/repository"
)

//go:embed keywords.yaml
var keywordsYAML []byte

// The closed display taxonomy. Other is the terminal fallback.
const (
	CategorySerbia        = "Serbia"
	CategoryTech          = "Tech"
	CategoryBusiness      = "Business"
	CategoryScience       = "Science"
	CategoryPolitics      = "Politics"
	CategoryInternational = "International"
	CategoryOther         = "Other"
)

// FixedCategories is the closed set with display metadata.
var FixedCategories = map[string]entity.Category{
	CategorySerbia:        {Name: CategorySerbia, DisplayName: "Сербия", Color: "#dc3545"},
	CategoryTech:          {Name: CategoryTech, DisplayName: "Технологии", Color: "#007bff"},
	CategoryBusiness:      {Name: CategoryBusiness, DisplayName: "Бизнес", Color: "#28a745"},
	CategoryScience:       {Name: CategoryScience, DisplayName: "Наука", Color: "#6f42c1"},
	CategoryPolitics:      {Name: CategoryPolitics, DisplayName: "Политика", Color: "#839933"},
	CategoryInternational: {Name: CategoryInternational, DisplayName: "Международные", Color: "#cd51bc"},
	CategoryOther:         {Name: CategoryOther, DisplayName: "Прочее", Color: "#6c757d"},
}

// tiePriority orders fallback winners when keyword scores tie.
var tiePriority = []string{
	CategorySerbia, CategoryScience, CategoryTech, CategoryBusiness, CategoryOther,
}

// DisplayCategory is one mapped label with its merged confidence.
type DisplayCategory struct {
	Name        string  `json:"name"`
	DisplayName string  `json:"display_name"`
	Color       string  `json:"color"`
	Confidence  float64 `json:"confidence"`
	AICategory  string  `json:"ai_category"`
}

// Service performs the read-time mapping.
type Service struct {
	Repo   repository.CategoryRepository
	Logger *slog.Logger

	keywords map[string]string
	now      func() time.Time
}

// NewService creates the display mapping service with the embedded keyword
// table loaded.
func NewService(repo repository.CategoryRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	keywords := map[string]string{}
	if err := yaml.Unmarshal(keywordsYAML, &keywords); err != nil {
		// The embedded table is compile-time data; failure here is a build
		// defect, but the service still functions via the Other sink.
		logger.Error("embedded keyword table failed to parse", slog.Any("error", err))
	}
	return &Service{Repo: repo, Logger: logger, keywords: keywords, now: time.Now}
}

// MapLabel maps one raw AI label to a fixed category name. The mapping is
// total: every input lands in the closed taxonomy, with Other as the sink.
func (s *Service) MapLabel(ctx context.Context, aiLabel string) string {
	label := strings.TrimSpace(aiLabel)
	if label == "" {
		return CategoryOther
	}

	// 1. Operator mapping table, case-insensitive exact match.
	if s.Repo != nil {
		mapping, err := s.Repo.GetActiveMapping(ctx, label)
		switch {
		case err == nil:
			if _, ok := FixedCategories[mapping.FixedCategory]; ok {
				if err := s.Repo.TouchMappingUsage(ctx, mapping.ID, s.now()); err != nil {
					s.Logger.Debug("mapping usage bump failed", slog.Any("error", err))
				}
				return mapping.FixedCategory
			}
		case !errors.Is(err, entity.ErrNotFound):
			s.Logger.Debug("mapping lookup failed, falling through",
				slog.String("label", label), slog.Any("error", err))
		}
	}

	lower := strings.ToLower(label)

	// 2. Built-in dictionary, exact match.
	if fixed, ok := s.keywords[lower]; ok {
		return fixed
	}

	// 3. Built-in dictionary, substring match in either direction, scored by
	// keyword length with deterministic tie-breaking.
	scores := map[string]int{}
	for keyword, fixed := range s.keywords {
		if strings.Contains(lower, keyword) || strings.Contains(keyword, lower) {
			if len(keyword) > scores[fixed] {
				scores[fixed] = len(keyword)
			}
		}
	}
	if len(scores) > 0 {
		return bestScored(scores)
	}

	// 4. Terminal fallback.
	return CategoryOther
}

// bestScored picks the highest-scoring category; ties resolve by the fixed
// priority order.
func bestScored(scores map[string]int) string {
	best := ""
	bestScore := -1
	for _, name := range tiePriority {
		if score, ok := scores[name]; ok && score > bestScore {
			best, bestScore = name, score
		}
	}
	// Categories outside the priority list still win on a strictly higher
	// score.
	for name, score := range scores {
		if score > bestScore {
			best, bestScore = name, score
		}
	}
	if best == "" {
		return CategoryOther
	}
	return best
}

// MapArticleLabels maps an article's label rows to display categories,
// merging duplicates onto the maximum confidence. The first element is the
// article's primary display category.
func (s *Service) MapArticleLabels(ctx context.Context, labels []entity.ArticleCategory) []DisplayCategory {
	merged := map[string]DisplayCategory{}
	var order []string

	for _, label := range labels {
		name := s.MapLabel(ctx, label.AICategory)
		meta := FixedCategories[name]
		existing, seen := merged[name]
		if !seen {
			order = append(order, name)
			merged[name] = DisplayCategory{
				Name:        name,
				DisplayName: meta.DisplayName,
				Color:       meta.Color,
				Confidence:  label.Confidence,
				AICategory:  label.AICategory,
			}
			continue
		}
		if label.Confidence > existing.Confidence {
			existing.Confidence = label.Confidence
			existing.AICategory = label.AICategory
		}
		merged[name] = existing
	}

	out := make([]DisplayCategory, 0, len(order))
	for _, name := range order {
		out = append(out, merged[name])
	}
	return out
}

// Primary returns the article's primary display category, Other when the
// article has no labels.
func (s *Service) Primary(ctx context.Context, labels []entity.ArticleCategory) DisplayCategory {
	mapped := s.MapArticleLabels(ctx, labels)
	if len(mapped) == 0 {
		meta := FixedCategories[CategoryOther]
		return DisplayCategory{Name: CategoryOther, DisplayName: meta.DisplayName, Color: meta.Color}
	}
	return mapped[0]
}
