// Package digest builds the daily Telegram digest: enriched articles grouped
// by display category, narrated by the AI within strict HTML and character
// budgets, split into two balanced parts when one message cannot hold it.
package digest

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"newsflow/internal/infra/ai"
	"newsflow/internal/infra/notifier"
	"newsflow/internal/repository"
	"newsflow/internal/usecase/categories"
	"newsflow/internal/utils/text"
)

const (
	// singleMessageBudget is the character budget for a one-message digest.
	singleMessageBudget = 2600

	// partBudget is the per-part budget for a split digest.
	partBudget = 3400

	// hardMessageLimit is the Telegram cut-off with tag re-closing.
	hardMessageLimit = 4000
)

// Generator is the slice of the AI client the builder uses.
type Generator interface {
	GenerateDigest(ctx context.Context, date string, sections []ai.DigestSection, charBudget int) (string, error)
}

// Service builds digests.
type Service struct {
	Articles   repository.ArticleRepository
	Categories *categories.Service
	Generator  Generator
	Logger     *slog.Logger
}

// NewService creates the builder.
func NewService(articles repository.ArticleRepository, cats *categories.Service, gen Generator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{Articles: articles, Categories: cats, Generator: gen, Logger: logger}
}

// section pairs a display category with its articles for grouping and
// splitting.
type section struct {
	category string
	articles []ai.DigestArticle
}

// Build returns the digest message parts for the target date: one element
// for a single-message digest, two for a split one.
func (s *Service) Build(ctx context.Context, day time.Time) ([]string, error) {
	rows, err := s.Articles.ListForDate(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("load articles for %s: %w", day.Format("2006-01-02"), err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no enriched articles for %s", day.Format("2006-01-02"))
	}

	sections := s.group(ctx, rows)
	date := day.Format("02.01.2006")

	// First try one message.
	single, err := s.generatePart(ctx, date, sections, singleMessageBudget)
	if err != nil {
		return nil, err
	}
	if text.CountRunes(single) <= singleMessageBudget {
		return []string{single}, nil
	}

	// Over budget: split categories into two balanced groups and narrate
	// each part separately.
	first, second := splitSections(sections)
	partOne, err := s.generatePart(ctx, date, first, partBudget)
	if err != nil {
		return nil, err
	}
	partTwo, err := s.generatePart(ctx, date, second, partBudget)
	if err != nil {
		return nil, err
	}
	return []string{partOne, partTwo}, nil
}

// group maps article label rows onto display categories, keeping category
// encounter order stable.
func (s *Service) group(ctx context.Context, rows []repository.ArticleWithLabels) []section {
	grouped := map[string]*section{}
	var order []string

	for _, row := range rows {
		primary := s.Categories.Primary(ctx, row.Labels)
		sec, ok := grouped[primary.Name]
		if !ok {
			sec = &section{category: primary.DisplayName}
			grouped[primary.Name] = sec
			order = append(order, primary.Name)
		}
		sec.articles = append(sec.articles, ai.DigestArticle{
			Title:   row.Article.Title,
			Summary: row.Article.Summary,
			URL:     row.Article.URL,
		})
	}

	out := make([]section, 0, len(order))
	for _, name := range order {
		out = append(out, *grouped[name])
	}
	return out
}

func (s *Service) generatePart(ctx context.Context, date string, sections []section, budget int) (string, error) {
	aiSections := make([]ai.DigestSection, 0, len(sections))
	for _, sec := range sections {
		aiSections = append(aiSections, ai.DigestSection{
			Category: sec.category,
			Articles: sec.articles,
		})
	}

	raw, err := s.Generator.GenerateDigest(ctx, date, aiSections, budget)
	if err != nil {
		return "", fmt.Errorf("generate digest: %w", err)
	}

	narrative := listsToNarrative(raw)
	sanitized := notifier.SanitizeHTML(narrative)
	if sanitized != narrative {
		s.Logger.Warn("digest HTML required sanitation")
	}
	return notifier.TruncateHTML(sanitized, hardMessageLimit), nil
}

// splitSections assigns categories to two buckets, largest category first,
// each going to the currently smaller bucket, balancing by article count.
func splitSections(sections []section) ([]section, []section) {
	sorted := make([]section, len(sections))
	copy(sorted, sections)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].articles) > len(sorted[j].articles)
	})

	var first, second []section
	firstCount, secondCount := 0, 0
	for _, sec := range sorted {
		if firstCount <= secondCount {
			first = append(first, sec)
			firstCount += len(sec.articles)
		} else {
			second = append(second, sec)
			secondCount += len(sec.articles)
		}
	}
	return first, second
}

var (
	bulletLinePattern = regexp.MustCompile(`(?m)^\s*(?:[-•*]|\d+[.)])\s+`)
	connectorWords    = []string{"Кроме того, ", "Также ", "При этом ", "Помимо этого, "}
)

// listsToNarrative converts lingering bullet lists back into narrative
// paragraphs with fixed connector words.
func listsToNarrative(s string) string {
	if !bulletLinePattern.MatchString(s) {
		return s
	}
	idx := 0
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if bulletLinePattern.MatchString(line) {
			stripped := bulletLinePattern.ReplaceAllString(line, "")
			connector := ""
			if idx > 0 {
				connector = connectorWords[(idx-1)%len(connectorWords)]
			}
			lines[i] = connector + stripped
			idx++
		}
	}
	return strings.Join(lines, "\n")
}
