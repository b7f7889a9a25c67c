// Package handler exposes the read API: feed, article, categories, search,
// the operational POST endpoints, schedule settings and stats.
package handler

import (
	"time"

	"newsflow/internal/domain/entity"
	"newsflow/internal/repository"
	"newsflow/internal/usecase/categories"
)

// ArticleDTO is the wire shape of one article.
type ArticleDTO struct {
	ID              int64                        `json:"id"`
	SourceID        int64                        `json:"source_id"`
	Title           string                       `json:"title"`
	URL             string                       `json:"url"`
	Summary         string                       `json:"summary,omitempty"`
	Content         string                       `json:"content,omitempty"`
	ImageURL        string                       `json:"image_url,omitempty"`
	MediaFiles      []entity.MediaFile           `json:"media_files,omitempty"`
	PublishedAt     time.Time                    `json:"published_at"`
	FetchedAt       time.Time                    `json:"fetched_at"`
	IsAdvertisement bool                         `json:"is_advertisement"`
	AdConfidence    float64                      `json:"ad_confidence,omitempty"`
	Categories      []categories.DisplayCategory `json:"categories"`
}

func articleDTO(row repository.ArticleWithLabels, display []categories.DisplayCategory, includeContent bool) ArticleDTO {
	a := row.Article
	dto := ArticleDTO{
		ID:              a.ID,
		SourceID:        a.SourceID,
		Title:           a.Title,
		URL:             a.URL,
		Summary:         a.Summary,
		ImageURL:        a.ImageURL,
		PublishedAt:     a.PublishedAt,
		FetchedAt:       a.FetchedAt,
		IsAdvertisement: a.IsAdvertisement,
		AdConfidence:    a.AdConfidence,
		Categories:      display,
	}
	if includeContent {
		dto.Content = a.Content
		dto.MediaFiles = a.MediaFiles
	}
	return dto
}

// SourceDTO is the wire shape of one source.
type SourceDTO struct {
	ID                   int64             `json:"id"`
	Name                 string            `json:"name"`
	SourceType           string            `json:"source_type"`
	URL                  string            `json:"url"`
	Enabled              bool              `json:"enabled"`
	Config               map[string]string `json:"config,omitempty"`
	FetchIntervalSeconds int               `json:"fetch_interval_seconds"`
	LastFetch            *time.Time        `json:"last_fetch,omitempty"`
	LastSuccess          *time.Time        `json:"last_success,omitempty"`
	LastError            string            `json:"last_error,omitempty"`
	ErrorCount           int               `json:"error_count"`
}

func sourceDTO(s *entity.Source) SourceDTO {
	return SourceDTO{
		ID:                   s.ID,
		Name:                 s.Name,
		SourceType:           s.SourceType,
		URL:                  s.URL,
		Enabled:              s.Enabled,
		Config:               s.Config,
		FetchIntervalSeconds: s.FetchIntervalSeconds,
		LastFetch:            s.LastFetch,
		LastSuccess:          s.LastSuccess,
		LastError:            s.LastError,
		ErrorCount:           s.ErrorCount,
	}
}
