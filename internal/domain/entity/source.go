package entity

import (
	"fmt"
	"time"
)

// Source type names understood by the fetcher registry.
const (
	SourceTypeRSS         = "rss"
	SourceTypeTelegram    = "telegram"
	SourceTypeGenericPage = "generic_page"
	SourceTypeReddit      = "reddit"
	SourceTypeTwitter     = "twitter"
	SourceTypeNewsAPI     = "news_api"
	SourceTypeCustom      = "custom"
)

// ValidSourceTypes is the closed set of registrable source types.
var ValidSourceTypes = map[string]bool{
	SourceTypeRSS:         true,
	SourceTypeTelegram:    true,
	SourceTypeGenericPage: true,
	SourceTypeReddit:      true,
	SourceTypeTwitter:     true,
	SourceTypeNewsAPI:     true,
	SourceTypeCustom:      true,
}

// Source represents a publisher endpoint (feed, channel, or page) from which
// items are fetched. Fetch bookkeeping fields are mutated only by the source
// manager, in the worker handling that source.
type Source struct {
	ID                   int64
	Name                 string
	SourceType           string
	URL                  string
	Enabled              bool
	Config               map[string]string
	FetchIntervalSeconds int
	LastFetch            *time.Time
	LastSuccess          *time.Time
	LastError            string
	ErrorCount           int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// DefaultFetchInterval applies when a source has no explicit interval.
const DefaultFetchInterval = 30 * time.Minute

// Validate checks the source invariants.
func (s *Source) Validate() error {
	if s.Name == "" {
		return &ValidationError{Field: "name", Message: "is required"}
	}
	if s.URL == "" {
		return &ValidationError{Field: "url", Message: "is required"}
	}
	if !ValidSourceTypes[s.SourceType] {
		return fmt.Errorf("%w: unknown source_type %q", ErrInvalidInput, s.SourceType)
	}
	if s.ErrorCount < 0 {
		return &ValidationError{Field: "error_count", Message: "must be non-negative"}
	}
	return nil
}

// FetchInterval returns the configured interval with the default applied.
func (s *Source) FetchInterval() time.Duration {
	if s.FetchIntervalSeconds <= 0 {
		return DefaultFetchInterval
	}
	return time.Duration(s.FetchIntervalSeconds) * time.Second
}

// DueForFetch reports whether the source should be fetched at the given time.
// A source with no recorded fetch is always due.
func (s *Source) DueForFetch(now time.Time) bool {
	if !s.Enabled {
		return false
	}
	if s.LastFetch == nil {
		return true
	}
	return now.Sub(*s.LastFetch) >= s.FetchInterval()
}
