package entity_test

import (
	"testing"
	"time"

	"newsflow/internal/domain/entity"
)

func TestSource_Validate(t *testing.T) {
	src := entity.Source{Name: "B92", SourceType: entity.SourceTypeRSS, URL: "https://b92.net/rss"}
	if err := src.Validate(); err != nil {
		t.Fatalf("valid source rejected: %v", err)
	}

	src.SourceType = "carrier_pigeon"
	if err := src.Validate(); err == nil {
		t.Fatal("unregistered source_type must be rejected")
	}

	src.SourceType = entity.SourceTypeRSS
	src.URL = ""
	if err := src.Validate(); err == nil {
		t.Fatal("empty url must be rejected")
	}
}

func TestSource_DueForFetch(t *testing.T) {
	now := time.Date(2025, 7, 29, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-5 * time.Minute)
	stale := now.Add(-2 * time.Hour)

	tests := []struct {
		name string
		src  entity.Source
		want bool
	}{
		{"never fetched", entity.Source{Enabled: true}, true},
		{"disabled", entity.Source{Enabled: false}, false},
		{"recently fetched", entity.Source{Enabled: true, LastFetch: &recent, FetchIntervalSeconds: 1800}, false},
		{"interval elapsed", entity.Source{Enabled: true, LastFetch: &stale, FetchIntervalSeconds: 1800}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.src.DueForFetch(now); got != tt.want {
				t.Fatalf("DueForFetch()=%v, want %v", got, tt.want)
			}
		})
	}
}

func TestScheduleSettings_IntervalMinutes_clamped(t *testing.T) {
	s := entity.ScheduleSettings{TaskConfig: map[string]string{"interval_minutes": "999999"}}
	if got := s.IntervalMinutes(); got != 1440 {
		t.Fatalf("want clamp to 1440, got %d", got)
	}
	s.TaskConfig["interval_minutes"] = "15"
	if got := s.IntervalMinutes(); got != 15 {
		t.Fatalf("want 15, got %d", got)
	}
	s.TaskConfig = nil
	if got := s.IntervalMinutes(); got != 60 {
		t.Fatalf("want default 60, got %d", got)
	}
}
