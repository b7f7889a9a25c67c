package repository

import (
	"context"
	"time"

	"newsflow/internal/domain/entity"
)

// SourceRepository persists publisher endpoints.
type SourceRepository interface {
	List(ctx context.Context) ([]*entity.Source, error)
	ListEnabled(ctx context.Context) ([]*entity.Source, error)
	Get(ctx context.Context, id int64) (*entity.Source, error)
	Create(ctx context.Context, src *entity.Source) error
	Update(ctx context.Context, src *entity.Source) error
	Delete(ctx context.Context, id int64) error

	// MarkFetched sets last_fetch at the start of a per-source fetch.
	MarkFetched(ctx context.Context, id int64, at time.Time) error

	// MarkSuccess clears error bookkeeping and sets last_success.
	MarkSuccess(ctx context.Context, id int64, at time.Time) error

	// MarkError increments error_count and records the message.
	MarkError(ctx context.Context, id int64, message string) error

	CountAll(ctx context.Context) (int64, error)
}

// CategoryRepository serves the fixed taxonomy and operator mappings.
type CategoryRepository interface {
	ListCategories(ctx context.Context) ([]*entity.Category, error)
	GetCategoryByName(ctx context.Context, name string) (*entity.Category, error)

	// GetActiveMapping looks up an operator mapping case-insensitively.
	GetActiveMapping(ctx context.Context, aiCategory string) (*entity.CategoryMapping, error)

	// TouchMappingUsage bumps usage_count and last_used after a hit.
	TouchMappingUsage(ctx context.Context, id int64, at time.Time) error

	ListMappings(ctx context.Context) ([]*entity.CategoryMapping, error)
	UpsertMapping(ctx context.Context, m *entity.CategoryMapping) error
}

// ScheduleRepository persists per-task schedule rows.
type ScheduleRepository interface {
	List(ctx context.Context) ([]*entity.ScheduleSettings, error)
	Get(ctx context.Context, taskName string) (*entity.ScheduleSettings, error)
	Update(ctx context.Context, s *entity.ScheduleSettings) error

	// SetRunning flips the concurrency guard for one task.
	SetRunning(ctx context.Context, taskName string, running bool) error

	// RecordRun stores last_run/next_run after a dispatch.
	RecordRun(ctx context.Context, taskName string, lastRun, nextRun time.Time) error
}

// StatsRepository persists the daily pipeline counters.
type StatsRepository interface {
	// AddDaily upserts the day's row, adding each counter delta.
	AddDaily(ctx context.Context, day time.Time, delta entity.ProcessingStat) error
	GetDaily(ctx context.Context, day time.Time) (*entity.ProcessingStat, error)
	ListRecent(ctx context.Context, days int) ([]*entity.ProcessingStat, error)
}

// DomainMemoryRepository persists extractor learning snapshots. The data is
// advisory: load errors must degrade to an empty memory, never fail a fetch.
type DomainMemoryRepository interface {
	Get(ctx context.Context, domain string) (*entity.DomainMemory, error)
	Upsert(ctx context.Context, m *entity.DomainMemory) error
	List(ctx context.Context) ([]*entity.DomainMemory, error)
}
