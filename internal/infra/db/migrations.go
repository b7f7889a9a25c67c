package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Migrations returns the registered migration list in execution order.
func Migrations() []Migration {
	return []Migration{
		&coreSchemaMigration{},
		&fixedCategoriesMigration{},
		&scheduleDefaultsMigration{},
	}
}

// coreSchemaMigration creates the full relational schema. Every statement is
// IF NOT EXISTS so a partial previous run completes cleanly.
type coreSchemaMigration struct{}

func (m *coreSchemaMigration) ID() string { return "core_schema" }

func (m *coreSchemaMigration) CheckNeeded(ctx context.Context, database *sql.DB) (bool, error) {
	tables := []string{
		"sources", "articles", "article_categories", "categories",
		"category_mapping", "schedule_settings", "processing_stats", "domain_memory",
	}
	for _, table := range tables {
		var reg sql.NullString
		if err := database.QueryRowContext(ctx, `SELECT to_regclass($1)`, table).Scan(&reg); err != nil {
			return false, err
		}
		if !reg.Valid {
			return true, nil
		}
	}
	return false, nil
}

func (m *coreSchemaMigration) Execute(ctx context.Context, tx *sql.Tx) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sources (
    id                     SERIAL PRIMARY KEY,
    name                   TEXT NOT NULL,
    source_type            VARCHAR(20) NOT NULL,
    url                    TEXT NOT NULL,
    enabled                BOOLEAN NOT NULL DEFAULT TRUE,
    config                 JSONB,
    fetch_interval_seconds INTEGER NOT NULL DEFAULT 1800,
    last_fetch             TIMESTAMPTZ,
    last_success           TIMESTAMPTZ,
    last_error             TEXT NOT NULL DEFAULT '',
    error_count            INTEGER NOT NULL DEFAULT 0 CHECK (error_count >= 0),
    created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
		`CREATE TABLE IF NOT EXISTS articles (
    id                 SERIAL PRIMARY KEY,
    source_id          INTEGER NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
    title              TEXT NOT NULL,
    url                TEXT NOT NULL UNIQUE,
    content            TEXT,
    summary            TEXT,
    image_url          TEXT,
    media_files        JSONB,
    published_at       TIMESTAMPTZ NOT NULL,
    fetched_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    hash_content       VARCHAR(64) NOT NULL DEFAULT '',
    summary_processed  BOOLEAN NOT NULL DEFAULT FALSE,
    category_processed BOOLEAN NOT NULL DEFAULT FALSE,
    ad_processed       BOOLEAN NOT NULL DEFAULT FALSE,
    is_advertisement   BOOLEAN NOT NULL DEFAULT FALSE,
    ad_confidence      DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (ad_confidence >= 0 AND ad_confidence <= 1),
    ad_type            TEXT,
    ad_reasoning       TEXT,
    ad_markers         JSONB
)`,
		`CREATE TABLE IF NOT EXISTS categories (
    id           SERIAL PRIMARY KEY,
    name         VARCHAR(50) NOT NULL UNIQUE,
    display_name TEXT NOT NULL,
    color        VARCHAR(7) NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS article_categories (
    id          SERIAL PRIMARY KEY,
    article_id  INTEGER NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
    category_id INTEGER REFERENCES categories(id),
    ai_category TEXT NOT NULL DEFAULT '',
    confidence  DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (confidence >= 0 AND confidence <= 1),
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CHECK (category_id IS NOT NULL OR ai_category <> '')
)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_article_categories_unique
    ON article_categories(article_id, category_id) WHERE category_id IS NOT NULL`,
		`CREATE TABLE IF NOT EXISTS category_mapping (
    id                   SERIAL PRIMARY KEY,
    ai_category          TEXT NOT NULL UNIQUE,
    fixed_category       VARCHAR(50) NOT NULL,
    confidence_threshold DOUBLE PRECISION NOT NULL DEFAULT 0,
    is_active            BOOLEAN NOT NULL DEFAULT TRUE,
    usage_count          BIGINT NOT NULL DEFAULT 0,
    last_used            TIMESTAMPTZ,
    created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
		`CREATE TABLE IF NOT EXISTS schedule_settings (
    id            SERIAL PRIMARY KEY,
    task_name     VARCHAR(50) NOT NULL UNIQUE,
    enabled       BOOLEAN NOT NULL DEFAULT TRUE,
    schedule_type VARCHAR(20) NOT NULL DEFAULT 'daily',
    hour          INTEGER NOT NULL DEFAULT 8 CHECK (hour BETWEEN 0 AND 23),
    minute        INTEGER NOT NULL DEFAULT 0 CHECK (minute BETWEEN 0 AND 59),
    weekdays      JSONB,
    timezone      VARCHAR(64) NOT NULL DEFAULT 'UTC',
    task_config   JSONB,
    last_run      TIMESTAMPTZ,
    next_run      TIMESTAMPTZ,
    is_running    BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
		`CREATE TABLE IF NOT EXISTS processing_stats (
    id                      SERIAL PRIMARY KEY,
    date                    DATE NOT NULL UNIQUE,
    articles_fetched        BIGINT NOT NULL DEFAULT 0,
    articles_processed      BIGINT NOT NULL DEFAULT 0,
    api_calls_made          BIGINT NOT NULL DEFAULT 0,
    errors_count            BIGINT NOT NULL DEFAULT 0,
    processing_time_seconds DOUBLE PRECISION NOT NULL DEFAULT 0
)`,
		`CREATE TABLE IF NOT EXISTS domain_memory (
    domain            TEXT PRIMARY KEY,
    best_method       TEXT NOT NULL DEFAULT '',
    successes         JSONB,
    failures          JSONB,
    selector_rates    JSONB,
    last_ai_analysis  TIMESTAMPTZ,
    consecutive_fails INTEGER NOT NULL DEFAULT 0,
    stable            BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_published_at ON articles(published_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_source_id ON articles(source_id)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_unprocessed
    ON articles(fetched_at) WHERE NOT (summary_processed AND category_processed AND ad_processed)`,
		`CREATE INDEX IF NOT EXISTS idx_article_categories_article ON article_categories(article_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sources_enabled ON sources(enabled) WHERE enabled`,
	}
	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("statement %d: %w", i, err)
		}
	}
	return nil
}

// fixedCategoriesMigration seeds the closed display taxonomy.
type fixedCategoriesMigration struct{}

func (m *fixedCategoriesMigration) ID() string { return "fixed_categories_seed" }

// fixedCategorySeed mirrors the closed taxonomy served by the category
// display service.
var fixedCategorySeed = []struct {
	Name        string
	DisplayName string
	Color       string
}{
	{"Serbia", "Сербия", "#dc3545"},
	{"Tech", "Технологии", "#007bff"},
	{"Business", "Бизнес", "#28a745"},
	{"Science", "Наука", "#6f42c1"},
	{"Politics", "Политика", "#839933"},
	{"International", "Международные", "#cd51bc"},
	{"Other", "Прочее", "#6c757d"},
}

func (m *fixedCategoriesMigration) CheckNeeded(ctx context.Context, database *sql.DB) (bool, error) {
	var count int
	if err := database.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories`).Scan(&count); err != nil {
		return false, err
	}
	return count < len(fixedCategorySeed), nil
}

func (m *fixedCategoriesMigration) Execute(ctx context.Context, tx *sql.Tx) error {
	for _, c := range fixedCategorySeed {
		const insert = `
INSERT INTO categories (name, display_name, color)
VALUES ($1, $2, $3)
ON CONFLICT (name) DO NOTHING`
		if _, err := tx.ExecContext(ctx, insert, c.Name, c.DisplayName, c.Color); err != nil {
			return fmt.Errorf("seed category %s: %w", c.Name, err)
		}
	}
	return nil
}

// scheduleDefaultsMigration seeds one settings row per scheduler task.
type scheduleDefaultsMigration struct{}

func (m *scheduleDefaultsMigration) ID() string { return "schedule_defaults_seed" }

var scheduleSeed = []struct {
	TaskName     string
	ScheduleType string
	Hour         int
	Minute       int
}{
	{"news_processing", "interval", 0, 0},
	{"telegram_digest", "daily", 19, 0},
	{"daily_summaries", "daily", 18, 30},
	{"backup", "daily", 3, 0},
}

func (m *scheduleDefaultsMigration) CheckNeeded(ctx context.Context, database *sql.DB) (bool, error) {
	var count int
	if err := database.QueryRowContext(ctx, `SELECT COUNT(*) FROM schedule_settings`).Scan(&count); err != nil {
		return false, err
	}
	return count < len(scheduleSeed), nil
}

func (m *scheduleDefaultsMigration) Execute(ctx context.Context, tx *sql.Tx) error {
	for _, s := range scheduleSeed {
		const insert = `
INSERT INTO schedule_settings (task_name, schedule_type, hour, minute, task_config)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (task_name) DO NOTHING`
		config := []byte(`{}`)
		if s.ScheduleType == "interval" {
			config = []byte(`{"interval_minutes": "30"}`)
		}
		if _, err := tx.ExecContext(ctx, insert, s.TaskName, s.ScheduleType, s.Hour, s.Minute, config); err != nil {
			return fmt.Errorf("seed schedule %s: %w", s.TaskName, err)
		}
	}
	return nil
}
