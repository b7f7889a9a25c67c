package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"newsflow/internal/domain/entity"
	"newsflow/internal/infra/dbqueue"
	"newsflow/internal/repository"
)

type StatsRepo struct{ queue *dbqueue.Queue }

func NewStatsRepo(queue *dbqueue.Queue) repository.StatsRepository {
	return &StatsRepo{queue: queue}
}

// AddDaily upserts the day's row, adding counter deltas so concurrent cycles
// within one day accumulate instead of overwriting.
func (repo *StatsRepo) AddDaily(ctx context.Context, day time.Time, delta entity.ProcessingStat) error {
	const query = `
INSERT INTO processing_stats
       (date, articles_fetched, articles_processed, api_calls_made, errors_count, processing_time_seconds)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (date) DO UPDATE SET
       articles_fetched        = processing_stats.articles_fetched + EXCLUDED.articles_fetched,
       articles_processed      = processing_stats.articles_processed + EXCLUDED.articles_processed,
       api_calls_made          = processing_stats.api_calls_made + EXCLUDED.api_calls_made,
       errors_count            = processing_stats.errors_count + EXCLUDED.errors_count,
       processing_time_seconds = processing_stats.processing_time_seconds + EXCLUDED.processing_time_seconds`
	date := day.UTC().Truncate(24 * time.Hour)
	if _, err := repo.queue.Exec(ctx, query, date,
		delta.ArticlesFetched, delta.ArticlesProcessed, delta.APICallsMade,
		delta.ErrorsCount, delta.ProcessingTimeSeconds); err != nil {
		return fmt.Errorf("AddDaily: %w", err)
	}
	return nil
}

func scanStat(scan func(dest ...any) error) (*entity.ProcessingStat, error) {
	var s entity.ProcessingStat
	err := scan(&s.ID, &s.Date, &s.ArticlesFetched, &s.ArticlesProcessed,
		&s.APICallsMade, &s.ErrorsCount, &s.ProcessingTimeSeconds)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (repo *StatsRepo) GetDaily(ctx context.Context, day time.Time) (*entity.ProcessingStat, error) {
	const query = `
SELECT id, date, articles_fetched, articles_processed, api_calls_made, errors_count, processing_time_seconds
FROM processing_stats
WHERE date = $1
LIMIT 1`
	date := day.UTC().Truncate(24 * time.Hour)
	var stat *entity.ProcessingStat
	err := repo.queue.QueryRow(ctx, query, []any{date}, func(row *sql.Row) error {
		s, err := scanStat(row.Scan)
		if err != nil {
			return err
		}
		stat = s
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetDaily: %w", err)
	}
	return stat, nil
}

func (repo *StatsRepo) ListRecent(ctx context.Context, days int) ([]*entity.ProcessingStat, error) {
	const query = `
SELECT id, date, articles_fetched, articles_processed, api_calls_made, errors_count, processing_time_seconds
FROM processing_stats
ORDER BY date DESC
LIMIT $1`
	var out []*entity.ProcessingStat
	err := repo.queue.Query(ctx, query, []any{days}, func(rows *sql.Rows) error {
		for rows.Next() {
			s, err := scanStat(rows.Scan)
			if err != nil {
				return err
			}
			out = append(out, s)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ListRecent: %w", err)
	}
	return out, nil
}
