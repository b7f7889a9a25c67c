package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"newsflow/internal/domain/entity"
	"newsflow/internal/infra/dbqueue"
	"newsflow/internal/repository"
)

const sourceColumns = `
id, name, source_type, url, enabled, config, fetch_interval_seconds,
last_fetch, last_success, last_error, error_count, created_at, updated_at`

type SourceRepo struct{ queue *dbqueue.Queue }

func NewSourceRepo(queue *dbqueue.Queue) repository.SourceRepository {
	return &SourceRepo{queue: queue}
}

func scanSource(scan func(dest ...any) error) (*entity.Source, error) {
	var (
		s         entity.Source
		config    []byte
		lastFetch sql.NullTime
		lastOK    sql.NullTime
		lastErr   sql.NullString
	)
	err := scan(&s.ID, &s.Name, &s.SourceType, &s.URL, &s.Enabled, &config,
		&s.FetchIntervalSeconds, &lastFetch, &lastOK, &lastErr, &s.ErrorCount,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lastFetch.Valid {
		s.LastFetch = &lastFetch.Time
	}
	if lastOK.Valid {
		s.LastSuccess = &lastOK.Time
	}
	s.LastError = lastErr.String
	if len(config) > 0 {
		_ = json.Unmarshal(config, &s.Config)
	}
	return &s, nil
}

func (repo *SourceRepo) list(ctx context.Context, query string, args ...any) ([]*entity.Source, error) {
	sources := make([]*entity.Source, 0, 20)
	err := repo.queue.Query(ctx, query, args, func(rows *sql.Rows) error {
		for rows.Next() {
			s, err := scanSource(rows.Scan)
			if err != nil {
				return err
			}
			sources = append(sources, s)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sources, nil
}

func (repo *SourceRepo) List(ctx context.Context) ([]*entity.Source, error) {
	out, err := repo.list(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return out, nil
}

func (repo *SourceRepo) ListEnabled(ctx context.Context) ([]*entity.Source, error) {
	out, err := repo.list(ctx, `SELECT `+sourceColumns+` FROM sources WHERE enabled ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("ListEnabled: %w", err)
	}
	return out, nil
}

func (repo *SourceRepo) Get(ctx context.Context, id int64) (*entity.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE id = $1 LIMIT 1`
	var src *entity.Source
	err := repo.queue.QueryRow(ctx, query, []any{id}, func(row *sql.Row) error {
		s, err := scanSource(row.Scan)
		if err != nil {
			return err
		}
		src = s
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return src, nil
}

func (repo *SourceRepo) Create(ctx context.Context, src *entity.Source) error {
	if err := src.Validate(); err != nil {
		return err
	}
	config, err := json.Marshal(src.Config)
	if err != nil {
		return fmt.Errorf("Create: marshal config: %w", err)
	}
	const query = `
INSERT INTO sources (name, source_type, url, enabled, config, fetch_interval_seconds, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
RETURNING id`
	id, err := repo.queue.InsertReturningID(ctx, query,
		src.Name, src.SourceType, src.URL, src.Enabled, config, src.FetchIntervalSeconds)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	src.ID = id
	return nil
}

func (repo *SourceRepo) Update(ctx context.Context, src *entity.Source) error {
	if err := src.Validate(); err != nil {
		return err
	}
	config, err := json.Marshal(src.Config)
	if err != nil {
		return fmt.Errorf("Update: marshal config: %w", err)
	}
	const query = `
UPDATE sources SET
       name = $1, source_type = $2, url = $3, enabled = $4,
       config = $5, fetch_interval_seconds = $6, updated_at = NOW()
WHERE id = $7`
	n, err := repo.queue.Exec(ctx, query,
		src.Name, src.SourceType, src.URL, src.Enabled, config,
		src.FetchIntervalSeconds, src.ID)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	if n == 0 {
		return entity.ErrNotFound
	}
	return nil
}

func (repo *SourceRepo) Delete(ctx context.Context, id int64) error {
	n, err := repo.queue.Exec(ctx, `DELETE FROM sources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	if n == 0 {
		return entity.ErrNotFound
	}
	return nil
}

func (repo *SourceRepo) MarkFetched(ctx context.Context, id int64, at time.Time) error {
	if _, err := repo.queue.Exec(ctx, `UPDATE sources SET last_fetch = $1, updated_at = NOW() WHERE id = $2`, at, id); err != nil {
		return fmt.Errorf("MarkFetched: %w", err)
	}
	return nil
}

func (repo *SourceRepo) MarkSuccess(ctx context.Context, id int64, at time.Time) error {
	const query = `
UPDATE sources SET last_success = $1, error_count = 0, last_error = '', updated_at = NOW()
WHERE id = $2`
	if _, err := repo.queue.Exec(ctx, query, at, id); err != nil {
		return fmt.Errorf("MarkSuccess: %w", err)
	}
	return nil
}

func (repo *SourceRepo) MarkError(ctx context.Context, id int64, message string) error {
	const query = `
UPDATE sources SET error_count = error_count + 1, last_error = $1, updated_at = NOW()
WHERE id = $2`
	if _, err := repo.queue.Exec(ctx, query, message, id); err != nil {
		return fmt.Errorf("MarkError: %w", err)
	}
	return nil
}

func (repo *SourceRepo) CountAll(ctx context.Context) (int64, error) {
	return repo.queue.Count(ctx, `SELECT COUNT(*) FROM sources`)
}
