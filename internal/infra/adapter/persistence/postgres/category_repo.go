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

type CategoryRepo struct{ queue *dbqueue.Queue }

func NewCategoryRepo(queue *dbqueue.Queue) repository.CategoryRepository {
	return &CategoryRepo{queue: queue}
}

func (repo *CategoryRepo) ListCategories(ctx context.Context) ([]*entity.Category, error) {
	const query = `SELECT id, name, display_name, color FROM categories ORDER BY id`
	out := make([]*entity.Category, 0, 8)
	err := repo.queue.Query(ctx, query, nil, func(rows *sql.Rows) error {
		for rows.Next() {
			var c entity.Category
			if err := rows.Scan(&c.ID, &c.Name, &c.DisplayName, &c.Color); err != nil {
				return err
			}
			out = append(out, &c)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ListCategories: %w", err)
	}
	return out, nil
}

func (repo *CategoryRepo) GetCategoryByName(ctx context.Context, name string) (*entity.Category, error) {
	const query = `SELECT id, name, display_name, color FROM categories WHERE name = $1 LIMIT 1`
	var c entity.Category
	err := repo.queue.QueryRow(ctx, query, []any{name}, func(row *sql.Row) error {
		return row.Scan(&c.ID, &c.Name, &c.DisplayName, &c.Color)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetCategoryByName: %w", err)
	}
	return &c, nil
}

func scanMapping(scan func(dest ...any) error) (*entity.CategoryMapping, error) {
	var m entity.CategoryMapping
	var lastUsed sql.NullTime
	err := scan(&m.ID, &m.AICategory, &m.FixedCategory, &m.ConfidenceThreshold,
		&m.IsActive, &m.UsageCount, &lastUsed, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	if lastUsed.Valid {
		m.LastUsed = &lastUsed.Time
	}
	return &m, nil
}

func (repo *CategoryRepo) GetActiveMapping(ctx context.Context, aiCategory string) (*entity.CategoryMapping, error) {
	const query = `
SELECT id, ai_category, fixed_category, confidence_threshold, is_active, usage_count, last_used, created_at
FROM category_mapping
WHERE LOWER(ai_category) = LOWER($1) AND is_active
LIMIT 1`
	var mapping *entity.CategoryMapping
	err := repo.queue.QueryRow(ctx, query, []any{aiCategory}, func(row *sql.Row) error {
		m, err := scanMapping(row.Scan)
		if err != nil {
			return err
		}
		mapping = m
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetActiveMapping: %w", err)
	}
	return mapping, nil
}

func (repo *CategoryRepo) TouchMappingUsage(ctx context.Context, id int64, at time.Time) error {
	const query = `UPDATE category_mapping SET usage_count = usage_count + 1, last_used = $1 WHERE id = $2`
	if _, err := repo.queue.Exec(ctx, query, at, id); err != nil {
		return fmt.Errorf("TouchMappingUsage: %w", err)
	}
	return nil
}

func (repo *CategoryRepo) ListMappings(ctx context.Context) ([]*entity.CategoryMapping, error) {
	const query = `
SELECT id, ai_category, fixed_category, confidence_threshold, is_active, usage_count, last_used, created_at
FROM category_mapping
ORDER BY usage_count DESC`
	var out []*entity.CategoryMapping
	err := repo.queue.Query(ctx, query, nil, func(rows *sql.Rows) error {
		for rows.Next() {
			m, err := scanMapping(rows.Scan)
			if err != nil {
				return err
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ListMappings: %w", err)
	}
	return out, nil
}

func (repo *CategoryRepo) UpsertMapping(ctx context.Context, m *entity.CategoryMapping) error {
	const query = `
INSERT INTO category_mapping (ai_category, fixed_category, confidence_threshold, is_active, usage_count, created_at)
VALUES ($1, $2, $3, $4, 0, NOW())
ON CONFLICT (ai_category) DO UPDATE SET
       fixed_category = EXCLUDED.fixed_category,
       confidence_threshold = EXCLUDED.confidence_threshold,
       is_active = EXCLUDED.is_active
RETURNING id`
	id, err := repo.queue.InsertReturningID(ctx, query,
		m.AICategory, m.FixedCategory, m.ConfidenceThreshold, m.IsActive)
	if err != nil {
		return fmt.Errorf("UpsertMapping: %w", err)
	}
	m.ID = id
	return nil
}
