package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"newsflow/internal/domain/entity"
	"newsflow/internal/infra/dbqueue"
	"newsflow/internal/repository"
)

type DomainMemoryRepo struct{ queue *dbqueue.Queue }

func NewDomainMemoryRepo(queue *dbqueue.Queue) repository.DomainMemoryRepository {
	return &DomainMemoryRepo{queue: queue}
}

func scanMemory(scan func(dest ...any) error) (*entity.DomainMemory, error) {
	var (
		m         entity.DomainMemory
		successes []byte
		failures  []byte
		rates     []byte
		lastAI    sql.NullTime
	)
	err := scan(&m.Domain, &m.BestMethod, &successes, &failures, &rates,
		&lastAI, &m.ConsecutiveFails, &m.Stable, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lastAI.Valid {
		m.LastAIAnalysis = &lastAI.Time
	}
	// Learned data is advisory: decode failures degrade to empty maps.
	_ = json.Unmarshal(successes, &m.Successes)
	_ = json.Unmarshal(failures, &m.Failures)
	_ = json.Unmarshal(rates, &m.SelectorRates)
	return &m, nil
}

func (repo *DomainMemoryRepo) Get(ctx context.Context, domain string) (*entity.DomainMemory, error) {
	const query = `
SELECT domain, best_method, successes, failures, selector_rates,
       last_ai_analysis, consecutive_fails, stable, updated_at
FROM domain_memory
WHERE domain = $1
LIMIT 1`
	var memory *entity.DomainMemory
	err := repo.queue.QueryRow(ctx, query, []any{domain}, func(row *sql.Row) error {
		m, err := scanMemory(row.Scan)
		if err != nil {
			return err
		}
		memory = m
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return memory, nil
}

func (repo *DomainMemoryRepo) Upsert(ctx context.Context, m *entity.DomainMemory) error {
	successes, err := json.Marshal(m.Successes)
	if err != nil {
		return fmt.Errorf("Upsert: marshal successes: %w", err)
	}
	failures, err := json.Marshal(m.Failures)
	if err != nil {
		return fmt.Errorf("Upsert: marshal failures: %w", err)
	}
	rates, err := json.Marshal(m.SelectorRates)
	if err != nil {
		return fmt.Errorf("Upsert: marshal selector rates: %w", err)
	}
	const query = `
INSERT INTO domain_memory
       (domain, best_method, successes, failures, selector_rates,
        last_ai_analysis, consecutive_fails, stable, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
ON CONFLICT (domain) DO UPDATE SET
       best_method       = EXCLUDED.best_method,
       successes         = EXCLUDED.successes,
       failures          = EXCLUDED.failures,
       selector_rates    = EXCLUDED.selector_rates,
       last_ai_analysis  = EXCLUDED.last_ai_analysis,
       consecutive_fails = EXCLUDED.consecutive_fails,
       stable            = EXCLUDED.stable,
       updated_at        = NOW()`
	if _, err := repo.queue.Exec(ctx, query,
		m.Domain, m.BestMethod, successes, failures, rates,
		m.LastAIAnalysis, m.ConsecutiveFails, m.Stable); err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	return nil
}

func (repo *DomainMemoryRepo) List(ctx context.Context) ([]*entity.DomainMemory, error) {
	const query = `
SELECT domain, best_method, successes, failures, selector_rates,
       last_ai_analysis, consecutive_fails, stable, updated_at
FROM domain_memory
ORDER BY domain`
	var out []*entity.DomainMemory
	err := repo.queue.Query(ctx, query, nil, func(rows *sql.Rows) error {
		for rows.Next() {
			m, err := scanMemory(rows.Scan)
			if err != nil {
				return err
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return out, nil
}
