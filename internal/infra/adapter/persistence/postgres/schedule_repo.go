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

const scheduleColumns = `
id, task_name, enabled, schedule_type, hour, minute, weekdays, timezone,
task_config, last_run, next_run, is_running, updated_at`

type ScheduleRepo struct{ queue *dbqueue.Queue }

func NewScheduleRepo(queue *dbqueue.Queue) repository.ScheduleRepository {
	return &ScheduleRepo{queue: queue}
}

func scanSchedule(scan func(dest ...any) error) (*entity.ScheduleSettings, error) {
	var (
		s        entity.ScheduleSettings
		weekdays []byte
		config   []byte
		lastRun  sql.NullTime
		nextRun  sql.NullTime
	)
	err := scan(&s.ID, &s.TaskName, &s.Enabled, &s.ScheduleType, &s.Hour,
		&s.Minute, &weekdays, &s.Timezone, &config, &lastRun, &nextRun,
		&s.IsRunning, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lastRun.Valid {
		s.LastRun = &lastRun.Time
	}
	if nextRun.Valid {
		s.NextRun = &nextRun.Time
	}
	if len(weekdays) > 0 {
		_ = json.Unmarshal(weekdays, &s.Weekdays)
	}
	if len(config) > 0 {
		_ = json.Unmarshal(config, &s.TaskConfig)
	}
	return &s, nil
}

func (repo *ScheduleRepo) List(ctx context.Context) ([]*entity.ScheduleSettings, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedule_settings ORDER BY task_name`
	var out []*entity.ScheduleSettings
	err := repo.queue.Query(ctx, query, nil, func(rows *sql.Rows) error {
		for rows.Next() {
			s, err := scanSchedule(rows.Scan)
			if err != nil {
				return err
			}
			out = append(out, s)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return out, nil
}

func (repo *ScheduleRepo) Get(ctx context.Context, taskName string) (*entity.ScheduleSettings, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedule_settings WHERE task_name = $1 LIMIT 1`
	var settings *entity.ScheduleSettings
	err := repo.queue.QueryRow(ctx, query, []any{taskName}, func(row *sql.Row) error {
		s, err := scanSchedule(row.Scan)
		if err != nil {
			return err
		}
		settings = s
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return settings, nil
}

func (repo *ScheduleRepo) Update(ctx context.Context, s *entity.ScheduleSettings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	weekdays, err := json.Marshal(s.Weekdays)
	if err != nil {
		return fmt.Errorf("Update: marshal weekdays: %w", err)
	}
	config, err := json.Marshal(s.TaskConfig)
	if err != nil {
		return fmt.Errorf("Update: marshal task config: %w", err)
	}
	const query = `
UPDATE schedule_settings SET
       enabled = $1, schedule_type = $2, hour = $3, minute = $4,
       weekdays = $5, timezone = $6, task_config = $7, updated_at = NOW()
WHERE task_name = $8`
	n, err := repo.queue.Exec(ctx, query,
		s.Enabled, s.ScheduleType, s.Hour, s.Minute, weekdays, s.Timezone,
		config, s.TaskName)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	if n == 0 {
		return entity.ErrNotFound
	}
	return nil
}

func (repo *ScheduleRepo) SetRunning(ctx context.Context, taskName string, running bool) error {
	const query = `UPDATE schedule_settings SET is_running = $1 WHERE task_name = $2`
	if _, err := repo.queue.Exec(ctx, query, running, taskName); err != nil {
		return fmt.Errorf("SetRunning: %w", err)
	}
	return nil
}

func (repo *ScheduleRepo) RecordRun(ctx context.Context, taskName string, lastRun, nextRun time.Time) error {
	const query = `UPDATE schedule_settings SET last_run = $1, next_run = $2 WHERE task_name = $3`
	if _, err := repo.queue.Exec(ctx, query, lastRun, nextRun, taskName); err != nil {
		return fmt.Errorf("RecordRun: %w", err)
	}
	return nil
}
