// Package scheduler dispatches the pipeline's named tasks from their
// database-backed schedule rows. A single cron-driven loop wakes every
// minute, computes due tasks in their own timezones, and launches the
// registered operation with the is_running guard held.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"newsflow/internal/domain/entity"
	"newsflow/internal/repository"
)

// TaskFunc is one schedulable operation. Operations are the same functions
// the API invokes manually.
type TaskFunc func(ctx context.Context) error

// Scheduler runs the dispatcher loop.
type Scheduler struct {
	Repo   repository.ScheduleRepository
	Logger *slog.Logger

	tasks map[string]TaskFunc
	cron  *cron.Cron
	mu    sync.Mutex
	local map[string]bool // in-process running guard, belt over the DB flag

	now func() time.Time
}

// New creates a scheduler over the given schedule repository.
func New(repo repository.ScheduleRepository, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		Repo:   repo,
		Logger: logger,
		tasks:  make(map[string]TaskFunc),
		local:  make(map[string]bool),
		now:    time.Now,
	}
}

// Register binds an operation to a task name.
func (s *Scheduler) Register(taskName string, fn TaskFunc) {
	s.tasks[taskName] = fn
}

// Start launches the minute-tick dispatcher. Stop with Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc("* * * * *", func() { s.dispatch(ctx) }); err != nil {
		return fmt.Errorf("schedule dispatcher: %w", err)
	}
	s.cron.Start()
	s.Logger.Info("scheduler started", slog.Int("tasks", len(s.tasks)))
	return nil
}

// Stop halts the dispatcher and waits for the tick in flight.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// dispatch runs one tick: every enabled, due, not-running task launches in
// its own goroutine.
func (s *Scheduler) dispatch(ctx context.Context) {
	settings, err := s.Repo.List(ctx)
	if err != nil {
		s.Logger.Warn("schedule read failed", slog.Any("error", err))
		return
	}
	now := s.now()

	for _, setting := range settings {
		if !setting.Enabled {
			continue
		}
		fn, ok := s.tasks[setting.TaskName]
		if !ok {
			continue
		}
		if !s.isDue(setting, now) {
			continue
		}
		if !s.tryAcquire(ctx, setting) {
			continue
		}
		go s.runTask(ctx, setting, fn, now)
	}
}

// isDue compares now against the task's next_run, deriving it when unset.
func (s *Scheduler) isDue(setting *entity.ScheduleSettings, now time.Time) bool {
	next := setting.NextRun
	if next == nil {
		derived := NextRun(setting, now)
		next = &derived
		// First sight of the task: persist the derived next_run and wait
		// for it.
		if err := s.Repo.RecordRun(context.Background(), setting.TaskName, timeOrZero(setting.LastRun), derived); err != nil {
			s.Logger.Debug("next_run persist failed", slog.Any("error", err))
		}
		return false
	}
	return !now.Before(*next)
}

// tryAcquire flips the is_running guard, suppressing concurrent runs.
func (s *Scheduler) tryAcquire(ctx context.Context, setting *entity.ScheduleSettings) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.local[setting.TaskName] || setting.IsRunning {
		return false
	}
	s.local[setting.TaskName] = true
	if err := s.Repo.SetRunning(ctx, setting.TaskName, true); err != nil {
		s.local[setting.TaskName] = false
		s.Logger.Warn("is_running set failed", slog.Any("error", err))
		return false
	}
	return true
}

func (s *Scheduler) runTask(ctx context.Context, setting *entity.ScheduleSettings, fn TaskFunc, startedAt time.Time) {
	taskLogger := s.Logger.With(slog.String("task", setting.TaskName))
	defer func() {
		if r := recover(); r != nil {
			taskLogger.Error("task panicked", slog.Any("panic", r))
		}
		s.release(ctx, setting, startedAt)
	}()

	taskLogger.Info("task started")
	if err := fn(ctx); err != nil {
		taskLogger.Error("task failed", slog.Any("error", err))
		return
	}
	taskLogger.Info("task completed")
}

func (s *Scheduler) release(ctx context.Context, setting *entity.ScheduleSettings, startedAt time.Time) {
	s.mu.Lock()
	s.local[setting.TaskName] = false
	s.mu.Unlock()

	cleanupCtx := context.WithoutCancel(ctx)
	if err := s.Repo.SetRunning(cleanupCtx, setting.TaskName, false); err != nil {
		s.Logger.Warn("is_running clear failed", slog.Any("error", err))
	}
	next := NextRun(setting, s.now())
	if err := s.Repo.RecordRun(cleanupCtx, setting.TaskName, startedAt, next); err != nil {
		s.Logger.Warn("run record failed", slog.Any("error", err))
	}
}

// NextRun computes the task's next firing time after now, in the task's
// timezone.
func NextRun(setting *entity.ScheduleSettings, now time.Time) time.Time {
	loc := setting.Location()
	local := now.In(loc)

	switch setting.ScheduleType {
	case entity.ScheduleHourly:
		next := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), setting.Minute, 0, 0, loc)
		if !next.After(local) {
			next = next.Add(time.Hour)
		}
		return next.UTC()

	case entity.ScheduleInterval:
		interval := time.Duration(setting.IntervalMinutes()) * time.Minute
		base := local
		if setting.LastRun != nil {
			base = setting.LastRun.In(loc)
		}
		next := base.Add(interval)
		if next.Before(local) {
			next = local
		}
		return next.UTC()

	default: // daily
		next := time.Date(local.Year(), local.Month(), local.Day(), setting.Hour, setting.Minute, 0, 0, loc)
		if !next.After(local) {
			next = next.AddDate(0, 0, 1)
		}
		// Honor the weekday set (ISO 1..7, Monday first) when present.
		if len(setting.Weekdays) > 0 {
			allowed := make(map[int]bool, len(setting.Weekdays))
			for _, d := range setting.Weekdays {
				allowed[d] = true
			}
			for i := 0; i < 7; i++ {
				if allowed[isoWeekday(next)] {
					break
				}
				next = next.AddDate(0, 0, 1)
			}
		}
		return next.UTC()
	}
}

func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
