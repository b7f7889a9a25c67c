package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// Migration is one idempotent schema evolution step. There is no version
// table: CheckNeeded is the source of truth, so Execute must be safe to run
// against any schema state it reports as needing work.
type Migration interface {
	// ID identifies the migration in logs.
	ID() string

	// CheckNeeded reports whether Execute should run.
	CheckNeeded(ctx context.Context, db *sql.DB) (bool, error)

	// Execute applies the migration inside the given transaction.
	Execute(ctx context.Context, tx *sql.Tx) error
}

// Manager runs registered migrations in order at process startup.
type Manager struct {
	migrations []Migration
	logger     *slog.Logger
}

// NewManager creates a manager over the registered migration list.
func NewManager(migrations []Migration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{migrations: migrations, logger: logger}
}

// Run checks and applies every registered migration. Each migration runs in
// its own transaction; an error rolls back that migration and aborts startup.
func (m *Manager) Run(ctx context.Context, database *sql.DB) error {
	for _, migration := range m.migrations {
		needed, err := migration.CheckNeeded(ctx, database)
		if err != nil {
			return fmt.Errorf("migration %s: check: %w", migration.ID(), err)
		}
		if !needed {
			m.logger.Debug("migration not needed", slog.String("migration", migration.ID()))
			continue
		}

		m.logger.Info("applying migration", slog.String("migration", migration.ID()))
		tx, err := database.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("migration %s: begin: %w", migration.ID(), err)
		}
		if err := migration.Execute(ctx, tx); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return fmt.Errorf("migration %s: rollback after %v: %w", migration.ID(), err, rbErr)
			}
			return fmt.Errorf("migration %s: %w", migration.ID(), err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %s: commit: %w", migration.ID(), err)
		}
		m.logger.Info("migration applied", slog.String("migration", migration.ID()))
	}
	return nil
}
