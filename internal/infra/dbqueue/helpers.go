package dbqueue

import (
	"context"
	"database/sql"
	"fmt"
)

// Helpers layered on the queue. Repositories build on these so that every
// statement in the system flows through the read or write lane.

// QueryRow runs a single-row query on the read lane. The scan callback
// receives the row; sql.ErrNoRows passes through for the caller to map.
func (q *Queue) QueryRow(ctx context.Context, query string, args []any, scan func(*sql.Row) error) error {
	_, err := q.ExecuteRead(ctx, func(opCtx context.Context, conn *sql.Conn) (any, error) {
		return nil, scan(conn.QueryRowContext(opCtx, query, args...))
	})
	return err
}

// Query runs a multi-row query on the read lane. The iterate callback owns
// row iteration; rows are closed by the helper.
func (q *Queue) Query(ctx context.Context, query string, args []any, iterate func(*sql.Rows) error) error {
	_, err := q.ExecuteRead(ctx, func(opCtx context.Context, conn *sql.Conn) (any, error) {
		rows, err := conn.QueryContext(opCtx, query, args...)
		if err != nil {
			return nil, err
		}
		defer func() { _ = rows.Close() }()
		if err := iterate(rows); err != nil {
			return nil, err
		}
		return nil, rows.Err()
	})
	return err
}

// Count runs a COUNT-style single-value query on the read lane.
func (q *Queue) Count(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	err := q.QueryRow(ctx, query, args, func(row *sql.Row) error {
		return row.Scan(&n)
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Exec runs a statement on the write lane and returns rows affected.
func (q *Queue) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := q.ExecuteWrite(ctx, func(opCtx context.Context, conn *sql.Conn) (any, error) {
		result, err := conn.ExecContext(opCtx, query, args...)
		if err != nil {
			return nil, err
		}
		n, _ := result.RowsAffected()
		return n, nil
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

// InsertReturningID runs an INSERT ... RETURNING id on the write lane.
func (q *Queue) InsertReturningID(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := q.ExecuteWrite(ctx, func(opCtx context.Context, conn *sql.Conn) (any, error) {
		var id int64
		if err := conn.QueryRowContext(opCtx, query, args...).Scan(&id); err != nil {
			return nil, err
		}
		return id, nil
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

// ExecuteTransaction runs fn inside a transaction on one write session.
// Commit on nil, rollback on error. This is the atomicity primitive: the
// queue itself never orders writes across tasks.
func (q *Queue) ExecuteTransaction(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	_, err := q.ExecuteWrite(ctx, func(opCtx context.Context, conn *sql.Conn) (any, error) {
		tx, err := conn.BeginTx(opCtx, nil)
		if err != nil {
			return nil, fmt.Errorf("begin transaction: %w", err)
		}
		if err := fn(opCtx, tx); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return nil, fmt.Errorf("rollback after %v: %w", err, rbErr)
			}
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit transaction: %w", err)
		}
		return nil, nil
	})
	return err
}

// GetOrCreate looks a row up on the read lane and inserts it on the write
// lane when absent. The insert tolerates a concurrent creator by re-reading
// on conflict.
func (q *Queue) GetOrCreate(ctx context.Context, get func(ctx context.Context, conn *sql.Conn) (any, bool, error), create func(ctx context.Context, conn *sql.Conn) (any, error)) (any, error) {
	found, err := q.ExecuteRead(ctx, func(opCtx context.Context, conn *sql.Conn) (any, error) {
		v, ok, err := get(opCtx, conn)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	if found != nil {
		return found, nil
	}
	return q.ExecuteWrite(ctx, create)
}
