package dbqueue

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func testQueue(t *testing.T) *Queue {
	t.Helper()
	db, _, err := sqlmock.New(sqlmock.MonitorPingsOption(false))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cfg := DefaultConfig()
	cfg.ReadWorkers = 2
	cfg.WriteWorkers = 1
	cfg.ReadSessions = 2
	cfg.WriteSessions = 1
	q := New(db, cfg, nil)
	q.Start(context.Background())
	t.Cleanup(q.Stop)
	return q
}

func TestQueue_ExecuteRead_success(t *testing.T) {
	q := testQueue(t)

	got, err := q.ExecuteRead(context.Background(), func(ctx context.Context, conn *sql.Conn) (any, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("ExecuteRead err=%v", err)
	}
	if got.(int) != 42 {
		t.Fatalf("got %v", got)
	}

	stats := q.Stats()
	if stats.ReadOperations != 1 {
		t.Fatalf("want 1 read op, got %d", stats.ReadOperations)
	}
}

func TestQueue_TaskTimeout(t *testing.T) {
	q := testQueue(t)

	start := time.Now()
	_, err := q.ExecuteRead(context.Background(), func(ctx context.Context, conn *sql.Conn) (any, error) {
		select {
		case <-time.After(5 * time.Second):
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}, WithTimeout(100*time.Millisecond))

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("want ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("caller observed timeout too late: %s", elapsed)
	}

	// Slot must return to baseline once the worker's deadline fires, and
	// the failure lands in the read error counter exactly once.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		stats := q.Stats()
		if stats.ReadSlotsAvailable == 2 && stats.ReadErrors > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	stats := q.Stats()
	if stats.ReadSlotsAvailable != 2 {
		t.Fatalf("read slot leaked: %d available", stats.ReadSlotsAvailable)
	}
	if stats.ReadErrors != 1 {
		t.Fatalf("timed-out task must count exactly one read error, got %d", stats.ReadErrors)
	}
	if stats.ReadOperations != 0 {
		t.Fatalf("timed-out task must not count as a success, got %d", stats.ReadOperations)
	}
}

func TestQueue_OperationErrorPropagates(t *testing.T) {
	q := testQueue(t)

	boom := errors.New("boom")
	_, err := q.ExecuteWrite(context.Background(), func(ctx context.Context, conn *sql.Conn) (any, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	if q.Stats().WriteErrors != 1 {
		t.Fatalf("want 1 write error, got %d", q.Stats().WriteErrors)
	}
}

func TestQueue_PanicDoesNotKillWorker(t *testing.T) {
	q := testQueue(t)

	_, err := q.ExecuteRead(context.Background(), func(ctx context.Context, conn *sql.Conn) (any, error) {
		panic("op exploded")
	})
	if err == nil {
		t.Fatal("want error from panicking op")
	}

	// The worker survives and processes the next task.
	got, err := q.ExecuteRead(context.Background(), func(ctx context.Context, conn *sql.Conn) (any, error) {
		return "ok", nil
	})
	if err != nil || got.(string) != "ok" {
		t.Fatalf("worker dead after panic: got=%v err=%v", got, err)
	}
}

func TestQueue_SubmitWhileStopped(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	q := New(db, DefaultConfig(), nil)
	_, err = q.ExecuteRead(context.Background(), func(ctx context.Context, conn *sql.Conn) (any, error) {
		return nil, nil
	})
	if !errors.Is(err, ErrNotRunning) {
		t.Fatalf("want ErrNotRunning, got %v", err)
	}
}

func TestQueue_ConcurrencyNeverExceedsSessionCap(t *testing.T) {
	q := testQueue(t)

	const tasks = 10
	results := make(chan error, tasks)
	for i := 0; i < tasks; i++ {
		go func() {
			_, err := q.ExecuteRead(context.Background(), func(ctx context.Context, conn *sql.Conn) (any, error) {
				time.Sleep(20 * time.Millisecond)
				return nil, nil
			}, WithTimeout(5*time.Second))
			results <- err
		}()
	}

	for i := 0; i < tasks; i++ {
		if err := <-results; err != nil {
			t.Fatalf("task %d: %v", i, err)
		}
		if avail := q.Stats().ReadSlotsAvailable; avail < 0 {
			t.Fatalf("session cap exceeded: %d slots available", avail)
		}
	}
}
