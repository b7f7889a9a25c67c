// Package dbqueue serializes all database access through two bounded FIFO
// queues, one for reads and one for writes. Each queue has its own worker
// pool and a semaphore capping concurrent sessions, decoupling request
// concurrency from connection-pool capacity and giving uniform timeout
// handling. Writes are not serialized across workers: callers needing
// atomicity open a transaction inside a single operation.
package dbqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"newsflow/internal/observability/metrics"
)

// Queue kind labels.
const (
	queueRead  = "read"
	queueWrite = "write"
)

// Errors surfaced to callers.
var (
	// ErrNotRunning is returned for submissions to a stopped queue.
	ErrNotRunning = errors.New("database queue is not running")

	// ErrTimeout is returned when a task does not complete within its timeout.
	ErrTimeout = errors.New("database task timed out")

	// ErrQueueFull is returned when the queue is at capacity and the caller's
	// context expires while waiting for a slot.
	ErrQueueFull = errors.New("database queue full")
)

// Op is a database operation executed on a single session. The session is
// owned by the operation for its full duration and released by the worker.
type Op func(ctx context.Context, conn *sql.Conn) (any, error)

// Config holds queue sizing. Defaults follow the production shape: reads are
// cheap and plentiful, writes are few and controlled.
type Config struct {
	MaxQueueDepth int
	ReadWorkers   int
	WriteWorkers  int
	ReadSessions  int64
	WriteSessions int64
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

// DefaultConfig returns the default queue sizing.
func DefaultConfig() Config {
	return Config{
		MaxQueueDepth: 2000,
		ReadWorkers:   10,
		WriteWorkers:  3,
		ReadSessions:  12,
		WriteSessions: 4,
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  60 * time.Second,
	}
}

type taskResult struct {
	value any
	err   error
}

type task struct {
	id       string
	op       Op
	timeout  time.Duration
	priority int // advisory; recorded but not used for ordering
	result   chan taskResult
	ctx      context.Context
	queuedAt time.Time
}

// Stats is a point-in-time snapshot of queue state for /stats/queue.
type Stats struct {
	Running             bool  `json:"running"`
	ReadOperations      int64 `json:"read_operations"`
	WriteOperations     int64 `json:"write_operations"`
	ReadErrors          int64 `json:"read_errors"`
	WriteErrors         int64 `json:"write_errors"`
	ReadQueueDepth      int   `json:"read_queue_depth"`
	WriteQueueDepth     int   `json:"write_queue_depth"`
	ReadSlotsAvailable  int64 `json:"read_slots_available"`
	WriteSlotsAvailable int64 `json:"write_slots_available"`
	ReadWorkers         int   `json:"read_workers"`
	WriteWorkers        int   `json:"write_workers"`
	TotalProcessed      int64 `json:"total_processed"`
}

// Queue is the two-lane database dispatcher.
type Queue struct {
	db  *sql.DB
	cfg Config

	readTasks  chan *task
	writeTasks chan *task
	readSem    *semaphore.Weighted
	writeSem   *semaphore.Weighted

	readOps, writeOps   atomic.Int64
	readErrs, writeErrs atomic.Int64
	readBusy, writeBusy atomic.Int64

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  *slog.Logger
}

// New creates a stopped queue over the given connection pool.
func New(db *sql.DB, cfg Config, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		db:         db,
		cfg:        cfg,
		readTasks:  make(chan *task, cfg.MaxQueueDepth),
		writeTasks: make(chan *task, cfg.MaxQueueDepth),
		readSem:    semaphore.NewWeighted(cfg.ReadSessions),
		writeSem:   semaphore.NewWeighted(cfg.WriteSessions),
		logger:     logger,
	}
}

// Start launches the worker pools. Calling Start on a running queue is a
// logged no-op.
func (q *Queue) Start(ctx context.Context) {
	if !q.running.CompareAndSwap(false, true) {
		q.logger.Warn("database queue already running")
		return
	}
	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	q.cancel = cancel

	for i := 0; i < q.cfg.ReadWorkers; i++ {
		q.wg.Add(1)
		go q.worker(workerCtx, queueRead, i, q.readTasks, q.readSem)
	}
	for i := 0; i < q.cfg.WriteWorkers; i++ {
		q.wg.Add(1)
		go q.worker(workerCtx, queueWrite, i, q.writeTasks, q.writeSem)
	}

	q.logger.Info("database queue started",
		slog.Int("read_workers", q.cfg.ReadWorkers),
		slog.Int("write_workers", q.cfg.WriteWorkers),
		slog.Int64("read_sessions", q.cfg.ReadSessions),
		slog.Int64("write_sessions", q.cfg.WriteSessions))
}

// Stop cancels the workers and waits for in-flight tasks to settle.
func (q *Queue) Stop() {
	if !q.running.CompareAndSwap(true, false) {
		return
	}
	q.cancel()
	q.wg.Wait()
	q.logger.Info("database queue stopped")
}

// ExecuteRead submits op to the read queue and waits for its result.
// A zero timeout uses the configured read default.
func (q *Queue) ExecuteRead(ctx context.Context, op Op, opts ...TaskOption) (any, error) {
	return q.execute(ctx, queueRead, op, q.cfg.ReadTimeout, opts)
}

// ExecuteWrite submits op to the write queue and waits for its result.
// A zero timeout uses the configured write default.
func (q *Queue) ExecuteWrite(ctx context.Context, op Op, opts ...TaskOption) (any, error) {
	return q.execute(ctx, queueWrite, op, q.cfg.WriteTimeout, opts)
}

// TaskOption customizes one submission.
type TaskOption func(*task)

// WithTimeout overrides the queue's default task timeout.
func WithTimeout(d time.Duration) TaskOption {
	return func(t *task) { t.timeout = d }
}

// WithPriority records an advisory priority. FIFO order is unaffected.
func WithPriority(p int) TaskOption {
	return func(t *task) { t.priority = p }
}

func (q *Queue) execute(ctx context.Context, kind string, op Op, defaultTimeout time.Duration, opts []TaskOption) (any, error) {
	if !q.running.Load() {
		return nil, ErrNotRunning
	}

	t := &task{
		id:       fmt.Sprintf("%s_%s", kind, uuid.New().String()[:8]),
		op:       op,
		timeout:  defaultTimeout,
		result:   make(chan taskResult, 1),
		ctx:      ctx,
		queuedAt: time.Now(),
	}
	for _, o := range opts {
		o(t)
	}
	if t.timeout <= 0 {
		t.timeout = defaultTimeout
	}

	lane := q.readTasks
	if kind == queueWrite {
		lane = q.writeTasks
	}

	// Enqueue; blocks only when the queue is at capacity.
	select {
	case lane <- t:
		metrics.DBQueueDepth.WithLabelValues(kind).Set(float64(len(lane)))
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrQueueFull, ctx.Err())
	}

	// The timeout clock starts at submission, covering queue wait plus
	// execution, so a saturated queue cannot hide slow tasks.
	timer := time.NewTimer(t.timeout)
	defer timer.Stop()

	select {
	case res := <-t.result:
		return res.value, res.err
	case <-timer.C:
		// The worker is the single accounting authority: it will observe
		// the operation deadline and count the failure exactly once.
		return nil, fmt.Errorf("%w after %s (task %s)", ErrTimeout, t.timeout, t.id)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *Queue) worker(ctx context.Context, kind string, id int, lane chan *task, sem *semaphore.Weighted) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-lane:
			metrics.DBQueueDepth.WithLabelValues(kind).Set(float64(len(lane)))
			q.runTask(ctx, kind, id, t, sem)
		}
	}
}

// runTask executes one task with the session semaphore held. The session is
// released on every exit path; results for callers that already timed out
// are dropped.
func (q *Queue) runTask(ctx context.Context, kind string, workerID int, t *task, sem *semaphore.Weighted) {
	// Caller may have given up while the task sat in the queue.
	if t.ctx.Err() != nil {
		metrics.DBQueueProcessedTotal.WithLabelValues(kind, "cancelled").Inc()
		return
	}

	if err := sem.Acquire(ctx, 1); err != nil {
		q.deliver(t, taskResult{err: fmt.Errorf("acquire session slot: %w", err)})
		return
	}
	q.markBusy(kind, 1)

	start := time.Now()
	value, err := q.runOnSession(ctx, t)
	elapsed := time.Since(start)

	q.markBusy(kind, -1)
	sem.Release(1)

	metrics.DBQueueTaskDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	if err != nil {
		q.countError(kind)
		metrics.DBQueueProcessedTotal.WithLabelValues(kind, "error").Inc()
		q.logger.Warn("database task failed",
			slog.String("queue", kind),
			slog.Int("worker", workerID),
			slog.String("task_id", t.id),
			slog.Duration("duration", elapsed),
			slog.Any("error", err))
	} else {
		q.countOp(kind)
		metrics.DBQueueProcessedTotal.WithLabelValues(kind, "success").Inc()
	}

	q.deliver(t, taskResult{value: value, err: err})
}

func (q *Queue) runOnSession(ctx context.Context, t *task) (value any, err error) {
	// The deadline is anchored at submission, the same clock the caller's
	// timeout watches, so a task that waited in the queue does not get a
	// fresh budget once a worker picks it up.
	opCtx, cancel := context.WithDeadline(ctx, t.queuedAt.Add(t.timeout))
	defer cancel()

	conn, err := q.db.Conn(opCtx)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	// Guaranteed cleanup: the session goes back to the pool even if the
	// operation panics.
	defer func() {
		if closeErr := conn.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close session: %w", closeErr)
		}
		if r := recover(); r != nil {
			err = fmt.Errorf("database operation panicked: %v", r)
		}
	}()

	return t.op(opCtx, conn)
}

// deliver hands the result to the caller if it is still listening; late
// results are dropped.
func (q *Queue) deliver(t *task, res taskResult) {
	select {
	case t.result <- res:
	default:
	}
}

func (q *Queue) countOp(kind string) {
	if kind == queueRead {
		q.readOps.Add(1)
	} else {
		q.writeOps.Add(1)
	}
}

func (q *Queue) countError(kind string) {
	if kind == queueRead {
		q.readErrs.Add(1)
	} else {
		q.writeErrs.Add(1)
	}
}

func (q *Queue) markBusy(kind string, delta int64) {
	if kind == queueRead {
		q.readBusy.Add(delta)
	} else {
		q.writeBusy.Add(delta)
	}
}

// Stats returns a snapshot of queue counters and capacity.
func (q *Queue) Stats() Stats {
	return Stats{
		Running:             q.running.Load(),
		ReadOperations:      q.readOps.Load(),
		WriteOperations:     q.writeOps.Load(),
		ReadErrors:          q.readErrs.Load(),
		WriteErrors:         q.writeErrs.Load(),
		ReadQueueDepth:      len(q.readTasks),
		WriteQueueDepth:     len(q.writeTasks),
		ReadSlotsAvailable:  q.cfg.ReadSessions - q.readBusy.Load(),
		WriteSlotsAvailable: q.cfg.WriteSessions - q.writeBusy.Load(),
		ReadWorkers:         q.cfg.ReadWorkers,
		WriteWorkers:        q.cfg.WriteWorkers,
		TotalProcessed:      q.readOps.Load() + q.writeOps.Load() + q.readErrs.Load() + q.writeErrs.Load(),
	}
}
