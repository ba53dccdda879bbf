package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/metalayer-labs/metasync/internal/audit"
	"github.com/metalayer-labs/metasync/pkg/core"
)

// Executor runs one task against the target system. It is supplied by the
// orchestrator so the scheduler stays connector-agnostic. On success it
// returns the terminal status (COMPLETED or COMPLETED_NOOP). A
// *core.ConflictError return blocks the task; any other error is classified
// by the retry policy. Executors must honor ctx cancellation at the
// checkpoints between connector calls.
type Executor interface {
	Execute(ctx context.Context, task *core.ScheduledTask) (core.TaskStatus, error)
}

// idlePoll bounds how long an idle worker sleeps when no wake-up arrives.
const idlePoll = 250 * time.Millisecond

// Config holds scheduler construction options.
type Config struct {
	// Workers is the worker pool size; defaults to 4.
	Workers int
	// BaseDelay is the first retry delay; defaults to 1s.
	BaseDelay time.Duration
	// MaxDelay caps retry delays; defaults to 5m.
	MaxDelay time.Duration
	// Jitter spreads retry delays by ±fraction; defaults to 0.2.
	Jitter float64
	// GracePeriod is how long in-flight tasks may finish after shutdown
	// begins before being force-cancelled; defaults to 10s.
	GracePeriod time.Duration
	// Store persists task state; required.
	Store core.Store
	// Audit records transitions; required.
	Audit *audit.Recorder
	// Executor performs the actual write; required.
	Executor Executor
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// Scheduler owns the queue, the lock table, and the worker pool.
type Scheduler struct {
	workers  int
	grace    time.Duration
	store    core.Store
	audit    *audit.Recorder
	executor Executor
	logger   *slog.Logger
	clock    func() time.Time
	backoff  *backoff

	queue *Queue
	locks *LockTable
	wake  chan struct{}

	mu        sync.Mutex
	cancelled map[string]struct{}           // pending tasks cancelled before dispatch
	running   map[string]context.CancelFunc // in-flight tasks, for cooperative cancel
}

// New creates a scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Store == nil || cfg.Audit == nil || cfg.Executor == nil {
		return nil, fmt.Errorf("scheduler requires a store, an audit recorder, and an executor")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 10 * time.Second
	}
	jitter := cfg.Jitter
	if jitter < 0 {
		jitter = 0
	} else if jitter == 0 {
		jitter = 0.2
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Scheduler{
		workers:   cfg.Workers,
		grace:     cfg.GracePeriod,
		store:     cfg.Store,
		audit:     cfg.Audit,
		executor:  cfg.Executor,
		logger:    logger,
		clock:     clock,
		backoff:   newBackoff(cfg.BaseDelay, cfg.MaxDelay, jitter),
		queue:     NewQueue(),
		locks:     NewLockTable(),
		wake:      make(chan struct{}, 1),
		cancelled: make(map[string]struct{}),
		running:   make(map[string]context.CancelFunc),
	}, nil
}

// Enqueue persists and queues a new PENDING task.
func (s *Scheduler) Enqueue(task *core.ScheduledTask) error {
	if !task.Priority.Valid() {
		return &core.ConfigurationError{ConfigID: task.Snapshot.ConfigID, Reason: fmt.Sprintf("invalid priority rank %d", task.Priority)}
	}
	if task.Status == "" {
		task.Status = core.TaskPending
	}
	if task.Status != core.TaskPending {
		return fmt.Errorf("task %s: cannot enqueue in status %s", task.ID, task.Status)
	}
	now := s.clock()
	task.CreatedAt = now
	task.UpdatedAt = now
	if task.ScheduledTime.IsZero() {
		task.ScheduledTime = now
	}
	if err := s.store.CreateTask(task); err != nil {
		return fmt.Errorf("failed to persist task %s: %w", task.ID, err)
	}
	s.audit.Record(task.CorrelationID, core.EventTaskEnqueued, core.SeverityInfo, task.Key.AssetID,
		fmt.Sprintf("task %s enqueued at rank %s", task.ID, task.Priority))
	s.queue.Push(task)
	s.notify()
	s.logger.Debug("task enqueued", "task_id", task.ID, "rank", task.Priority.String(), "key", task.Key.String())
	return nil
}

// Requeue puts an already-persisted task (retry re-queue or an unblocked
// manual resolution) back on the queue without re-creating it.
func (s *Scheduler) Requeue(task *core.ScheduledTask) {
	s.queue.Push(task)
	s.notify()
}

// Restore re-queues PENDING tasks found in the store at startup, making
// restarts lossless.
func (s *Scheduler) Restore() (int, error) {
	tasks, err := s.store.ListTasks(core.TaskPending)
	if err != nil {
		return 0, fmt.Errorf("failed to restore pending tasks: %w", err)
	}
	for _, t := range tasks {
		s.queue.Push(t)
	}
	if len(tasks) > 0 {
		s.notify()
		s.logger.Info("restored pending tasks", "count", len(tasks))
	}
	return len(tasks), nil
}

// Cancel cancels a task. A queued task is removed immediately; a running
// task has its context cancelled and stops cooperatively at the next
// checkpoint between connector calls, never mid-call.
func (s *Scheduler) Cancel(taskID string) error {
	task, err := s.store.GetTask(taskID)
	if err != nil {
		return err
	}
	if task.Status.Terminal() {
		return fmt.Errorf("task %s: already %s", taskID, task.Status)
	}

	s.mu.Lock()
	if cancel, ok := s.running[taskID]; ok {
		s.cancelled[taskID] = struct{}{}
		s.mu.Unlock()
		cancel()
		return nil
	}
	s.cancelled[taskID] = struct{}{}
	s.mu.Unlock()

	if s.queue.Remove(taskID) {
		// The task never reaches a worker; consume the flag and
		// transition here.
		s.consumeCancel(taskID)
		return s.transition(task, core.TaskCancelled, task.RetryCount, nil, "cancelled by operator")
	}
	// A worker popped the task between GetTask and Remove; the flag makes
	// that worker mark it CANCELLED instead.
	return nil
}

// Queue length, for status output.
func (s *Scheduler) QueueLen() int {
	return s.queue.Len()
}

// Run starts the worker pool and blocks until ctx is cancelled and every
// worker has drained. On shutdown no new task is dispatched; in-flight
// tasks get the grace period to finish and are then force-marked CANCELLED.
func (s *Scheduler) Run(ctx context.Context) error {
	// Workers execute against execCtx, which outlives ctx by the grace
	// period so in-flight connector calls can complete.
	execCtx, cancelExec := context.WithCancel(context.Background())
	defer cancelExec()
	go func() {
		<-ctx.Done()
		timer := time.NewTimer(s.grace)
		defer timer.Stop()
		select {
		case <-timer.C:
			cancelExec()
		case <-execCtx.Done():
		}
	}()

	s.logger.Info("scheduler started", "workers", s.workers)
	g, _ := errgroup.WithContext(ctx)
	for i := 0; i < s.workers; i++ {
		worker := i
		g.Go(func() error {
			s.runWorker(ctx, execCtx, worker)
			return nil
		})
	}
	err := g.Wait()
	cancelExec()
	s.logger.Info("scheduler stopped")
	return err
}

func (s *Scheduler) runWorker(ctx, execCtx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, wait := s.queue.PopReady(s.clock(), s.locks.TryAcquire)
		if task == nil {
			if wait <= 0 || wait > idlePoll {
				wait = idlePoll
			}
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-s.wake:
				timer.Stop()
			case <-timer.C:
			}
			continue
		}

		s.runTask(execCtx, task, worker)
	}
}

// runTask drives one dispatch: PENDING→RUNNING, execute, then the terminal
// or retry transition. The asset lock is held for the whole span and
// released on any terminal or BLOCKED transition.
func (s *Scheduler) runTask(execCtx context.Context, task *core.ScheduledTask, worker int) {
	defer func() {
		s.locks.Release(task.Key)
		s.notify()
	}()

	if s.consumeCancel(task.ID) {
		_ = s.transition(task, core.TaskCancelled, task.RetryCount, nil, "cancelled before dispatch")
		return
	}

	if err := s.transition(task, core.TaskRunning, task.RetryCount, nil, ""); err != nil {
		s.logger.Error("dispatch transition failed", "task_id", task.ID, "error", err)
		return
	}
	s.audit.Record(task.CorrelationID, core.EventTaskDispatched, core.SeverityInfo, task.Key.AssetID,
		fmt.Sprintf("task %s dispatched to worker %d (attempt %d)", task.ID, worker, task.RetryCount+1))

	var runCtx context.Context
	var cancel context.CancelFunc
	if task.Snapshot.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(execCtx, task.Snapshot.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(execCtx)
	}
	s.trackRunning(task.ID, cancel)
	status, err := s.executor.Execute(runCtx, task)
	s.untrackRunning(task.ID)
	cancel()

	switch {
	case err == nil:
		s.finish(task, status)
	case s.consumeCancel(task.ID) || (execCtx.Err() != nil && errors.Is(err, context.Canceled)):
		_ = s.transition(task, core.TaskCancelled, task.RetryCount, nil, "cancelled while running")
	default:
		s.fail(task, err)
	}
}

// finish handles a successful execution: the terminal transition plus the
// auto-reschedule of recurring configurations.
func (s *Scheduler) finish(task *core.ScheduledTask, status core.TaskStatus) {
	if status != core.TaskCompleted && status != core.TaskCompletedNoop && status != core.TaskBlocked {
		status = core.TaskCompleted
	}
	if status == core.TaskBlocked {
		// Executor signalled a block without a ConflictError; keep fields empty.
		_ = s.transition(task, core.TaskBlocked, task.RetryCount, nil, "blocked pending manual resolution")
		return
	}
	_ = s.transition(task, status, task.RetryCount, nil, "")
	s.audit.Record(task.CorrelationID, core.EventTaskTerminal, core.SeverityInfo, task.Key.AssetID,
		fmt.Sprintf("task %s reached %s after %d retries", task.ID, status, task.RetryCount))

	if status == core.TaskCompleted {
		s.rescheduleRecurring(task)
	}
}

// fail classifies an execution error: conflicts block, transient errors
// retry with backoff until max_retries, everything else fails immediately.
func (s *Scheduler) fail(task *core.ScheduledTask, err error) {
	var conflictErr *core.ConflictError
	if errors.As(err, &conflictErr) {
		fields := conflictErr.Fields()
		if serr := s.store.SetBlockedFields(task.ID, fields); serr != nil {
			s.logger.Error("failed to persist blocked fields", "task_id", task.ID, "error", serr)
		}
		task.BlockedFields = fields
		_ = s.transition(task, core.TaskBlocked, task.RetryCount, nil, err.Error())
		return
	}

	retryable := core.Retryable(err) || errors.Is(err, context.DeadlineExceeded)
	if retryable && task.RetryCount < task.MaxRetries {
		delay := s.backoff.delay(task.RetryCount)
		task.RetryCount++
		task.ScheduledTime = s.clock().Add(delay)
		task.Status = core.TaskPending
		if serr := s.store.RescheduleTask(task.ID, task.ScheduledTime, task.RetryCount); serr != nil {
			s.logger.Error("failed to persist retry", "task_id", task.ID, "error", serr)
		}
		s.audit.Record(task.CorrelationID, core.EventTaskRetried, core.SeverityWarn, task.Key.AssetID,
			fmt.Sprintf("task %s retry %d/%d in %s: %v", task.ID, task.RetryCount, task.MaxRetries, delay, err))
		s.logger.Warn("task retrying", "task_id", task.ID, "retry", task.RetryCount, "delay", delay, "error", err)
		s.Requeue(task)
		return
	}

	report := core.ReportFor(err)
	_ = s.transition(task, core.TaskFailed, task.RetryCount, report, err.Error())
}

// rescheduleRecurring enqueues the next occurrence of a non-MANUAL task at
// the same rank, against the configuration snapshot captured at enqueue
// time.
func (s *Scheduler) rescheduleRecurring(task *core.ScheduledTask) {
	interval := task.Snapshot.Frequency.Interval()
	if interval <= 0 {
		return
	}
	next := &core.ScheduledTask{
		ID:            uuid.New().String(),
		Key:           task.Key,
		Priority:      task.Priority,
		ScheduledTime: s.clock().Add(interval),
		MaxRetries:    task.MaxRetries,
		Status:        core.TaskPending,
		Snapshot:      task.Snapshot,
		CorrelationID: audit.NewCorrelationID(),
		Proposed:      task.Proposed,
	}
	if err := s.Enqueue(next); err != nil {
		s.logger.Error("failed to schedule recurrence", "task_id", task.ID, "error", err)
	}
}

// transition validates and persists a status change, then audits terminal
// and blocked states.
func (s *Scheduler) transition(task *core.ScheduledTask, to core.TaskStatus, retryCount int, report *core.ErrorReport, details string) error {
	if !core.ValidTransition(task.Status, to) {
		return fmt.Errorf("task %s: invalid transition %s -> %s", task.ID, task.Status, to)
	}
	if err := s.store.UpdateTaskStatus(task.ID, to, retryCount, report); err != nil {
		return fmt.Errorf("failed to persist task %s status %s: %w", task.ID, to, err)
	}
	task.Status = to
	task.Report = report
	task.UpdatedAt = s.clock()

	switch to {
	case core.TaskFailed:
		s.audit.Record(task.CorrelationID, core.EventTaskTerminal, core.SeverityError, task.Key.AssetID,
			fmt.Sprintf("task %s FAILED: %s", task.ID, details))
	case core.TaskBlocked:
		s.audit.Record(task.CorrelationID, core.EventTaskBlocked, core.SeverityWarn, task.Key.AssetID,
			fmt.Sprintf("task %s BLOCKED: %s", task.ID, details))
	case core.TaskCancelled:
		s.audit.Record(task.CorrelationID, core.EventTaskTerminal, core.SeverityWarn, task.Key.AssetID,
			fmt.Sprintf("task %s CANCELLED: %s", task.ID, details))
	}
	return nil
}

func (s *Scheduler) consumeCancel(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cancelled[taskID]; ok {
		delete(s.cancelled, taskID)
		return true
	}
	return false
}

func (s *Scheduler) trackRunning(taskID string, cancel context.CancelFunc) {
	s.mu.Lock()
	s.running[taskID] = cancel
	s.mu.Unlock()
}

func (s *Scheduler) untrackRunning(taskID string) {
	s.mu.Lock()
	delete(s.running, taskID)
	s.mu.Unlock()
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
