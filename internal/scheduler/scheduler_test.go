package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalayer-labs/metasync/internal/audit"
	"github.com/metalayer-labs/metasync/internal/testutil"
	"github.com/metalayer-labs/metasync/pkg/core"
)

// execFunc adapts a function to the Executor interface.
type execFunc func(ctx context.Context, task *core.ScheduledTask) (core.TaskStatus, error)

func (f execFunc) Execute(ctx context.Context, task *core.ScheduledTask) (core.TaskStatus, error) {
	return f(ctx, task)
}

func newTestScheduler(t *testing.T, workers int, exec Executor) (*Scheduler, *testutil.MemStore) {
	t.Helper()
	store := testutil.NewMemStore()
	rec := audit.NewRecorder(audit.Config{Sink: store, Actor: "test"})
	s, err := New(Config{
		Workers:   workers,
		BaseDelay: time.Millisecond,
		MaxDelay:  10 * time.Millisecond,
		Jitter:    -1, // deterministic delays under test
		Store:     store,
		Audit:     rec,
		Executor:  exec,
		Logger:    testutil.NewTestLogger(t),
	})
	require.NoError(t, err)
	return s, store
}

func newTask(id string, rank core.PriorityRank) *core.ScheduledTask {
	return &core.ScheduledTask{
		ID:            id,
		Key:           core.AssetKey{SourceSystem: "src", AssetID: id, TargetSystem: "tgt"},
		Priority:      rank,
		Status:        core.TaskPending,
		MaxRetries:    3,
		CorrelationID: uuid.New().String(),
		Snapshot:      core.ConfigSnapshot{ConfigID: "cfg-1", Frequency: core.FrequencyManual},
	}
}

// runUntil starts the scheduler and polls cond until it holds or the
// deadline passes, then shuts the scheduler down.
func runUntil(t *testing.T, s *Scheduler, cond func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not shut down")
	}
	require.True(t, cond(), "condition not reached before deadline")
}

func taskStatus(store *testutil.MemStore, id string) core.TaskStatus {
	task, err := store.GetTask(id)
	if err != nil {
		return ""
	}
	return task.Status
}

func TestScheduler_DispatchRespectsRankOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string
	exec := execFunc(func(_ context.Context, task *core.ScheduledTask) (core.TaskStatus, error) {
		mu.Lock()
		order = append(order, task.ID)
		mu.Unlock()
		return core.TaskCompleted, nil
	})

	// One worker so dispatch order is fully observable.
	s, _ := newTestScheduler(t, 1, exec)
	require.NoError(t, s.Enqueue(newTask("medium", core.PriorityMedium)))
	require.NoError(t, s.Enqueue(newTask("critical", core.PriorityCritical)))
	require.NoError(t, s.Enqueue(newTask("high", core.PriorityHigh)))

	runUntil(t, s, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"critical", "high", "medium"}, order)
}

func TestScheduler_MutualExclusionPerAssetKey(t *testing.T) {
	key := core.AssetKey{SourceSystem: "src", AssetID: "shared", TargetSystem: "tgt"}

	var mu sync.Mutex
	inFlight := 0
	maxInFlight := 0
	completed := 0
	exec := execFunc(func(_ context.Context, _ *core.ScheduledTask) (core.TaskStatus, error) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		inFlight--
		completed++
		mu.Unlock()
		return core.TaskCompleted, nil
	})

	s, _ := newTestScheduler(t, 8, exec)
	const n = 6
	for i := 0; i < n; i++ {
		task := newTask(uuid.New().String(), core.PriorityHigh)
		task.Key = key
		require.NoError(t, s.Enqueue(task))
	}

	runUntil(t, s, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return completed == n
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, maxInFlight, "at most one RUNNING task per asset key")
}

func TestScheduler_TransientErrorRetriesThenSucceeds(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	exec := execFunc(func(_ context.Context, _ *core.ScheduledTask) (core.TaskStatus, error) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 3 {
			return "", &core.TransientError{Op: "upsert", Err: context.DeadlineExceeded}
		}
		return core.TaskCompleted, nil
	})

	s, store := newTestScheduler(t, 1, exec)
	require.NoError(t, s.Enqueue(newTask("flaky", core.PriorityHigh)))

	runUntil(t, s, func() bool {
		return taskStatus(store, "flaky") == core.TaskCompleted
	})

	task, err := store.GetTask("flaky")
	require.NoError(t, err)
	assert.Equal(t, 2, task.RetryCount, "succeeded on the third attempt")
}

func TestScheduler_TransientErrorExhaustsRetries(t *testing.T) {
	exec := execFunc(func(_ context.Context, _ *core.ScheduledTask) (core.TaskStatus, error) {
		return "", &core.ConnectorError{System: "tgt", Op: "upsert", Code: core.CodeTimeout, Err: context.DeadlineExceeded}
	})

	s, store := newTestScheduler(t, 1, exec)
	task := newTask("doomed", core.PriorityHigh)
	task.MaxRetries = 2
	require.NoError(t, s.Enqueue(task))

	runUntil(t, s, func() bool {
		return taskStatus(store, "doomed") == core.TaskFailed
	})

	failed, err := store.GetTask("doomed")
	require.NoError(t, err)
	assert.Equal(t, 2, failed.RetryCount)
	require.NotNil(t, failed.Report)
	assert.Equal(t, core.CodeTimeout, failed.Report.Code)
}

func TestScheduler_ValidationErrorFailsWithoutRetry(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	exec := execFunc(func(_ context.Context, _ *core.ScheduledTask) (core.TaskStatus, error) {
		mu.Lock()
		attempts++
		mu.Unlock()
		return "", &core.ValidationError{AssetID: "a", Reason: "empty technical name"}
	})

	s, store := newTestScheduler(t, 1, exec)
	require.NoError(t, s.Enqueue(newTask("invalid", core.PriorityHigh)))

	runUntil(t, s, func() bool {
		return taskStatus(store, "invalid") == core.TaskFailed
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, attempts, "validation failures never retry")
	failed, _ := store.GetTask("invalid")
	assert.Equal(t, 0, failed.RetryCount)
}

func TestScheduler_ConflictErrorBlocksTask(t *testing.T) {
	exec := execFunc(func(_ context.Context, _ *core.ScheduledTask) (core.TaskStatus, error) {
		return "", &core.ConflictError{Conflicts: []core.Conflict{
			{Type: core.ConflictSchema, Field: "columns.id.type"},
		}}
	})

	s, store := newTestScheduler(t, 1, exec)
	require.NoError(t, s.Enqueue(newTask("contested", core.PriorityCritical)))

	runUntil(t, s, func() bool {
		return taskStatus(store, "contested") == core.TaskBlocked
	})

	blocked, err := store.GetTask("contested")
	require.NoError(t, err)
	assert.Equal(t, []string{"columns.id.type"}, blocked.BlockedFields)
	// The asset lock must be released on BLOCKED.
	assert.False(t, s.locks.Held(blocked.Key))
}

func TestScheduler_CancelPendingTask(t *testing.T) {
	exec := execFunc(func(_ context.Context, _ *core.ScheduledTask) (core.TaskStatus, error) {
		return core.TaskCompleted, nil
	})
	s, store := newTestScheduler(t, 1, exec)

	task := newTask("parked", core.PriorityLow)
	task.ScheduledTime = time.Now().Add(time.Hour)
	require.NoError(t, s.Enqueue(task))
	require.NoError(t, s.Cancel("parked"))

	got, err := store.GetTask("parked")
	require.NoError(t, err)
	assert.Equal(t, core.TaskCancelled, got.Status)
	assert.Equal(t, 0, s.QueueLen())

	// Cancelling a terminal task is rejected.
	assert.Error(t, s.Cancel("parked"))

	// The cancel flag was consumed with the queue entry; nothing is left
	// for a worker to pick up later.
	s.mu.Lock()
	_, pending := s.cancelled["parked"]
	s.mu.Unlock()
	assert.False(t, pending, "cancel flag should not outlive the queued task")
}

func TestScheduler_RecurringTaskReschedules(t *testing.T) {
	exec := execFunc(func(_ context.Context, _ *core.ScheduledTask) (core.TaskStatus, error) {
		return core.TaskCompleted, nil
	})
	s, store := newTestScheduler(t, 1, exec)

	task := newTask("hourly", core.PriorityHigh)
	task.Snapshot.Frequency = core.FrequencyHourly
	require.NoError(t, s.Enqueue(task))

	runUntil(t, s, func() bool {
		if taskStatus(store, "hourly") != core.TaskCompleted {
			return false
		}
		pending, _ := store.ListTasks(core.TaskPending)
		return len(pending) == 1
	})

	pending, err := store.ListTasks(core.TaskPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	next := pending[0]
	assert.NotEqual(t, task.ID, next.ID)
	assert.Equal(t, task.Key, next.Key)
	assert.Equal(t, task.Priority, next.Priority)
	assert.NotEqual(t, task.CorrelationID, next.CorrelationID)
	assert.True(t, next.ScheduledTime.After(time.Now().Add(50*time.Minute)))
}

func TestScheduler_ManualFrequencyDoesNotRecur(t *testing.T) {
	exec := execFunc(func(_ context.Context, _ *core.ScheduledTask) (core.TaskStatus, error) {
		return core.TaskCompleted, nil
	})
	s, store := newTestScheduler(t, 1, exec)
	require.NoError(t, s.Enqueue(newTask("once", core.PriorityHigh)))

	runUntil(t, s, func() bool {
		return taskStatus(store, "once") == core.TaskCompleted
	})

	pending, err := store.ListTasks(core.TaskPending)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestScheduler_AuditTrailIsCausallyComplete(t *testing.T) {
	exec := execFunc(func(_ context.Context, _ *core.ScheduledTask) (core.TaskStatus, error) {
		return core.TaskCompleted, nil
	})
	s, store := newTestScheduler(t, 1, exec)

	task := newTask("audited", core.PriorityHigh)
	require.NoError(t, s.Enqueue(task))

	runUntil(t, s, func() bool {
		return taskStatus(store, "audited") == core.TaskCompleted
	})

	entries, err := store.AuditByCorrelation(task.CorrelationID)
	require.NoError(t, err)
	var events []core.EventType
	for _, e := range entries {
		events = append(events, e.Event)
	}
	assert.Contains(t, events, core.EventTaskEnqueued)
	assert.Contains(t, events, core.EventTaskDispatched)
	assert.Contains(t, events, core.EventTaskTerminal)
	// Entries are causally ordered within the correlation id.
	for i := 1; i < len(entries); i++ {
		assert.False(t, entries[i].Timestamp.Before(entries[i-1].Timestamp))
	}
}

func TestScheduler_RestoreRequeuesPendingTasks(t *testing.T) {
	exec := execFunc(func(_ context.Context, _ *core.ScheduledTask) (core.TaskStatus, error) {
		return core.TaskCompleted, nil
	})
	s, store := newTestScheduler(t, 1, exec)

	// Simulate a task persisted by a previous process.
	require.NoError(t, store.CreateTask(newTask("leftover", core.PriorityHigh)))

	n, err := s.Restore()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	runUntil(t, s, func() bool {
		return taskStatus(store, "leftover") == core.TaskCompleted
	})
}
