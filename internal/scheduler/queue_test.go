package scheduler

import (
	"testing"
	"time"

	"github.com/metalayer-labs/metasync/pkg/core"
)

func queuedTask(id string, rank core.PriorityRank, at time.Time) *core.ScheduledTask {
	return &core.ScheduledTask{
		ID:            id,
		Key:           core.AssetKey{SourceSystem: "src", AssetID: id, TargetSystem: "tgt"},
		Priority:      rank,
		ScheduledTime: at,
		Status:        core.TaskPending,
	}
}

func acquireAll(core.AssetKey) bool { return true }

func TestQueue_RankOrder(t *testing.T) {
	q := NewQueue()
	now := time.Now()
	q.Push(queuedTask("medium", core.PriorityMedium, now))
	q.Push(queuedTask("critical", core.PriorityCritical, now))
	q.Push(queuedTask("high", core.PriorityHigh, now))

	var got []string
	for {
		task, _ := q.PopReady(now, acquireAll)
		if task == nil {
			break
		}
		got = append(got, task.ID)
	}
	want := []string{"critical", "high", "medium"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("dispatch order = %v, want %v", got, want)
		}
	}
}

func TestQueue_TieBreakByTimeThenFIFO(t *testing.T) {
	q := NewQueue()
	now := time.Now()
	q.Push(queuedTask("later", core.PriorityHigh, now.Add(-time.Second)))
	q.Push(queuedTask("earlier", core.PriorityHigh, now.Add(-time.Minute)))
	q.Push(queuedTask("fifo-a", core.PriorityHigh, now.Add(-time.Second)))

	first, _ := q.PopReady(now, acquireAll)
	second, _ := q.PopReady(now, acquireAll)
	third, _ := q.PopReady(now, acquireAll)
	if first.ID != "earlier" || second.ID != "later" || third.ID != "fifo-a" {
		t.Fatalf("order = %s, %s, %s", first.ID, second.ID, third.ID)
	}
}

func TestQueue_UnreadyHighRankDoesNotShadowReadyLowRank(t *testing.T) {
	q := NewQueue()
	now := time.Now()
	q.Push(queuedTask("future-critical", core.PriorityCritical, now.Add(time.Hour)))
	q.Push(queuedTask("ready-low", core.PriorityLow, now))

	task, _ := q.PopReady(now, acquireAll)
	if task == nil || task.ID != "ready-low" {
		t.Fatalf("expected ready-low, got %v", task)
	}
	// The future task stays queued with a wait hint.
	task, wait := q.PopReady(now, acquireAll)
	if task != nil {
		t.Fatalf("expected no ready task, got %s", task.ID)
	}
	if wait <= 0 || wait > time.Hour {
		t.Fatalf("unexpected wait hint %s", wait)
	}
}

func TestQueue_LockedTasksAreSkippedNotDropped(t *testing.T) {
	q := NewQueue()
	now := time.Now()
	q.Push(queuedTask("locked", core.PriorityCritical, now))
	q.Push(queuedTask("free", core.PriorityHigh, now))

	task, _ := q.PopReady(now, func(k core.AssetKey) bool { return k.AssetID != "locked" })
	if task == nil || task.ID != "free" {
		t.Fatalf("expected free, got %v", task)
	}
	if q.Len() != 1 {
		t.Fatalf("locked task should stay queued, len=%d", q.Len())
	}
	task, _ = q.PopReady(now, acquireAll)
	if task == nil || task.ID != "locked" {
		t.Fatalf("expected locked after release, got %v", task)
	}
}

func TestQueue_Remove(t *testing.T) {
	q := NewQueue()
	now := time.Now()
	q.Push(queuedTask("a", core.PriorityHigh, now))
	q.Push(queuedTask("b", core.PriorityHigh, now))

	if !q.Remove("a") {
		t.Fatal("expected removal of a")
	}
	if q.Remove("missing") {
		t.Fatal("expected missing removal to report false")
	}
	task, _ := q.PopReady(now, acquireAll)
	if task.ID != "b" {
		t.Fatalf("expected b, got %s", task.ID)
	}
}

func TestLockTable_MutualExclusion(t *testing.T) {
	locks := NewLockTable()
	key := core.AssetKey{SourceSystem: "s", AssetID: "a", TargetSystem: "t"}

	if !locks.TryAcquire(key) {
		t.Fatal("first acquire should succeed")
	}
	if locks.TryAcquire(key) {
		t.Fatal("second acquire should fail while held")
	}
	other := core.AssetKey{SourceSystem: "s", AssetID: "other", TargetSystem: "t"}
	if !locks.TryAcquire(other) {
		t.Fatal("distinct key should be independent")
	}
	locks.Release(key)
	if locks.Held(key) {
		t.Fatal("key should be free after release")
	}
	if !locks.TryAcquire(key) {
		t.Fatal("re-acquire after release should succeed")
	}
}

func TestBackoff_ExponentialCapped(t *testing.T) {
	b := newBackoff(time.Second, 5*time.Second, 0)
	wants := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for attempt, want := range wants {
		if got := b.delay(attempt); got != want {
			t.Errorf("delay(%d) = %s, want %s", attempt, got, want)
		}
	}
}

func TestBackoff_JitterStaysInBounds(t *testing.T) {
	b := newBackoff(time.Second, time.Minute, 0.2)
	for i := 0; i < 100; i++ {
		d := b.delay(1) // nominal 2s
		if d < 1600*time.Millisecond || d > 2400*time.Millisecond {
			t.Fatalf("jittered delay %s out of ±20%% bounds", d)
		}
	}
}
