// Package scheduler maintains the priority queue of sync tasks and
// dispatches them to a bounded worker pool under per-asset mutual exclusion
// and a bounded retry policy.
package scheduler

import (
	"container/heap"
	"sync"
	"time"

	"github.com/metalayer-labs/metasync/pkg/core"
)

// item is one queued task plus its FIFO insertion sequence.
type item struct {
	task *core.ScheduledTask
	seq  uint64
	idx  int
}

// taskHeap orders items by (priority rank, scheduled time, insertion
// sequence) so dispatch is deterministic under test.
type taskHeap []*item

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.task.Priority != b.task.Priority {
		return a.task.Priority < b.task.Priority
	}
	if !a.task.ScheduledTime.Equal(b.task.ScheduledTime) {
		return a.task.ScheduledTime.Before(b.task.ScheduledTime)
	}
	return a.seq < b.seq
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].idx = i
	h[j].idx = j
}

func (h *taskHeap) Push(x any) {
	it := x.(*item)
	it.idx = len(*h)
	*h = append(*h, it)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// Queue is the shared priority queue. One mutex guards it; enqueue and
// dequeue are O(log n) and infrequent relative to task execution time.
type Queue struct {
	mu  sync.Mutex
	h   taskHeap
	seq uint64
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.h)
}

// Push enqueues a task.
func (q *Queue) Push(task *core.ScheduledTask) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	heap.Push(&q.h, &item{task: task, seq: q.seq})
}

// PopReady removes and returns the lowest-rank task that is ready
// (scheduled_time <= now) and whose asset key tryAcquire accepts. Ready
// tasks whose lock is held are skipped and kept queued. When no task
// qualifies, the returned wait is the time until the earliest scheduled
// task becomes ready, or zero when the caller should simply wait for a
// wake-up (queue empty or everything locked).
func (q *Queue) PopReady(now time.Time, tryAcquire func(core.AssetKey) bool) (*core.ScheduledTask, time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var skipped []*item
	var task *core.ScheduledTask
	var wait time.Duration

	// Heap order is (rank, time, seq), so an unready high-rank task can sit
	// above a ready lower-rank one. Pop until a ready, lockable task shows
	// up, stashing everything skipped; the stash keeps unready tasks from
	// shadowing ready ones.
	for len(q.h) > 0 {
		it := heap.Pop(&q.h).(*item)
		if d := it.task.ScheduledTime.Sub(now); d > 0 {
			if wait == 0 || d < wait {
				wait = d
			}
			skipped = append(skipped, it)
			continue
		}
		if tryAcquire(it.task.Key) {
			task = it.task
			break
		}
		skipped = append(skipped, it)
	}

	for _, it := range skipped {
		heap.Push(&q.h, it)
	}
	if task != nil {
		return task, 0
	}
	return nil, wait
}

// Remove deletes a queued task by id. It reports whether the task was
// found; a running task cannot be removed here.
func (q *Queue) Remove(taskID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, it := range q.h {
		if it.task.ID == taskID {
			heap.Remove(&q.h, it.idx)
			return true
		}
	}
	return false
}
