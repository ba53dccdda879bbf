package testutil

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/metalayer-labs/metasync/pkg/core"
)

// MemStore is an in-memory core.Store for tests. It mirrors the SQLite
// store's semantics, including append-only audit and conflict tables.
type MemStore struct {
	mu        sync.Mutex
	tasks     map[string]*core.ScheduledTask
	audit     []*core.AuditLogEntry
	conflicts []*core.ConflictResolutionRecord
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{tasks: make(map[string]*core.ScheduledTask)}
}

func (s *MemStore) Open(string) error { return nil }
func (s *MemStore) Close() error      { return nil }
func (s *MemStore) Migrate() error    { return nil }

func (s *MemStore) CreateTask(task *core.ScheduledTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("task %s already exists", task.ID)
	}
	clone := *task
	s.tasks[task.ID] = &clone
	return nil
}

func (s *MemStore) GetTask(id string) (*core.ScheduledTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task not found: %s", id)
	}
	clone := *task
	return &clone, nil
}

func (s *MemStore) UpdateTaskStatus(id string, status core.TaskStatus, retryCount int, report *core.ErrorReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task not found: %s", id)
	}
	task.Status = status
	task.RetryCount = retryCount
	task.Report = report
	task.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemStore) RescheduleTask(id string, at time.Time, retryCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task not found: %s", id)
	}
	task.Status = core.TaskPending
	task.ScheduledTime = at
	task.RetryCount = retryCount
	return nil
}

func (s *MemStore) SetBlockedFields(id string, fields []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task not found: %s", id)
	}
	task.BlockedFields = fields
	return nil
}

func (s *MemStore) ListTasks(statuses ...core.TaskStatus) ([]*core.ScheduledTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*core.ScheduledTask
	for _, task := range s.tasks {
		if len(statuses) > 0 {
			match := false
			for _, st := range statuses {
				if task.Status == st {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		clone := *task
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemStore) AppendAudit(entry *core.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *entry
	s.audit = append(s.audit, &clone)
	return nil
}

func (s *MemStore) AuditByCorrelation(correlationID string) ([]*core.AuditLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*core.AuditLogEntry
	for _, e := range s.audit {
		if e.CorrelationID == correlationID {
			clone := *e
			out = append(out, &clone)
		}
	}
	return out, nil
}

// ListAudit returns the newest entries first, like the SQLite store.
func (s *MemStore) ListAudit(limit int) ([]*core.AuditLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.audit)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*core.AuditLogEntry, 0, n)
	for i := len(s.audit) - 1; i >= len(s.audit)-n; i-- {
		clone := *s.audit[i]
		out = append(out, &clone)
	}
	return out, nil
}

func (s *MemStore) AppendConflictRecord(record *core.ConflictResolutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *record
	s.conflicts = append(s.conflicts, &clone)
	return nil
}

func (s *MemStore) ConflictRecordsForTask(taskID string) ([]*core.ConflictResolutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*core.ConflictResolutionRecord
	for _, r := range s.conflicts {
		if r.TaskID == taskID {
			clone := *r
			out = append(out, &clone)
		}
	}
	return out, nil
}
