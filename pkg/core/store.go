package core

import "time"

// Store defines the persistence interface for tasks, audit entries, and
// conflict resolution records. Audit and conflict tables are append-only:
// the store exposes no update or delete for them.
type Store interface {
	Open(path string) error
	Close() error
	Migrate() error

	// Task operations
	CreateTask(task *ScheduledTask) error
	GetTask(id string) (*ScheduledTask, error)
	UpdateTaskStatus(id string, status TaskStatus, retryCount int, report *ErrorReport) error
	RescheduleTask(id string, at time.Time, retryCount int) error
	SetBlockedFields(id string, fields []string) error
	ListTasks(statuses ...TaskStatus) ([]*ScheduledTask, error)

	// Audit operations (append-only)
	AppendAudit(entry *AuditLogEntry) error
	AuditByCorrelation(correlationID string) ([]*AuditLogEntry, error)
	ListAudit(limit int) ([]*AuditLogEntry, error)

	// Conflict resolution records (append-only)
	AppendConflictRecord(record *ConflictResolutionRecord) error
	ConflictRecordsForTask(taskID string) ([]*ConflictResolutionRecord, error)
}
