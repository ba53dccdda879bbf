package core

import (
	"fmt"
	"time"
)

// PriorityRank controls scheduler dispatch order. Lower is more urgent.
type PriorityRank int

// Priority rank constants.
const (
	PriorityCritical    PriorityRank = 1 // analytical models, core tables
	PriorityHigh        PriorityRank = 2 // views, spaces
	PriorityMedium      PriorityRank = 3 // data flows
	PriorityLow         PriorityRank = 4 // cosmetic metadata
	PriorityMaintenance PriorityRank = 5 // operator-triggered
)

// String returns the rank name used in logs and CLI output.
func (p PriorityRank) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityLow:
		return "LOW"
	case PriorityMaintenance:
		return "MAINTENANCE"
	default:
		return fmt.Sprintf("RANK(%d)", int(p))
	}
}

// Valid reports whether the rank is one of the five defined ranks.
func (p PriorityRank) Valid() bool {
	return p >= PriorityCritical && p <= PriorityMaintenance
}

// DefaultPriority returns the rank conventionally assigned to an asset type.
func DefaultPriority(t AssetType) PriorityRank {
	switch t {
	case AssetTypeAnalyticalModel, AssetTypeTable:
		return PriorityCritical
	case AssetTypeView, AssetTypeSpace:
		return PriorityHigh
	case AssetTypeDataFlow:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// TaskStatus is the lifecycle state of a scheduled task.
type TaskStatus string

// Task status constants.
const (
	TaskPending       TaskStatus = "PENDING"
	TaskRunning       TaskStatus = "RUNNING"
	TaskCompleted     TaskStatus = "COMPLETED"
	TaskCompletedNoop TaskStatus = "COMPLETED_NOOP"
	TaskFailed        TaskStatus = "FAILED"
	TaskBlocked       TaskStatus = "BLOCKED"
	TaskCancelled     TaskStatus = "CANCELLED"
)

// Terminal reports whether the status ends the task lifecycle.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskCompletedNoop, TaskFailed, TaskCancelled:
		return true
	}
	return false
}

// ValidTransition reports whether a task may move from one status to
// another. FAILED→PENDING covers retry re-queues; BLOCKED→PENDING and
// BLOCKED→COMPLETED_NOOP cover external conflict resolution. Any
// non-terminal state may be cancelled.
func ValidTransition(from, to TaskStatus) bool {
	if from == to {
		return false
	}
	if to == TaskCancelled {
		return !from.Terminal()
	}
	switch from {
	case TaskPending:
		return to == TaskRunning
	case TaskRunning:
		switch to {
		case TaskCompleted, TaskCompletedNoop, TaskFailed, TaskBlocked:
			return true
		}
	case TaskFailed:
		return to == TaskPending
	case TaskBlocked:
		return to == TaskPending || to == TaskCompletedNoop
	}
	return false
}

// AssetKey identifies the unit of mutual exclusion: one source asset being
// written to one target system.
type AssetKey struct {
	SourceSystem string `json:"source_system"`
	AssetID      string `json:"asset_id"`
	TargetSystem string `json:"target_system"`
}

// String renders the key in the form used by the lock table and logs.
func (k AssetKey) String() string {
	return k.SourceSystem + ":" + k.AssetID + ":" + k.TargetSystem
}

// ConfigSnapshot is the slice of a SyncConfiguration a task captures at
// enqueue time. In-flight tasks run against this snapshot; configuration
// changes apply only to newly enqueued tasks.
type ConfigSnapshot struct {
	ConfigID  string           `json:"config_id"`
	Frequency Frequency        `json:"frequency"`
	Strategy  ConflictStrategy `json:"strategy"`
	Profile   string           `json:"profile"`
	Timeout   time.Duration    `json:"timeout"`
}

// ErrorReport is the structured failure summary attached to a terminal
// FAILED task, including a remediation hint for the operator.
type ErrorReport struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Remediation string   `json:"remediation,omitempty"`
	Fields      []string `json:"fields,omitempty"`
}

// ScheduledTask is one unit of sync work: write a mapped asset to a target
// system, subject to conflict resolution.
type ScheduledTask struct {
	ID            string         `json:"id"`
	Key           AssetKey       `json:"key"`
	Priority      PriorityRank   `json:"priority"`
	ScheduledTime time.Time      `json:"scheduled_time"`
	RetryCount    int            `json:"retry_count"`
	MaxRetries    int            `json:"max_retries"`
	Status        TaskStatus     `json:"status"`
	Snapshot      ConfigSnapshot `json:"snapshot"`
	CorrelationID string         `json:"correlation_id"`

	// Proposed is the mapper output this task will write.
	Proposed *MetadataAsset `json:"proposed,omitempty"`

	// Report is set when the task reaches FAILED.
	Report *ErrorReport `json:"report,omitempty"`

	// BlockedFields names the conflicting fields when the task is BLOCKED.
	BlockedFields []string `json:"blocked_fields,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
