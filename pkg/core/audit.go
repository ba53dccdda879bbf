package core

import "time"

// EventType names one step of a task execution in the audit log.
type EventType string

// Audit event constants.
const (
	EventConfigLoaded     EventType = "config_loaded"
	EventConfigRejected   EventType = "config_rejected"
	EventAssetDiscovered  EventType = "asset_discovered"
	EventAssetMapped      EventType = "asset_mapped"
	EventTaskEnqueued     EventType = "task_enqueued"
	EventTaskDispatched   EventType = "task_dispatched"
	EventConflictDetected EventType = "conflict_detected"
	EventConflictResolved EventType = "conflict_resolved"
	EventWriteSkipped     EventType = "write_skipped"
	EventConnectorResult  EventType = "connector_result"
	EventTaskRetried      EventType = "task_retried"
	EventTaskBlocked      EventType = "task_blocked"
	EventTaskTerminal     EventType = "task_terminal"
)

// Severity grades an audit entry.
type Severity string

// Severity constants.
const (
	SeverityDebug Severity = "debug"
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// AuditLogEntry is one immutable, append-only record of a transition. All
// entries of one task execution share a correlation id, enabling full
// causal reconstruction of any sync. Entries are never edited or deleted by
// the running system; retention is an external operation.
type AuditLogEntry struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id"`
	Event         EventType `json:"event_type"`
	Actor         string    `json:"actor"`
	AssetID       string    `json:"asset_id,omitempty"`
	Before        string    `json:"before,omitempty"`
	After         string    `json:"after,omitempty"`
	Severity      Severity  `json:"severity"`
	Details       string    `json:"details,omitempty"`
}
