// Package audit provides the append-only record of every sync transition.
// Each task execution shares one correlation id across its entries, so any
// sync can be causally reconstructed after the fact. Entries are never
// edited or deleted by the running system.
package audit

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/metalayer-labs/metasync/pkg/core"
)

// Sink receives finished audit entries. The state store implements it;
// appends must be safe for concurrent writers.
type Sink interface {
	AppendAudit(entry *core.AuditLogEntry) error
}

// Recorder appends exactly one immutable entry per transition. A failed
// append is logged but never propagated: audit trouble must not fail the
// sync it describes.
type Recorder struct {
	sink   Sink
	logger *slog.Logger
	actor  string
	clock  func() time.Time
}

// Config holds recorder construction options.
type Config struct {
	// Sink persists entries; required.
	Sink Sink
	// Actor identifies the writing component in exported logs.
	Actor string
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// NewRecorder creates a recorder.
func NewRecorder(cfg Config) *Recorder {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	actor := cfg.Actor
	if actor == "" {
		actor = "metasync"
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Recorder{sink: cfg.Sink, logger: logger, actor: actor, clock: clock}
}

// NewCorrelationID mints the identifier shared by all entries of one task
// execution lifecycle.
func NewCorrelationID() string {
	return uuid.New().String()
}

// Record appends one entry.
func (r *Recorder) Record(correlationID string, event core.EventType, severity core.Severity, assetID, details string) {
	r.RecordChange(correlationID, event, severity, assetID, details, "", "")
}

// RecordChange appends one entry carrying before/after payloads.
func (r *Recorder) RecordChange(correlationID string, event core.EventType, severity core.Severity, assetID, details, before, after string) {
	entry := &core.AuditLogEntry{
		ID:            uuid.New().String(),
		Timestamp:     r.clock().UTC(),
		CorrelationID: correlationID,
		Event:         event,
		Actor:         r.actor,
		AssetID:       assetID,
		Before:        before,
		After:         after,
		Severity:      severity,
		Details:       details,
	}
	if err := r.sink.AppendAudit(entry); err != nil {
		r.logger.Error("audit append failed", "event", event, "correlation_id", correlationID, "error", err)
	}
}

// Payload renders a value as the JSON payload carried in before/after
// fields. Marshal failures degrade to an empty payload rather than
// poisoning the entry.
func Payload(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
