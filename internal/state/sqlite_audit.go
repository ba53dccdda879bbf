package state

import (
	"database/sql"
	"fmt"

	"github.com/metalayer-labs/metasync/pkg/core"
)

const auditColumns = `id, timestamp, correlation_id, event_type, actor,
	asset_id, before, after, severity, details`

// AppendAudit inserts one audit entry. Entries are never updated or
// deleted; rowid order preserves insertion order within equal timestamps.
func (s *SQLiteStore) AppendAudit(entry *core.AuditLogEntry) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	_, err := s.db.Exec(`INSERT INTO audit_entries (`+auditColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, encodeTime(entry.Timestamp), entry.CorrelationID,
		string(entry.Event), entry.Actor, nullable(entry.AssetID),
		nullable(entry.Before), nullable(entry.After),
		string(entry.Severity), nullable(entry.Details))
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// AuditByCorrelation returns all entries sharing a correlation ID in
// insertion order, reconstructing one task's causal chain.
func (s *SQLiteStore) AuditByCorrelation(correlationID string) ([]*core.AuditLogEntry, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(`SELECT `+auditColumns+` FROM audit_entries
		WHERE correlation_id = ? ORDER BY rowid`, correlationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()
	return scanAuditRows(rows)
}

// ListAudit returns the most recent entries up to limit, newest first.
// A limit of zero or less returns everything.
func (s *SQLiteStore) ListAudit(limit int) ([]*core.AuditLogEntry, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	query := `SELECT ` + auditColumns + ` FROM audit_entries ORDER BY rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()
	return scanAuditRows(rows)
}

func scanAuditRows(rows *sql.Rows) ([]*core.AuditLogEntry, error) {
	var entries []*core.AuditLogEntry
	for rows.Next() {
		var (
			entry                           core.AuditLogEntry
			timestamp, eventType, severity  string
			assetID, before, after, details sql.NullString
		)
		err := rows.Scan(&entry.ID, &timestamp, &entry.CorrelationID,
			&eventType, &entry.Actor, &assetID, &before, &after,
			&severity, &details)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if entry.Timestamp, err = decodeTime(timestamp); err != nil {
			return nil, err
		}
		entry.Event = core.EventType(eventType)
		entry.Severity = core.Severity(severity)
		entry.AssetID = assetID.String
		entry.Before = before.String
		entry.After = after.String
		entry.Details = details.String
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
