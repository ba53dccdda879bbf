package state

import (
	"database/sql"
	"fmt"

	"github.com/metalayer-labs/metasync/pkg/core"
)

const conflictColumns = `id, task_id, correlation_id, conflicts, strategy,
	action, escalated, pre, post, resolved_at`

// AppendConflictRecord inserts one conflict resolution record.
func (s *SQLiteStore) AppendConflictRecord(record *core.ConflictResolutionRecord) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	conflicts, err := encodeJSON(record.Conflicts)
	if err != nil {
		return fmt.Errorf("failed to encode conflicts: %w", err)
	}
	pre, err := encodeJSON(record.Pre)
	if err != nil {
		return fmt.Errorf("failed to encode pre-write state: %w", err)
	}
	post, err := encodeJSON(record.Post)
	if err != nil {
		return fmt.Errorf("failed to encode post-write state: %w", err)
	}

	_, err = s.db.Exec(`INSERT INTO conflict_records (`+conflictColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.TaskID, record.CorrelationID, conflicts.String,
		string(record.Strategy), string(record.Action), record.Escalated,
		pre, post, encodeTime(record.ResolvedAt))
	if err != nil {
		return fmt.Errorf("failed to append conflict record: %w", err)
	}
	return nil
}

// ConflictRecordsForTask returns a task's conflict records in insertion order.
func (s *SQLiteStore) ConflictRecordsForTask(taskID string) ([]*core.ConflictResolutionRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(`SELECT `+conflictColumns+` FROM conflict_records
		WHERE task_id = ? ORDER BY rowid`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conflict records: %w", err)
	}
	defer rows.Close()

	var records []*core.ConflictResolutionRecord
	for rows.Next() {
		var (
			record                       core.ConflictResolutionRecord
			conflicts                    string
			strategy, action, resolvedAt string
			pre, post                    sql.NullString
		)
		err := rows.Scan(&record.ID, &record.TaskID, &record.CorrelationID,
			&conflicts, &strategy, &action, &record.Escalated,
			&pre, &post, &resolvedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conflict record: %w", err)
		}
		record.Strategy = core.ConflictStrategy(strategy)
		record.Action = core.ResolutionAction(action)
		if record.ResolvedAt, err = decodeTime(resolvedAt); err != nil {
			return nil, err
		}
		if err := decodeJSON(sql.NullString{String: conflicts, Valid: true}, &record.Conflicts); err != nil {
			return nil, err
		}
		if err := decodeJSON(pre, &record.Pre); err != nil {
			return nil, err
		}
		if err := decodeJSON(post, &record.Post); err != nil {
			return nil, err
		}
		records = append(records, &record)
	}
	return records, rows.Err()
}
