package state

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/metalayer-labs/metasync/pkg/core"
)

const taskColumns = `id, source_system, asset_id, target_system, priority,
	scheduled_time, retry_count, max_retries, status, snapshot,
	correlation_id, proposed, report, blocked_fields, created_at, updated_at`

// CreateTask persists a new scheduled task.
func (s *SQLiteStore) CreateTask(task *core.ScheduledTask) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	snapshot, err := encodeJSON(task.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode task snapshot: %w", err)
	}
	proposed, err := encodeJSON(task.Proposed)
	if err != nil {
		return fmt.Errorf("failed to encode proposed asset: %w", err)
	}
	report, err := encodeJSON(task.Report)
	if err != nil {
		return fmt.Errorf("failed to encode error report: %w", err)
	}
	blocked, err := encodeJSON(task.BlockedFields)
	if err != nil {
		return fmt.Errorf("failed to encode blocked fields: %w", err)
	}

	s.logger.Debug("creating task",
		slog.String("id", task.ID),
		slog.String("asset_key", task.Key.String()))

	_, err = s.db.Exec(`INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Key.SourceSystem, task.Key.AssetID, task.Key.TargetSystem,
		int(task.Priority), encodeTime(task.ScheduledTime), task.RetryCount,
		task.MaxRetries, string(task.Status), snapshot.String,
		task.CorrelationID, proposed, report, blocked,
		encodeTime(task.CreatedAt), encodeTime(task.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID.
func (s *SQLiteStore) GetTask(id string) (*core.ScheduledTask, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// UpdateTaskStatus sets a task's status, retry count, and error report.
func (s *SQLiteStore) UpdateTaskStatus(id string, status core.TaskStatus, retryCount int, report *core.ErrorReport) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	encoded, err := encodeJSON(report)
	if err != nil {
		return fmt.Errorf("failed to encode error report: %w", err)
	}

	res, err := s.db.Exec(`UPDATE tasks
		SET status = ?, retry_count = ?, report = ?, updated_at = ?
		WHERE id = ?`,
		string(status), retryCount, encoded, encodeTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	return requireRow(res, id)
}

// RescheduleTask moves a task's scheduled time, used for retry backoff.
func (s *SQLiteStore) RescheduleTask(id string, at time.Time, retryCount int) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	res, err := s.db.Exec(`UPDATE tasks
		SET scheduled_time = ?, retry_count = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		encodeTime(at), retryCount, string(core.TaskPending), encodeTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to reschedule task: %w", err)
	}
	return requireRow(res, id)
}

// SetBlockedFields records the conflicting fields on a blocked task.
func (s *SQLiteStore) SetBlockedFields(id string, fields []string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	encoded, err := encodeJSON(fields)
	if err != nil {
		return fmt.Errorf("failed to encode blocked fields: %w", err)
	}

	res, err := s.db.Exec(`UPDATE tasks SET blocked_fields = ?, updated_at = ? WHERE id = ?`,
		encoded, encodeTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to set blocked fields: %w", err)
	}
	return requireRow(res, id)
}

// ListTasks returns tasks in the given statuses, oldest first. With no
// statuses it returns all tasks.
func (s *SQLiteStore) ListTasks(statuses ...core.TaskStatus) ([]*core.ScheduledTask, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*core.ScheduledTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*core.ScheduledTask, error) {
	var (
		task                            core.ScheduledTask
		priority                        int
		status                          string
		scheduled, createdAt, updatedAt string
		snapshot                        string
		proposed, report, blocked       sql.NullString
	)
	err := row.Scan(&task.ID, &task.Key.SourceSystem, &task.Key.AssetID,
		&task.Key.TargetSystem, &priority, &scheduled, &task.RetryCount,
		&task.MaxRetries, &status, &snapshot, &task.CorrelationID,
		&proposed, &report, &blocked, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	task.Priority = core.PriorityRank(priority)
	task.Status = core.TaskStatus(status)
	if task.ScheduledTime, err = decodeTime(scheduled); err != nil {
		return nil, err
	}
	if task.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, err
	}
	if task.UpdatedAt, err = decodeTime(updatedAt); err != nil {
		return nil, err
	}
	if err := decodeJSON(sql.NullString{String: snapshot, Valid: true}, &task.Snapshot); err != nil {
		return nil, err
	}
	if err := decodeJSON(proposed, &task.Proposed); err != nil {
		return nil, err
	}
	if err := decodeJSON(report, &task.Report); err != nil {
		return nil, err
	}
	if err := decodeJSON(blocked, &task.BlockedFields); err != nil {
		return nil, err
	}
	return &task, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("task %s: %w", id, core.ErrNotFound)
	}
	return nil
}
