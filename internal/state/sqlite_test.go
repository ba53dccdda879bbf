package state

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalayer-labs/metasync/internal/testutil"
	"github.com/metalayer-labs/metasync/pkg/core"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore(testutil.NewTestLogger(t))
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })
	return store
}

func testTask(id string) *core.ScheduledTask {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &core.ScheduledTask{
		ID: id,
		Key: core.AssetKey{
			SourceSystem: "datasphere",
			AssetID:      "SALES.REVENUE_MODEL",
			TargetSystem: "catalog",
		},
		Priority:      core.PriorityCritical,
		ScheduledTime: now,
		MaxRetries:    3,
		Status:        core.TaskPending,
		Snapshot: core.ConfigSnapshot{
			ConfigID:  "cfg-1",
			Frequency: core.FrequencyHourly,
			Strategy:  core.StrategySourceWins,
			Profile:   "default",
			Timeout:   30 * time.Second,
		},
		CorrelationID: uuid.New().String(),
		Proposed: &core.MetadataAsset{
			ID:            "SALES.REVENUE_MODEL",
			TechnicalName: "sales_revenue_model",
			Type:          core.AssetTypeAnalyticalModel,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestTaskRoundTrip(t *testing.T) {
	store := setupTestStore(t)

	task := testTask("task-1")
	require.NoError(t, store.CreateTask(task))

	got, err := store.GetTask("task-1")
	require.NoError(t, err)

	assert.Equal(t, task.Key, got.Key)
	assert.Equal(t, core.PriorityCritical, got.Priority)
	assert.Equal(t, core.TaskPending, got.Status)
	assert.Equal(t, task.Snapshot, got.Snapshot)
	assert.Equal(t, task.CorrelationID, got.CorrelationID)
	require.NotNil(t, got.Proposed)
	assert.Equal(t, "sales_revenue_model", got.Proposed.TechnicalName)
	assert.True(t, got.ScheduledTime.Equal(task.ScheduledTime))
	assert.Nil(t, got.Report)
	assert.Nil(t, got.BlockedFields)
}

func TestGetTaskNotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetTask("missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestUpdateTaskStatus(t *testing.T) {
	store := setupTestStore(t)
	require.NoError(t, store.CreateTask(testTask("task-1")))

	report := &core.ErrorReport{
		Code:        core.CodeTimeout,
		Message:     "connector timed out",
		Remediation: "increase the configured timeout or check target availability",
	}
	require.NoError(t, store.UpdateTaskStatus("task-1", core.TaskFailed, 3, report))

	got, err := store.GetTask("task-1")
	require.NoError(t, err)
	assert.Equal(t, core.TaskFailed, got.Status)
	assert.Equal(t, 3, got.RetryCount)
	require.NotNil(t, got.Report)
	assert.Equal(t, core.CodeTimeout, got.Report.Code)

	err = store.UpdateTaskStatus("missing", core.TaskRunning, 0, nil)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestRescheduleTask(t *testing.T) {
	store := setupTestStore(t)

	task := testTask("task-1")
	task.Status = core.TaskFailed
	require.NoError(t, store.CreateTask(task))

	later := time.Now().UTC().Add(2 * time.Minute).Truncate(time.Millisecond)
	require.NoError(t, store.RescheduleTask("task-1", later, 1))

	got, err := store.GetTask("task-1")
	require.NoError(t, err)
	assert.Equal(t, core.TaskPending, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.True(t, got.ScheduledTime.Equal(later))
}

func TestSetBlockedFields(t *testing.T) {
	store := setupTestStore(t)
	require.NoError(t, store.CreateTask(testTask("task-1")))

	require.NoError(t, store.SetBlockedFields("task-1", []string{"owner", "certification_status"}))

	got, err := store.GetTask("task-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"owner", "certification_status"}, got.BlockedFields)
}

func TestListTasksByStatus(t *testing.T) {
	store := setupTestStore(t)

	for i, status := range []core.TaskStatus{core.TaskPending, core.TaskRunning, core.TaskBlocked, core.TaskPending} {
		task := testTask(string(rune('a' + i)))
		task.Status = status
		task.CreatedAt = task.CreatedAt.Add(time.Duration(i) * time.Second)
		require.NoError(t, store.CreateTask(task))
	}

	pending, err := store.ListTasks(core.TaskPending)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "a", pending[0].ID)
	assert.Equal(t, "d", pending[1].ID)

	mixed, err := store.ListTasks(core.TaskRunning, core.TaskBlocked)
	require.NoError(t, err)
	assert.Len(t, mixed, 2)

	all, err := store.ListTasks()
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestAuditAppendAndQuery(t *testing.T) {
	store := setupTestStore(t)

	corr := uuid.New().String()
	events := []core.EventType{core.EventTaskEnqueued, core.EventTaskDispatched, core.EventTaskTerminal}
	for _, event := range events {
		require.NoError(t, store.AppendAudit(&core.AuditLogEntry{
			ID:            uuid.New().String(),
			Timestamp:     time.Now().UTC(),
			CorrelationID: corr,
			Event:         event,
			Actor:         "metasync",
			AssetID:       "SALES.REVENUE_MODEL",
			Severity:      core.SeverityInfo,
		}))
	}
	require.NoError(t, store.AppendAudit(&core.AuditLogEntry{
		ID:            uuid.New().String(),
		Timestamp:     time.Now().UTC(),
		CorrelationID: uuid.New().String(),
		Event:         core.EventConfigLoaded,
		Actor:         "metasync",
		Severity:      core.SeverityInfo,
	}))

	chain, err := store.AuditByCorrelation(corr)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	for i, entry := range chain {
		assert.Equal(t, events[i], entry.Event)
	}

	recent, err := store.ListAudit(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, core.EventConfigLoaded, recent[0].Event)

	all, err := store.ListAudit(0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestConflictRecordRoundTrip(t *testing.T) {
	store := setupTestStore(t)

	record := &core.ConflictResolutionRecord{
		ID:            uuid.New().String(),
		TaskID:        "task-1",
		CorrelationID: uuid.New().String(),
		Conflicts: []core.Conflict{{
			ID:       uuid.New().String(),
			Type:     core.ConflictBusinessMetadata,
			Field:    "business.steward",
			Proposed: "finance-team",
			Existing: "sales-team",
		}},
		Strategy:   core.StrategyManual,
		Action:     core.ActionBlock,
		Escalated:  true,
		Pre:        &core.MetadataAsset{ID: "a1", TechnicalName: "existing_name"},
		ResolvedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, store.AppendConflictRecord(record))

	records, err := store.ConflictRecordsForTask("task-1")
	require.NoError(t, err)
	require.Len(t, records, 1)

	got := records[0]
	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, core.StrategyManual, got.Strategy)
	assert.Equal(t, core.ActionBlock, got.Action)
	assert.True(t, got.Escalated)
	require.Len(t, got.Conflicts, 1)
	assert.Equal(t, "business.steward", got.Conflicts[0].Field)
	require.NotNil(t, got.Pre)
	assert.Equal(t, "existing_name", got.Pre.TechnicalName)
	assert.Nil(t, got.Post)

	none, err := store.ConflictRecordsForTask("other")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMigrationVersion(t *testing.T) {
	store := setupTestStore(t)

	version, err := store.MigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
}
