package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/metalayer-labs/metasync/internal/config"
	"github.com/metalayer-labs/metasync/pkg/core"
)

// TasksOptions holds options for the tasks command.
type TasksOptions struct {
	Status []string
	Limit  int
}

// NewTasksCommand creates the tasks command.
func NewTasksCommand() *cobra.Command {
	opts := &TasksOptions{}

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List scheduled tasks",
		Long: `List the tasks in the state database, newest first. Use --status to
filter, e.g. --status BLOCKED to see tasks waiting for a conflict
decision.`,
		Example: `  # All tasks
  metasync tasks

  # Tasks waiting for an operator
  metasync tasks --status BLOCKED

  # Failures and blocks together
  metasync tasks --status FAILED,BLOCKED`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTasks(cmd, opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Status, "status", nil, "Filter by status (PENDING, RUNNING, COMPLETED, COMPLETED_NOOP, FAILED, BLOCKED, CANCELLED)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Show at most N tasks (0 = all)")

	return cmd
}

func runTasks(cmd *cobra.Command, opts *TasksOptions) error {
	cfg := config.FromContext(cmd.Context())
	logger := config.LoggerFromContext(cmd.Context())

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	statuses := make([]core.TaskStatus, 0, len(opts.Status))
	for _, s := range opts.Status {
		statuses = append(statuses, core.TaskStatus(strings.ToUpper(strings.TrimSpace(s))))
	}

	tasks, err := store.ListTasks(statuses...)
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}

	// Newest first reads better at a terminal.
	for i, j := 0, len(tasks)-1; i < j; i, j = i+1, j-1 {
		tasks[i], tasks[j] = tasks[j], tasks[i]
	}
	if opts.Limit > 0 && len(tasks) > opts.Limit {
		tasks = tasks[:opts.Limit]
	}

	renderTasks(cmd.OutOrStdout(), tasks)
	return nil
}

func renderTasks(w io.Writer, tasks []*core.ScheduledTask) {
	if len(tasks) == 0 {
		_, _ = fmt.Fprintln(w, "(no tasks)")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "ASSET", "TARGET", "PRIORITY", "STATUS", "RETRIES", "SCHEDULED", "DETAIL"})

	for _, task := range tasks {
		t.AppendRow(table.Row{
			shortID(task.ID),
			task.Key.AssetID,
			task.Key.TargetSystem,
			task.Priority.String(),
			string(task.Status),
			fmt.Sprintf("%d/%d", task.RetryCount, task.MaxRetries),
			task.ScheduledTime.Local().Format(time.RFC3339),
			taskDetail(task),
		})
	}
	t.Render()
	_, _ = fmt.Fprintf(w, "(%d tasks)\n", len(tasks))
}

// taskDetail summarizes why a task is blocked or failed, empty otherwise.
func taskDetail(task *core.ScheduledTask) string {
	switch task.Status {
	case core.TaskBlocked:
		return "conflicts: " + strings.Join(task.BlockedFields, ", ")
	case core.TaskFailed:
		if task.Report != nil {
			return task.Report.Message
		}
	}
	return ""
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
