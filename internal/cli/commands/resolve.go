package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/metalayer-labs/metasync/internal/config"
	"github.com/metalayer-labs/metasync/pkg/core"
)

// ResolveOptions holds options for the resolve command.
type ResolveOptions struct {
	Decision string
	Wait     time.Duration
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand() *cobra.Command {
	opts := &ResolveOptions{}

	cmd := &cobra.Command{
		Use:   "resolve <task-id>",
		Short: "Resolve a blocked task",
		Long: `Apply an operator decision to a task blocked by a manual conflict.

Decision "source" re-runs the sync with the source value winning.
Decision "target" keeps the target's current value and closes the task
without writing.`,
		Example: `  # Push the source value through
  metasync resolve 4f1c9a2e-... --decision source

  # Keep what the target already has
  metasync resolve 4f1c9a2e-... --decision target`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.Decision, "decision", "d", "", "Which value wins: source or target (required)")
	cmd.Flags().DurationVar(&opts.Wait, "wait", 30*time.Second, "How long to wait for a source decision to finish syncing")
	_ = cmd.MarkFlagRequired("decision")

	return cmd
}

func runResolve(cmd *cobra.Command, opts *ResolveOptions, taskID string) error {
	cfg := config.FromContext(cmd.Context())
	logger := config.LoggerFromContext(cmd.Context())

	decision := core.Decision(opts.Decision)
	if decision != core.DecisionSource && decision != core.DecisionTarget {
		return fmt.Errorf("invalid decision %q (want %q or %q)", opts.Decision, core.DecisionSource, core.DecisionTarget)
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	orch, err := buildOrchestrator(cfg, store, logger)
	if err != nil {
		return err
	}

	// A target decision only touches the store. A source decision re-queues
	// the write, so the pipeline has to run until the task settles.
	if decision == core.DecisionTarget {
		if err := orch.ResolveConflict(taskID, decision); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Task %s closed, target value kept\n", shortID(taskID))
		return nil
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.Wait)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- orch.Run(ctx) }()

	if err := orch.ResolveConflict(taskID, decision); err != nil {
		cancel()
		<-runErr
		return err
	}

	status, err := waitForTerminal(ctx, store, taskID)
	cancel()
	if werr := <-runErr; werr != nil && !isCanceled(werr) {
		return werr
	}
	if err != nil {
		return fmt.Errorf("task %s did not settle within %s: %w", shortID(taskID), opts.Wait, err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Task %s resolved with the source value: %s\n", shortID(taskID), status)
	return nil
}

// waitForTerminal polls until the task leaves PENDING/RUNNING.
func waitForTerminal(ctx context.Context, store core.Store, taskID string) (core.TaskStatus, error) {
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
			task, err := store.GetTask(taskID)
			if err != nil {
				return "", err
			}
			if task.Status.Terminal() || task.Status == core.TaskBlocked {
				return task.Status, nil
			}
		}
	}
}
