package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/metalayer-labs/metasync/internal/config"
	"github.com/metalayer-labs/metasync/internal/orchestrator"
	"github.com/metalayer-labs/metasync/pkg/core"
)

// drainPollInterval is how often --once checks for remaining work.
const drainPollInterval = 200 * time.Millisecond

// RunOptions holds options for the run command.
type RunOptions struct {
	Once  bool
	Watch bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the synchronization engine",
		Long: `Start the synchronization engine: restore persisted tasks, run a
discovery pass over every enabled configuration, and process the task
queue until interrupted.

With --once the engine exits as soon as the queue drains instead of
waiting for a signal. Blocked tasks do not hold up --once; resolve them
later with 'metasync resolve'.`,
		Example: `  # Run until interrupted, reloading config on change
  metasync run --watch

  # One synchronization pass, for cron or CI
  metasync run --once`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Once, "once", false, "Exit after the task queue drains")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "Reload configuration and profiles on file change")

	return cmd
}

func runRun(cmd *cobra.Command, opts *RunOptions) error {
	cfg := config.FromContext(cmd.Context())
	logger := config.LoggerFromContext(cmd.Context())

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	orch, err := buildOrchestrator(cfg, store, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	restored, err := orch.Restore()
	if err != nil {
		return fmt.Errorf("failed to restore tasks: %w", err)
	}
	if restored > 0 {
		logger.Info("restored pending tasks from previous run", "count", restored)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- orch.Run(ctx) }()

	if opts.Watch {
		go watchConfig(ctx, cfg, orch, logger)
	}

	if err := orch.SyncAll(ctx); err != nil {
		stop()
		<-runErr
		return err
	}

	if opts.Once {
		if err := waitForDrain(ctx, store, orch); err != nil {
			stop()
			<-runErr
			return err
		}
		stop()
	} else {
		<-ctx.Done()
		logger.Info("shutting down")
	}

	if err := <-runErr; err != nil && !isCanceled(err) {
		return err
	}
	return nil
}

// watchConfig reloads sync configurations and profiles while the engine
// runs. Reload failures keep the previous configuration in effect.
func watchConfig(ctx context.Context, cfg *config.Config, orch *orchestrator.Orchestrator, logger *slog.Logger) {
	if cfg.ConfigFile == "" {
		logger.Warn("no config file to watch, --watch disabled")
		return
	}
	watcher, err := config.NewWatcher(config.WatcherConfig{
		ConfigFile: cfg.ConfigFile,
		Logger:     logger,
		OnLoad: func(next *config.Config) {
			accepted, rejected := next.SplitConfigurations()
			for _, rerr := range rejected {
				logger.Warn("sync configuration rejected on reload", "error", rerr)
			}
			profiles, badProfiles, perr := config.LoadProfiles(next.ProfilesDir)
			if perr != nil {
				logger.Warn("profile reload failed, keeping previous profiles", "error", perr)
				profiles = nil
			}
			for _, rerr := range badProfiles {
				logger.Warn("mapping profile rejected on reload", "error", rerr)
			}
			orch.UpdateConfigurations(accepted, profiles)
		},
	})
	if err != nil {
		logger.Warn("config watcher disabled", "error", err)
		return
	}
	if err := watcher.Watch(ctx); err != nil && !isCanceled(err) {
		logger.Warn("config watcher stopped", "error", err)
	}
}

// waitForDrain blocks until no PENDING or RUNNING task remains. BLOCKED
// tasks count as drained: they wait for an operator decision, not for
// the engine.
func waitForDrain(ctx context.Context, store core.Store, orch *orchestrator.Orchestrator) error {
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if orch.Scheduler().QueueLen() > 0 {
				continue
			}
			active, err := store.ListTasks(core.TaskPending, core.TaskRunning)
			if err != nil {
				return err
			}
			if len(active) == 0 {
				return nil
			}
		}
	}
}

func isCanceled(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}
