package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/metalayer-labs/metasync/internal/audit"
	"github.com/metalayer-labs/metasync/internal/config"
	"github.com/metalayer-labs/metasync/internal/connector"
	"github.com/metalayer-labs/metasync/internal/mapper"
	"github.com/metalayer-labs/metasync/internal/orchestrator"
	"github.com/metalayer-labs/metasync/internal/resolver"
	"github.com/metalayer-labs/metasync/internal/state"
	"github.com/metalayer-labs/metasync/pkg/core"
)

// openStore opens and migrates the state database named by the config.
func openStore(cfg *config.Config, logger *slog.Logger) (*state.SQLiteStore, error) {
	if cfg.StatePath != ":memory:" {
		stateDir := filepath.Dir(cfg.StatePath)
		if stateDir != "." && stateDir != "" {
			if err := os.MkdirAll(stateDir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create state directory: %w", err)
			}
		}
	}

	store := state.NewSQLiteStore(logger)
	if err := store.Open(cfg.StatePath); err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// buildConnectors constructs the configured source and target connectors.
// Every configured system is exposed on both sides: a catalog can be a
// source in one configuration and a target in another.
func buildConnectors(cfg *config.Config) (map[string]core.SourceConnector, map[string]core.TargetConnector, error) {
	sources := make(map[string]core.SourceConnector, len(cfg.Systems))
	targets := make(map[string]core.TargetConnector, len(cfg.Systems))
	for name, sys := range cfg.Systems {
		switch sys.Type {
		case "file", "":
			if sys.Path == "" {
				return nil, nil, &core.ConfigurationError{ConfigID: name, Reason: "file system requires a path"}
			}
			sources[name] = connector.NewFileSource(name, sys.Path)
			targets[name] = connector.NewFileTarget(name, sys.Path)
		default:
			return nil, nil, &core.ConfigurationError{ConfigID: name, Reason: fmt.Sprintf("unknown system type %q", sys.Type)}
		}
	}
	return sources, targets, nil
}

// buildOrchestrator wires the full pipeline from the loaded configuration.
// Rejected sync configurations and profiles are audited and skipped; they
// never stop the valid ones from running.
func buildOrchestrator(cfg *config.Config, store core.Store, logger *slog.Logger) (*orchestrator.Orchestrator, error) {
	recorder := audit.NewRecorder(audit.Config{Sink: store, Logger: logger})
	loadID := audit.NewCorrelationID()

	accepted, rejected := cfg.SplitConfigurations()
	for _, err := range rejected {
		logger.Warn("sync configuration rejected", "error", err)
		recorder.Record(loadID, core.EventConfigRejected, core.SeverityWarn, "", err.Error())
	}

	profiles, badProfiles, err := config.LoadProfiles(cfg.ProfilesDir)
	if err != nil {
		return nil, err
	}
	for _, perr := range badProfiles {
		logger.Warn("mapping profile rejected", "error", perr)
		recorder.Record(loadID, core.EventConfigRejected, core.SeverityWarn, "", perr.Error())
	}

	m := mapper.New(mapper.Config{Environment: cfg.Environment, Logger: logger})
	for name, profile := range profiles {
		if err := m.ValidateProfile(profile); err != nil {
			logger.Warn("mapping profile rejected", "profile", name, "error", err)
			recorder.Record(loadID, core.EventConfigRejected, core.SeverityWarn, "", err.Error())
			delete(profiles, name)
		}
	}

	sources, targets, err := buildConnectors(cfg)
	if err != nil {
		return nil, err
	}

	recorder.Record(loadID, core.EventConfigLoaded, core.SeverityInfo, "",
		fmt.Sprintf("loaded %d configuration(s) and %d profile(s), rejected %d",
			len(accepted), len(profiles), len(rejected)+len(badProfiles)))

	return orchestrator.New(orchestrator.Config{
		Store:          store,
		Audit:          recorder,
		Mapper:         m,
		Resolver:       resolver.New(resolver.Config{Logger: logger}),
		Sources:        sources,
		Targets:        targets,
		Profiles:       profiles,
		Configurations: accepted,
		Workers:        cfg.Workers,
		BaseDelay:      cfg.Retry.BaseDelay,
		MaxDelay:       cfg.Retry.MaxDelay,
		Jitter:         cfg.Retry.Jitter,
		GracePeriod:    cfg.GracePeriod,
		Logger:         logger,
	})
}
