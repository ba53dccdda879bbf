// Package orchestrator drives the sync pipeline: it discovers assets from
// source connectors, maps them through profiles, enqueues scheduled tasks,
// and executes each dispatch with conflict resolution before any target
// write.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/metalayer-labs/metasync/internal/audit"
	"github.com/metalayer-labs/metasync/internal/lineage"
	"github.com/metalayer-labs/metasync/internal/mapper"
	"github.com/metalayer-labs/metasync/internal/resolver"
	"github.com/metalayer-labs/metasync/internal/scheduler"
	"github.com/metalayer-labs/metasync/pkg/core"
)

// Config holds orchestrator construction options. Everything is injected;
// the orchestrator holds no global state.
type Config struct {
	// Store persists tasks, audit entries, and conflict records; required.
	Store core.Store
	// Audit records pipeline transitions; required.
	Audit *audit.Recorder
	// Mapper shapes source assets for targets; required.
	Mapper *mapper.Mapper
	// Resolver applies conflict strategies; required.
	Resolver *resolver.Resolver
	// Sources and Targets are the connected systems, keyed by system name.
	Sources map[string]core.SourceConnector
	Targets map[string]core.TargetConnector
	// Profiles are the loaded mapping profiles, keyed by name.
	Profiles map[string]*core.MappingProfile
	// Configurations are the validated, enabled sync configurations.
	Configurations []core.SyncConfiguration

	// Scheduler tuning, passed through.
	Workers     int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
	GracePeriod time.Duration

	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// Orchestrator coordinates discovery, mapping, scheduling, and execution.
type Orchestrator struct {
	store    core.Store
	audit    *audit.Recorder
	mapper   *mapper.Mapper
	resolver *resolver.Resolver
	sched    *scheduler.Scheduler
	logger   *slog.Logger
	clock    func() time.Time

	mu       sync.RWMutex
	sources  map[string]core.SourceConnector
	targets  map[string]core.TargetConnector
	profiles map[string]*core.MappingProfile
	configs  []core.SyncConfiguration
}

// New creates an orchestrator and its scheduler.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil || cfg.Audit == nil || cfg.Mapper == nil || cfg.Resolver == nil {
		return nil, fmt.Errorf("orchestrator requires a store, audit recorder, mapper, and resolver")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	o := &Orchestrator{
		store:    cfg.Store,
		audit:    cfg.Audit,
		mapper:   cfg.Mapper,
		resolver: cfg.Resolver,
		sources:  cfg.Sources,
		targets:  cfg.Targets,
		profiles: cfg.Profiles,
		configs:  cfg.Configurations,
		logger:   logger,
		clock:    clock,
	}
	if o.sources == nil {
		o.sources = map[string]core.SourceConnector{}
	}
	if o.targets == nil {
		o.targets = map[string]core.TargetConnector{}
	}
	if o.profiles == nil {
		o.profiles = map[string]*core.MappingProfile{}
	}
	o.configs = o.vetConfigurations(o.configs)

	sched, err := scheduler.New(scheduler.Config{
		Workers:     cfg.Workers,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
		Jitter:      cfg.Jitter,
		GracePeriod: cfg.GracePeriod,
		Store:       cfg.Store,
		Audit:       cfg.Audit,
		Executor:    o,
		Logger:      logger,
		Clock:       clock,
	})
	if err != nil {
		return nil, err
	}
	o.sched = sched
	return o, nil
}

// Scheduler exposes the underlying scheduler for status queries.
func (o *Orchestrator) Scheduler() *scheduler.Scheduler {
	return o.sched
}

// Run starts the worker pool and blocks until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	return o.sched.Run(ctx)
}

// Restore re-queues PENDING tasks persisted by a previous process.
func (o *Orchestrator) Restore() (int, error) {
	return o.sched.Restore()
}

// vetConfigurations drops configurations referencing a custom rule the
// resolver does not know, auditing each rejection. Generic validation
// happens at config load; only the resolver can check rule names.
func (o *Orchestrator) vetConfigurations(configs []core.SyncConfiguration) []core.SyncConfiguration {
	kept := make([]core.SyncConfiguration, 0, len(configs))
	for _, sc := range configs {
		if sc.Strategy == core.StrategyCustomRule && !o.resolver.HasCustomRule(sc.CustomRule) {
			cerr := &core.ConfigurationError{ConfigID: sc.ID,
				Reason: fmt.Sprintf("custom rule %q is not registered", sc.CustomRule)}
			o.logger.Warn("sync configuration rejected", "config_id", sc.ID, "error", cerr)
			o.audit.Record(audit.NewCorrelationID(), core.EventConfigRejected,
				core.SeverityWarn, "", cerr.Error())
			continue
		}
		kept = append(kept, sc)
	}
	return kept
}

// UpdateConfigurations swaps in reloaded configurations and profiles. Only
// work enqueued afterwards sees the new values; in-flight tasks keep their
// snapshots.
func (o *Orchestrator) UpdateConfigurations(configs []core.SyncConfiguration, profiles map[string]*core.MappingProfile) {
	configs = o.vetConfigurations(configs)
	o.mu.Lock()
	defer o.mu.Unlock()
	o.configs = configs
	if profiles != nil {
		o.profiles = profiles
	}
	o.logger.Info("configurations updated", "configurations", len(configs), "profiles", len(o.profiles))
}

// SyncAll runs a discovery pass over every enabled configuration
// concurrently. A configuration failure is reported but never stops the
// others.
func (o *Orchestrator) SyncAll(ctx context.Context) error {
	o.mu.RLock()
	configs := make([]core.SyncConfiguration, len(o.configs))
	copy(configs, o.configs)
	o.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, sc := range configs {
		sc := sc
		g.Go(func() error {
			if err := o.syncConfiguration(gctx, sc); err != nil {
				o.logger.Error("sync configuration failed",
					"config_id", sc.ID, "error", err)
				o.audit.Record(audit.NewCorrelationID(), core.EventConfigRejected,
					core.SeverityError, "", fmt.Sprintf("configuration %s: %v", sc.ID, err))
			}
			return nil
		})
	}
	return g.Wait()
}

// syncConfiguration discovers, maps, and enqueues the assets of one
// configuration, upstream lineage first.
func (o *Orchestrator) syncConfiguration(ctx context.Context, sc core.SyncConfiguration) error {
	source, ok := o.source(sc.SourceSystem)
	if !ok {
		return &core.ConfigurationError{ConfigID: sc.ID, Reason: fmt.Sprintf("unknown source system %q", sc.SourceSystem)}
	}
	if _, ok := o.target(sc.TargetSystem); !ok {
		return &core.ConfigurationError{ConfigID: sc.ID, Reason: fmt.Sprintf("unknown target system %q", sc.TargetSystem)}
	}
	profile, ok := o.profile(sc.Profile)
	if !ok {
		return &core.ConfigurationError{ConfigID: sc.ID, Reason: fmt.Sprintf("unknown mapping profile %q", sc.Profile)}
	}

	assets, err := source.ListAssets(ctx, sc.Filter)
	if err != nil {
		return fmt.Errorf("discovery failed for %s: %w", sc.ID, err)
	}

	ordered, err := lineage.Order(assets)
	if err != nil {
		o.logger.Warn("lineage ordering degraded to discovery order",
			"config_id", sc.ID, "error", err)
	}

	var enqueued int
	for _, asset := range ordered {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.enqueueAsset(sc, profile, asset); err != nil {
			o.logger.Warn("asset skipped", "config_id", sc.ID, "asset_id", asset.ID, "error", err)
			continue
		}
		enqueued++
	}
	o.logger.Info("discovery pass complete",
		"config_id", sc.ID, "discovered", len(assets), "enqueued", enqueued)
	return nil
}

// enqueueAsset maps one discovered asset and schedules its write.
func (o *Orchestrator) enqueueAsset(sc core.SyncConfiguration, profile *core.MappingProfile, asset *core.MetadataAsset) error {
	correlationID := audit.NewCorrelationID()
	o.audit.Record(correlationID, core.EventAssetDiscovered, core.SeverityInfo, asset.ID,
		fmt.Sprintf("discovered %s asset %s from %s", asset.Type, asset.ID, sc.SourceSystem))

	result := o.mapper.MapAsset(asset, sc.TargetSystem, profile)
	if len(result.Errors) > 0 {
		o.audit.Record(correlationID, core.EventConfigRejected, core.SeverityError, asset.ID,
			fmt.Sprintf("mapping failed: %v", result.Errors))
		return &core.ValidationError{AssetID: asset.ID, Reason: fmt.Sprintf("mapping failed: %v", result.Errors)}
	}
	for _, warning := range result.Warnings {
		o.logger.Warn("mapping warning", "asset_id", asset.ID, "warning", warning)
	}
	o.audit.RecordChange(correlationID, core.EventAssetMapped, core.SeverityInfo, asset.ID,
		fmt.Sprintf("applied %d rule(s) from profile %s", len(result.AppliedRules), profile.Name),
		audit.Payload(asset), audit.Payload(result.TargetAsset))

	priority := sc.Priority
	if priority == 0 {
		priority = core.DefaultPriority(asset.Type)
	}

	task := &core.ScheduledTask{
		ID: uuid.New().String(),
		Key: core.AssetKey{
			SourceSystem: sc.SourceSystem,
			AssetID:      asset.ID,
			TargetSystem: sc.TargetSystem,
		},
		Priority:      priority,
		ScheduledTime: o.clock(),
		MaxRetries:    sc.MaxRetries,
		Status:        core.TaskPending,
		Snapshot:      sc.Snapshot(),
		CorrelationID: correlationID,
		Proposed:      result.TargetAsset,
	}
	return o.sched.Enqueue(task)
}

// Execute runs one dispatched task: read the target's current state,
// resolve conflicts under the asset lock the scheduler holds, then write.
// It implements scheduler.Executor.
func (o *Orchestrator) Execute(ctx context.Context, task *core.ScheduledTask) (core.TaskStatus, error) {
	if task.Proposed == nil {
		return "", &core.ValidationError{AssetID: task.Key.AssetID, Reason: "task carries no proposed asset"}
	}
	target, ok := o.target(task.Key.TargetSystem)
	if !ok {
		return "", &core.ConfigurationError{ConfigID: task.Snapshot.ConfigID, Reason: fmt.Sprintf("unknown target system %q", task.Key.TargetSystem)}
	}

	existing, err := target.ReadCurrentState(ctx, task.Key.AssetID)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	resolution := o.resolve(task, existing)
	record := &core.ConflictResolutionRecord{
		ID:            uuid.New().String(),
		TaskID:        task.ID,
		CorrelationID: task.CorrelationID,
		Conflicts:     resolution.Conflicts,
		Strategy:      task.Snapshot.Strategy,
		Action:        resolution.Action,
		Escalated:     resolution.Escalated,
		Pre:           existing,
		ResolvedAt:    o.clock().UTC(),
	}

	if len(resolution.Conflicts) > 0 {
		o.audit.Record(task.CorrelationID, core.EventConflictDetected, core.SeverityWarn, task.Key.AssetID,
			fmt.Sprintf("%d conflict(s) on %v", len(resolution.Conflicts), fieldsOf(resolution.Conflicts)))
	}

	switch resolution.Action {
	case core.ActionBlock:
		record.Post = existing
		o.appendConflictRecord(record)
		o.audit.Record(task.CorrelationID, core.EventConflictResolved, core.SeverityWarn, task.Key.AssetID,
			fmt.Sprintf("strategy %s escalated to manual resolution", task.Snapshot.Strategy))
		return "", &core.ConflictError{Conflicts: resolution.Conflicts}

	case core.ActionSkip:
		record.Post = existing
		o.appendConflictRecord(record)
		o.audit.RecordChange(task.CorrelationID, core.EventWriteSkipped, core.SeverityInfo, task.Key.AssetID,
			fmt.Sprintf("strategy %s kept the target value", task.Snapshot.Strategy),
			audit.Payload(existing), audit.Payload(existing))
		return core.TaskCompletedNoop, nil
	}

	result, err := target.UpsertAsset(ctx, resolution.Asset)
	if err != nil {
		return "", err
	}
	if !result.Success {
		return "", &core.ConnectorError{
			System: task.Key.TargetSystem, Op: "UpsertAsset", Code: core.CodeInternal,
			Err: fmt.Errorf("write rejected: %s", result.Error),
		}
	}

	record.Post = resolution.Asset
	o.appendConflictRecord(record)
	if len(resolution.Conflicts) > 0 {
		o.audit.RecordChange(task.CorrelationID, core.EventConflictResolved, core.SeverityInfo, task.Key.AssetID,
			fmt.Sprintf("strategy %s resolved %d conflict(s)", task.Snapshot.Strategy, len(resolution.Conflicts)),
			audit.Payload(existing), audit.Payload(resolution.Asset))
	}
	o.audit.Record(task.CorrelationID, core.EventConnectorResult, core.SeverityInfo, task.Key.AssetID,
		fmt.Sprintf("wrote %s to %s", result.TargetID, task.Key.TargetSystem))
	return core.TaskCompleted, nil
}

// resolve applies the snapshot strategy. The resolver is pure; connector
// and store effects stay here.
func (o *Orchestrator) resolve(task *core.ScheduledTask, existing *core.MetadataAsset) *resolver.Resolution {
	customName := o.customRuleFor(task.Snapshot.ConfigID)
	res, err := o.resolver.Resolve(task.Proposed, existing, task.Snapshot.Strategy, customName)
	if err != nil {
		// A misconfigured custom rule degrades to manual resolution.
		o.logger.Error("resolution failed", "task_id", task.ID, "error", err)
		return &resolver.Resolution{
			Action:    core.ActionBlock,
			Escalated: true,
		}
	}
	return res
}

func (o *Orchestrator) appendConflictRecord(record *core.ConflictResolutionRecord) {
	if len(record.Conflicts) == 0 && !record.Escalated {
		return
	}
	if err := o.store.AppendConflictRecord(record); err != nil {
		o.logger.Error("failed to persist conflict record", "task_id", record.TaskID, "error", err)
	}
}

// ResolveConflict applies an operator decision to a BLOCKED task.
// Decision "source" re-queues the task with the source value winning;
// decision "target" keeps the target value and closes the task as
// COMPLETED_NOOP.
func (o *Orchestrator) ResolveConflict(taskID string, decision core.Decision) error {
	task, err := o.store.GetTask(taskID)
	if err != nil {
		return err
	}
	if task.Status != core.TaskBlocked {
		return fmt.Errorf("task %s: not blocked (status %s)", taskID, task.Status)
	}

	switch decision {
	case core.DecisionSource:
		if err := o.store.UpdateTaskStatus(taskID, core.TaskPending, task.RetryCount, nil); err != nil {
			return err
		}
		if err := o.store.SetBlockedFields(taskID, nil); err != nil {
			return err
		}
		task.Status = core.TaskPending
		task.BlockedFields = nil
		task.Snapshot.Strategy = core.StrategySourceWins
		task.ScheduledTime = o.clock()
		o.audit.Record(task.CorrelationID, core.EventConflictResolved, core.SeverityInfo, task.Key.AssetID,
			fmt.Sprintf("operator chose the source value for task %s", taskID))
		o.sched.Requeue(task)
		return nil

	case core.DecisionTarget:
		if err := o.store.UpdateTaskStatus(taskID, core.TaskCompletedNoop, task.RetryCount, nil); err != nil {
			return err
		}
		o.audit.Record(task.CorrelationID, core.EventWriteSkipped, core.SeverityInfo, task.Key.AssetID,
			fmt.Sprintf("operator kept the target value for task %s", taskID))
		o.audit.Record(task.CorrelationID, core.EventTaskTerminal, core.SeverityInfo, task.Key.AssetID,
			fmt.Sprintf("task %s closed as COMPLETED_NOOP by operator", taskID))
		return nil
	}
	return fmt.Errorf("unknown decision %q (want %q or %q)", decision, core.DecisionSource, core.DecisionTarget)
}

func (o *Orchestrator) customRuleFor(configID string) string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, sc := range o.configs {
		if sc.ID == configID {
			return sc.CustomRule
		}
	}
	return ""
}

func (o *Orchestrator) source(name string) (core.SourceConnector, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s, ok := o.sources[name]
	return s, ok
}

func (o *Orchestrator) target(name string) (core.TargetConnector, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	t, ok := o.targets[name]
	return t, ok
}

func (o *Orchestrator) profile(name string) (*core.MappingProfile, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	p, ok := o.profiles[name]
	return p, ok
}

func fieldsOf(conflicts []core.Conflict) []string {
	fields := make([]string, len(conflicts))
	for i, c := range conflicts {
		fields[i] = c.Field
	}
	return fields
}
