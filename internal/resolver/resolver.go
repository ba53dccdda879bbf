// Package resolver detects and resolves divergence between a proposed
// asset write and the target system's current state. Three conflict
// classes are covered: naming collisions, schema incompatibilities, and
// business-metadata drift.
package resolver

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/metalayer-labs/metasync/pkg/core"
)

// CustomRuleFunc is a registered conflict-resolution function invoked by
// the custom_rule strategy. It returns a reworked proposal; detection runs
// once more on the result and a persisting conflict escalates to manual.
type CustomRuleFunc func(proposed, existing *core.MetadataAsset, conflicts []core.Conflict) (*core.MetadataAsset, error)

// Resolver holds the closed custom-rule table and the scalar ordering used
// by merge.
type Resolver struct {
	logger *slog.Logger
	custom map[string]CustomRuleFunc
}

// Config holds resolver construction options.
type Config struct {
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// certificationRank orders certification statuses so merge can pick the
// stronger of two values. Unknown statuses are unorderable and escalate.
var certificationRank = map[string]int{
	"":          0,
	"draft":     1,
	"pending":   2,
	"certified": 3,
}

// New creates a resolver with the built-in custom rules registered.
func New(cfg Config) *Resolver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := &Resolver{
		logger: logger,
		custom: make(map[string]CustomRuleFunc),
	}
	// suffix_source_system renames the proposal on a naming collision by
	// appending its source system, keeping resolution deterministic.
	r.custom["suffix_source_system"] = func(proposed, _ *core.MetadataAsset, conflicts []core.Conflict) (*core.MetadataAsset, error) {
		for _, c := range conflicts {
			if c.Type == core.ConflictNaming {
				out := proposed.Clone()
				out.TechnicalName = proposed.TechnicalName + "_" + strings.ToLower(proposed.SourceSystem)
				return out, nil
			}
		}
		return proposed, nil
	}
	return r
}

// RegisterCustomRule adds a named rule to the table. The table is closed at
// startup: duplicate names are a ConfigurationError.
func (r *Resolver) RegisterCustomRule(name string, fn CustomRuleFunc) error {
	if name == "" || fn == nil {
		return &core.ConfigurationError{Reason: "custom rule registration requires a name and a function"}
	}
	if _, exists := r.custom[name]; exists {
		return &core.ConfigurationError{Reason: fmt.Sprintf("custom rule %q already registered", name)}
	}
	r.custom[name] = fn
	return nil
}

// HasCustomRule reports whether a named rule is registered. The
// orchestrator uses this to reject configurations referencing unknown
// rules up front, before any task is enqueued.
func (r *Resolver) HasCustomRule(name string) bool {
	_, ok := r.custom[name]
	return ok
}

// Detect compares a proposed asset against the last-known target snapshot
// and returns every divergence found. A nil existing asset means the write
// is a create and conflict-free.
func (r *Resolver) Detect(proposed, existing *core.MetadataAsset) []core.Conflict {
	if existing == nil {
		return nil
	}
	var conflicts []core.Conflict

	// Naming: the proposed identifier collides with a differently-sourced
	// asset already present on the target.
	if proposed.TechnicalName == existing.TechnicalName && proposed.SourceSystem != existing.SourceSystem {
		conflicts = append(conflicts, conflict(core.ConflictNaming, "technical_name",
			proposed.TechnicalName+" (from "+proposed.SourceSystem+")",
			existing.TechnicalName+" (from "+existing.SourceSystem+")"))
	}

	conflicts = append(conflicts, schemaConflicts(proposed, existing)...)
	conflicts = append(conflicts, businessConflicts(proposed, existing)...)
	return conflicts
}

func schemaConflicts(proposed, existing *core.MetadataAsset) []core.Conflict {
	byName := make(map[string]core.Column, len(existing.Columns))
	for _, c := range existing.Columns {
		byName[c.Name] = c
	}
	var conflicts []core.Conflict
	for _, pc := range proposed.Columns {
		ec, ok := byName[pc.Name]
		if !ok {
			continue
		}
		if pc.Type != ec.Type {
			conflicts = append(conflicts, conflict(core.ConflictSchema,
				"columns."+pc.Name+".type", pc.Type, ec.Type))
		}
		if pc.Precision != ec.Precision {
			conflicts = append(conflicts, conflict(core.ConflictSchema,
				"columns."+pc.Name+".precision", fmt.Sprint(pc.Precision), fmt.Sprint(ec.Precision)))
		}
		if pc.Nullable != ec.Nullable {
			conflicts = append(conflicts, conflict(core.ConflictSchema,
				"columns."+pc.Name+".nullable", fmt.Sprint(pc.Nullable), fmt.Sprint(ec.Nullable)))
		}
	}
	return conflicts
}

func businessConflicts(proposed, existing *core.MetadataAsset) []core.Conflict {
	var conflicts []core.Conflict
	listFields := []struct {
		field            string
		proposed, target []string
	}{
		{"business.tags", proposed.Business.Tags, existing.Business.Tags},
		{"business.dimensions", proposed.Business.Dimensions, existing.Business.Dimensions},
		{"business.measures", proposed.Business.Measures, existing.Business.Measures},
	}
	for _, lf := range listFields {
		if !sameSet(lf.proposed, lf.target) {
			conflicts = append(conflicts, conflict(core.ConflictBusinessMetadata, lf.field,
				strings.Join(lf.proposed, ","), strings.Join(lf.target, ",")))
		}
	}
	if divergentScalar(proposed.Business.Steward, existing.Business.Steward) {
		conflicts = append(conflicts, conflict(core.ConflictBusinessMetadata, "business.steward",
			proposed.Business.Steward, existing.Business.Steward))
	}
	if divergentScalar(proposed.Business.CertificationStatus, existing.Business.CertificationStatus) {
		conflicts = append(conflicts, conflict(core.ConflictBusinessMetadata, "business.certification_status",
			proposed.Business.CertificationStatus, existing.Business.CertificationStatus))
	}
	return conflicts
}

func divergentScalar(a, b string) bool {
	return a != "" && b != "" && a != b
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]struct{}, len(a))
	for _, v := range a {
		seen[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := seen[v]; !ok {
			return false
		}
	}
	return true
}

func conflict(ct core.ConflictType, field, proposed, existing string) core.Conflict {
	return core.Conflict{
		ID:       uuid.New().String(),
		Type:     ct,
		Field:    field,
		Proposed: proposed,
		Existing: existing,
	}
}

// Resolution is the resolver's verdict on one proposed write.
type Resolution struct {
	// Asset is the revision to write when Action is ActionWrite.
	Asset *core.MetadataAsset
	// Action tells the executor what to do with the write.
	Action core.ResolutionAction
	// Conflicts holds the detected divergences, if any.
	Conflicts []core.Conflict
	// Escalated marks a merge or custom_rule outcome that fell through to
	// manual resolution.
	Escalated bool
}

// Resolve applies the configured strategy to the detected conflicts.
// customName selects the custom_rule function; it must have passed
// configuration validation.
func (r *Resolver) Resolve(proposed, existing *core.MetadataAsset, strategy core.ConflictStrategy, customName string) (*Resolution, error) {
	conflicts := r.Detect(proposed, existing)
	if len(conflicts) == 0 {
		return &Resolution{Asset: proposed, Action: core.ActionWrite}, nil
	}

	switch strategy {
	case core.StrategySourceWins:
		// The proposed asset unconditionally replaces target state.
		return &Resolution{Asset: proposed, Action: core.ActionWrite, Conflicts: conflicts}, nil

	case core.StrategyTargetWins:
		return &Resolution{Asset: existing, Action: core.ActionSkip, Conflicts: conflicts}, nil

	case core.StrategyMerge:
		merged, ok := r.merge(proposed, existing, conflicts)
		if !ok {
			return &Resolution{Action: core.ActionBlock, Conflicts: conflicts, Escalated: true}, nil
		}
		return &Resolution{Asset: merged, Action: core.ActionWrite, Conflicts: conflicts}, nil

	case core.StrategyCustomRule:
		fn, ok := r.custom[customName]
		if !ok {
			return nil, &core.ConfigurationError{Reason: fmt.Sprintf("custom rule %q is not registered", customName)}
		}
		reworked, err := fn(proposed, existing, conflicts)
		if err != nil {
			return nil, fmt.Errorf("custom rule %q: %w", customName, err)
		}
		// Detection runs once more; a persisting conflict escalates.
		if remaining := r.Detect(reworked, existing); len(remaining) > 0 {
			return &Resolution{Action: core.ActionBlock, Conflicts: remaining, Escalated: true}, nil
		}
		return &Resolution{Asset: reworked, Action: core.ActionWrite, Conflicts: conflicts}, nil

	case core.StrategyManual:
		return &Resolution{Action: core.ActionBlock, Conflicts: conflicts}, nil

	default:
		return nil, &core.ConfigurationError{Reason: fmt.Sprintf("unknown conflict strategy %q", strategy)}
	}
}

// merge unions list-valued business metadata by key and takes source
// scalars. It reports ok=false when two scalar values cannot be ordered or
// when the divergence is structural (schema), both of which require manual
// resolution. Merging the same pair twice yields the same result as once.
func (r *Resolver) merge(proposed, existing *core.MetadataAsset, conflicts []core.Conflict) (*core.MetadataAsset, bool) {
	for _, c := range conflicts {
		if c.Type == core.ConflictSchema {
			// Incompatible column shapes have no well-defined union.
			return nil, false
		}
	}

	merged := proposed.Clone()
	merged.Business.Tags = unionSorted(proposed.Business.Tags, existing.Business.Tags)
	merged.Business.Dimensions = unionSorted(proposed.Business.Dimensions, existing.Business.Dimensions)
	merged.Business.Measures = unionSorted(proposed.Business.Measures, existing.Business.Measures)
	merged.Business.Hierarchies = unionSorted(proposed.Business.Hierarchies, existing.Business.Hierarchies)

	if merged.Business.Properties == nil && existing.Business.Properties != nil {
		merged.Business.Properties = make(map[string]string)
	}
	for k, v := range existing.Business.Properties {
		if _, ok := merged.Business.Properties[k]; !ok {
			merged.Business.Properties[k] = v
		}
	}

	// Scalars take the source value; an empty source keeps the target's.
	if merged.Business.Steward == "" {
		merged.Business.Steward = existing.Business.Steward
	}

	pc, pok := certificationRank[proposed.Business.CertificationStatus]
	ec, eok := certificationRank[existing.Business.CertificationStatus]
	if !pok || !eok {
		// Unknown statuses cannot be ordered.
		return nil, false
	}
	if ec > pc {
		merged.Business.CertificationStatus = existing.Business.CertificationStatus
	}

	return merged, true
}

func unionSorted(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(a)+len(b))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		set[v] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
