package mapper

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/metalayer-labs/metasync/pkg/core"
)

// Mapper applies mapping profiles to assets. The transform table is closed
// and validated up front: every rule referencing an unknown function or
// carrying an invalid condition fails at registration, never at runtime.
type Mapper struct {
	environment string
	logger      *slog.Logger

	transforms map[string]TransformFunc
	argChecks  map[string]argValidator
}

// Config holds mapper construction options.
type Config struct {
	// Environment is the deployment environment injected by env_prefix.
	Environment string
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// New creates a mapper with the built-in transform table.
func New(cfg Config) *Mapper {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	fns, checks := builtins()
	return &Mapper{
		environment: cfg.Environment,
		logger:      logger,
		transforms:  fns,
		argChecks:   checks,
	}
}

// RegisterTransform adds a named transform to the table. Registering over
// an existing name is a ConfigurationError: the table is fixed at startup,
// never mutated while syncs run.
func (m *Mapper) RegisterTransform(name string, fn TransformFunc) error {
	if name == "" || fn == nil {
		return &core.ConfigurationError{Reason: "transform registration requires a name and a function"}
	}
	if _, exists := m.transforms[name]; exists {
		return &core.ConfigurationError{Reason: fmt.Sprintf("transform %q already registered", name)}
	}
	m.transforms[name] = fn
	m.argChecks[name] = requireArg
	return nil
}

// ValidateRule checks a rule at registration time: the referenced transform
// must exist, its argument must be valid, and condition patterns must
// compile. A missing function is reported immediately, never deferred to
// runtime.
func (m *Mapper) ValidateRule(rule core.MappingRule) error {
	if !rule.Type.Valid() {
		return &core.ConfigurationError{Reason: fmt.Sprintf("rule %s: unknown rule type %q", rule.ID, rule.Type)}
	}
	if rule.TargetField == "" {
		return &core.ConfigurationError{Reason: fmt.Sprintf("rule %s: target_field is required", rule.ID)}
	}
	name, arg := SplitSpec(rule.Transform)
	fn, ok := m.transforms[name]
	if !ok || fn == nil {
		return &core.ConfigurationError{Reason: fmt.Sprintf("rule %s: transform %q is not registered", rule.ID, name)}
	}
	if check, ok := m.argChecks[name]; ok {
		if err := check(arg); err != nil {
			return &core.ConfigurationError{Reason: fmt.Sprintf("rule %s: transform %q: %v", rule.ID, name, err)}
		}
	}
	if rule.Conditions.Pattern != "" {
		if _, err := regexp.Compile(rule.Conditions.Pattern); err != nil {
			return &core.ConfigurationError{Reason: fmt.Sprintf("rule %s: invalid condition pattern: %v", rule.ID, err)}
		}
	}
	for _, at := range rule.Conditions.AssetTypes {
		switch at {
		case core.AssetTypeSpace, core.AssetTypeTable, core.AssetTypeView, core.AssetTypeAnalyticalModel, core.AssetTypeDataFlow:
		default:
			return &core.ConfigurationError{Reason: fmt.Sprintf("rule %s: unknown asset type %q in condition", rule.ID, at)}
		}
	}
	return nil
}

// ValidateProfile validates every rule in a profile.
func (m *Mapper) ValidateProfile(profile *core.MappingProfile) error {
	if profile.Name == "" {
		return &core.ConfigurationError{Reason: "profile name is required"}
	}
	for _, rule := range profile.Rules {
		if err := m.ValidateRule(rule); err != nil {
			return err
		}
	}
	return nil
}

// MappingResult is the outcome of mapping one asset.
type MappingResult struct {
	// TargetAsset is the new asset revision shaped for the target system.
	TargetAsset *core.MetadataAsset
	// AppliedRules lists the ids of rules that changed a field, in
	// application order.
	AppliedRules []string
	// Warnings records per-field rule evaluation failures that fell back
	// to identity mapping.
	Warnings []string
	// Errors records failures that make the mapped asset unusable.
	Errors []string
}

// MapAsset deterministically transforms an asset for a target system using
// the given profile. The input asset is never mutated; a failed rule
// evaluation downgrades to a warning with identity fallback and never
// aborts the whole asset.
func (m *Mapper) MapAsset(asset *core.MetadataAsset, targetSystem string, profile *core.MappingProfile) MappingResult {
	result := MappingResult{TargetAsset: asset.Clone()}
	target := result.TargetAsset

	tc := Context{
		Environment:  m.environment,
		TargetSystem: targetSystem,
		TypeMap:      profile.TypeMap,
	}

	// Column type coercion runs first so field rules see target-shaped
	// types. Types without a table entry pass through unchanged.
	if len(profile.TypeMap) > 0 {
		for i, col := range target.Columns {
			if mapped, ok := profile.TypeMap[col.Type]; ok {
				target.Columns[i].Type = mapped
			}
		}
	}

	fieldRules, namingRules := partitionRules(profile.Rules)

	for _, group := range groupByTargetField(fieldRules) {
		m.applyGroup(asset, target, group, tc, &result)
	}

	// Naming-convention rules run after field mapping so casing, length,
	// and character-set limits see the final mapped value.
	for _, rule := range namingRules {
		m.applyNamingRule(asset, target, rule, tc, &result)
	}
	applyConvention(target, profile.ConventionFor(m.environment))

	if target.TechnicalName == "" {
		result.Errors = append(result.Errors, "mapping produced an empty technical name")
	}
	return result
}

// applyGroup applies one target field's rules in ascending priority order.
// The first matching rule sets the value; later matching rules apply only
// when marked cumulative, chaining on the current value.
func (m *Mapper) applyGroup(source, target *core.MetadataAsset, group []core.MappingRule, tc Context, result *MappingResult) {
	applied := false
	for _, rule := range group {
		srcField := rule.SourceField
		if srcField == "" {
			srcField = rule.TargetField
		}

		var input string
		var ok bool
		if applied {
			if !rule.Cumulative {
				continue
			}
			input, ok = getField(target, rule.TargetField)
		} else {
			input, ok = getField(source, srcField)
		}
		// Unset optional fields pass through absent, never defaulted.
		if !ok || input == "" {
			continue
		}
		if !m.matches(rule, source, input) {
			continue
		}

		out, err := m.apply(rule, input, tc)
		if err != nil {
			// Per-asset rule failure: warn and fall back to identity.
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("rule %s on %s: %v (identity fallback)", rule.ID, rule.TargetField, err))
			out = input
		}
		setField(target, rule.TargetField, out)
		result.AppliedRules = append(result.AppliedRules, rule.ID)
		applied = true
	}
}

// applyNamingRule chains a naming-convention rule onto the current value of
// its target field.
func (m *Mapper) applyNamingRule(source, target *core.MetadataAsset, rule core.MappingRule, tc Context, result *MappingResult) {
	field := rule.TargetField
	if field == "" {
		field = "technical_name"
	}
	input, ok := getField(target, field)
	if !ok || input == "" {
		return
	}
	if !m.matches(rule, source, input) {
		return
	}
	out, err := m.apply(rule, input, tc)
	if err != nil {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("rule %s on %s: %v (identity fallback)", rule.ID, field, err))
		return
	}
	setField(target, field, out)
	result.AppliedRules = append(result.AppliedRules, rule.ID)
}

func (m *Mapper) apply(rule core.MappingRule, value string, tc Context) (string, error) {
	name, arg := SplitSpec(rule.Transform)
	fn := m.transforms[name]
	if fn == nil {
		// Unreachable after validation; kept as a hard stop for unvalidated rules.
		return "", fmt.Errorf("transform %q is not registered", name)
	}
	return fn(value, arg, tc)
}

// matches evaluates a rule's conditions against the source asset and the
// candidate input value. All set conditions must hold.
func (m *Mapper) matches(rule core.MappingRule, asset *core.MetadataAsset, value string) bool {
	cond := rule.Conditions
	if len(cond.AssetTypes) > 0 {
		found := false
		for _, at := range cond.AssetTypes {
			if asset.Type == at {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, tag := range cond.Tags {
		if !asset.HasTag(tag) {
			return false
		}
	}
	if cond.Pattern != "" {
		re, err := regexp.Compile(cond.Pattern)
		if err != nil {
			// Validation rejects bad patterns; an unvalidated rule simply
			// does not match.
			return false
		}
		if !re.MatchString(value) {
			return false
		}
	}
	return true
}

// applyConvention normalizes the technical name for the target system's
// identifier constraints: case style, character set, and length.
func applyConvention(target *core.MetadataAsset, nc core.NamingConvention) {
	name := target.TechnicalName
	if name == "" {
		return
	}
	switch nc.Case {
	case "upper":
		name = strings.ToUpper(name)
	case "lower":
		name = strings.ToLower(name)
	case "snake":
		name = toSnake(name)
	case "camel":
		name = toCamel(name)
	}
	if nc.Replacement != "" {
		name = replaceDisallowed(name, nc.Replacement)
	}
	if nc.MaxLength > 0 {
		name = truncate(name, nc.MaxLength)
	}
	target.TechnicalName = name
}

func replaceDisallowed(s, replacement string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteString(replacement)
		}
	}
	return b.String()
}

// partitionRules splits naming-convention rules from field rules, keeping
// each partition sorted ascending by priority (stable for equal priority).
func partitionRules(rules []core.MappingRule) (fieldRules, namingRules []core.MappingRule) {
	for _, r := range rules {
		if r.Type == core.RuleNamingConvention {
			namingRules = append(namingRules, r)
		} else {
			fieldRules = append(fieldRules, r)
		}
	}
	sort.SliceStable(fieldRules, func(i, j int) bool { return fieldRules[i].Priority < fieldRules[j].Priority })
	sort.SliceStable(namingRules, func(i, j int) bool { return namingRules[i].Priority < namingRules[j].Priority })
	return fieldRules, namingRules
}

// groupByTargetField groups rules per target field, preserving ascending
// priority within each group. Groups are returned in sorted field order so
// mapping is deterministic.
func groupByTargetField(rules []core.MappingRule) [][]core.MappingRule {
	byField := make(map[string][]core.MappingRule)
	var fields []string
	for _, r := range rules {
		if _, seen := byField[r.TargetField]; !seen {
			fields = append(fields, r.TargetField)
		}
		byField[r.TargetField] = append(byField[r.TargetField], r)
	}
	sort.Strings(fields)
	groups := make([][]core.MappingRule, 0, len(fields))
	for _, f := range fields {
		groups = append(groups, byField[f])
	}
	return groups
}

const propertyPrefix = "business.properties."

// getField reads a string-valued asset field by path. Supported paths:
// name, technical_name, business.steward, business.certification_status,
// and business.properties.<key>.
func getField(a *core.MetadataAsset, path string) (string, bool) {
	switch path {
	case "name":
		return a.Name, true
	case "technical_name":
		return a.TechnicalName, true
	case "business.steward":
		return a.Business.Steward, true
	case "business.certification_status":
		return a.Business.CertificationStatus, true
	}
	if strings.HasPrefix(path, propertyPrefix) {
		key := path[len(propertyPrefix):]
		v, ok := a.Business.Properties[key]
		return v, ok
	}
	return "", false
}

// setField writes a string-valued asset field by path.
func setField(a *core.MetadataAsset, path, value string) {
	switch path {
	case "name":
		a.Name = value
	case "technical_name":
		a.TechnicalName = value
	case "business.steward":
		a.Business.Steward = value
	case "business.certification_status":
		a.Business.CertificationStatus = value
	default:
		if strings.HasPrefix(path, propertyPrefix) {
			if a.Business.Properties == nil {
				a.Business.Properties = make(map[string]string)
			}
			a.Business.Properties[path[len(propertyPrefix):]] = value
		}
	}
}
