package core

// RuleType classifies a mapping rule.
type RuleType string

// Rule type constants.
const (
	RuleFieldMapping     RuleType = "field_mapping"
	RuleValueTransform   RuleType = "value_transform"
	RuleConditional      RuleType = "conditional"
	RuleNamingConvention RuleType = "naming_convention"
	RuleBusinessRule     RuleType = "business_rule"
)

// Valid reports whether the rule type is one of the defined values.
func (t RuleType) Valid() bool {
	switch t {
	case RuleFieldMapping, RuleValueTransform, RuleConditional, RuleNamingConvention, RuleBusinessRule:
		return true
	}
	return false
}

// RuleConditions gate a rule: all set conditions must match for the rule to
// apply. Pattern is a regular expression tested against the source value.
type RuleConditions struct {
	AssetTypes []AssetType `json:"asset_types,omitempty" yaml:"asset_types,omitempty"`
	Tags       []string    `json:"tags,omitempty" yaml:"tags,omitempty"`
	Pattern    string      `json:"pattern,omitempty" yaml:"pattern,omitempty"`
}

// MappingRule rewrites one target field from one source field through a
// named transform. Rules apply in ascending Priority order within a target
// field; a later rule overrides an earlier one only when Cumulative.
type MappingRule struct {
	ID          string   `json:"id" yaml:"id"`
	Type        RuleType `json:"type" yaml:"type"`
	SourceField string   `json:"source_field" yaml:"source_field"`
	TargetField string   `json:"target_field" yaml:"target_field"`
	// Transform names a registered pure function, optionally with an
	// argument, e.g. "lower", "truncate:63", "prefix:dw_".
	Transform  string         `json:"transform" yaml:"transform"`
	Conditions RuleConditions `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Priority   int            `json:"priority" yaml:"priority"`
	Cumulative bool           `json:"cumulative,omitempty" yaml:"cumulative,omitempty"`
}

// NamingConvention normalizes identifiers for a target system: case style,
// maximum length, and character set.
type NamingConvention struct {
	// Case is one of "upper", "lower", "snake", "camel", "preserve".
	Case      string `json:"case,omitempty" yaml:"case,omitempty"`
	MaxLength int    `json:"max_length,omitempty" yaml:"max_length,omitempty"`
	// Replacement substitutes characters outside [A-Za-z0-9_]. Empty keeps
	// the identifier as-is.
	Replacement string `json:"replacement,omitempty" yaml:"replacement,omitempty"`
}

// MappingProfile is a named, versioned bundle of mapping rules plus naming
// conventions and a type coercion table for one source→target pair.
type MappingProfile struct {
	Name         string        `json:"name" yaml:"name"`
	Version      string        `json:"version,omitempty" yaml:"version,omitempty"`
	SourceSystem string        `json:"source_system" yaml:"source_system"`
	TargetSystem string        `json:"target_system" yaml:"target_system"`
	Rules        []MappingRule `json:"rules" yaml:"rules"`
	// Naming holds environment-specific conventions keyed by environment
	// name; the "" key is the default.
	Naming map[string]NamingConvention `json:"naming,omitempty" yaml:"naming,omitempty"`
	// TypeMap translates source column types to target column types.
	TypeMap map[string]string `json:"type_map,omitempty" yaml:"type_map,omitempty"`
}

// ConventionFor returns the naming convention for an environment, falling
// back to the profile default.
func (p *MappingProfile) ConventionFor(env string) NamingConvention {
	if p.Naming == nil {
		return NamingConvention{}
	}
	if nc, ok := p.Naming[env]; ok {
		return nc
	}
	return p.Naming[""]
}
