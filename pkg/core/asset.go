package core

import "time"

// AssetType classifies a metadata asset in the catalog.
type AssetType string

// Asset type constants.
const (
	AssetTypeSpace           AssetType = "SPACE"
	AssetTypeTable           AssetType = "TABLE"
	AssetTypeView            AssetType = "VIEW"
	AssetTypeAnalyticalModel AssetType = "ANALYTICAL_MODEL"
	AssetTypeDataFlow        AssetType = "DATA_FLOW"
)

// Column describes a single column of a table-like asset.
type Column struct {
	Name      string `json:"name" yaml:"name"`
	Type      string `json:"type" yaml:"type"`
	Precision int    `json:"precision,omitempty" yaml:"precision,omitempty"`
	Nullable  bool   `json:"nullable" yaml:"nullable"`
}

// BusinessContext carries the business metadata attached to an asset.
type BusinessContext struct {
	Dimensions          []string          `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
	Measures            []string          `json:"measures,omitempty" yaml:"measures,omitempty"`
	Hierarchies         []string          `json:"hierarchies,omitempty" yaml:"hierarchies,omitempty"`
	Steward             string            `json:"steward,omitempty" yaml:"steward,omitempty"`
	CertificationStatus string            `json:"certification_status,omitempty" yaml:"certification_status,omitempty"`
	Tags                []string          `json:"tags,omitempty" yaml:"tags,omitempty"`
	Properties          map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// LineageRef points at an upstream or downstream asset.
type LineageRef struct {
	System   string `json:"system" yaml:"system"`
	AssetID  string `json:"asset_id" yaml:"asset_id"`
	Relation string `json:"relation" yaml:"relation"` // "upstream" or "downstream"
}

// MetadataAsset is a discoverable metadata unit (table, view, analytical
// model, space, data flow). Assets are immutable value objects: a sync
// produces a new revision via Clone, never an in-place mutation, so lineage
// and audit history stay intact. Callers must not mutate a shared asset.
type MetadataAsset struct {
	ID            string          `json:"id" yaml:"id"`
	Name          string          `json:"name" yaml:"name"`
	TechnicalName string          `json:"technical_name" yaml:"technical_name"`
	Type          AssetType       `json:"type" yaml:"type"`
	SourceSystem  string          `json:"source_system" yaml:"source_system"`
	Columns       []Column        `json:"columns,omitempty" yaml:"columns,omitempty"`
	Business      BusinessContext `json:"business,omitempty" yaml:"business,omitempty"`
	Lineage       []LineageRef    `json:"lineage,omitempty" yaml:"lineage,omitempty"`
	CreatedAt     time.Time       `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	ModifiedAt    time.Time       `json:"modified_at,omitempty" yaml:"modified_at,omitempty"`
}

// Clone returns a deep copy of the asset. Transformations operate on a
// clone so the original revision is never touched.
func (a *MetadataAsset) Clone() *MetadataAsset {
	if a == nil {
		return nil
	}
	c := *a
	if a.Columns != nil {
		c.Columns = make([]Column, len(a.Columns))
		copy(c.Columns, a.Columns)
	}
	if a.Lineage != nil {
		c.Lineage = make([]LineageRef, len(a.Lineage))
		copy(c.Lineage, a.Lineage)
	}
	c.Business = a.Business.clone()
	return &c
}

func (b BusinessContext) clone() BusinessContext {
	c := b
	c.Dimensions = cloneStrings(b.Dimensions)
	c.Measures = cloneStrings(b.Measures)
	c.Hierarchies = cloneStrings(b.Hierarchies)
	c.Tags = cloneStrings(b.Tags)
	if b.Properties != nil {
		c.Properties = make(map[string]string, len(b.Properties))
		for k, v := range b.Properties {
			c.Properties[k] = v
		}
	}
	return c
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

// HasTag reports whether the asset carries the given business tag.
func (a *MetadataAsset) HasTag(tag string) bool {
	for _, t := range a.Business.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
