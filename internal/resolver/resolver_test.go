package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalayer-labs/metasync/pkg/core"
)

func proposedAsset() *core.MetadataAsset {
	return &core.MetadataAsset{
		ID:            "CUST.DIM",
		Name:          "Customer Dimension",
		TechnicalName: "customer_dim",
		Type:          core.AssetTypeTable,
		SourceSystem:  "dwc",
		Columns: []core.Column{
			{Name: "id", Type: "INTEGER"},
			{Name: "name", Type: "VARCHAR", Precision: 120},
		},
		Business: core.BusinessContext{
			Tags:                []string{"crm"},
			Dimensions:          []string{"customer"},
			Steward:             "alex.kim",
			CertificationStatus: "pending",
		},
	}
}

func existingAsset() *core.MetadataAsset {
	a := proposedAsset()
	a.SourceSystem = "legacy"
	a.Columns[1].Type = "NVARCHAR"
	a.Business.Tags = []string{"crm", "sales"}
	a.Business.Steward = "sam.roy"
	a.Business.CertificationStatus = "certified"
	return a
}

func TestDetect_NoExistingState(t *testing.T) {
	r := New(Config{})
	assert.Empty(t, r.Detect(proposedAsset(), nil))
}

func TestDetect_Identical(t *testing.T) {
	r := New(Config{})
	assert.Empty(t, r.Detect(proposedAsset(), proposedAsset()))
}

func TestDetect_AllThreeClasses(t *testing.T) {
	r := New(Config{})
	conflicts := r.Detect(proposedAsset(), existingAsset())

	types := map[core.ConflictType]int{}
	fields := map[string]bool{}
	for _, c := range conflicts {
		types[c.Type]++
		fields[c.Field] = true
	}
	assert.Equal(t, 1, types[core.ConflictNaming])
	assert.Equal(t, 1, types[core.ConflictSchema])
	assert.Equal(t, 3, types[core.ConflictBusinessMetadata])
	assert.True(t, fields["technical_name"])
	assert.True(t, fields["columns.name.type"])
	assert.True(t, fields["business.tags"])
	assert.True(t, fields["business.steward"])
	assert.True(t, fields["business.certification_status"])
}

func TestResolve_SourceWins(t *testing.T) {
	r := New(Config{})
	proposed := proposedAsset()
	res, err := r.Resolve(proposed, existingAsset(), core.StrategySourceWins, "")
	require.NoError(t, err)
	assert.Equal(t, core.ActionWrite, res.Action)
	assert.Equal(t, proposed, res.Asset)
	assert.NotEmpty(t, res.Conflicts)
}

func TestResolve_TargetWins(t *testing.T) {
	r := New(Config{})
	existing := existingAsset()
	res, err := r.Resolve(proposedAsset(), existing, core.StrategyTargetWins, "")
	require.NoError(t, err)
	assert.Equal(t, core.ActionSkip, res.Action)
	assert.Equal(t, existing, res.Asset)
}

func TestResolve_Manual(t *testing.T) {
	r := New(Config{})
	res, err := r.Resolve(proposedAsset(), existingAsset(), core.StrategyManual, "")
	require.NoError(t, err)
	assert.Equal(t, core.ActionBlock, res.Action)
	assert.False(t, res.Escalated)
}

func TestResolve_MergeUnionsListsAndKeepsSourceScalars(t *testing.T) {
	r := New(Config{})
	proposed := proposedAsset()
	existing := existingAsset()
	// Remove the schema divergence so the metadata merge can proceed.
	existing.Columns[1].Type = "VARCHAR"

	res, err := r.Resolve(proposed, existing, core.StrategyMerge, "")
	require.NoError(t, err)
	require.Equal(t, core.ActionWrite, res.Action)

	assert.Equal(t, []string{"crm", "sales"}, res.Asset.Business.Tags)
	assert.Equal(t, "alex.kim", res.Asset.Business.Steward)
	// Certification is ordered: the stronger status survives the merge.
	assert.Equal(t, "certified", res.Asset.Business.CertificationStatus)
}

func TestResolve_MergeIdempotent(t *testing.T) {
	r := New(Config{})
	existing := existingAsset()
	existing.Columns[1].Type = "VARCHAR"

	once, err := r.Resolve(proposedAsset(), existing, core.StrategyMerge, "")
	require.NoError(t, err)
	require.Equal(t, core.ActionWrite, once.Action)

	twice, err := r.Resolve(once.Asset, existing, core.StrategyMerge, "")
	require.NoError(t, err)
	require.Equal(t, core.ActionWrite, twice.Action)
	assert.Equal(t, once.Asset, twice.Asset)
}

func TestResolve_MergeEscalatesOnSchemaConflict(t *testing.T) {
	r := New(Config{})
	res, err := r.Resolve(proposedAsset(), existingAsset(), core.StrategyMerge, "")
	require.NoError(t, err)
	assert.Equal(t, core.ActionBlock, res.Action)
	assert.True(t, res.Escalated)
}

func TestResolve_MergeEscalatesOnUnorderableScalar(t *testing.T) {
	r := New(Config{})
	proposed := proposedAsset()
	proposed.Business.CertificationStatus = "gold" // not in the ordering
	existing := existingAsset()
	existing.Columns[1].Type = "VARCHAR"

	res, err := r.Resolve(proposed, existing, core.StrategyMerge, "")
	require.NoError(t, err)
	assert.Equal(t, core.ActionBlock, res.Action)
	assert.True(t, res.Escalated)
}

func TestResolve_CustomRuleResolvesNamingCollision(t *testing.T) {
	r := New(Config{})
	proposed := proposedAsset()
	// Leave only the naming collision in place.
	existing := proposedAsset()
	existing.SourceSystem = "legacy"

	res, err := r.Resolve(proposed, existing, core.StrategyCustomRule, "suffix_source_system")
	require.NoError(t, err)
	assert.Equal(t, core.ActionWrite, res.Action)
	assert.Equal(t, "customer_dim_dwc", res.Asset.TechnicalName)
	assert.False(t, res.Escalated)
}

func TestResolve_CustomRuleEscalatesWhenConflictPersists(t *testing.T) {
	r := New(Config{})
	require.NoError(t, r.RegisterCustomRule("noop", func(p, _ *core.MetadataAsset, _ []core.Conflict) (*core.MetadataAsset, error) {
		return p, nil
	}))
	res, err := r.Resolve(proposedAsset(), existingAsset(), core.StrategyCustomRule, "noop")
	require.NoError(t, err)
	assert.Equal(t, core.ActionBlock, res.Action)
	assert.True(t, res.Escalated)
}

func TestResolve_UnknownCustomRuleIsConfigurationError(t *testing.T) {
	r := New(Config{})
	_, err := r.Resolve(proposedAsset(), existingAsset(), core.StrategyCustomRule, "missing")
	require.Error(t, err)
	var cfgErr *core.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestRegisterCustomRule_Duplicate(t *testing.T) {
	r := New(Config{})
	err := r.RegisterCustomRule("suffix_source_system", func(p, _ *core.MetadataAsset, _ []core.Conflict) (*core.MetadataAsset, error) {
		return p, nil
	})
	require.Error(t, err)
	assert.True(t, r.HasCustomRule("suffix_source_system"))
	assert.False(t, r.HasCustomRule("missing"))
}
