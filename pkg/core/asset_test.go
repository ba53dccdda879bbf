package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataAsset_Clone(t *testing.T) {
	orig := &MetadataAsset{
		ID:            "a1",
		Name:          "Revenue Model",
		TechnicalName: "REVENUE_MODEL",
		Type:          AssetTypeAnalyticalModel,
		SourceSystem:  "dwc",
		Columns: []Column{
			{Name: "amount", Type: "DECIMAL", Precision: 15},
		},
		Business: BusinessContext{
			Tags:       []string{"finance"},
			Measures:   []string{"amount"},
			Properties: map[string]string{"domain": "sales"},
		},
		Lineage: []LineageRef{{System: "dwc", AssetID: "a0", Relation: "upstream"}},
	}

	clone := orig.Clone()
	require.NotNil(t, clone)
	assert.Equal(t, orig, clone)

	// Mutating the clone must not touch the original revision.
	clone.Columns[0].Type = "INTEGER"
	clone.Business.Tags[0] = "changed"
	clone.Business.Properties["domain"] = "changed"
	clone.Lineage[0].AssetID = "changed"

	assert.Equal(t, "DECIMAL", orig.Columns[0].Type)
	assert.Equal(t, "finance", orig.Business.Tags[0])
	assert.Equal(t, "sales", orig.Business.Properties["domain"])
	assert.Equal(t, "a0", orig.Lineage[0].AssetID)
}

func TestMetadataAsset_CloneNil(t *testing.T) {
	var a *MetadataAsset
	assert.Nil(t, a.Clone())
}

func TestMetadataAsset_HasTag(t *testing.T) {
	a := &MetadataAsset{Business: BusinessContext{Tags: []string{"pii", "finance"}}}
	assert.True(t, a.HasTag("pii"))
	assert.False(t, a.HasTag("marketing"))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(&TransientError{Op: "upsert"}))
	assert.True(t, Retryable(&ConnectorError{Code: CodeTimeout}))
	assert.True(t, Retryable(&ConnectorError{Code: CodeRateLimited}))
	assert.False(t, Retryable(&ConnectorError{Code: CodeForbidden}))
	assert.False(t, Retryable(&ValidationError{AssetID: "a1", Reason: "bad"}))
	assert.False(t, Retryable(assert.AnError))
}

func TestReportFor_RemediationHints(t *testing.T) {
	report := ReportFor(&ConnectorError{System: "datasphere", Op: "upsert", Code: CodeForbidden, Err: assert.AnError})
	assert.Equal(t, CodeForbidden, report.Code)
	assert.Contains(t, report.Remediation, "insufficient permissions")

	report = ReportFor(&ValidationError{AssetID: "a1", Reason: "empty technical name"})
	assert.Equal(t, CodeBadRequest, report.Code)
	assert.NotEmpty(t, report.Remediation)
}
