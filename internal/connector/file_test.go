package connector

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalayer-labs/metasync/pkg/core"
)

func writeAssetFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestFileSourceListAssets(t *testing.T) {
	dir := t.TempDir()
	writeAssetFile(t, dir, "revenue.yaml", `
id: SALES.REVENUE_MODEL
technical_name: REVENUE_MODEL
type: ANALYTICAL_MODEL
business:
  tags: [finance]
`)
	writeAssetFile(t, dir, "orders.yaml", `
id: SALES.ORDERS
technical_name: ORDERS
type: TABLE
`)
	writeAssetFile(t, dir, "readme.txt", "not yaml")

	src := NewFileSource("datasphere", dir)

	all, err := src.ListAssets(context.Background(), core.AssetFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, asset := range all {
		assert.Equal(t, "datasphere", asset.SourceSystem)
	}

	models, err := src.ListAssets(context.Background(), core.AssetFilter{
		Types: []core.AssetType{core.AssetTypeAnalyticalModel},
	})
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "SALES.REVENUE_MODEL", models[0].ID)

	tagged, err := src.ListAssets(context.Background(), core.AssetFilter{Tags: []string{"finance"}})
	require.NoError(t, err)
	assert.Len(t, tagged, 1)

	byName, err := src.ListAssets(context.Background(), core.AssetFilter{NamePattern: `^SALES\.ORD`})
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "SALES.ORDERS", byName[0].ID)
}

func TestFileSourceBadPattern(t *testing.T) {
	src := NewFileSource("datasphere", t.TempDir())

	_, err := src.ListAssets(context.Background(), core.AssetFilter{NamePattern: "("})
	var connErr *core.ConnectorError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, core.CodeBadRequest, connErr.Code)
}

func TestFileSourceMissingDir(t *testing.T) {
	src := NewFileSource("datasphere", filepath.Join(t.TempDir(), "absent"))

	_, err := src.ListAssets(context.Background(), core.AssetFilter{})
	var connErr *core.ConnectorError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, core.CodeUnavailable, connErr.Code)
	assert.True(t, connErr.Transient())
}

func TestFileSourceGetAssetSchema(t *testing.T) {
	dir := t.TempDir()
	writeAssetFile(t, dir, "orders.yaml", `
id: SALES.ORDERS
technical_name: ORDERS
type: TABLE
columns:
  - name: ORDER_ID
    type: INTEGER
  - name: AMOUNT
    type: DECIMAL
    precision: 12
`)

	src := NewFileSource("datasphere", dir)
	schema, err := src.GetAssetSchema(context.Background(), "SALES.ORDERS")
	require.NoError(t, err)
	require.Len(t, schema.Columns, 2)
	assert.Equal(t, "AMOUNT", schema.Columns[1].Name)

	_, err = src.GetAssetSchema(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestFileTargetRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "catalog")
	tgt := NewFileTarget("catalog", dir)

	_, err := tgt.ReadCurrentState(context.Background(), "SALES.ORDERS")
	assert.ErrorIs(t, err, core.ErrNotFound)

	asset := &core.MetadataAsset{
		ID:            "SALES.ORDERS",
		TechnicalName: "sales_orders",
		Type:          core.AssetTypeTable,
		SourceSystem:  "datasphere",
	}
	result, err := tgt.UpsertAsset(context.Background(), asset)
	require.NoError(t, err)
	assert.True(t, result.Success)

	got, err := tgt.ReadCurrentState(context.Background(), "SALES.ORDERS")
	require.NoError(t, err)
	assert.Equal(t, "sales_orders", got.TechnicalName)

	// overwrite
	asset.TechnicalName = "orders_v2"
	_, err = tgt.UpsertAsset(context.Background(), asset)
	require.NoError(t, err)

	got, err = tgt.ReadCurrentState(context.Background(), "SALES.ORDERS")
	require.NoError(t, err)
	assert.Equal(t, "orders_v2", got.TechnicalName)
}

func TestSanitizeFileName(t *testing.T) {
	assert.Equal(t, "SALES.ORDERS", sanitizeFileName("SALES.ORDERS"))
	assert.Equal(t, "a_b_c", sanitizeFileName("a/b:c"))
}
