package core

import "context"

// Schema is the column-level shape of one asset as reported by a source
// system.
type Schema struct {
	AssetID string   `json:"asset_id"`
	Columns []Column `json:"columns"`
}

// WriteResult reports the outcome of a target-side upsert.
type WriteResult struct {
	Success  bool   `json:"success"`
	TargetID string `json:"target_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// SourceConnector lists candidate assets from a source catalog system.
// Implementations (including authentication and the wire protocol) live
// outside this module; failures must be reported as *ConnectorError so the
// scheduler can classify them.
type SourceConnector interface {
	ListAssets(ctx context.Context, filter AssetFilter) ([]*MetadataAsset, error)
	GetAssetSchema(ctx context.Context, assetID string) (*Schema, error)
}

// TargetConnector reads and writes target catalog state. ReadCurrentState
// returns ErrNotFound when the target holds no asset under the id.
type TargetConnector interface {
	ReadCurrentState(ctx context.Context, assetID string) (*MetadataAsset, error)
	UpsertAsset(ctx context.Context, asset *MetadataAsset) (*WriteResult, error)
}
