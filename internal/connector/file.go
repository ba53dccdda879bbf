// Package connector provides file-backed source and target connectors.
// Assets live as one YAML document per file, which makes local catalogs
// easy to inspect and diff. Network connectors implement the same
// interfaces outside this module.
package connector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/metalayer-labs/metasync/pkg/core"
)

// FileSource lists assets from a directory of YAML files.
type FileSource struct {
	system string
	dir    string
}

// NewFileSource creates a source connector reading from dir. The system
// name labels connector errors and discovered assets.
func NewFileSource(system, dir string) *FileSource {
	return &FileSource{system: system, dir: dir}
}

// ListAssets reads every YAML file in the directory and returns the assets
// matching the filter.
func (s *FileSource) ListAssets(ctx context.Context, filter core.AssetFilter) ([]*core.MetadataAsset, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &core.ConnectorError{
			System: s.system, Op: "ListAssets", Code: core.CodeUnavailable, Err: err,
		}
	}

	var pattern *regexp.Regexp
	if filter.NamePattern != "" {
		pattern, err = regexp.Compile(filter.NamePattern)
		if err != nil {
			return nil, &core.ConnectorError{
				System: s.system, Op: "ListAssets", Code: core.CodeBadRequest,
				Err: fmt.Errorf("invalid name pattern %q: %w", filter.NamePattern, err),
			}
		}
	}

	var assets []*core.MetadataAsset
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		asset, err := readAsset(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			return nil, &core.ConnectorError{
				System: s.system, Op: "ListAssets", Code: core.CodeInternal, Err: err,
			}
		}
		if asset.SourceSystem == "" {
			asset.SourceSystem = s.system
		}
		if matchesFilter(asset, filter, pattern) {
			assets = append(assets, asset)
		}
	}
	return assets, nil
}

// GetAssetSchema returns the column-level shape of one asset.
func (s *FileSource) GetAssetSchema(ctx context.Context, assetID string) (*core.Schema, error) {
	assets, err := s.ListAssets(ctx, core.AssetFilter{})
	if err != nil {
		return nil, err
	}
	for _, asset := range assets {
		if asset.ID == assetID {
			return &core.Schema{AssetID: assetID, Columns: asset.Columns}, nil
		}
	}
	return nil, fmt.Errorf("asset %s: %w", assetID, core.ErrNotFound)
}

// FileTarget reads and writes assets as YAML files in a directory.
type FileTarget struct {
	system string
	dir    string
}

// NewFileTarget creates a target connector writing to dir. The directory
// is created on the first write.
func NewFileTarget(system, dir string) *FileTarget {
	return &FileTarget{system: system, dir: dir}
}

// ReadCurrentState returns the target's current copy of the asset, or
// core.ErrNotFound when the target has never seen it.
func (t *FileTarget) ReadCurrentState(ctx context.Context, assetID string) (*core.MetadataAsset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	asset, err := readAsset(t.assetPath(assetID))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("asset %s: %w", assetID, core.ErrNotFound)
	}
	if err != nil {
		return nil, &core.ConnectorError{
			System: t.system, Op: "ReadCurrentState", Code: core.CodeInternal, Err: err,
		}
	}
	return asset, nil
}

// UpsertAsset writes the asset. The write goes through a temp file and
// rename so readers never see a partial document.
func (t *FileTarget) UpsertAsset(ctx context.Context, asset *core.MetadataAsset) (*core.WriteResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return nil, &core.ConnectorError{
			System: t.system, Op: "UpsertAsset", Code: core.CodeInternal, Err: err,
		}
	}

	data, err := yaml.Marshal(asset)
	if err != nil {
		return nil, &core.ConnectorError{
			System: t.system, Op: "UpsertAsset", Code: core.CodeInternal, Err: err,
		}
	}

	path := t.assetPath(asset.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return nil, &core.ConnectorError{
			System: t.system, Op: "UpsertAsset", Code: core.CodeUnavailable, Err: err,
		}
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return nil, &core.ConnectorError{
			System: t.system, Op: "UpsertAsset", Code: core.CodeUnavailable, Err: err,
		}
	}
	return &core.WriteResult{Success: true, TargetID: asset.ID}, nil
}

func (t *FileTarget) assetPath(assetID string) string {
	return filepath.Join(t.dir, sanitizeFileName(assetID)+".yaml")
}

func readAsset(path string) (*core.MetadataAsset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var asset core.MetadataAsset
	if err := yaml.Unmarshal(data, &asset); err != nil {
		return nil, fmt.Errorf("invalid asset yaml in %s: %w", filepath.Base(path), err)
	}
	return &asset, nil
}

func isYAML(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

func sanitizeFileName(id string) string {
	return unsafeFileChars.ReplaceAllString(id, "_")
}

func matchesFilter(asset *core.MetadataAsset, filter core.AssetFilter, pattern *regexp.Regexp) bool {
	if len(filter.Types) > 0 {
		found := false
		for _, t := range filter.Types {
			if asset.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, tag := range filter.Tags {
		if !asset.HasTag(tag) {
			return false
		}
	}
	if pattern != nil && !pattern.MatchString(asset.ID) &&
		!pattern.MatchString(asset.TechnicalName) {
		return false
	}
	return true
}
