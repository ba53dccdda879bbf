// Package connectortest provides in-memory connector fakes for tests.
package connectortest

import (
	"context"
	"fmt"
	"sync"

	"github.com/metalayer-labs/metasync/pkg/core"
)

// Source is an in-memory SourceConnector.
type Source struct {
	mu     sync.Mutex
	system string
	assets []*core.MetadataAsset

	// ListErr, when set, fails the next ListAssets calls.
	ListErr error
}

// NewSource creates a fake source holding the given assets.
func NewSource(system string, assets ...*core.MetadataAsset) *Source {
	return &Source{system: system, assets: assets}
}

// Add appends an asset to the source.
func (s *Source) Add(asset *core.MetadataAsset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets = append(s.assets, asset)
}

func (s *Source) ListAssets(ctx context.Context, filter core.AssetFilter) ([]*core.MetadataAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	var out []*core.MetadataAsset
	for _, asset := range s.assets {
		if matches(asset, filter) {
			out = append(out, asset.Clone())
		}
	}
	return out, nil
}

func (s *Source) GetAssetSchema(ctx context.Context, assetID string) (*core.Schema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, asset := range s.assets {
		if asset.ID == assetID {
			return &core.Schema{AssetID: assetID, Columns: asset.Columns}, nil
		}
	}
	return nil, fmt.Errorf("asset %s: %w", assetID, core.ErrNotFound)
}

func matches(asset *core.MetadataAsset, filter core.AssetFilter) bool {
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
	return true
}

// Target is an in-memory TargetConnector. Writes are recorded so tests can
// assert on what reached the target.
type Target struct {
	mu     sync.Mutex
	system string
	state  map[string]*core.MetadataAsset
	writes []*core.MetadataAsset

	// UpsertErr, when set, fails the next UpsertAsset calls.
	UpsertErr error
	// ReadErr, when set, fails the next ReadCurrentState calls.
	ReadErr error
}

// NewTarget creates a fake target, optionally pre-seeded with existing
// assets.
func NewTarget(system string, existing ...*core.MetadataAsset) *Target {
	state := make(map[string]*core.MetadataAsset, len(existing))
	for _, asset := range existing {
		state[asset.ID] = asset.Clone()
	}
	return &Target{system: system, state: state}
}

func (t *Target) ReadCurrentState(ctx context.Context, assetID string) (*core.MetadataAsset, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ReadErr != nil {
		return nil, t.ReadErr
	}
	asset, ok := t.state[assetID]
	if !ok {
		return nil, fmt.Errorf("asset %s: %w", assetID, core.ErrNotFound)
	}
	return asset.Clone(), nil
}

func (t *Target) UpsertAsset(ctx context.Context, asset *core.MetadataAsset) (*core.WriteResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.UpsertErr != nil {
		return nil, t.UpsertErr
	}
	clone := asset.Clone()
	t.state[asset.ID] = clone
	t.writes = append(t.writes, clone)
	return &core.WriteResult{Success: true, TargetID: asset.ID}, nil
}

// Writes returns every asset written so far, in order.
func (t *Target) Writes() []*core.MetadataAsset {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*core.MetadataAsset(nil), t.writes...)
}

// Current returns the target's copy of an asset, or nil.
func (t *Target) Current(assetID string) *core.MetadataAsset {
	t.mu.Lock()
	defer t.mu.Unlock()
	if asset, ok := t.state[assetID]; ok {
		return asset.Clone()
	}
	return nil
}
