// Package lineage orders assets so that upstream dependencies sync before
// their dependents. It supports cycle detection and topological sorting
// over the lineage references carried by discovered assets.
package lineage

import (
	"fmt"
	"sort"

	"github.com/metalayer-labs/metasync/pkg/core"
)

// Graph is a directed acyclic graph of asset IDs.
type Graph struct {
	nodes   map[string]*core.MetadataAsset
	edges   map[string][]string // upstream -> downstream dependents
	parents map[string][]string // downstream -> upstream dependencies
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:   make(map[string]*core.MetadataAsset),
		edges:   make(map[string][]string),
		parents: make(map[string][]string),
	}
}

// AddAsset adds an asset node to the graph.
func (g *Graph) AddAsset(asset *core.MetadataAsset) {
	if _, exists := g.nodes[asset.ID]; !exists {
		g.nodes[asset.ID] = asset
		g.edges[asset.ID] = []string{}
		g.parents[asset.ID] = []string{}
	} else {
		g.nodes[asset.ID] = asset
	}
}

// AddDependency records that dependent is downstream of upstream.
func (g *Graph) AddDependency(upstreamID, dependentID string) error {
	if _, exists := g.nodes[upstreamID]; !exists {
		return fmt.Errorf("upstream asset %q does not exist", upstreamID)
	}
	if _, exists := g.nodes[dependentID]; !exists {
		return fmt.Errorf("dependent asset %q does not exist", dependentID)
	}
	if upstreamID == dependentID {
		return fmt.Errorf("self-loop detected: %s", upstreamID)
	}

	if !contains(g.edges[upstreamID], dependentID) {
		g.edges[upstreamID] = append(g.edges[upstreamID], dependentID)
	}
	if !contains(g.parents[dependentID], upstreamID) {
		g.parents[dependentID] = append(g.parents[dependentID], upstreamID)
	}
	return nil
}

// HasCycle returns true if the graph contains a cycle, along with the
// cycle path.
func (g *Graph) HasCycle() (bool, []string) {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	path := make(map[string]string)

	var cyclePath []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		recStack[id] = true

		for _, childID := range g.edges[id] {
			if !visited[childID] {
				path[childID] = id
				if dfs(childID) {
					return true
				}
			} else if recStack[childID] {
				cyclePath = []string{childID}
				for curr := id; curr != childID; curr = path[curr] {
					cyclePath = append([]string{curr}, cyclePath...)
				}
				cyclePath = append([]string{childID}, cyclePath...)
				return true
			}
		}

		recStack[id] = false
		return false
	}

	for id := range g.nodes {
		if !visited[id] {
			if dfs(id) {
				return true, cyclePath
			}
		}
	}
	return false, nil
}

// TopologicalSort returns assets in dependency order, upstream first.
// Returns an error if the graph contains a cycle.
func (g *Graph) TopologicalSort() ([]*core.MetadataAsset, error) {
	if hasCycle, cyclePath := g.HasCycle(); hasCycle {
		return nil, fmt.Errorf("lineage cycle detected: %v", cyclePath)
	}

	visited := make(map[string]bool)
	var result []*core.MetadataAsset

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, parentID := range g.parents[id] {
			visit(parentID)
		}
		result = append(result, g.nodes[id])
	}

	// Sort node IDs first for deterministic order
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		visit(id)
	}
	return result, nil
}

// Order arranges discovered assets so upstream lineage syncs first. Lineage
// references pointing outside the discovered set are ignored. On a cycle
// the assets come back in their input order along with the error so the
// caller can still proceed.
func Order(assets []*core.MetadataAsset) ([]*core.MetadataAsset, error) {
	g := NewGraph()
	for _, asset := range assets {
		g.AddAsset(asset)
	}
	for _, asset := range assets {
		for _, ref := range asset.Lineage {
			if _, known := g.nodes[ref.AssetID]; !known {
				continue
			}
			var err error
			switch ref.Relation {
			case "upstream":
				err = g.AddDependency(ref.AssetID, asset.ID)
			case "downstream":
				err = g.AddDependency(asset.ID, ref.AssetID)
			}
			if err != nil {
				return assets, err
			}
		}
	}

	ordered, err := g.TopologicalSort()
	if err != nil {
		return assets, err
	}
	return ordered, nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
