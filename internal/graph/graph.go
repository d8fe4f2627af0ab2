// Package graph answers dependency-readiness questions over a spec's
// hard/soft dependency edges (component C4 of SPEC_FULL.md §4.4).
package graph

import (
	"sort"

	"github.com/speckit/sdd/internal/spec"
)

// Graph is a memoized view over one document version. Rebuild (via New)
// whenever the document mutates; §4.4 describes this as "memoized per
// document version, version bumped by C7".
type Graph struct {
	idx  *spec.Index
	hard map[string][]string
	soft map[string][]string
}

// New builds hard/soft adjacency maps from idx. O(n) in node count.
func New(idx *spec.Index) *Graph {
	g := &Graph{idx: idx, hard: map[string][]string{}, soft: map[string][]string{}}
	for _, n := range idx.All() {
		g.hard[n.ID] = append([]string(nil), n.Dependencies.BlockedBy...)
		g.soft[n.ID] = append([]string(nil), n.Dependencies.SoftDepends...)
	}
	return g
}

// IsReady reports whether node is pending, every hard dependency is
// completed, and no ancestor is explicitly blocked (§4.4).
func (g *Graph) IsReady(id string) bool {
	n := g.idx.Node(id)
	if n == nil || n.Status != spec.StatusPending {
		return false
	}
	for _, dep := range g.hard[id] {
		d := g.idx.Node(dep)
		if d == nil || d.Status != spec.StatusCompleted {
			return false
		}
	}
	for _, a := range g.idx.Ancestors(n) {
		if a.Status == spec.StatusBlocked {
			return false
		}
	}
	return true
}

// Blocker names one reason a node is not ready.
type Blocker struct {
	NodeID string
	Reason string
}

// BlockersOf returns every hard dependency not yet completed, plus the
// nearest blocked ancestor if any (§4.4).
func (g *Graph) BlockersOf(id string) []Blocker {
	n := g.idx.Node(id)
	if n == nil {
		return nil
	}
	var out []Blocker
	for _, dep := range g.hard[id] {
		d := g.idx.Node(dep)
		if d == nil {
			out = append(out, Blocker{NodeID: dep, Reason: "missing"})
			continue
		}
		if d.Status != spec.StatusCompleted {
			out = append(out, Blocker{NodeID: dep, Reason: string(d.Status)})
		}
	}
	for _, a := range g.idx.Ancestors(n) {
		if a.Status == spec.StatusBlocked {
			out = append(out, Blocker{NodeID: a.ID, Reason: "ancestor blocked"})
			break
		}
	}
	return out
}

// Cycles returns every strongly connected component of size >= 2 in the
// hard graph, plus self-loops, deterministically ordered by smallest
// contained ID (§4.4). Delegates to spec.DetectCycles, the single Tarjan
// implementation also used by the hierarchy validator (I3) so both
// surfaces agree by construction.
func (g *Graph) Cycles() [][]string {
	return spec.DetectCycles(g.hard)
}

// Orphan names a dangling dependency reference.
type Orphan struct {
	NodeID    string
	MissingRef string
}

// Orphans returns every dependency reference (hard or soft) that does
// not resolve to an existing node.
func (g *Graph) Orphans() []Orphan {
	var out []Orphan
	for _, n := range g.idx.All() {
		for _, ref := range n.Dependencies.BlockedBy {
			if !g.idx.Exists(ref) {
				out = append(out, Orphan{NodeID: n.ID, MissingRef: ref})
			}
		}
		for _, ref := range n.Dependencies.SoftDepends {
			if !g.idx.Exists(ref) {
				out = append(out, Orphan{NodeID: n.ID, MissingRef: ref})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NodeID != out[j].NodeID {
			return out[i].NodeID < out[j].NodeID
		}
		return out[i].MissingRef < out[j].MissingRef
	})
	return out
}

// Bottleneck names a node whose reverse hard-dependency fan-out (number
// of nodes that depend on it) exceeds the requested threshold.
type Bottleneck struct {
	NodeID string
	Fanout int
}

// Bottlenecks returns every node blocked_by-referenced by more than
// threshold other nodes, descending by fan-out then ascending by ID.
func (g *Graph) Bottlenecks(threshold int) []Bottleneck {
	fanout := map[string]int{}
	for _, deps := range g.hard {
		for _, dep := range deps {
			fanout[dep]++
		}
	}
	var out []Bottleneck
	for id, n := range fanout {
		if n > threshold {
			out = append(out, Bottleneck{NodeID: id, Fanout: n})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Fanout != out[j].Fanout {
			return out[i].Fanout > out[j].Fanout
		}
		return out[i].NodeID < out[j].NodeID
	})
	return out
}
