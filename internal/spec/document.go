package spec

import (
	"encoding/json"
	"sort"
)

// Index is the in-memory arena built over a Document: parent pointers,
// an ID→Node lookup, and ordering metadata. SPEC_FULL.md §9 calls for
// exactly this instead of repeated document re-scans; C3/C4/C5 all
// operate against an Index rather than walking d.Hierarchy by hand.
type Index struct {
	Doc   *Document
	byID  map[string]*Node
	order []string // document order of every node ID, phases-first DFS
}

// BuildIndex wires parent pointers across the whole tree and returns a
// lookup arena. Call after every load and after every mutation batch.
func BuildIndex(d *Document) *Index {
	idx := &Index{Doc: d, byID: map[string]*Node{}}
	for _, phase := range d.Hierarchy {
		indexSubtree(idx, phase, nil)
	}
	return idx
}

func indexSubtree(idx *Index, n *Node, parent *Node) {
	n.Parent = parent
	idx.byID[n.ID] = n
	idx.order = append(idx.order, n.ID)
	for _, c := range n.Children {
		indexSubtree(idx, c, n)
	}
}

// Node returns the node with the given ID, or nil.
func (idx *Index) Node(id string) *Node { return idx.byID[id] }

// Exists reports whether id resolves to a node.
func (idx *Index) Exists(id string) bool { _, ok := idx.byID[id]; return ok }

// All returns every node in document order (phases first, depth-first).
func (idx *Index) All() []*Node {
	out := make([]*Node, 0, len(idx.order))
	for _, id := range idx.order {
		out = append(out, idx.byID[id])
	}
	return out
}

// Leaves returns every leaf node (task without subtasks, or any verify)
// in document order.
func (idx *Index) Leaves() []*Node {
	var out []*Node
	for _, n := range idx.All() {
		if n.IsLeaf() {
			out = append(out, n)
		}
	}
	return out
}

// Phases returns the top-level hierarchy nodes.
func (idx *Index) Phases() []*Node { return idx.Doc.Hierarchy }

// Ancestors returns n's ancestors from immediate parent to the root
// phase.
func (idx *Index) Ancestors(n *Node) []*Node {
	var out []*Node
	for p := n.Parent; p != nil; p = p.Parent {
		out = append(out, p)
	}
	return out
}

// Walk visits every node in the subtree rooted at n (n included),
// depth-first, pre-order.
func Walk(n *Node, fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		Walk(c, fn)
	}
}

// Clone deep-copies the document via a JSON round-trip. Used by C7 to
// obtain the in-memory clone mutations apply against (§4.7 step 2).
func (d *Document) Clone() *Document {
	raw, err := json.Marshal(d)
	if err != nil {
		panic("spec: document failed to marshal during clone: " + err.Error())
	}
	out := &Document{}
	if err := json.Unmarshal(raw, out); err != nil {
		panic("spec: document failed to unmarshal during clone: " + err.Error())
	}
	return out
}

// SortedIDs returns ids sorted lexicographically ascending, used by the
// scheduler's final tie-break (§4.5) and by cycle reporting's
// deterministic ordering (§4.4).
func SortedIDs(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}
