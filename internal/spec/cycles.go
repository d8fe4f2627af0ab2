package spec

import "sort"

// DetectCycles runs Tarjan's SCC algorithm over adj (node ID -> the IDs
// it hard-depends on) and returns every strongly connected component of
// size >= 2 plus every self-loop, each as a sorted slice of node IDs.
// Components are returned in deterministic order: by their smallest
// contained ID (§4.4).
func DetectCycles(adj map[string][]string) [][]string {
	t := &tarjan{
		adj:     adj,
		index:   map[string]int{},
		low:     map[string]int{},
		onStack: map[string]bool{},
	}

	// Deterministic traversal order so ties in discovery don't affect
	// which node starts a component's DFS.
	nodes := make([]string, 0, len(adj))
	for n := range adj {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	for _, n := range nodes {
		if _, seen := t.index[n]; !seen {
			t.strongConnect(n)
		}
	}

	var out [][]string
	for _, comp := range t.components {
		if len(comp) >= 2 || isSelfLoop(comp, adj) {
			sorted := SortedIDs(comp)
			out = append(out, sorted)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

func isSelfLoop(comp []string, adj map[string][]string) bool {
	if len(comp) != 1 {
		return false
	}
	n := comp[0]
	for _, d := range adj[n] {
		if d == n {
			return true
		}
	}
	return false
}

type tarjan struct {
	adj        map[string][]string
	index      map[string]int
	low        map[string]int
	onStack    map[string]bool
	stack      []string
	counter    int
	components [][]string
}

func (t *tarjan) strongConnect(v string) {
	t.index[v] = t.counter
	t.low[v] = t.counter
	t.counter++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	deps := append([]string(nil), t.adj[v]...)
	sort.Strings(deps)
	for _, w := range deps {
		if _, seen := t.index[w]; !seen {
			t.strongConnect(w)
			if t.low[w] < t.low[v] {
				t.low[v] = t.low[w]
			}
		} else if t.onStack[w] {
			if t.index[w] < t.low[v] {
				t.low[v] = t.index[w]
			}
		}
	}

	if t.low[v] == t.index[v] {
		var comp []string
		for {
			n := len(t.stack) - 1
			w := t.stack[n]
			t.stack = t.stack[:n]
			t.onStack[w] = false
			comp = append(comp, w)
			if w == v {
				break
			}
		}
		t.components = append(t.components, comp)
	}
}
