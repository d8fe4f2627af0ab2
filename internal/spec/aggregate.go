package spec

// LeafCounts returns the single-item Counts bucket for a leaf's current
// status.
func LeafCounts(n *Node) Counts {
	c := Counts{Total: 1}
	switch n.Status {
	case StatusCompleted:
		c.Completed = 1
	case StatusInProgress:
		c.InProgress = 1
	case StatusBlocked:
		c.Blocked = 1
	default:
		c.Pending = 1
	}
	c.Finalize()
	return c
}

// DeriveStatus computes the non-leaf status per I4/I5 from its direct
// children's *current* statuses. It never returns StatusBlocked — I6
// requires blocked to only ever be set explicitly, so callers must
// preserve an existing explicit Blocked status rather than call this.
func DeriveStatus(children []*Node) Status {
	if len(children) == 0 {
		return StatusPending
	}
	allCompleted := true
	anyActive := false
	for _, c := range children {
		if c.Status != StatusCompleted {
			allCompleted = false
		}
		if c.Status == StatusInProgress || c.Status == StatusCompleted {
			anyActive = true
		}
	}
	switch {
	case allCompleted:
		return StatusCompleted
	case anyActive:
		return StatusInProgress
	default:
		return StatusPending
	}
}

// RecomputeNode recomputes n's own Counts (and, if n is not explicitly
// Blocked, its Status) from its direct children. For a leaf, Counts
// reflects n's own status and Status is left untouched (a leaf's status
// is authoritative, never derived).
func RecomputeNode(n *Node) {
	if n.IsLeaf() {
		n.Counts = LeafCounts(n)
		return
	}
	var c Counts
	for _, child := range n.Children {
		if child.IsLeaf() {
			c.Add(LeafCounts(child))
		} else {
			c.Add(child.Counts)
		}
	}
	c.Finalize()
	n.Counts = c
	if n.Status != StatusBlocked {
		n.Status = DeriveStatus(n.Children)
	}
}

// RecomputeAll performs a full bottom-up recompute of every node's
// Counts/Status and the document-level Counts. Used by the
// counts.recalculate / status.derive auto-fixers (§4.2) and by initial
// load sanity checks. O(n); idempotent (P5).
func RecomputeAll(idx *Index) {
	var postOrder func(n *Node)
	postOrder = func(n *Node) {
		for _, c := range n.Children {
			postOrder(c)
		}
		RecomputeNode(n)
	}
	for _, phase := range idx.Doc.Hierarchy {
		postOrder(phase)
	}

	var total Counts
	for _, phase := range idx.Doc.Hierarchy {
		total.Add(phase.Counts)
	}
	total.Finalize()
	idx.Doc.Counts = total
}
