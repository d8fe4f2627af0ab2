package spec

import "testing"

func TestLeafCountsByStatus(t *testing.T) {
	cases := []struct {
		status  Status
		wantFld string
	}{
		{StatusCompleted, "completed"},
		{StatusInProgress, "in_progress"},
		{StatusBlocked, "blocked"},
		{StatusPending, "pending"},
	}
	for _, c := range cases {
		n := &Node{ID: "task-1-1", Type: TypeTask, Status: c.status}
		got := LeafCounts(n)
		if got.Total != 1 {
			t.Fatalf("status %s: Total = %d, want 1", c.status, got.Total)
		}
		sum := got.Completed + got.Pending + got.InProgress + got.Blocked
		if sum != 1 {
			t.Fatalf("status %s: exactly one bucket should be 1, got %+v", c.status, got)
		}
	}
}

func TestCountsFinalizeRoundsDown(t *testing.T) {
	c := Counts{Total: 3, Completed: 1}
	c.Finalize()
	if c.Percent != 33 {
		t.Fatalf("Percent = %d, want 33", c.Percent)
	}
}

func TestCountsFinalizeZeroTotal(t *testing.T) {
	c := Counts{}
	c.Finalize()
	if c.Percent != 0 {
		t.Fatalf("Percent = %d, want 0 for empty total", c.Percent)
	}
}

func TestDeriveStatusAllCompleted(t *testing.T) {
	children := []*Node{
		{Status: StatusCompleted},
		{Status: StatusCompleted},
	}
	if got := DeriveStatus(children); got != StatusCompleted {
		t.Fatalf("DeriveStatus = %s, want completed", got)
	}
}

func TestDeriveStatusAnyActive(t *testing.T) {
	children := []*Node{
		{Status: StatusCompleted},
		{Status: StatusPending},
	}
	if got := DeriveStatus(children); got != StatusInProgress {
		t.Fatalf("DeriveStatus = %s, want in_progress", got)
	}
}

func TestDeriveStatusAllPending(t *testing.T) {
	children := []*Node{{Status: StatusPending}, {Status: StatusPending}}
	if got := DeriveStatus(children); got != StatusPending {
		t.Fatalf("DeriveStatus = %s, want pending", got)
	}
}

func TestDeriveStatusNeverReturnsBlocked(t *testing.T) {
	children := []*Node{{Status: StatusBlocked}, {Status: StatusPending}}
	if got := DeriveStatus(children); got == StatusBlocked {
		t.Fatal("DeriveStatus must never derive blocked; blocked is only ever explicit")
	}
}

func TestRecomputeNodePreservesExplicitBlocked(t *testing.T) {
	parent := &Node{
		ID:     "group-1-1",
		Type:   TypeGroup,
		Status: StatusBlocked,
		Children: []*Node{
			{ID: "task-1-1-1", Type: TypeTask, Status: StatusCompleted},
		},
	}
	RecomputeNode(parent)
	if parent.Status != StatusBlocked {
		t.Fatalf("explicit blocked status must survive recompute, got %s", parent.Status)
	}
	if parent.Counts.Total != 1 || parent.Counts.Completed != 1 {
		t.Fatalf("unexpected counts after recompute: %+v", parent.Counts)
	}
}

func TestRecomputeAllBottomUp(t *testing.T) {
	doc := &Document{
		Hierarchy: []*Node{
			{
				ID: "phase-1", Type: TypePhase, Status: StatusPending,
				Children: []*Node{
					{
						ID: "group-1-1", Type: TypeGroup, Status: StatusPending,
						Children: []*Node{
							{ID: "task-1-1-1", Type: TypeTask, Status: StatusCompleted},
							{ID: "task-1-1-2", Type: TypeTask, Status: StatusPending},
						},
					},
				},
			},
		},
	}
	idx := BuildIndex(doc)
	RecomputeAll(idx)

	group := idx.Node("group-1-1")
	if group.Counts.Total != 2 || group.Counts.Completed != 1 {
		t.Fatalf("group counts = %+v, want total 2 completed 1", group.Counts)
	}
	if group.Status != StatusInProgress {
		t.Fatalf("group status = %s, want in_progress", group.Status)
	}
	phase := idx.Node("phase-1")
	if phase.Counts.Total != 2 {
		t.Fatalf("phase counts = %+v, want total 2", phase.Counts)
	}
	if doc.Counts.Total != 2 || doc.Counts.Percent != 50 {
		t.Fatalf("document counts = %+v, want total 2 percent 50", doc.Counts)
	}
}
