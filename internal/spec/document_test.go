package spec

import "testing"

func sampleDoc() *Document {
	return &Document{
		SpecID: "add-login-20260305-1",
		Hierarchy: []*Node{
			{
				ID: "phase-1", Type: TypePhase, Title: "Phase one",
				Children: []*Node{
					{ID: "task-1-1", Type: TypeTask, Title: "First task"},
					{
						ID: "group-1-1", Type: TypeGroup, Title: "Group one",
						Children: []*Node{
							{ID: "task-1-1-1", Type: TypeTask, Title: "Nested task"},
						},
					},
				},
			},
		},
	}
}

func TestBuildIndexWiresParentPointers(t *testing.T) {
	idx := BuildIndex(sampleDoc())

	group := idx.Node("group-1-1")
	if group == nil {
		t.Fatal("group-1-1 not found in index")
	}
	if group.Parent == nil || group.Parent.ID != "phase-1" {
		t.Fatalf("group-1-1 parent = %v, want phase-1", group.Parent)
	}

	nested := idx.Node("task-1-1-1")
	if nested.Parent == nil || nested.Parent.ID != "group-1-1" {
		t.Fatalf("task-1-1-1 parent = %v, want group-1-1", nested.Parent)
	}
}

func TestIndexExistsAndAllOrder(t *testing.T) {
	idx := BuildIndex(sampleDoc())
	if !idx.Exists("task-1-1") {
		t.Fatal("expected task-1-1 to exist")
	}
	if idx.Exists("task-9-9") {
		t.Fatal("did not expect task-9-9 to exist")
	}
	all := idx.All()
	if len(all) != 4 {
		t.Fatalf("All() returned %d nodes, want 4", len(all))
	}
	if all[0].ID != "phase-1" {
		t.Fatalf("All()[0] = %s, want phase-1 (DFS order)", all[0].ID)
	}
}

func TestIndexLeaves(t *testing.T) {
	idx := BuildIndex(sampleDoc())
	leaves := idx.Leaves()
	if len(leaves) != 2 {
		t.Fatalf("Leaves() returned %d, want 2", len(leaves))
	}
	for _, n := range leaves {
		if !n.IsLeaf() {
			t.Fatalf("Leaves() returned non-leaf %s", n.ID)
		}
	}
}

func TestIndexAncestors(t *testing.T) {
	idx := BuildIndex(sampleDoc())
	nested := idx.Node("task-1-1-1")
	ancestors := idx.Ancestors(nested)
	if len(ancestors) != 2 {
		t.Fatalf("Ancestors() returned %d, want 2", len(ancestors))
	}
	if ancestors[0].ID != "group-1-1" || ancestors[1].ID != "phase-1" {
		t.Fatalf("Ancestors() = %v, want [group-1-1 phase-1]", ancestors)
	}
}

func TestWalkVisitsEntireSubtree(t *testing.T) {
	doc := sampleDoc()
	var visited []string
	Walk(doc.Hierarchy[0], func(n *Node) { visited = append(visited, n.ID) })
	if len(visited) != 4 {
		t.Fatalf("Walk visited %d nodes, want 4: %v", len(visited), visited)
	}
}

func TestCloneIsDeepCopy(t *testing.T) {
	doc := sampleDoc()
	clone := doc.Clone()

	clone.Hierarchy[0].Title = "mutated"
	if doc.Hierarchy[0].Title == "mutated" {
		t.Fatal("Clone must not share node pointers with the original")
	}

	clone.Hierarchy[0].Children[0].Status = StatusCompleted
	if doc.Hierarchy[0].Children[0].Status == StatusCompleted {
		t.Fatal("Clone must deep-copy nested children")
	}
}

func TestSortedIDsDoesNotMutateInput(t *testing.T) {
	in := []string{"task-1-2", "task-1-1", "task-1-10"}
	out := SortedIDs(in)
	if in[0] != "task-1-2" {
		t.Fatal("SortedIDs must not mutate its input slice")
	}
	want := []string{"task-1-1", "task-1-10", "task-1-2"}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("SortedIDs = %v, want %v", out, want)
		}
	}
}
