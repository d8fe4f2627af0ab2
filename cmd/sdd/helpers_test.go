package main

import (
	"testing"

	"github.com/speckit/sdd/internal/spec"
	"github.com/speckit/sdd/internal/store"
	"github.com/speckit/sdd/internal/transactor"
)

func TestContainsFoldIsCaseInsensitive(t *testing.T) {
	cases := []struct {
		haystack, needle string
		want             bool
	}{
		{"Refresh the OAuth token", "oauth", true},
		{"Refresh the OAuth token", "OAUTH", true},
		{"Refresh the OAuth token", "saml", false},
		{"", "x", false},
		{"anything", "", true},
	}
	for _, c := range cases {
		if got := containsFold(c.haystack, c.needle); got != c.want {
			t.Errorf("containsFold(%q, %q) = %v, want %v", c.haystack, c.needle, got, c.want)
		}
	}
}

func TestCountErrorsIgnoresWarnings(t *testing.T) {
	issues := []spec.Issue{
		{Severity: spec.SeverityError, Code: "a"},
		{Severity: spec.SeverityWarning, Code: "b"},
		{Severity: spec.SeverityError, Code: "c"},
	}
	if got := countErrors(issues); got != 2 {
		t.Fatalf("countErrors() = %d, want 2", got)
	}
}

func TestCountErrorsEmpty(t *testing.T) {
	if got := countErrors(nil); got != 0 {
		t.Fatalf("countErrors(nil) = %d, want 0", got)
	}
}

func TestSpecStoreBucketPassesThrough(t *testing.T) {
	if got := specStoreBucket("completed"); got != store.BucketCompleted {
		t.Fatalf("specStoreBucket(%q) = %q, want %q", "completed", got, store.BucketCompleted)
	}
}

func TestBatchOpToOpDispatchesByKind(t *testing.T) {
	cases := []struct {
		name string
		b    batchOp
		want transactor.Op
	}{
		{"set_status", batchOp{Kind: "set_status", NodeID: "task-1-1-1", Status: "completed"},
			transactor.SetStatusOp{NodeID: "task-1-1-1", Status: spec.StatusCompleted}},
		{"unblock", batchOp{Kind: "unblock", NodeID: "task-1-1-1", Resolution: "fixed upstream"},
			transactor.UnblockOp{NodeID: "task-1-1-1", Resolution: "fixed upstream"}},
		{"move_spec", batchOp{Kind: "move_spec", TargetBucket: "completed"},
			transactor.MoveSpecOp{TargetBucket: store.BucketCompleted}},
		{"remove_node", batchOp{Kind: "remove_node", NodeID: "task-1-1-1"},
			transactor.RemoveNodeOp{NodeID: "task-1-1-1"}},
		{"recalculate_counts", batchOp{Kind: "recalculate_counts"}, transactor.RecalculateCountsOp{}},
		{"sync_metadata", batchOp{Kind: "sync_metadata"}, transactor.SyncMetadataOp{}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := c.b.toOp()
			if err != nil {
				t.Fatalf("toOp() error = %v", err)
			}
			if got != c.want {
				t.Errorf("toOp() = %#v, want %#v", got, c.want)
			}
		})
	}
}

func TestBatchOpToOpRejectsUnknownKind(t *testing.T) {
	_, err := batchOp{Kind: "not_a_real_kind"}.toOp()
	if err == nil {
		t.Fatal("expected an error for an unsupported batch op kind")
	}
}

func TestBatchOpToOpCreateSpecPointsAtCreateCommand(t *testing.T) {
	_, err := batchOp{Kind: "create_spec"}.toOp()
	if err == nil {
		t.Fatal("expected an error steering create_spec away from apply")
	}
	if !containsFold(err.Error(), "sdd create") {
		t.Errorf("error %q should point at sdd create", err.Error())
	}
}

func TestBatchOpToOpCreateNodeBuildsNode(t *testing.T) {
	op, err := batchOp{Kind: "create_node", ParentID: "group-1-1", NodeID: "task-1-1-9", Type: "task", Title: "New task"}.toOp()
	if err != nil {
		t.Fatalf("toOp() error = %v", err)
	}
	created, ok := op.(transactor.CreateNodeOp)
	if !ok {
		t.Fatalf("toOp() returned %T, want transactor.CreateNodeOp", op)
	}
	if created.ParentID != "group-1-1" || created.Node.ID != "task-1-1-9" || created.Node.Title != "New task" {
		t.Errorf("unexpected CreateNodeOp: %#v", created)
	}
}
