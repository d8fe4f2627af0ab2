package spec

import (
	"testing"
	"time"
)

func TestNewSpecIDSlugifiesTitle(t *testing.T) {
	now := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	id := NewSpecID("Add OAuth Login!!", now, map[string]bool{})
	want := "add-oauth-login-20260305-1"
	if id != want {
		t.Fatalf("NewSpecID = %q, want %q", id, want)
	}
}

func TestNewSpecIDDisambiguatesSameDayCollisions(t *testing.T) {
	now := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	existing := map[string]bool{"retry-logic-20260305-1": true, "retry-logic-20260305-2": true}
	id := NewSpecID("retry logic", now, existing)
	if id != "retry-logic-20260305-3" {
		t.Fatalf("NewSpecID = %q, want counter bumped to 3", id)
	}
}

func TestNewSpecIDEmptyTitleFallsBackToSpec(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	id := NewSpecID("   ---   ", now, map[string]bool{})
	if id != "spec-20260101-1" {
		t.Fatalf("NewSpecID = %q, want spec-20260101-1", id)
	}
}

func TestValidIDShape(t *testing.T) {
	cases := []struct {
		typ  NodeType
		id   string
		want bool
	}{
		{TypePhase, "phase-1", true},
		{TypePhase, "phase-1-1", false},
		{TypeGroup, "group-1-2", true},
		{TypeGroup, "group-1", false},
		{TypeTask, "task-1-2", true},
		{TypeTask, "task-1-2-3", true},
		{TypeTask, "task-1", false},
		{TypeVerify, "verify-2-1-4", true},
		{TypeVerify, "bogus", false},
	}
	for _, c := range cases {
		if got := ValidIDShape(c.typ, c.id); got != c.want {
			t.Errorf("ValidIDShape(%s, %q) = %v, want %v", c.typ, c.id, got, c.want)
		}
	}
}

func TestNextIDHelpers(t *testing.T) {
	if got := NextPhaseID(2); got != "phase-3" {
		t.Errorf("NextPhaseID(2) = %q, want phase-3", got)
	}
	if got := NextGroupID(1, 0); got != "group-1-1" {
		t.Errorf("NextGroupID(1, 0) = %q, want group-1-1", got)
	}
	if got := NextTaskID(1, 0, 0); got != "task-1-1" {
		t.Errorf("NextTaskID(1, 0, 0) = %q, want task-1-1", got)
	}
	if got := NextTaskID(1, 2, 1); got != "task-1-2-2" {
		t.Errorf("NextTaskID(1, 2, 1) = %q, want task-1-2-2", got)
	}
	if got := NextVerifyID(1, 0, 0); got != "verify-1-1" {
		t.Errorf("NextVerifyID(1, 0, 0) = %q, want verify-1-1", got)
	}
	if got := NextVerifyID(1, 2, 1); got != "verify-1-2-2" {
		t.Errorf("NextVerifyID(1, 2, 1) = %q, want verify-1-2-2", got)
	}
}
