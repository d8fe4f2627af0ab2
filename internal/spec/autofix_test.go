package spec

import "testing"

func TestAutoFixInsertsMissingMetadata(t *testing.T) {
	doc := validDoc()
	doc.Hierarchy[0].Children[0].Metadata = nil
	idx := BuildIndex(doc)

	result := AutoFix(idx, FixOptions{})
	if !containsString(result.Applied, "metadata.ensure") {
		t.Fatalf("expected metadata.ensure in Applied, got %v", result.Applied)
	}
	if doc.Hierarchy[0].Children[0].Metadata == nil {
		t.Fatal("metadata.ensure should have set a non-nil metadata map")
	}
}

func TestAutoFixIsIdempotent(t *testing.T) {
	doc := validDoc()
	idx := BuildIndex(doc)

	AutoFix(idx, FixOptions{})
	second := AutoFix(idx, FixOptions{})
	if containsString(second.Applied, "metadata.ensure") {
		t.Fatal("metadata.ensure should not re-fire once metadata is already present")
	}
}

func TestAutoFixRecalculatesStaleCounts(t *testing.T) {
	doc := validDoc()
	doc.Hierarchy[0].Children[0].Status = StatusCompleted
	idx := BuildIndex(doc)

	result := AutoFix(idx, FixOptions{})
	if !containsString(result.Applied, "counts.recalculate") {
		t.Fatalf("expected counts.recalculate in Applied, got %v", result.Applied)
	}
	if doc.Hierarchy[0].Counts.Completed != 1 {
		t.Fatalf("phase counts not recalculated: %+v", doc.Hierarchy[0].Counts)
	}
}

func TestAutoFixWithoutApplyOnlyWarnsAboutReparenting(t *testing.T) {
	doc := validDoc()
	orphan := &Node{ID: "task-9-9", Type: TypeTask, Title: "Orphan", Status: StatusPending, Metadata: Metadata{}}
	idx := BuildIndex(doc)
	idx.byID[orphan.ID] = orphan // present in lookup but not attached under any phase

	result := AutoFix(idx, FixOptions{Apply: false})
	found := false
	for _, w := range result.Warnings {
		if w.Code == "hierarchy.reparent_candidate" && w.Location == orphan.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a reparent_candidate warning for the orphan, got %+v", result.Warnings)
	}
	if containsString(result.Applied, "hierarchy.reparent") {
		t.Fatal("hierarchy.reparent must not be applied without --apply")
	}
}

func TestFixNeedsJournalingMarksUnjournaledActiveNode(t *testing.T) {
	doc := validDoc()
	doc.Hierarchy[0].Children[0].Status = StatusInProgress
	idx := BuildIndex(doc)

	result := AutoFix(idx, FixOptions{})
	if !containsString(result.Applied, "metadata.needs_journaling") {
		t.Fatalf("expected metadata.needs_journaling in Applied, got %v", result.Applied)
	}
	if !doc.Hierarchy[0].Children[0].Metadata.NeedsJournaling() {
		t.Fatal("an in_progress node with no journal entry should need journaling")
	}
}

func containsString(ss []string, target string) bool {
	for _, s := range ss {
		if s == target {
			return true
		}
	}
	return false
}
