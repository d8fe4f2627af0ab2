package spec

import (
	"testing"
	"time"
)

func validDoc() *Document {
	return &Document{
		SpecID:   "add-login-20260305-1",
		Metadata: DocMetadata{Status: DocActive, Version: CurrentSchemaVersion},
		Hierarchy: []*Node{
			{
				ID: "phase-1", Type: TypePhase, Title: "Phase one", Status: StatusPending,
				Metadata: Metadata{},
				Children: []*Node{
					{ID: "task-1-1", Type: TypeTask, Title: "Do the thing", Status: StatusPending, Metadata: Metadata{}},
				},
			},
		},
	}
}

func TestValidateStructuralCatchesMissingSpecID(t *testing.T) {
	doc := validDoc()
	doc.SpecID = ""
	idx := BuildIndex(doc)
	issues := ValidateStructural(idx)
	if !hasIssueCode(issues, "structural.missing_spec_id") {
		t.Fatalf("expected structural.missing_spec_id, got %+v", issues)
	}
}

func TestValidateStructuralCatchesInvalidDocStatus(t *testing.T) {
	doc := validDoc()
	doc.Metadata.Status = "nonsense"
	idx := BuildIndex(doc)
	if !hasIssueCode(ValidateStructural(idx), "structural.invalid_doc_status") {
		t.Fatal("expected structural.invalid_doc_status")
	}
}

func TestValidateStructuralCatchesFutureSchemaVersion(t *testing.T) {
	doc := validDoc()
	doc.Metadata.Version = CurrentSchemaVersion + 1
	idx := BuildIndex(doc)
	if !hasIssueCode(ValidateStructural(idx), "structural.unsupported_version") {
		t.Fatal("expected structural.unsupported_version for a version above current")
	}
}

func TestValidateStructuralCatchesMissingTitle(t *testing.T) {
	doc := validDoc()
	doc.Hierarchy[0].Children[0].Title = ""
	idx := BuildIndex(doc)
	if !hasIssueCode(ValidateStructural(idx), "structural.missing_title") {
		t.Fatal("expected structural.missing_title")
	}
}

func TestValidateHierarchyCatchesDuplicateID(t *testing.T) {
	doc := validDoc()
	doc.Hierarchy[0].Children = append(doc.Hierarchy[0].Children,
		&Node{ID: "task-1-1", Type: TypeTask, Title: "Duplicate", Status: StatusPending, Metadata: Metadata{}})
	idx := BuildIndex(doc)
	if !hasIssueCode(ValidateHierarchy(idx), "hierarchy.duplicate_id") {
		t.Fatal("expected hierarchy.duplicate_id")
	}
}

func TestValidateHierarchyCatchesBadIDShape(t *testing.T) {
	doc := validDoc()
	doc.Hierarchy[0].Children[0].ID = "not-a-valid-id"
	idx := BuildIndex(doc)
	if !hasIssueCode(ValidateHierarchy(idx), "hierarchy.bad_id_shape") {
		t.Fatal("expected hierarchy.bad_id_shape")
	}
}

func TestValidateHierarchyCatchesOrphanDependency(t *testing.T) {
	doc := validDoc()
	doc.Hierarchy[0].Children[0].Dependencies.BlockedBy = []string{"task-9-9"}
	idx := BuildIndex(doc)
	if !hasIssueCode(ValidateHierarchy(idx), "hierarchy.orphan_dependency") {
		t.Fatal("expected hierarchy.orphan_dependency")
	}
}

func TestValidateHierarchyCatchesCycle(t *testing.T) {
	doc := validDoc()
	doc.Hierarchy[0].Children = append(doc.Hierarchy[0].Children,
		&Node{ID: "task-1-2", Type: TypeTask, Title: "Second", Status: StatusPending, Metadata: Metadata{}})
	doc.Hierarchy[0].Children[0].Dependencies.BlockedBy = []string{"task-1-2"}
	doc.Hierarchy[0].Children[1].Dependencies.BlockedBy = []string{"task-1-1"}
	idx := BuildIndex(doc)
	if !hasIssueCode(ValidateHierarchy(idx), "hierarchy.cycle") {
		t.Fatal("expected hierarchy.cycle")
	}
}

func TestValidateHierarchyCatchesBadVerifyParent(t *testing.T) {
	doc := validDoc()
	group := &Node{ID: "group-1-1", Type: TypeGroup, Title: "Group", Status: StatusPending, Metadata: Metadata{}}
	verify := &Node{ID: "verify-1-1", Type: TypeVerify, Title: "Check it", Status: StatusPending, Metadata: Metadata{}}
	group.Children = []*Node{verify}
	doc.Hierarchy[0].Children = append(doc.Hierarchy[0].Children, group)
	idx := BuildIndex(doc)
	if !hasIssueCode(ValidateHierarchy(idx), "hierarchy.bad_verify_parent") {
		t.Fatal("expected hierarchy.bad_verify_parent for a verify node under a group")
	}
}

func TestValidateHierarchyCatchesInterleavedVerify(t *testing.T) {
	doc := validDoc()
	task := doc.Hierarchy[0].Children[0]
	task.Children = []*Node{
		{ID: "verify-1-1-1", Type: TypeVerify, Title: "Check", Status: StatusPending, Metadata: Metadata{}},
		{ID: "task-1-1-2", Type: TypeTask, Title: "Trailing task", Status: StatusPending, Metadata: Metadata{}},
	}
	idx := BuildIndex(doc)
	if !hasIssueCode(ValidateHierarchy(idx), "hierarchy.interleaved_verify") {
		t.Fatal("expected hierarchy.interleaved_verify")
	}
}

func TestValidateCountsCatchesMismatch(t *testing.T) {
	doc := validDoc()
	doc.Hierarchy[0].Children[0].Status = StatusCompleted
	doc.Hierarchy[0].Counts = Counts{Total: 1, Pending: 1, Percent: 0}
	idx := BuildIndex(doc)
	if !hasIssueCode(ValidateCounts(idx), "counts.mismatch") {
		t.Fatal("expected counts.mismatch when stored counts are stale")
	}
}

func TestValidateMetadataCatchesMissingVerificationResult(t *testing.T) {
	doc := validDoc()
	verify := &Node{ID: "verify-1-1", Type: TypeVerify, Title: "Check", Status: StatusCompleted, Metadata: Metadata{}}
	doc.Hierarchy[0].Children = append(doc.Hierarchy[0].Children, verify)
	idx := BuildIndex(doc)
	if !hasIssueCode(ValidateMetadata(idx), "metadata.missing_verification_result") {
		t.Fatal("expected metadata.missing_verification_result")
	}
}

func TestValidateMetadataCatchesNonmonotonicTimestamps(t *testing.T) {
	doc := validDoc()
	task := doc.Hierarchy[0].Children[0]
	task.Status = StatusCompleted
	task.Metadata.SetStartedAt(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	task.Metadata.SetCompletedAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	idx := BuildIndex(doc)
	if !hasIssueCode(ValidateMetadata(idx), "metadata.nonmonotonic_timestamps") {
		t.Fatal("expected metadata.nonmonotonic_timestamps")
	}
}

func TestValidateMetadataUnrecognizedKeyIsInfoNotError(t *testing.T) {
	doc := validDoc()
	doc.Hierarchy[0].Children[0].Metadata["totally_made_up"] = true
	idx := BuildIndex(doc)
	issues := ValidateMetadata(idx)
	var found *Issue
	for i := range issues {
		if issues[i].Code == "metadata.unrecognized_key" {
			found = &issues[i]
		}
	}
	if found == nil {
		t.Fatal("expected metadata.unrecognized_key")
	}
	if found.Severity != SeverityInfo {
		t.Fatalf("unrecognized metadata key severity = %s, want info", found.Severity)
	}
}

func TestValidateOnAValidDocumentHasNoErrors(t *testing.T) {
	doc := validDoc()
	RecomputeAll(BuildIndex(doc))
	idx := BuildIndex(doc)
	issues := Validate(idx)
	if HasErrors(issues) {
		t.Fatalf("expected no error-severity issues on a valid document, got %+v", issues)
	}
}

func hasIssueCode(issues []Issue, code string) bool {
	for _, i := range issues {
		if i.Code == code {
			return true
		}
	}
	return false
}
