package spec

import "fmt"

// Severity classifies a validation Issue (§4.2).
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Issue is one structural or semantic finding from a validator pass.
type Issue struct {
	Severity    Severity `json:"severity"`
	Code        string   `json:"code"`
	Location    string   `json:"location"`
	Message     string   `json:"message"`
	AutoFixable bool     `json:"auto_fixable"`
}

// HasErrors reports whether any issue in the slice is error-severity.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate runs every validator category (structural, hierarchy, counts,
// metadata) and returns their combined findings. This is the single
// entry point C7 calls after every mutation batch (§4.7 step 3) and that
// the `validate` CLI command exposes directly.
func Validate(idx *Index) []Issue {
	var issues []Issue
	issues = append(issues, ValidateStructural(idx)...)
	issues = append(issues, ValidateHierarchy(idx)...)
	issues = append(issues, ValidateCounts(idx)...)
	issues = append(issues, ValidateMetadata(idx)...)
	return issues
}

// ValidateStructural checks schema shape: enum membership and required
// fields, independent of cross-node relationships.
func ValidateStructural(idx *Index) []Issue {
	var issues []Issue
	if idx.Doc.SpecID == "" {
		issues = append(issues, Issue{Severity: SeverityError, Code: "structural.missing_spec_id",
			Location: "document", Message: "spec_id is required"})
	}
	if !idx.Doc.Metadata.Status.Valid() {
		issues = append(issues, Issue{Severity: SeverityError, Code: "structural.invalid_doc_status",
			Location: "document", Message: fmt.Sprintf("metadata.status %q is not a recognized value", idx.Doc.Metadata.Status)})
	}
	if idx.Doc.Metadata.Version > CurrentSchemaVersion {
		issues = append(issues, Issue{Severity: SeverityError, Code: "structural.unsupported_version",
			Location: "document", Message: fmt.Sprintf("metadata.version %d exceeds the max supported version %d", idx.Doc.Metadata.Version, CurrentSchemaVersion)})
	}
	if idx.Doc.Metadata.Version != 0 && idx.Doc.Metadata.Version < MinSupportedSchemaVersion {
		issues = append(issues, Issue{Severity: SeverityError, Code: "structural.unsupported_version",
			Location: "document", Message: fmt.Sprintf("metadata.version %d is below the min supported version %d", idx.Doc.Metadata.Version, MinSupportedSchemaVersion)})
	}

	for _, n := range idx.All() {
		if n.ID == "" {
			issues = append(issues, Issue{Severity: SeverityError, Code: "structural.missing_id",
				Location: "?", Message: "node has no id"})
			continue
		}
		if !n.Type.Valid() {
			issues = append(issues, Issue{Severity: SeverityError, Code: "structural.invalid_type",
				Location: n.ID, Message: fmt.Sprintf("node %s has invalid type %q", n.ID, n.Type)})
		}
		if !n.Status.Valid() {
			issues = append(issues, Issue{Severity: SeverityError, Code: "structural.invalid_status",
				Location: n.ID, Message: fmt.Sprintf("node %s has invalid status %q", n.ID, n.Status)})
		}
		if n.Title == "" {
			issues = append(issues, Issue{Severity: SeverityError, Code: "structural.missing_title",
				Location: n.ID, Message: fmt.Sprintf("node %s has no title", n.ID)})
		}
	}
	return issues
}

// ValidateHierarchy enforces I1 (id uniqueness+shape), I2 (no orphan
// dependency refs), I3 (DAG), plus: verify nodes only attach under
// task/phase parents, max depth, and no verify/task child interleaving
// outside a dedicated tail segment.
func ValidateHierarchy(idx *Index) []Issue {
	var issues []Issue

	seen := map[string]bool{}
	for _, n := range idx.All() {
		if n.ID == "" {
			continue
		}
		if seen[n.ID] {
			issues = append(issues, Issue{Severity: SeverityError, Code: "hierarchy.duplicate_id",
				Location: n.ID, Message: fmt.Sprintf("node id %s is used more than once", n.ID)})
		}
		seen[n.ID] = true
		if n.Type.Valid() && !ValidIDShape(n.Type, n.ID) {
			issues = append(issues, Issue{Severity: SeverityError, Code: "hierarchy.bad_id_shape",
				Location: n.ID, Message: fmt.Sprintf("id %s does not match the expected shape for type %s", n.ID, n.Type)})
		}
		if n.Depth() > MaxDepth {
			issues = append(issues, Issue{Severity: SeverityError, Code: "hierarchy.too_deep",
				Location: n.ID, Message: fmt.Sprintf("node %s is at depth %d, exceeding max depth %d", n.ID, n.Depth(), MaxDepth)})
		}
		if n.Type == TypeVerify && n.Parent != nil {
			if n.Parent.Type != TypeTask && n.Parent.Type != TypePhase {
				issues = append(issues, Issue{Severity: SeverityError, Code: "hierarchy.bad_verify_parent",
					Location: n.ID, Message: fmt.Sprintf("verify node %s attaches to a %s, must attach to a task or phase", n.ID, n.Parent.Type)})
			}
		}
		if n.Type == TypeTask {
			if iss := checkTaskTailSegment(n); iss != nil {
				issues = append(issues, *iss)
			}
		}
	}

	// I2: every dependency reference must resolve to a node in the document.
	for _, n := range idx.All() {
		for _, ref := range n.Dependencies.BlockedBy {
			if !idx.Exists(ref) {
				issues = append(issues, Issue{Severity: SeverityError, Code: "hierarchy.orphan_dependency",
					Location: n.ID, Message: fmt.Sprintf("node %s blocked_by references missing node %s", n.ID, ref)})
			}
		}
		for _, ref := range n.Dependencies.SoftDepends {
			if !idx.Exists(ref) {
				issues = append(issues, Issue{Severity: SeverityError, Code: "hierarchy.orphan_dependency",
					Location: n.ID, Message: fmt.Sprintf("node %s soft_depends references missing node %s", n.ID, ref)})
			}
		}
	}

	// I3: the hard-dependency graph must be a DAG.
	hard := HardAdjacency(idx)
	for _, cycle := range DetectCycles(hard) {
		issues = append(issues, Issue{Severity: SeverityError, Code: "hierarchy.cycle",
			Location: cycle[0], Message: fmt.Sprintf("cycle detected: %v", cycle)})
	}

	return issues
}

// checkTaskTailSegment enforces "task nodes have no verify children
// interleaved with task children except in a dedicated tail segment":
// once a verify child appears, every subsequent sibling must also be a
// verify.
func checkTaskTailSegment(n *Node) *Issue {
	sawVerify := false
	for _, c := range n.Children {
		if c.Type == TypeVerify {
			sawVerify = true
			continue
		}
		if sawVerify {
			iss := Issue{Severity: SeverityError, Code: "hierarchy.interleaved_verify",
				Location: n.ID, Message: fmt.Sprintf("task %s interleaves task and verify children outside a trailing verify segment", n.ID)}
			return &iss
		}
	}
	return nil
}

// HardAdjacency builds the hard-dependency adjacency map (node -> nodes
// it blocked_by) used by both the hierarchy validator (I3) and C4's
// cycle/readiness queries.
func HardAdjacency(idx *Index) map[string][]string {
	adj := make(map[string][]string, len(idx.order))
	for _, n := range idx.All() {
		adj[n.ID] = append([]string(nil), n.Dependencies.BlockedBy...)
	}
	return adj
}

// ValidateCounts recomputes the bottom-up aggregation (I7) and the
// status derivation (I4/I5) and reports mismatches against the stored
// values. Both checks share one traversal because both are produced by
// the same bottom-up pass; both are auto-fixable by counts.recalculate /
// status.derive respectively.
func ValidateCounts(idx *Index) []Issue {
	var issues []Issue

	shadow := idx.Doc.Clone()
	shadowIdx := BuildIndex(shadow)
	RecomputeAll(shadowIdx)

	for _, n := range idx.All() {
		want := shadowIdx.Node(n.ID)
		if want == nil {
			continue
		}
		if n.Counts != want.Counts {
			issues = append(issues, Issue{Severity: SeverityWarning, Code: "counts.mismatch",
				Location: n.ID, Message: fmt.Sprintf("stored counts %+v do not match recomputed counts %+v", n.Counts, want.Counts),
				AutoFixable: true})
		}
		if !n.IsLeaf() && n.Status != StatusBlocked && n.Status != want.Status {
			issues = append(issues, Issue{Severity: SeverityWarning, Code: "counts.status_mismatch",
				Location: n.ID, Message: fmt.Sprintf("stored status %s does not match derived status %s", n.Status, want.Status),
				AutoFixable: true})
		}
	}
	if idx.Doc.Counts != shadow.Counts {
		issues = append(issues, Issue{Severity: SeverityWarning, Code: "counts.mismatch",
			Location: "document", Message: fmt.Sprintf("stored document counts %+v do not match recomputed counts %+v", idx.Doc.Counts, shadow.Counts),
			AutoFixable: true})
	}
	return issues
}

// ValidateMetadata enforces I8 (verification_result presence), I9
// (started_at/completed_at set and monotonic), and I10
// (needs_journaling correctness). Unknown metadata keys are info, never
// errors, per §4.2.
func ValidateMetadata(idx *Index) []Issue {
	var issues []Issue

	lastJournalForTask := lastJournalByTask(idx.Doc.Journal)

	for _, n := range idx.All() {
		if n.Metadata == nil {
			issues = append(issues, Issue{Severity: SeverityWarning, Code: "metadata.missing",
				Location: n.ID, Message: fmt.Sprintf("node %s has no metadata map", n.ID), AutoFixable: true})
			continue
		}

		if n.Type == TypeVerify {
			_, hasResult := n.Metadata.VerificationResult()
			if n.Status != StatusPending && !hasResult {
				issues = append(issues, Issue{Severity: SeverityError, Code: "metadata.missing_verification_result",
					Location: n.ID, Message: fmt.Sprintf("verify node %s is %s but has no verification_result", n.ID, n.Status)})
			}
			if n.Status == StatusPending && hasResult {
				issues = append(issues, Issue{Severity: SeverityWarning, Code: "metadata.unexpected_verification_result",
					Location: n.ID, Message: fmt.Sprintf("verify node %s is pending but has a verification_result", n.ID)})
			}
		}

		if n.IsLeaf() {
			started, hasStarted := n.Metadata.StartedAt()
			completed, hasCompleted := n.Metadata.CompletedAt()
			if (n.Status == StatusInProgress || n.Status == StatusCompleted) && !hasStarted {
				issues = append(issues, Issue{Severity: SeverityWarning, Code: "metadata.missing_started_at",
					Location: n.ID, Message: fmt.Sprintf("node %s is %s but has no started_at", n.ID, n.Status)})
			}
			if n.Status == StatusCompleted && !hasCompleted {
				issues = append(issues, Issue{Severity: SeverityWarning, Code: "metadata.missing_completed_at",
					Location: n.ID, Message: fmt.Sprintf("node %s is completed but has no completed_at", n.ID)})
			}
			if hasStarted && hasCompleted && completed.Before(started) {
				issues = append(issues, Issue{Severity: SeverityError, Code: "metadata.nonmonotonic_timestamps",
					Location: n.ID, Message: fmt.Sprintf("node %s completed_at precedes started_at", n.ID)})
			}
		}

		wantJournaling := wantsJournaling(n, lastJournalForTask)
		if n.Metadata.NeedsJournaling() != wantJournaling {
			issues = append(issues, Issue{Severity: SeverityWarning, Code: "metadata.needs_journaling_mismatch",
				Location: n.ID, Message: fmt.Sprintf("node %s needs_journaling=%t, expected %t", n.ID, n.Metadata.NeedsJournaling(), wantJournaling),
				AutoFixable: true})
		}

		for k := range n.Metadata {
			if !recognizedMetadataKeys[k] {
				issues = append(issues, Issue{Severity: SeverityInfo, Code: "metadata.unrecognized_key",
					Location: n.ID, Message: fmt.Sprintf("node %s has unrecognized metadata key %q", n.ID, k)})
			}
		}
	}
	return issues
}

// lastJournalByTask indexes a journal slice to each task's most recent
// entry, used by both ValidateMetadata's I10 check and AutoFix's repair
// of needs_journaling.
func lastJournalByTask(journal []JournalEntry) map[string]JournalEntry {
	last := map[string]JournalEntry{}
	for _, e := range journal {
		if e.TaskID == "" {
			continue
		}
		if prev, ok := last[e.TaskID]; !ok || e.Timestamp.After(prev.Timestamp) {
			last[e.TaskID] = e
		}
	}
	return last
}

// wantsJournaling computes the I10-correct value of needs_journaling for
// n given the task's most recent journal entry: true whenever n has left
// pending with no journal note at all, or its started_at/completed_at
// moved after the last recorded entry.
func wantsJournaling(n *Node, lastJournalForTask map[string]JournalEntry) bool {
	if n.Status == StatusPending {
		return false
	}
	last, hasEntry := lastJournalForTask[n.ID]
	if !hasEntry {
		return true
	}
	if completed, ok := n.Metadata.CompletedAt(); ok && completed.After(last.Timestamp) {
		return true
	}
	if started, ok := n.Metadata.StartedAt(); ok && started.After(last.Timestamp) {
		return true
	}
	return false
}

var recognizedMetadataKeys = map[string]bool{
	"file_path": true, "task_category": true, "estimated_hours": true, "actual_hours": true,
	"skill": true, "command": true, "on_failure": true, "verification_result": true,
	"needs_journaling": true, "commits": true, "started_at": true, "completed_at": true,
}
