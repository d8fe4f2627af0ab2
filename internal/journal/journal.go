// Package journal implements the append-only event log and verification
// recording rules of component C6 (SPEC_FULL.md §4.6). Unlike the
// teacher's interactions.jsonl, entries live inline in the in-memory
// Document (§3), so Append mutates idx.Doc.Journal directly rather than
// writing a separate file; persistence is C1's job.
package journal

import (
	"time"

	"github.com/speckit/sdd/internal/spec"
)

// Append adds entry to the document journal, enforcing strictly
// increasing timestamps: unless now is later than the last entry plus
// 1ms, the effective timestamp becomes last+1ms.
func Append(idx *spec.Index, entry spec.JournalEntry, now time.Time) spec.JournalEntry {
	entry.Timestamp = nextTimestamp(idx, now)
	idx.Doc.Journal = append(idx.Doc.Journal, entry)
	return entry
}

func nextTimestamp(idx *spec.Index, now time.Time) time.Time {
	if len(idx.Doc.Journal) == 0 {
		return now
	}
	last := idx.Doc.Journal[len(idx.Doc.Journal)-1].Timestamp
	floor := last.Add(time.Millisecond)
	if now.After(floor) {
		return now
	}
	return floor
}

// RetryState tracks the in-memory retry counter for one verify node
// across re-runs within a single caller-driven retry loop (§4.6: "only
// persist terminal outcome"). It is never serialized.
type RetryState struct {
	Remaining int
}

// NewRetryState seeds a retry counter from a verify node's on_failure
// policy.
func NewRetryState(n *spec.Node) *RetryState {
	of, _ := n.Metadata.OnFailure()
	return &RetryState{Remaining: of.MaxRetries}
}

// Outcome reports what RecordVerification decided for the caller: a
// terminal outcome to persist now, or a request to retry before the
// caller persists anything.
type Outcome struct {
	Terminal        bool
	ShouldRetry     bool
	ResultingStatus spec.Status
	AutoCompleted   bool
}

// RecordVerification applies one verification result to verifyID per
// §4.6's recording rules. On PASSED the verify node completes. On FAILED
// with a positive retry budget remaining, it decrements rs and reports
// ShouldRetry without mutating the node — the caller (C7) re-runs the
// check and calls RecordVerification again. Once the budget is
// exhausted, or immediately for a FAILED result with no retry policy, the
// result is terminal: metadata.verification_result is set and the node
// transitions per on_failure.revert_status (default blocked).
func RecordVerification(idx *spec.Index, verifyID string, result spec.VerificationResult, rs *RetryState, now time.Time) Outcome {
	n := idx.Node(verifyID)
	if n == nil {
		return Outcome{}
	}

	if result.Status == spec.VerificationFailed && rs != nil && rs.Remaining > 0 {
		rs.Remaining--
		return Outcome{ShouldRetry: true}
	}

	if n.Metadata == nil {
		n.Metadata = spec.Metadata{}
	}
	n.Metadata.SetVerificationResult(result)

	policy, _ := n.Metadata.OnFailure()
	var out Outcome
	out.Terminal = true
	switch result.Status {
	case spec.VerificationPassed:
		n.Status = spec.StatusCompleted
		out.ResultingStatus = spec.StatusCompleted
	case spec.VerificationFailed:
		revert := policy.RevertStatus
		if revert == "" {
			revert = spec.StatusBlocked
		}
		n.Status = revert
		out.ResultingStatus = revert
	default:
		out.ResultingStatus = n.Status
	}

	if parent := n.Parent; parent != nil && result.Status == spec.VerificationPassed {
		if lastPendingChildCompleted(parent) {
			parent.Status = spec.StatusCompleted
			RecordAutoCompletion(idx, parent.ID, "parent "+parent.ID+" auto-completed after final verify "+verifyID+" passed", now)
			out.AutoCompleted = true
		}
	}

	return out
}

// RecordAutoCompletion appends the system-authored journal entry for a
// node whose status derived to completed as a side effect of one of its
// children completing (§4.3 point 2, §4.6). Shared by RecordVerification's
// single-level parent check and the transactor's multi-level ancestor
// walk after complete_task ops, so both paths produce the same entry
// shape consumed by C6.
func RecordAutoCompletion(idx *spec.Index, ancestorID, content string, now time.Time) spec.JournalEntry {
	return Append(idx, spec.JournalEntry{
		EntryType: spec.EntrySystem,
		Title:     "AutoCompletion",
		Content:   content,
		TaskID:    ancestorID,
	}, now)
}

// lastPendingChildCompleted reports whether parent has no remaining
// non-completed children (i.e. the just-updated child was its last
// pending one).
func lastPendingChildCompleted(parent *spec.Node) bool {
	for _, c := range parent.Children {
		if c.Status != spec.StatusCompleted {
			return false
		}
	}
	return len(parent.Children) > 0
}

// MentionsTask reports whether any journal entry appended during a
// transaction names taskID, used by the needs_journaling recompute
// (I10, §4.6) to decide whether a status change still needs a human
// entry.
func MentionsTask(entries []spec.JournalEntry, taskID string) bool {
	for _, e := range entries {
		if e.TaskID == taskID {
			return true
		}
	}
	return false
}
