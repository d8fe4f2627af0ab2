// Package query implements the read-only computed views over a loaded
// document (component C9, SPEC_FULL.md §4.9). Every function here is
// pure: no mutation, no locking, no I/O — callers load via store and
// pass the result straight in.
package query

import (
	"sort"
	"time"

	"github.com/speckit/sdd/internal/errs"
	"github.com/speckit/sdd/internal/graph"
	"github.com/speckit/sdd/internal/spec"
)

// ProgressSummary is progress_summary's return shape (§4.9).
type ProgressSummary struct {
	Total        int            `json:"total"`
	ByStatus     map[string]int `json:"by_status"`
	Percent      int            `json:"percent"`
	CurrentPhase string         `json:"current_phase,omitempty"`
	LastUpdated  time.Time      `json:"last_updated"`
}

// ProgressSummaryOf aggregates leaf counts by status across the whole
// document and names the first phase that is not yet fully completed.
func ProgressSummaryOf(idx *spec.Index) ProgressSummary {
	byStatus := map[string]int{
		string(spec.StatusPending):    0,
		string(spec.StatusInProgress): 0,
		string(spec.StatusCompleted):  0,
		string(spec.StatusBlocked):    0,
	}
	for _, l := range idx.Leaves() {
		byStatus[string(l.Status)]++
	}

	ps := ProgressSummary{
		Total:       idx.Doc.Counts.Total,
		ByStatus:    byStatus,
		Percent:     idx.Doc.Counts.Percent,
		LastUpdated: idx.Doc.Metadata.LastUpdated,
	}
	for _, phase := range idx.Phases() {
		if phase.Status != spec.StatusCompleted {
			ps.CurrentPhase = phase.ID
			break
		}
	}
	return ps
}

// PhaseSummary is one entry of list_phases (§4.9).
type PhaseSummary struct {
	ID     string      `json:"id"`
	Title  string      `json:"title"`
	Counts spec.Counts `json:"counts"`
}

// ListPhases returns every top-level phase with its cached counts.
func ListPhases(idx *spec.Index) []PhaseSummary {
	out := make([]PhaseSummary, 0, len(idx.Phases()))
	for _, p := range idx.Phases() {
		out = append(out, PhaseSummary{ID: p.ID, Title: p.Title, Counts: p.Counts})
	}
	return out
}

// TaskFilter narrows query_tasks (§4.9).
type TaskFilter struct {
	Status spec.Status
	Type   spec.NodeType
	Parent string
	Skill  string
}

// QueryTasks returns every node matching the given filter, in document
// order. Zero-value fields in f are wildcards.
func QueryTasks(idx *spec.Index, f TaskFilter) []*spec.Node {
	var out []*spec.Node
	for _, n := range idx.All() {
		if f.Status != "" && n.Status != f.Status {
			continue
		}
		if f.Type != "" && n.Type != f.Type {
			continue
		}
		if f.Parent != "" && (n.Parent == nil || n.Parent.ID != f.Parent) {
			continue
		}
		if f.Skill != "" && n.Metadata.Skill() != f.Skill {
			continue
		}
		out = append(out, n)
	}
	return out
}

// GetTask looks up one node by ID, or a NotFound error.
func GetTask(idx *spec.Index, id string) (*spec.Node, error) {
	n := idx.Node(id)
	if n == nil {
		return nil, errs.New(errs.KindNotFound, "task "+id+" not found")
	}
	return n, nil
}

// TaskInfo is task_info's return shape: one task plus everything that
// relates to it (§4.9).
type TaskInfo struct {
	Task                *spec.Node             `json:"task"`
	Blockers            []graph.Blocker        `json:"blockers"`
	Dependents          []string               `json:"dependents"`
	SoftDepends         []string               `json:"soft_depends"`
	VerificationResults []spec.VerificationResult `json:"verification_results,omitempty"`
	JournalEntriesFor   []spec.JournalEntry     `json:"journal_entries_for"`
}

// TaskInfoOf assembles the full picture for one task: its blockers (via
// g), the nodes that hard-depend on it, its own soft deps, any recorded
// verification outcome, and every journal entry naming it.
func TaskInfoOf(idx *spec.Index, g *graph.Graph, id string) (TaskInfo, error) {
	n, err := GetTask(idx, id)
	if err != nil {
		return TaskInfo{}, err
	}

	info := TaskInfo{
		Task:        n,
		Blockers:    g.BlockersOf(id),
		SoftDepends: n.Dependencies.SoftDepends,
	}

	for _, other := range idx.All() {
		for _, dep := range other.Dependencies.BlockedBy {
			if dep == id {
				info.Dependents = append(info.Dependents, other.ID)
			}
		}
	}
	sort.Strings(info.Dependents)

	if vr, ok := n.Metadata.VerificationResult(); ok {
		info.VerificationResults = append(info.VerificationResults, vr)
	}

	for _, e := range idx.Doc.Journal {
		if e.TaskID == id {
			info.JournalEntriesFor = append(info.JournalEntriesFor, e)
		}
	}

	return info, nil
}

// BlockerEntry is one entry of list_blockers (§4.9).
type BlockerEntry struct {
	TaskID string `json:"task_id"`
	Reason string `json:"reason"`
	Type   string `json:"type,omitempty"`
	Ticket string `json:"ticket,omitempty"`
	Since  string `json:"since,omitempty"`
}

// ListBlockers returns every node explicitly in StatusBlocked, with the
// reason/type/ticket metadata recorded by mark_blocked.
func ListBlockers(idx *spec.Index) []BlockerEntry {
	var out []BlockerEntry
	for _, n := range idx.All() {
		if n.Status != spec.StatusBlocked {
			continue
		}
		reason, _ := n.Metadata["blocked_reason"].(string)
		typ, _ := n.Metadata["blocked_type"].(string)
		ticket, _ := n.Metadata["blocked_ticket"].(string)
		since := ""
		if started, ok := n.Metadata.StartedAt(); ok {
			since = started.Format(time.RFC3339)
		}
		out = append(out, BlockerEntry{TaskID: n.ID, Reason: reason, Type: typ, Ticket: ticket, Since: since})
	}
	return out
}

// StatusReport is status_report's return shape: pretty-printable for
// text mode, and directly JSON-serializable (§4.9).
type StatusReport struct {
	SpecID   string          `json:"spec_id"`
	Title    string          `json:"title"`
	Status   spec.DocStatus  `json:"status"`
	Progress ProgressSummary `json:"progress"`
	Phases   []PhaseSummary  `json:"phases"`
	Blockers []BlockerEntry  `json:"blockers"`
}

// StatusReportOf assembles the full status report for one document.
func StatusReportOf(idx *spec.Index) StatusReport {
	return StatusReport{
		SpecID:   idx.Doc.SpecID,
		Title:    idx.Doc.Metadata.Title,
		Status:   idx.Doc.Metadata.Status,
		Progress: ProgressSummaryOf(idx),
		Phases:   ListPhases(idx),
		Blockers: ListBlockers(idx),
	}
}
