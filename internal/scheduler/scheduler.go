// Package scheduler selects the single most appropriate next actionable
// leaf under dependency, status, and verification constraints (component
// C5 of SPEC_FULL.md §4.5).
package scheduler

import (
	"sort"
	"strconv"
	"strings"

	"github.com/speckit/sdd/internal/graph"
	"github.com/speckit/sdd/internal/spec"
)

// Outcome is the sum type over the scheduler's four possible answers.
type Outcome string

const (
	OutcomeNext         Outcome = "next"
	OutcomeSpecComplete Outcome = "spec_complete"
	OutcomeAllBlocked   Outcome = "all_blocked"
	OutcomeNothingMatches Outcome = "nothing_matches"
)

// Filters narrows the candidate set (§4.5 "Inputs").
type Filters struct {
	PhaseID      string
	TaskCategory spec.TaskCategory
	Skill        string
}

func (f Filters) empty() bool {
	return f.PhaseID == "" && f.TaskCategory == "" && f.Skill == ""
}

// Result is the scheduler's deterministic answer (§4.5 "Output").
type Result struct {
	Outcome        Outcome
	TaskID         string
	Rationale      string
	CountBlocked   int
	CountInProgress int
}

// Next implements the deterministic selection procedure of §4.5.
// Pure function of (idx, g, filters): P8 scheduler determinism and P9
// scheduler readiness hold by construction (candidates are drawn only
// from graph.IsReady, and the winner is chosen by a fixed comparator).
func Next(idx *spec.Index, g *graph.Graph, filters Filters) Result {
	leaves := idx.Leaves()

	allCompleted := true
	for _, l := range leaves {
		if l.Status != spec.StatusCompleted {
			allCompleted = false
			break
		}
	}
	if allCompleted {
		return Result{Outcome: OutcomeSpecComplete}
	}

	var candidates []*spec.Node
	for _, l := range leaves {
		if l.Status != spec.StatusPending {
			continue
		}
		if !g.IsReady(l.ID) {
			continue
		}
		if l.Type == spec.TypeVerify {
			// "Exclude verify leaves unless their associated task is
			// completed" (§4.5 step 2). The associated task is the
			// verify's parent.
			if l.Parent == nil || l.Parent.Status != spec.StatusCompleted {
				continue
			}
		}
		if !matchesFilters(idx, l, filters) {
			continue
		}
		candidates = append(candidates, l)
	}

	if len(candidates) == 0 {
		if !filters.empty() {
			return Result{Outcome: OutcomeNothingMatches}
		}
		countBlocked, countInProgress := 0, 0
		for _, l := range leaves {
			switch l.Status {
			case spec.StatusBlocked:
				countBlocked++
			case spec.StatusInProgress:
				countInProgress++
			}
		}
		return Result{Outcome: OutcomeAllBlocked, CountBlocked: countBlocked, CountInProgress: countInProgress}
	}

	winner, rationale := pick(idx, candidates)
	return Result{Outcome: OutcomeNext, TaskID: winner.ID, Rationale: rationale}
}

func matchesFilters(idx *spec.Index, n *spec.Node, f Filters) bool {
	if f.PhaseID != "" {
		phase := enclosingPhase(n)
		if phase == nil || phase.ID != f.PhaseID {
			return false
		}
	}
	if f.TaskCategory != "" {
		cat, ok := n.Metadata.TaskCategory()
		if !ok || cat != f.TaskCategory {
			return false
		}
	}
	if f.Skill != "" {
		if n.Metadata.Skill() != f.Skill {
			return false
		}
	}
	return true
}

func enclosingPhase(n *spec.Node) *spec.Node {
	cur := n
	for cur != nil {
		if cur.Type == spec.TypePhase {
			return cur
		}
		cur = cur.Parent
	}
	return nil
}

// phaseNumber extracts N from a "phase-N" id; 0 if unparseable (treated
// as lowest priority, should not occur for well-formed documents).
func phaseNumber(id string) int {
	parts := strings.Split(id, "-")
	if len(parts) != 2 {
		return 0
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0
	}
	return n
}

// pick applies the four-part tie-break of §4.5 step 3 in order and
// reports which criterion actually decided the winner.
func pick(idx *spec.Index, candidates []*spec.Node) (*spec.Node, string) {
	type scored struct {
		node             *spec.Node
		phaseN           int
		hasActiveSibling bool
		resolvedSoftDeps int
	}

	scoredList := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		phase := enclosingPhase(c)
		phaseN := 0
		if phase != nil {
			phaseN = phaseNumber(phase.ID)
		}
		scoredList = append(scoredList, scored{
			node:             c,
			phaseN:           phaseN,
			hasActiveSibling: hasInProgressSibling(c),
			resolvedSoftDeps: resolvedSoftDependCount(idx, c),
		})
	}

	sort.SliceStable(scoredList, func(i, j int) bool {
		a, b := scoredList[i], scoredList[j]
		if a.phaseN != b.phaseN {
			return a.phaseN < b.phaseN
		}
		if a.hasActiveSibling != b.hasActiveSibling {
			return a.hasActiveSibling // true sorts first
		}
		if a.resolvedSoftDeps != b.resolvedSoftDeps {
			return a.resolvedSoftDeps < b.resolvedSoftDeps
		}
		return a.node.ID < b.node.ID
	})

	winner := scoredList[0]
	rationale := "lowest-phase"
	for _, s := range scoredList[1:] {
		if s.phaseN != winner.phaseN {
			break
		}
		if s.hasActiveSibling != winner.hasActiveSibling {
			rationale = "active-sibling"
			break
		}
		if s.resolvedSoftDeps != winner.resolvedSoftDeps {
			rationale = "smallest-resolved-soft-deps"
			break
		}
		rationale = "lexicographic-id"
	}
	return winner.node, rationale
}

func hasInProgressSibling(n *spec.Node) bool {
	if n.Parent == nil {
		return false
	}
	for _, sib := range n.Parent.Children {
		if sib.ID != n.ID && sib.Status == spec.StatusInProgress {
			return true
		}
	}
	return false
}

// resolvedSoftDependCount counts how many of n's soft_depends are not
// yet completed, used as a "prefer picking up continuations" signal
// (§4.5 step 3c): a smaller unresolved remainder ranks first, so we sort
// ascending on the count of *unresolved* soft deps.
func resolvedSoftDependCount(idx *spec.Index, n *spec.Node) int {
	unresolved := 0
	for _, dep := range n.Dependencies.SoftDepends {
		d := idx.Node(dep)
		if d == nil || d.Status != spec.StatusCompleted {
			unresolved++
		}
	}
	return unresolved
}
