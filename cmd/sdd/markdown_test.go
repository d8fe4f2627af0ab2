package main

import (
	"strings"
	"testing"

	"github.com/speckit/sdd/internal/query"
	"github.com/speckit/sdd/internal/spec"
)

func TestStatusReportMarkdownIncludesPhasesAndBlockers(t *testing.T) {
	report := query.StatusReport{
		SpecID: "demo-001",
		Title:  "Demo spec",
		Status: spec.DocActive,
		Progress: query.ProgressSummary{Percent: 50},
		Phases: []query.PhaseSummary{
			{ID: "phase-1", Title: "Implementation", Counts: spec.Counts{Total: 2, Completed: 1}},
		},
		Blockers: []query.BlockerEntry{
			{TaskID: "task-1-1-2", Type: "external", Reason: "waiting on design review"},
		},
	}

	md := statusReportMarkdown(report)

	for _, want := range []string{
		"# demo-001 — Demo spec",
		"phase-1",
		"Implementation",
		"| 1 | 2 |",
		"## Blockers",
		"task-1-1-2",
		"waiting on design review",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown output missing %q:\n%s", want, md)
		}
	}
}

func TestStatusReportMarkdownOmitsBlockersSectionWhenNone(t *testing.T) {
	report := query.StatusReport{SpecID: "demo-002", Title: "No blockers"}
	md := statusReportMarkdown(report)
	if strings.Contains(md, "## Blockers") {
		t.Errorf("expected no Blockers section:\n%s", md)
	}
}
