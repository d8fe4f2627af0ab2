package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/speckit/sdd/internal/graph"
	"github.com/speckit/sdd/internal/ports"
	"github.com/speckit/sdd/internal/query"
	"github.com/speckit/sdd/internal/scheduler"
	"github.com/speckit/sdd/internal/spec"
	"github.com/speckit/sdd/internal/store"
)

// loadIndex locates specID, loads it, and builds its Index. Used by
// every read-only discovery command.
func loadIndex(specID string) (*spec.Index, error) {
	loc, err := st.Locate(specID)
	if err != nil {
		return nil, err
	}
	doc, err := store.Load(loc.Path)
	if err != nil {
		return nil, err
	}
	return spec.BuildIndex(doc), nil
}

var nextCmd = &cobra.Command{
	Use:     "next <spec-id>",
	GroupID: "discovery",
	Short:   "Report the next task the scheduler would hand out",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := loadIndex(args[0])
		if err != nil {
			return err
		}
		g := graph.New(idx)

		phase, _ := cmd.Flags().GetString("phase")
		category, _ := cmd.Flags().GetString("category")
		skill, _ := cmd.Flags().GetString("skill")
		filters := scheduler.Filters{PhaseID: phase, TaskCategory: spec.TaskCategory(category), Skill: skill}

		result := scheduler.Next(idx, g, filters)
		if jsonOutput {
			outputJSON(result)
			return nil
		}

		switch result.Outcome {
		case scheduler.OutcomeSpecComplete:
			printEvent(ports.ResultLine{Text: "spec complete: every leaf is completed"})
		case scheduler.OutcomeAllBlocked:
			printEvent(ports.Warning{Text: fmt.Sprintf("no ready task: %d blocked, %d in progress", result.CountBlocked, result.CountInProgress)})
		case scheduler.OutcomeNothingMatches:
			printEvent(ports.Warning{Text: "no ready task matches the given filters"})
		case scheduler.OutcomeNext:
			n := idx.Node(result.TaskID)
			printEvent(ports.ResultLine{Text: fmt.Sprintf("%s: %s (%s)", n.ID, n.Title, result.Rationale)})
		}
		return nil
	},
}

var progressCmd = &cobra.Command{
	Use:     "progress <spec-id>",
	GroupID: "discovery",
	Short:   "Summarize completion counts for a spec",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := loadIndex(args[0])
		if err != nil {
			return err
		}
		summary := query.ProgressSummaryOf(idx)
		if jsonOutput {
			outputJSON(summary)
			return nil
		}
		printEvent(ports.ResultLine{Text: fmt.Sprintf("%d%% complete (%d/%d), current phase: %s",
			summary.Percent, summary.ByStatus[string(spec.StatusCompleted)], summary.Total, summary.CurrentPhase)})
		return nil
	},
}

var phasesCmd = &cobra.Command{
	Use:     "phases <spec-id>",
	GroupID: "discovery",
	Short:   "List phases and their leaf-status counts",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := loadIndex(args[0])
		if err != nil {
			return err
		}
		phases := query.ListPhases(idx)
		if jsonOutput {
			outputJSON(phases)
			return nil
		}
		var rows [][]string
		for _, p := range phases {
			rows = append(rows, []string{p.ID, p.Title,
				fmt.Sprintf("%d", p.Counts.Completed), fmt.Sprintf("%d", p.Counts.Total)})
		}
		printEvent(ports.Table{Headers: []string{"PHASE", "TITLE", "DONE", "TOTAL"}, Rows: rows})
		return nil
	},
}

var tasksCmd = &cobra.Command{
	Use:     "tasks <spec-id>",
	GroupID: "discovery",
	Short:   "List tasks, optionally filtered by status/type/parent/skill",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := loadIndex(args[0])
		if err != nil {
			return err
		}
		status, _ := cmd.Flags().GetString("status")
		typ, _ := cmd.Flags().GetString("type")
		parent, _ := cmd.Flags().GetString("parent")
		skill, _ := cmd.Flags().GetString("skill")
		nodes := query.QueryTasks(idx, query.TaskFilter{
			Status: spec.Status(status), Type: spec.NodeType(typ), Parent: parent, Skill: skill,
		})
		if jsonOutput {
			outputJSON(nodes)
			return nil
		}
		var rows [][]string
		for _, n := range nodes {
			rows = append(rows, []string{n.ID, string(n.Type), string(n.Status), n.Title})
		}
		printEvent(ports.Table{Headers: []string{"ID", "TYPE", "STATUS", "TITLE"}, Rows: rows})
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:     "show <spec-id> <node-id>",
	GroupID: "discovery",
	Short:   "Show one task's detail: blockers, dependents, verification, journal mentions",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := loadIndex(args[0])
		if err != nil {
			return err
		}
		g := graph.New(idx)
		info, err := query.TaskInfoOf(idx, g, args[1])
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(info)
			return nil
		}
		printEvent(ports.ResultLine{Text: fmt.Sprintf("%s: %s [%s]", info.Task.ID, info.Task.Title, info.Task.Status)})
		if len(info.Blockers) > 0 {
			var rows [][]string
			for _, b := range info.Blockers {
				rows = append(rows, []string{b.NodeID, b.Reason})
			}
			printEvent(ports.Table{Headers: []string{"BLOCKER", "REASON"}, Rows: rows})
		}
		if len(info.Dependents) > 0 {
			printEvent(ports.ResultLine{Text: "dependents: " + fmt.Sprint(info.Dependents)})
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:     "status <spec-id>",
	GroupID: "discovery",
	Short:   "Print a full status report: progress, phases, and open blockers",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := loadIndex(args[0])
		if err != nil {
			return err
		}
		report := query.StatusReportOf(idx)
		if jsonOutput {
			outputJSON(report)
			return nil
		}
		format, _ := cmd.Flags().GetString("format")
		if format == "markdown" {
			printEvent(ports.Markdown{Text: statusReportMarkdown(report)})
			return nil
		}
		printEvent(ports.ResultLine{Text: fmt.Sprintf("%s (%s): %d%% complete", report.SpecID, report.Status, report.Progress.Percent)})
		if len(report.Blockers) > 0 {
			var rows [][]string
			for _, b := range report.Blockers {
				rows = append(rows, []string{b.TaskID, b.Type, b.Reason})
			}
			printEvent(ports.Table{Headers: []string{"TASK", "TYPE", "REASON"}, Rows: rows})
		}
		return nil
	},
}

// statusReportMarkdown renders a StatusReport as a markdown document for
// the rich terminal's glamour pipeline (or for piping to a file/chat
// tool with --no-color, where it prints as plain markdown source).
func statusReportMarkdown(report query.StatusReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s — %s\n\n", report.SpecID, report.Title)
	fmt.Fprintf(&b, "**Status:** %s  \n**Progress:** %d%%\n\n", report.Status, report.Progress.Percent)

	fmt.Fprintln(&b, "## Phases")
	fmt.Fprintln(&b, "| Phase | Title | Completed | Total |")
	fmt.Fprintln(&b, "|---|---|---|---|")
	for _, p := range report.Phases {
		fmt.Fprintf(&b, "| %s | %s | %d | %d |\n", p.ID, p.Title, p.Counts.Completed, p.Counts.Total)
	}

	if len(report.Blockers) > 0 {
		fmt.Fprintln(&b, "\n## Blockers")
		for _, blk := range report.Blockers {
			fmt.Fprintf(&b, "- **%s** (%s): %s\n", blk.TaskID, blk.Type, blk.Reason)
		}
	}
	return b.String()
}

var blockersCmd = &cobra.Command{
	Use:     "blockers <spec-id>",
	GroupID: "discovery",
	Short:   "List every currently blocked task",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := loadIndex(args[0])
		if err != nil {
			return err
		}
		blockers := query.ListBlockers(idx)
		if jsonOutput {
			outputJSON(blockers)
			return nil
		}
		var rows [][]string
		for _, b := range blockers {
			rows = append(rows, []string{b.TaskID, b.Type, b.Reason, b.Ticket})
		}
		printEvent(ports.Table{Headers: []string{"TASK", "TYPE", "REASON", "TICKET"}, Rows: rows})
		return nil
	},
}

// AnalyzeDepsReport is analyze-deps' JSON shape: dangling dependency
// references plus hard-dependency fan-out bottlenecks (§4.4).
type AnalyzeDepsReport struct {
	Orphans     []graph.Orphan     `json:"orphans"`
	Bottlenecks []graph.Bottleneck `json:"bottlenecks"`
}

var analyzeDepsCmd = &cobra.Command{
	Use:     "analyze-deps <spec-id>",
	GroupID: "discovery",
	Short:   "Report dangling dependency references and high fan-out bottlenecks",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := loadIndex(args[0])
		if err != nil {
			return err
		}
		threshold, _ := cmd.Flags().GetInt("bottleneck-threshold")
		g := graph.New(idx)
		report := AnalyzeDepsReport{Orphans: g.Orphans(), Bottlenecks: g.Bottlenecks(threshold)}
		if jsonOutput {
			outputJSON(report)
			return nil
		}
		if len(report.Orphans) == 0 && len(report.Bottlenecks) == 0 {
			printEvent(ports.ResultLine{Text: "no orphaned references or bottlenecks found"})
			return nil
		}
		if len(report.Orphans) > 0 {
			var rows [][]string
			for _, o := range report.Orphans {
				rows = append(rows, []string{o.NodeID, o.MissingRef})
			}
			printEvent(ports.Table{Headers: []string{"NODE", "MISSING_REF"}, Rows: rows})
		}
		if len(report.Bottlenecks) > 0 {
			var rows [][]string
			for _, b := range report.Bottlenecks {
				rows = append(rows, []string{b.NodeID, fmt.Sprintf("%d", b.Fanout)})
			}
			printEvent(ports.Table{Headers: []string{"NODE", "FANOUT"}, Rows: rows})
		}
		return nil
	},
}

func init() {
	analyzeDepsCmd.Flags().Int("bottleneck-threshold", 2, "report nodes with hard-dependency fan-out above this count")

	nextCmd.Flags().String("phase", "", "restrict to one phase id")
	nextCmd.Flags().String("category", "", "restrict to one task_category")
	nextCmd.Flags().String("skill", "", "restrict to tasks naming this skill")

	tasksCmd.Flags().String("status", "", "filter by status")
	tasksCmd.Flags().String("type", "", "filter by node type")
	tasksCmd.Flags().String("parent", "", "filter by parent node id")
	tasksCmd.Flags().String("skill", "", "filter by metadata.skill")

	statusCmd.Flags().String("format", "text", "text|markdown")

	rootCmd.AddCommand(nextCmd, progressCmd, phasesCmd, tasksCmd, showCmd, statusCmd, blockersCmd, analyzeDepsCmd)
}
