package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/speckit/sdd/internal/config"
	"github.com/speckit/sdd/internal/errs"
	"github.com/speckit/sdd/internal/ports"
	"github.com/speckit/sdd/internal/spec"
	"github.com/speckit/sdd/internal/store"
	"github.com/speckit/sdd/internal/transactor"
	"github.com/speckit/sdd/internal/util"
)

var validateCmd = &cobra.Command{
	Use:     "validate <spec-id>",
	GroupID: "modify",
	Short:   "Run every structural and semantic validator against a spec",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := loadIndex(args[0])
		if err != nil {
			return err
		}
		issues := spec.Validate(idx)
		if jsonOutput {
			outputJSON(issues)
			return nil
		}
		if len(issues) == 0 {
			printEvent(ports.ResultLine{Text: "no issues found"})
			return nil
		}
		var rows [][]string
		for _, i := range issues {
			rows = append(rows, []string{string(i.Severity), i.Code, i.Location, i.Message})
		}
		printEvent(ports.Table{Headers: []string{"SEVERITY", "CODE", "LOCATION", "MESSAGE"}, Rows: rows})
		if spec.HasErrors(issues) {
			return fmt.Errorf("validation found %d error-severity issue(s)", countErrors(issues))
		}
		return nil
	},
}

func countErrors(issues []spec.Issue) int {
	n := 0
	for _, i := range issues {
		if i.Severity == spec.SeverityError {
			n++
		}
	}
	return n
}

var reportCmd = &cobra.Command{
	Use:     "report <spec-id>",
	GroupID: "modify",
	Short:   "Render a validation report to .reports/<spec_id>-validation-report.md",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := loadIndex(args[0])
		if err != nil {
			return err
		}
		issues := spec.Validate(idx)
		path, err := st.WriteValidationReport(idx.Doc.SpecID, validationReportMarkdown(idx.Doc.SpecID, issues))
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(map[string]any{"path": path, "issues": issues})
			return nil
		}
		printEvent(ports.ResultLine{Text: fmt.Sprintf("wrote validation report to %s (%d issue(s))", path, len(issues))})
		if spec.HasErrors(issues) {
			return fmt.Errorf("validation found %d error-severity issue(s)", countErrors(issues))
		}
		return nil
	},
}

// validationReportMarkdown renders issues as the persisted counterpart
// of `validate`'s stdout table (§6.2).
func validationReportMarkdown(specID string, issues []spec.Issue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Validation report — %s\n\n", specID)
	if len(issues) == 0 {
		b.WriteString("No issues found.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "%d issue(s) found.\n\n", len(issues))
	b.WriteString("| Severity | Code | Location | Message |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, i := range issues {
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", i.Severity, i.Code, i.Location, i.Message)
	}
	return b.String()
}

// StatsReport is stats' JSON shape: node counts broken down by type and
// by status, plus the current validation issue count.
type StatsReport struct {
	TotalNodes   int            `json:"total_nodes"`
	ByType       map[string]int `json:"by_type"`
	ByStatus     map[string]int `json:"by_status"`
	Percent      int            `json:"percent"`
	IssuesTotal  int            `json:"issues_total"`
	IssuesErrors int            `json:"issues_errors"`
}

var statsCmd = &cobra.Command{
	Use:     "stats <spec-id>",
	GroupID: "modify",
	Short:   "Print node-count and validation-issue statistics",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := loadIndex(args[0])
		if err != nil {
			return err
		}
		byType := map[string]int{}
		byStatus := map[string]int{}
		for _, n := range idx.All() {
			byType[string(n.Type)]++
			byStatus[string(n.Status)]++
		}
		issues := spec.Validate(idx)
		report := StatsReport{
			TotalNodes:   len(idx.All()),
			ByType:       byType,
			ByStatus:     byStatus,
			Percent:      idx.Doc.Counts.Percent,
			IssuesTotal:  len(issues),
			IssuesErrors: countErrors(issues),
		}
		if jsonOutput {
			outputJSON(report)
			return nil
		}
		printEvent(ports.ResultLine{Text: fmt.Sprintf("%d nodes, %d%% complete, %d issue(s) (%d error)",
			report.TotalNodes, report.Percent, report.IssuesTotal, report.IssuesErrors)})
		var rows [][]string
		for typ, n := range byType {
			rows = append(rows, []string{"type", typ, fmt.Sprintf("%d", n)})
		}
		for status, n := range byStatus {
			rows = append(rows, []string{"status", status, fmt.Sprintf("%d", n)})
		}
		printEvent(ports.Table{Headers: []string{"DIMENSION", "VALUE", "COUNT"}, Rows: rows})
		return nil
	},
}

var fixCmd = &cobra.Command{
	Use:     "fix <spec-id>",
	GroupID: "modify",
	Short:   "Apply idempotent auto-fixers; --apply also reparents orphans",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		apply, _ := cmd.Flags().GetBool("apply")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		loc, err := st.Locate(args[0])
		if err != nil {
			return err
		}
		lock, err := st.AcquireLock(loc.Path)
		if err != nil {
			return err
		}
		defer func() { _ = lock.Unlock() }()

		doc, err := store.Load(loc.Path)
		if err != nil {
			return err
		}
		idx := spec.BuildIndex(doc)
		result := spec.AutoFix(idx, spec.FixOptions{Apply: apply})

		if !dryRun && len(result.Applied) > 0 {
			if err := store.Save(loc.Path, doc, store.SaveOptions{Backup: st.Backup}); err != nil {
				return err
			}
		}

		if jsonOutput {
			outputJSON(result)
			return nil
		}
		if len(result.Applied) == 0 {
			printEvent(ports.ResultLine{Text: "nothing to fix"})
		} else {
			printEvent(ports.ResultLine{Text: "applied: " + fmt.Sprint(result.Applied)})
		}
		for _, w := range result.Warnings {
			printEvent(ports.Warning{Text: fmt.Sprintf("%s: %s (use --apply)", w.Code, w.Message)})
		}
		return nil
	},
}

var setStatusCmd = &cobra.Command{
	Use:     "set-status <spec-id> <node-id> <status>",
	GroupID: "modify",
	Short:   "Set a node's status",
	Args:    cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		note, _ := cmd.Flags().GetString("note")
		return runApply(args[0], []transactor.Op{
			transactor.SetStatusOp{NodeID: args[1], Status: spec.Status(args[2]), Note: note},
		}, cmd)
	},
}

var completeTaskCmd = &cobra.Command{
	Use:     "complete-task <spec-id> <node-id> <journal-title> <journal-content>",
	GroupID: "modify",
	Short:   "Mark a task completed and append a journal entry in one transaction",
	Args:    cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		entryType, _ := cmd.Flags().GetString("entry-type")
		return runApply(args[0], []transactor.Op{
			transactor.CompleteTaskOp{NodeID: args[1], JournalTitle: args[2], JournalContent: args[3], EntryType: spec.EntryType(entryType)},
		}, cmd)
	},
}

var blockCmd = &cobra.Command{
	Use:     "block <spec-id> <node-id> <reason>",
	GroupID: "modify",
	Short:   "Mark a node blocked",
	Args:    cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, _ := cmd.Flags().GetString("type")
		ticket, _ := cmd.Flags().GetString("ticket")
		return runApply(args[0], []transactor.Op{
			transactor.MarkBlockedOp{NodeID: args[1], Reason: args[2], Type: typ, Ticket: ticket},
		}, cmd)
	},
}

var unblockCmd = &cobra.Command{
	Use:     "unblock <spec-id> <node-id> <resolution>",
	GroupID: "modify",
	Short:   "Clear a node's blocked status",
	Args:    cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApply(args[0], []transactor.Op{
			transactor.UnblockOp{NodeID: args[1], Resolution: args[2]},
		}, cmd)
	},
}

var journalCmd = &cobra.Command{
	Use:     "journal <spec-id> <entry-type> <title> <content>",
	GroupID: "modify",
	Short:   "Append one journal entry",
	Args:    cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		taskID, _ := cmd.Flags().GetString("task")
		entry := spec.JournalEntry{
			EntryType: spec.EntryType(args[1]),
			Title:     args[2],
			Content:   args[3],
			TaskID:    taskID,
		}
		return runApply(args[0], []transactor.Op{transactor.AddJournalOp{Entry: entry}}, cmd)
	},
}

var verifyCmd = &cobra.Command{
	Use:     "verify <spec-id> <verify-id> <result>",
	GroupID: "modify",
	Short:   "Record a verification outcome (PASSED|FAILED|PARTIAL)",
	Args:    cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		note, _ := cmd.Flags().GetString("note")
		result := spec.VerificationResult{
			Date:   time.Now(),
			Status: spec.VerificationStatus(args[2]),
			Notes:  note,
		}
		return runApply(args[0], []transactor.Op{transactor.AddVerificationOp{VerifyID: args[1], Result: result}}, cmd)
	},
}

// runApply is the shared path for every single-op mutating command:
// build Options from the usual flags, call transactor.Apply, render.
func runApply(specID string, ops []transactor.Op, cmd *cobra.Command) error {
	opts := transactor.NewOptions()
	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		opts.DryRun = true
	}
	opts.Now = time.Now()
	if at, _ := cmd.Flags().GetString("at"); at != "" {
		parsed, err := util.ParseAt(at, opts.Now)
		if err != nil {
			return errs.Wrap(errs.KindUserError, err, "parsing --at")
		}
		opts.Now = parsed
	}
	if repoRoot := config.GetString("git.repo_root"); repoRoot != "" {
		opts.Git = ports.ExecGit{}
		opts.RepoRoot = repoRoot
	}

	result, err := transactor.Apply(st, specID, ops, opts)
	if err != nil {
		if opErr, ok := err.(*transactor.OpError); ok {
			return errs.Wrap(errs.KindUserError, opErr, "applying batch")
		}
		return err
	}
	if jsonOutput {
		outputJSON(result)
		return nil
	}
	if result.DryRun {
		printEvent(ports.ResultLine{Text: fmt.Sprintf("dry run: %d op(s) would apply, %d no-op", len(result.OpsApplied), len(result.OpsNoop))})
		return nil
	}
	if result.RolledBack {
		printEvent(ports.ErrorEvent{Text: "rolled back: " + fmt.Sprint(result.Issues)})
		return nil
	}
	printEvent(ports.ResultLine{Text: fmt.Sprintf("applied %d op(s), %d no-op", len(result.OpsApplied), len(result.OpsNoop))})
	return nil
}

func init() {
	fixCmd.Flags().Bool("apply", false, "also apply hierarchy.reparent proposals")
	fixCmd.Flags().Bool("dry-run", false, "report what would change without saving")

	setStatusCmd.Flags().String("note", "", "optional note recorded with the status change")
	setStatusCmd.Flags().Bool("dry-run", false, "compute and report without persisting")

	completeTaskCmd.Flags().String("entry-type", "note", "journal entry_type for the completion note")
	completeTaskCmd.Flags().Bool("dry-run", false, "compute and report without persisting")

	blockCmd.Flags().String("type", "", "blocker classification")
	blockCmd.Flags().String("ticket", "", "external ticket reference")
	blockCmd.Flags().Bool("dry-run", false, "compute and report without persisting")

	unblockCmd.Flags().Bool("dry-run", false, "compute and report without persisting")

	journalCmd.Flags().String("task", "", "task_id this entry pertains to")
	journalCmd.Flags().Bool("dry-run", false, "compute and report without persisting")

	verifyCmd.Flags().String("note", "", "optional note recorded with the result")
	verifyCmd.Flags().Bool("dry-run", false, "compute and report without persisting")

	for _, c := range []*cobra.Command{setStatusCmd, completeTaskCmd, blockCmd, unblockCmd, journalCmd, verifyCmd} {
		c.Flags().String("at", "", "timestamp this mutation as of a natural-language time expression instead of now")
	}

	rootCmd.AddCommand(validateCmd, fixCmd, reportCmd, statsCmd, setStatusCmd, completeTaskCmd, blockCmd, unblockCmd, journalCmd, verifyCmd)
}
