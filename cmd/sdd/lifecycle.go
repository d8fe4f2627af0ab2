package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/speckit/sdd/internal/errs"
	"github.com/speckit/sdd/internal/ports"
	"github.com/speckit/sdd/internal/spec"
	"github.com/speckit/sdd/internal/store"
	"github.com/speckit/sdd/internal/transactor"
)

var createCmd = &cobra.Command{
	Use:     "create [spec-id] [title]",
	GroupID: "lifecycle",
	Short:   "Create a new spec in the pending bucket",
	Args:    cobra.MatchAll(cobra.MaximumNArgs(2), func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return fmt.Errorf("accepts 0 or 2 arg(s), received 1")
		}
		return nil
	}),
	RunE: func(cmd *cobra.Command, args []string) error {
		template, _ := cmd.Flags().GetString("template")
		specID, title := "", ""
		if len(args) == 2 {
			specID, title = args[0], args[1]
		} else {
			if !isInteractiveTTY() {
				return errs.New(errs.KindUserError, "create needs <spec-id> <title> when stdout isn't a terminal")
			}
			if err := runCreateForm(&specID, &title, &template); err != nil {
				return err
			}
		}
		doc, err := transactor.CreateSpec(st, specID, title, template, time.Now())
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(doc)
			return nil
		}
		printEvent(ports.ResultLine{Text: fmt.Sprintf("created %s (%s) in pending", doc.SpecID, doc.Metadata.Title)})
		return nil
	},
}

// runCreateForm prompts for the fields create needs when invoked with no
// positional args on a real terminal.
func runCreateForm(specID, title, template *string) error {
	*template = "default"
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Spec ID").Value(specID),
			huh.NewInput().Title("Title").Value(title),
			huh.NewSelect[string]().
				Title("Template").
				Options(huh.NewOptions("default", "feature", "bugfix")...).
				Value(template),
		),
	)
	if err := form.Run(); err != nil {
		return errs.Wrap(errs.KindUserError, err, "create form cancelled")
	}
	return nil
}

var activateCmd = &cobra.Command{
	Use:     "activate <spec-id>",
	GroupID: "lifecycle",
	Short:   "Move a spec from pending to active",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return moveSpec(args[0], store.BucketActive)
	},
}

var moveSpecCmd = &cobra.Command{
	Use:     "move-spec <spec-id> <bucket>",
	GroupID: "lifecycle",
	Short:   "Move a spec to a specific lifecycle bucket",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return moveSpec(args[0], store.Bucket(args[1]))
	},
}

var completeSpecCmd = &cobra.Command{
	Use:     "complete-spec <spec-id>",
	GroupID: "lifecycle",
	Short:   "Move a spec to completed",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return moveSpec(args[0], store.BucketCompleted)
	},
}

func moveSpec(specID string, target store.Bucket) error {
	loc, err := st.Locate(specID)
	if err != nil {
		return err
	}
	result, err := transactor.Apply(st, specID, []transactor.Op{transactor.MoveSpecOp{TargetBucket: target}}, transactor.NewOptions())
	if err != nil {
		return err
	}
	if jsonOutput {
		outputJSON(result)
		return nil
	}
	printEvent(ports.ResultLine{Text: fmt.Sprintf("%s moved %s -> %s", specID, loc.Bucket, target)})
	return nil
}

var listSpecsCmd = &cobra.Command{
	Use:     "list-specs",
	GroupID: "discovery",
	Short:   "List every spec across all lifecycle buckets",
	RunE: func(cmd *cobra.Command, args []string) error {
		bucketFlag, _ := cmd.Flags().GetString("bucket")

		buckets := store.AllBuckets
		if bucketFlag != "" {
			buckets = []store.Bucket{store.Bucket(bucketFlag)}
		}

		type row struct {
			SpecID string `json:"spec_id"`
			Bucket string `json:"bucket"`
			Title  string `json:"title"`
			Status string `json:"status"`
		}
		var rows []row
		for _, b := range buckets {
			ids, err := st.ListSpecIDs(b)
			if err != nil {
				return err
			}
			for _, id := range ids {
				loc, err := st.Locate(id)
				if err != nil {
					continue
				}
				doc, err := store.Load(loc.Path)
				if err != nil {
					continue
				}
				rows = append(rows, row{SpecID: id, Bucket: string(b), Title: doc.Metadata.Title, Status: string(doc.Metadata.Status)})
			}
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].SpecID < rows[j].SpecID })

		if jsonOutput {
			outputJSON(rows)
			return nil
		}
		headers := []string{"SPEC ID", "BUCKET", "STATUS", "TITLE"}
		var trows [][]string
		for _, r := range rows {
			trows = append(trows, []string{r.SpecID, r.Bucket, r.Status, r.Title})
		}
		printEvent(ports.Table{Headers: headers, Rows: trows})
		return nil
	},
}

var findSpecsCmd = &cobra.Command{
	Use:     "find-specs <query>",
	GroupID: "discovery",
	Short:   "Search spec titles and task text for a substring",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		needle := args[0]
		type hit struct {
			SpecID string `json:"spec_id"`
			NodeID string `json:"node_id,omitempty"`
			Kind   string `json:"kind"`
			Text   string `json:"text"`
		}
		var hits []hit
		for _, b := range store.AllBuckets {
			ids, err := st.ListSpecIDs(b)
			if err != nil {
				return err
			}
			for _, id := range ids {
				loc, err := st.Locate(id)
				if err != nil {
					continue
				}
				doc, err := store.Load(loc.Path)
				if err != nil {
					continue
				}
				if containsFold(doc.Metadata.Title, needle) {
					hits = append(hits, hit{SpecID: id, Kind: "spec", Text: doc.Metadata.Title})
				}
				idx := spec.BuildIndex(doc)
				for _, n := range idx.All() {
					if containsFold(n.Title, needle) {
						hits = append(hits, hit{SpecID: id, NodeID: n.ID, Kind: string(n.Type), Text: n.Title})
					}
				}
			}
		}

		if jsonOutput {
			outputJSON(hits)
			return nil
		}
		if len(hits) == 0 {
			printEvent(ports.ResultLine{Text: "no matches"})
			return nil
		}
		var trows [][]string
		for _, h := range hits {
			trows = append(trows, []string{h.SpecID, h.NodeID, h.Kind, h.Text})
		}
		printEvent(ports.Table{Headers: []string{"SPEC ID", "NODE", "KIND", "TEXT"}, Rows: trows})
		return nil
	},
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func init() {
	createCmd.Flags().String("template", "default", "spec template under .templates/ to seed the hierarchy from")
	listSpecsCmd.Flags().String("bucket", "", "restrict to a single bucket (pending|active|completed|archived)")

	rootCmd.AddCommand(createCmd, activateCmd, moveSpecCmd, completeSpecCmd, listSpecsCmd, findSpecsCmd)
}
