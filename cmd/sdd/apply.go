package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/speckit/sdd/internal/errs"
	"github.com/speckit/sdd/internal/spec"
	"github.com/speckit/sdd/internal/store"
	"github.com/speckit/sdd/internal/transactor"
)

func specStoreBucket(s string) store.Bucket { return store.Bucket(s) }

// batchOp mirrors one YAML-encoded op per the modification batch format
// (SPEC_FULL.md §3): a "kind" discriminator plus kind-specific fields,
// decoded by hand into the matching transactor.Op since Op is an
// interface and gopkg.in/yaml.v3 cannot unmarshal into one directly.
type batchOp struct {
	Kind string `yaml:"kind"`

	NodeID         string            `yaml:"node_id,omitempty"`
	ParentID       string            `yaml:"parent_id,omitempty"`
	Status         string            `yaml:"status,omitempty"`
	Note           string            `yaml:"note,omitempty"`
	JournalTitle   string            `yaml:"journal_title,omitempty"`
	JournalContent string            `yaml:"journal_content,omitempty"`
	EntryType      string            `yaml:"entry_type,omitempty"`
	Reason         string            `yaml:"reason,omitempty"`
	Type           string            `yaml:"type,omitempty"`
	Ticket         string            `yaml:"ticket,omitempty"`
	Resolution     string            `yaml:"resolution,omitempty"`
	TaskID         string            `yaml:"task_id,omitempty"`
	Title          string            `yaml:"title,omitempty"`
	Content        string            `yaml:"content,omitempty"`
	VerifyID       string            `yaml:"verify_id,omitempty"`
	Result         string            `yaml:"result,omitempty"`
	ResultNote     string            `yaml:"result_note,omitempty"`
	Fields         map[string]any    `yaml:"fields,omitempty"`
	TargetBucket   string            `yaml:"target_bucket,omitempty"`
}

type batchFile struct {
	Ops []batchOp `yaml:"ops"`
}

func (b batchOp) toOp() (transactor.Op, error) {
	switch b.Kind {
	case "set_status":
		return transactor.SetStatusOp{NodeID: b.NodeID, Status: spec.Status(b.Status), Note: b.Note}, nil
	case "complete_task":
		return transactor.CompleteTaskOp{NodeID: b.NodeID, JournalTitle: b.JournalTitle, JournalContent: b.JournalContent, EntryType: spec.EntryType(b.EntryType)}, nil
	case "mark_blocked":
		return transactor.MarkBlockedOp{NodeID: b.NodeID, Reason: b.Reason, Type: b.Type, Ticket: b.Ticket}, nil
	case "unblock":
		return transactor.UnblockOp{NodeID: b.NodeID, Resolution: b.Resolution}, nil
	case "add_journal":
		return transactor.AddJournalOp{Entry: spec.JournalEntry{
			EntryType: spec.EntryType(b.EntryType), Title: b.Title, Content: b.Content, TaskID: b.TaskID,
		}}, nil
	case "add_verification":
		return transactor.AddVerificationOp{VerifyID: b.VerifyID, Result: spec.VerificationResult{
			Date: time.Now(), Status: spec.VerificationStatus(b.Result), Notes: b.ResultNote,
		}}, nil
	case "update_metadata":
		return transactor.UpdateMetadataOp{NodeID: b.NodeID, Fields: b.Fields}, nil
	case "move_spec":
		return transactor.MoveSpecOp{TargetBucket: specStoreBucket(b.TargetBucket)}, nil
	case "remove_node":
		return transactor.RemoveNodeOp{NodeID: b.NodeID}, nil
	case "create_node":
		return transactor.CreateNodeOp{
			ParentID: b.ParentID,
			Node:     &spec.Node{ID: b.NodeID, Type: spec.NodeType(b.Type), Title: b.Title, Status: spec.StatusPending},
		}, nil
	case "recalculate_counts":
		return transactor.RecalculateCountsOp{}, nil
	case "sync_metadata":
		return transactor.SyncMetadataOp{}, nil
	case "create_spec":
		return nil, errs.New(errs.KindUserError, "create_spec is not a batch op; use \"sdd create\" instead")
	default:
		return nil, errs.Newf(errs.KindUserError, "unrecognized batch op kind %q", b.Kind)
	}
}

var applyCmd = &cobra.Command{
	Use:     "apply <spec-id> <batch.yaml>",
	GroupID: "modify",
	Short:   "Apply a YAML-encoded batch of modification ops as one transaction",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[1])
		if err != nil {
			return errs.Wrap(errs.KindIoError, err, "reading batch file "+args[1])
		}
		var batch batchFile
		if err := yaml.Unmarshal(raw, &batch); err != nil {
			return errs.Wrap(errs.KindMalformedSpec, err, "parsing batch file "+args[1])
		}
		if len(batch.Ops) == 0 {
			return errs.New(errs.KindUserError, "batch file names no ops")
		}

		ops := make([]transactor.Op, 0, len(batch.Ops))
		for i, b := range batch.Ops {
			op, err := b.toOp()
			if err != nil {
				return fmt.Errorf("op %d: %w", i, err)
			}
			ops = append(ops, op)
		}

		return runApply(args[0], ops, cmd)
	},
}

func init() {
	applyCmd.Flags().Bool("dry-run", false, "preview the batch without persisting")
	rootCmd.AddCommand(applyCmd)
}
