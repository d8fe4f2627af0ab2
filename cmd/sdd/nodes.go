package main

import (
	"github.com/spf13/cobra"

	"github.com/speckit/sdd/internal/spec"
	"github.com/speckit/sdd/internal/transactor"
)

var createNodeCmd = &cobra.Command{
	Use:     "create-node <spec-id> <parent-id> <node-id> <type> <title>",
	GroupID: "modify",
	Short:   "Insert a new node under an existing parent",
	Args:    cobra.ExactArgs(5),
	RunE: func(cmd *cobra.Command, args []string) error {
		n := &spec.Node{ID: args[2], Type: spec.NodeType(args[3]), Title: args[4], Status: spec.StatusPending}
		return runApply(args[0], []transactor.Op{transactor.CreateNodeOp{ParentID: args[1], Node: n}}, cmd)
	},
}

var removeNodeCmd = &cobra.Command{
	Use:     "remove-node <spec-id> <node-id>",
	GroupID: "modify",
	Short:   "Remove a non-root node and its subtree",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApply(args[0], []transactor.Op{transactor.RemoveNodeOp{NodeID: args[1]}}, cmd)
	},
}

func init() {
	createNodeCmd.Flags().Bool("dry-run", false, "compute and report without persisting")
	removeNodeCmd.Flags().Bool("dry-run", false, "compute and report without persisting")

	rootCmd.AddCommand(createNodeCmd, removeNodeCmd)
}
