package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/speckit/sdd/internal/config"
	"github.com/speckit/sdd/internal/debug"
	"github.com/speckit/sdd/internal/errs"
	"github.com/speckit/sdd/internal/ports"
	"github.com/speckit/sdd/internal/store"
)

var (
	rootCtx = context.Background()

	specsRootFlag string
	jsonOutput    bool
	quietOutput   bool
	verboseOutput bool
	noColor       bool
	debugFlag     bool

	st *store.Store
	ui ports.UiPort
)

var rootCmd = &cobra.Command{
	Use:           "sdd",
	Short:         "Spec-driven development engine",
	Long:          "sdd drives a hierarchical spec through its lifecycle: creation, scheduling, journaling, and AI consultation.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		root := specsRootFlag
		if root == "" {
			root = os.Getenv("SDD_SPECS_ROOT")
		}
		if root == "" {
			root = "./specs"
		}
		abs, err := filepath.Abs(root)
		if err != nil {
			return errs.Wrap(errs.KindIoError, err, "resolving specs root")
		}
		root = abs

		if err := config.Initialize(root); err != nil {
			return errs.Wrap(errs.KindIoError, err, "loading configuration")
		}

		if err := debug.Init(debug.Options{
			Dir:        config.GetString("log.dir"),
			MaxSizeMB:  config.GetInt("log.max_size_mb"),
			MaxBackups: config.GetInt("log.max_backups"),
		}, debugFlag, verboseOutput); err != nil {
			return errs.Wrap(errs.KindIoError, err, "initializing debug log")
		}

		s, err := store.New(root)
		if err != nil {
			return errs.Wrap(errs.KindIoError, err, "opening spec store at "+root)
		}
		st = s

		if jsonOutput || noColor || !shouldUseColor() {
			ui = ports.PlainUI{Out: os.Stdout}
		} else {
			ui = ports.RichUI{Out: os.Stdout}
		}

		debug.Verbosef("sdd starting: specs_root=%s cmd=%s args=%v", root, cmd.Name(), args)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = debug.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&specsRootFlag, "specs-root", "", "root directory containing pending/active/completed/archived (default ./specs)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON instead of formatted text")
	rootCmd.PersistentFlags().BoolVarP(&quietOutput, "quiet", "q", false, "suppress non-essential output")
	rootCmd.PersistentFlags().BoolVarP(&verboseOutput, "verbose", "v", false, "log verbose operational detail to the debug log")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable ANSI styling, using the plain renderer")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "log detailed operational trace to the debug log")

	rootCmd.AddGroup(
		&cobra.Group{ID: "lifecycle", Title: "Spec lifecycle:"},
		&cobra.Group{ID: "discovery", Title: "Discovery and progress:"},
		&cobra.Group{ID: "modify", Title: "Modification:"},
		&cobra.Group{ID: "consult", Title: "AI consultation:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		reportError(err)
		os.Exit(exitCodeFor(err))
	}
}

// reportError renders err on stderr, as a JSON envelope in --json mode.
func reportError(err error) {
	if jsonOutput {
		payload := map[string]any{"error": err.Error()}
		if se, ok := err.(*errs.Error); ok {
			payload["kind"] = se.Kind
			if se.Details != nil {
				payload["details"] = se.Details
			}
		}
		enc := json.NewEncoder(os.Stderr)
		_ = enc.Encode(payload)
		return
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	if se, ok := err.(*errs.Error); ok {
		if hint := se.Hint(); hint != "" {
			fmt.Fprintln(os.Stderr, "hint:", hint)
		}
	}
}

func exitCodeFor(err error) int {
	if se, ok := err.(*errs.Error); ok {
		return se.Kind.ExitCode()
	}
	return 1
}

// shouldUseColor mirrors the common NO_COLOR/CLICOLOR convention on top
// of a real terminal check: styling is off for redirected output and
// when the environment explicitly asks for plain text.
func shouldUseColor() bool {
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return false
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// isInteractiveTTY reports whether both stdin and stdout are attached
// to a terminal, the gate for dropping into an interactive form.
func isInteractiveTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// outputJSON writes v to stdout as indented JSON, used by every command's
// --json branch.
func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// printEvent routes through the active UiPort unless --quiet suppresses it.
func printEvent(e ports.Event) {
	if quietOutput {
		if _, isErr := e.(ports.ErrorEvent); !isErr {
			return
		}
	}
	ui.Print(e)
}
