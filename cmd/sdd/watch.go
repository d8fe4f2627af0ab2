package main

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/speckit/sdd/internal/errs"
	"github.com/speckit/sdd/internal/ports"
	"github.com/speckit/sdd/internal/query"
)

// watchCmd is a read-only convenience command: it never mutates a spec,
// only re-renders its status report whenever the underlying file changes
// on disk (e.g. edited by another process or a concurrent sdd session).
var watchCmd = &cobra.Command{
	Use:     "watch <spec-id>",
	GroupID: "discovery",
	Short:   "Re-print the status report whenever the spec file changes on disk",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		specID := args[0]
		loc, err := st.Locate(specID)
		if err != nil {
			return err
		}

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return errs.Wrap(errs.KindIoError, err, "starting file watcher")
		}
		defer watcher.Close()

		if err := watcher.Add(filepath.Dir(loc.Path)); err != nil {
			return errs.Wrap(errs.KindIoError, err, "watching "+filepath.Dir(loc.Path))
		}

		report := func() error {
			idx, err := loadIndex(specID)
			if err != nil {
				printEvent(ports.ErrorEvent{Text: err.Error()})
				return nil
			}
			r := query.StatusReportOf(idx)
			if jsonOutput {
				outputJSON(r)
				return nil
			}
			printEvent(ports.ResultLine{Text: fmt.Sprintf("%s (%s): %d%% complete", r.SpecID, r.Status, r.Progress.Percent)})
			return nil
		}

		if err := report(); err != nil {
			return err
		}

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if filepath.Base(event.Name) != filepath.Base(loc.Path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := report(); err != nil {
					return err
				}
			case werr, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				printEvent(ports.Warning{Text: werr.Error()})
			case <-cmd.Context().Done():
				return nil
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
