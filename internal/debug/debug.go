// Package debug provides a process-wide, rotated operational log distinct
// from the in-spec journal (C6). It is gated by --debug/--verbose and
// never touches stdout/stderr in --json mode.
package debug

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu      sync.Mutex
	enabled bool
	verbose bool
	logger  *log.Logger
	sink    io.WriteCloser
)

// Options configures the rotated log file. An empty Dir falls back to
// ./.sdd/logs; zero MaxSizeMB and MaxBackups fall back to 20 and 5.
type Options struct {
	Dir        string
	MaxSizeMB  int
	MaxBackups int
}

// Init opens (creating if needed) the rotated debug log and enables
// Logf/Verbosef according to debugFlag/verboseFlag. Safe to call once at
// CLI startup; a no-op logger is used until Init runs.
func Init(opts Options, debugFlag, verboseFlag bool) error {
	mu.Lock()
	defer mu.Unlock()

	enabled = debugFlag
	verbose = verboseFlag

	if !enabled && !verbose {
		logger = log.New(io.Discard, "", 0)
		return nil
	}

	dir := opts.Dir
	if dir == "" {
		dir = filepath.Join(".", ".sdd", "logs")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}

	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 20
	}
	maxBackups := opts.MaxBackups
	if maxBackups <= 0 {
		maxBackups = 5
	}

	lj := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "sdd.log"),
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		Compress:   true,
	}
	sink = lj
	logger = log.New(lj, "", log.LstdFlags|log.Lmicroseconds)
	return nil
}

// Close flushes and closes the rotated log file, if one was opened.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if sink != nil {
		err := sink.Close()
		sink = nil
		return err
	}
	return nil
}

// Logf writes a debug-level line when --debug is set.
func Logf(format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil || !enabled {
		return
	}
	logger.Printf(format, args...)
}

// Verbosef writes a verbose-level line when --verbose or --debug is set.
func Verbosef(format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil || !(enabled || verbose) {
		return
	}
	logger.Printf(format, args...)
}
