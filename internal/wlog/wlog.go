// Package wlog is the debug-logging facility shared by the watch package
// and its platform adapters. It is silent unless WATCHER_DEBUG is set in
// the environment, following the same opt-in convention as fsnotify's
// FSNOTIFY_DEBUG.
package wlog

import (
	"fmt"
	"os"
	"time"
)

var enabled = os.Getenv("WATCHER_DEBUG") != ""

// Printf writes a timestamped line to stderr if WATCHER_DEBUG is set,
// and is otherwise a no-op.
func Printf(format string, args ...any) {
	if !enabled {
		return
	}
	fmt.Fprintf(os.Stderr, "WATCHER_DEBUG: %s  %s\n",
		time.Now().Format("15:04:05.000000000"), fmt.Sprintf(format, args...))
}

// Enabled reports whether debug logging is active, for callers that want
// to skip building an expensive message when it would be discarded.
func Enabled() bool { return enabled }
