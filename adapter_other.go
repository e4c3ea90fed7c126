//go:build !darwin && !linux

package watch

import "github.com/watchkit/fswatch/internal/wlog"

// adapterOpen reports immediate failure on platforms with no native
// backend, matching spec.md §6 (construction never fails; the stream
// ends immediately instead).
func adapterOpen(path string, eventTx *eventQueue, ctlRx <-chan bool) bool {
	wlog.Printf("watch(%q): no filesystem watch backend on this platform", path)
	return false
}
