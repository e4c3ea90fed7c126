//go:build linux

package watch

import "github.com/watchkit/fswatch/internal/capprobe"

// adapterOpen dispatches to the fanotify backend when the process holds
// CAP_SYS_ADMIN (required to open a privileged fanotify group) and falls
// back to inotify otherwise. Both backends mark every directory under the
// root individually and track those marks themselves.
func adapterOpen(path string, eventTx *eventQueue, ctlRx <-chan bool) bool {
	if capprobe.HasSysAdmin() {
		return fanotifyOpen(path, eventTx, ctlRx)
	}
	return inotifyOpen(path, eventTx, ctlRx)
}
