//go:build linux

package watch

import (
	"io/fs"
	"os"
	"path/filepath"
	"unsafe"

	"github.com/watchkit/fswatch/internal/wlog"
	"golang.org/x/sys/unix"
)

// inotifyMask is registered on every watched directory: creation,
// modification, and destruction of entries, plus the two halves of a
// rename and queue-overflow notification (spec.md §4.3).
const inotifyMask = unix.IN_CREATE | unix.IN_MODIFY | unix.IN_DELETE |
	unix.IN_DELETE_SELF | unix.IN_MOVED_FROM | unix.IN_MOVED_TO | unix.IN_Q_OVERFLOW

// inotifyPollMillis is the epoll_wait timeout. It doubles as the interval
// at which the worker checks ctlRx for a stop request, so it is pinned to
// the adaptive-backoff poller's fastest step (spec.md §3).
const inotifyPollMillis = 16

// inotifyWatches tracks the bidirectional wd<->path mapping for every
// directory currently marked under the watched root.
type inotifyWatches struct {
	byWd   map[int]string
	byPath map[string]int
}

func newInotifyWatches() *inotifyWatches {
	return &inotifyWatches{byWd: map[int]string{}, byPath: map[string]int{}}
}

func (w *inotifyWatches) add(wd int, path string) {
	w.byWd[wd] = path
	w.byPath[path] = wd
}

func (w *inotifyWatches) removeByWd(wd int) {
	if path, ok := w.byWd[wd]; ok {
		delete(w.byPath, path)
		delete(w.byWd, wd)
	}
}

func inotifyOpen(root string, eventTx *eventQueue, ctlRx <-chan bool) bool {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		wlog.Printf("inotify adapter: inotify_init1: %s", err)
		return false
	}
	defer unix.Close(fd)

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		wlog.Printf("inotify adapter: epoll_create1: %s", err)
		return false
	}
	defer unix.Close(epfd)

	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Fd: int32(fd), Events: unix.EPOLLIN}); err != nil {
		wlog.Printf("inotify adapter: epoll_ctl: %s", err)
		return false
	}

	watches := newInotifyWatches()
	if err := inotifyMarkTree(fd, watches, root); err != nil {
		wlog.Printf("inotify adapter: initial walk of %q: %s", root, err)
		return false
	}

	events := make([]unix.EpollEvent, 1)
	buf := make([]byte, 4096)

	for {
		select {
		case v, ok := <-ctlRx:
			if !ok || !v {
				return true
			}
		default:
		}

		n, err := unix.EpollWait(epfd, events, inotifyPollMillis)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			wlog.Printf("inotify adapter: epoll_wait: %s", err)
			return false
		}
		if n <= 0 {
			continue
		}

		nr, err := unix.Read(fd, buf)
		if err != nil {
			if err == unix.EAGAIN {
				continue
			}
			wlog.Printf("inotify adapter: read: %s", err)
			return false
		}
		if nr < unix.SizeofInotifyEvent {
			wlog.Printf("inotify adapter: short read (%d bytes)", nr)
			continue
		}

		inotifyDispatch(fd, watches, eventTx, buf[:nr])
	}
}

// inotifyDispatch walks one raw read() buffer's worth of inotify_event
// records, advancing by each record's own length (header plus padded
// name), and emits the corresponding Events.
func inotifyDispatch(fd int, watches *inotifyWatches, eventTx *eventQueue, buf []byte) {
	var offset uint32
	n := uint32(len(buf))

	for offset+unix.SizeofInotifyEvent <= n {
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		mask := uint32(raw.Mask)
		nameLen := raw.Len
		recordLen := uint32(unix.SizeofInotifyEvent) + nameLen

		dir, known := watches.byWd[int(raw.Wd)]
		var name string
		if nameLen > 0 {
			nameBytes := buf[offset+unix.SizeofInotifyEvent : offset+unix.SizeofInotifyEvent+nameLen]
			name = cStringFromBytes(nameBytes)
		}

		if mask&unix.IN_Q_OVERFLOW != 0 {
			wlog.Printf("inotify adapter: queue overflow, some events were lost")
		}

		if known && mask&(unix.IN_DELETE_SELF|unix.IN_MOVE_SELF) != 0 {
			watches.removeByWd(int(raw.Wd))
		}

		if known && name != "" {
			full := filepath.Join(dir, name)
			what := inotifyWhatFrom(mask)
			kind := Dir
			if mask&unix.IN_ISDIR == 0 {
				kind = File
			}

			if kind == Dir && mask&unix.IN_CREATE != 0 {
				if wd, err := unix.InotifyAddWatch(fd, full, inotifyMask); err == nil {
					watches.add(wd, full)
				}
			}
			if kind == Dir && (mask&unix.IN_DELETE != 0 || mask&unix.IN_MOVED_FROM != 0) {
				if wd, ok := watches.byPath[full]; ok {
					unix.InotifyRmWatch(fd, uint32(wd))
					watches.removeByWd(wd)
				}
			}

			eventTx.push(Event{Path: full, What: what, Kind: kind, When: now()})
		}

		offset += recordLen
	}
}

func inotifyWhatFrom(mask uint32) What {
	switch {
	case mask&unix.IN_CREATE != 0:
		return Create
	case mask&unix.IN_DELETE != 0:
		return Destroy
	case mask&(unix.IN_MOVED_FROM|unix.IN_MOVED_TO) != 0:
		return Rename
	case mask&unix.IN_MODIFY != 0:
		return Modify
	default:
		return Other
	}
}

func cStringFromBytes(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// inotifyMarkTree marks root and every directory beneath it with
// inotifyMask, so a later rename or create anywhere in the subtree is
// observed without re-walking (spec.md §4.3, recursive establishment).
func inotifyMarkTree(fd int, watches *inotifyWatches, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		wd, err := unix.InotifyAddWatch(fd, path, inotifyMask)
		if err != nil {
			return nil
		}
		watches.add(wd, path)
		return nil
	})
}
