//go:build linux

package watch

import (
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"unsafe"

	"github.com/watchkit/fswatch/internal/wlog"
	"golang.org/x/sys/unix"
)

// sizeofFanotifyEventMetadata is computed rather than relied on as a
// named x/sys constant, since older releases of the package don't export
// one.
var sizeofFanotifyEventMetadata = uint32(unsafe.Sizeof(unix.FanotifyEventMetadata{}))

// fanotifyInitFlags requests directory-and-name reporting (so each event
// carries a parent file handle plus a child name instead of just an
// inode), an unbounded event queue, and an unbounded mark count — this
// backend watches every directory in a tree, which can exceed the default
// mark limit on large trees.
const fanotifyInitFlags = unix.FAN_CLASS_NOTIF | unix.FAN_REPORT_DFID_NAME |
	unix.FAN_UNLIMITED_QUEUE | unix.FAN_UNLIMITED_MARKS

const fanotifyEventFlags = unix.O_RDONLY | unix.O_CLOEXEC | unix.O_NONBLOCK

// fanotifyMask is the per-directory mark: file lifecycle events plus
// FAN_EVENT_ON_CHILD so changes to entries inside the marked directory
// are reported (fanotify, unlike inotify, is silent about children
// unless asked). Move/modify bits are marked so directory marks survive
// a rename of the watched subtree, but — per spec.md §4.4 — they are
// never surfaced as their own `what` category; see fanotifyWhatFrom.
const fanotifyMask = unix.FAN_CREATE | unix.FAN_DELETE | unix.FAN_MODIFY |
	unix.FAN_MOVED_FROM | unix.FAN_MOVED_TO | unix.FAN_EVENT_ON_CHILD | unix.FAN_ONDIR

const fanotifyPollMillis = 16

type fanInfoHeader struct {
	InfoType uint8
	Pad      uint8
	Len      uint16
}

func fanotifyOpen(root string, eventTx *eventQueue, ctlRx <-chan bool) bool {
	fd, err := unix.FanotifyInit(fanotifyInitFlags, uint(fanotifyEventFlags))
	if err != nil {
		wlog.Printf("fanotify adapter: fanotify_init: %s", err)
		return false
	}
	defer unix.Close(fd)

	// mountFD anchors open_by_handle_at: the kernel resolves a file
	// handle against any open descriptor on the same mount.
	mountFD, err := unix.Open(root, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		wlog.Printf("fanotify adapter: open(%q): %s", root, err)
		return false
	}
	defer unix.Close(mountFD)

	marked := map[string]struct{}{}
	if err := fanotifyMarkTree(fd, marked, root); err != nil {
		wlog.Printf("fanotify adapter: initial walk of %q: %s", root, err)
		return false
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		wlog.Printf("fanotify adapter: epoll_create1: %s", err)
		return false
	}
	defer unix.Close(epfd)
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Fd: int32(fd), Events: unix.EPOLLIN}); err != nil {
		wlog.Printf("fanotify adapter: epoll_ctl: %s", err)
		return false
	}

	events := make([]unix.EpollEvent, 1)
	buf := make([]byte, 4096*int(sizeofFanotifyEventMetadata))

	for {
		select {
		case v, ok := <-ctlRx:
			if !ok || !v {
				return true
			}
		default:
		}

		n, err := unix.EpollWait(epfd, events, fanotifyPollMillis)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			wlog.Printf("fanotify adapter: epoll_wait: %s", err)
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
			wlog.Printf("fanotify adapter: read: %s", err)
			return false
		}
		if nr < int(sizeofFanotifyEventMetadata) {
			wlog.Printf("fanotify adapter: short read (%d bytes)", nr)
			continue
		}

		fanotifyDispatch(fd, mountFD, marked, eventTx, buf[:nr])
	}
}

func fanotifyDispatch(fanFD, mountFD int, marked map[string]struct{}, eventTx *eventQueue, buf []byte) {
	var offset uint32
	n := uint32(len(buf))

	for offset+sizeofFanotifyEventMetadata <= n {
		meta := (*unix.FanotifyEventMetadata)(unsafe.Pointer(&buf[offset]))
		eventLen := uint32(meta.Event_len)

		if !fanotifyMetadataOK(meta, eventLen, offset, n) {
			if meta.Fd != unix.FAN_NOFD {
				unix.Close(int(meta.Fd))
			}
			break
		}
		if meta.Fd != unix.FAN_NOFD {
			// A record carrying an open fd instead of FAN_NOFD belongs to
			// a content/permission class this adapter never requests;
			// close it and reject the record rather than act on it.
			unix.Close(int(meta.Fd))
			offset += eventLen
			continue
		}
		if meta.Mask&unix.FAN_Q_OVERFLOW != 0 {
			wlog.Printf("fanotify adapter: queue overflow, some events were lost")
			offset += eventLen
			continue
		}

		infoOff := offset + uint32(meta.Metadata_len)
		infoEnd := offset + eventLen
		for infoOff+4 <= infoEnd {
			hdr := (*fanInfoHeader)(unsafe.Pointer(&buf[infoOff]))
			recLen := uint32(hdr.Len)
			if recLen < 4 || infoOff+recLen > infoEnd {
				break
			}

			if hdr.InfoType == unix.FAN_EVENT_INFO_TYPE_DFID_NAME {
				dirPath, name, ok := fanotifyResolveDFIDName(mountFD, buf[infoOff:infoOff+recLen])
				if ok && name != "" {
					full := filepath.Join(dirPath, name)
					kind := File
					if meta.Mask&unix.FAN_ONDIR != 0 {
						kind = Dir
						if meta.Mask&unix.FAN_CREATE != 0 {
							fanotifyMark(fanFD, marked, full)
						}
						if meta.Mask&(unix.FAN_DELETE|unix.FAN_MOVED_FROM) != 0 {
							fanotifyUnmark(fanFD, marked, full)
						}
					}
					if what, ok := fanotifyWhatFrom(meta.Mask); ok {
						eventTx.push(Event{Path: full, What: what, Kind: kind, When: now()})
					}
				}
			}

			infoOff += recLen
		}

		offset += eventLen
	}
}

// fanotifyMetadataOK validates one fanotify_event_metadata record against
// spec.md §4.4/§7's rejection criteria: it must fit within the buffer,
// its length must be 8-byte aligned (the kernel always emits aligned
// records; a misaligned length means the buffer is corrupt), and its
// struct version must match what this adapter was compiled against.
func fanotifyMetadataOK(meta *unix.FanotifyEventMetadata, eventLen, offset, bufLen uint32) bool {
	if eventLen < sizeofFanotifyEventMetadata {
		return false
	}
	if eventLen%8 != 0 {
		return false
	}
	if offset+eventLen > bufLen {
		return false
	}
	if meta.Vers != unix.FANOTIFY_METADATA_VERSION {
		return false
	}
	return true
}

// fanotifyResolveDFIDName decodes one FAN_EVENT_INFO_TYPE_DFID_NAME
// record: a kernel filesystem id, a file handle identifying the parent
// directory, and a NUL-terminated child name. The directory's path is
// recovered by re-opening its handle and reading back the /proc symlink,
// since fanotify never hands back a path directly.
func fanotifyResolveDFIDName(mountFD int, rec []byte) (dirPath, name string, ok bool) {
	const headerSize = 4
	const fsidSize = 8
	if len(rec) < headerSize+fsidSize+8 {
		return "", "", false
	}
	body := rec[headerSize+fsidSize:]

	handleBytes := *(*uint32)(unsafe.Pointer(&body[0]))
	handleType := *(*int32)(unsafe.Pointer(&body[4]))
	handleEnd := 8 + int(handleBytes)
	if handleEnd > len(body) {
		return "", "", false
	}
	fh := unix.NewFileHandle(handleType, body[8:handleEnd])

	nameBytes := body[handleEnd:]
	name = cStringFromBytes(nameBytes)

	dfd, err := unix.OpenByHandleAt(mountFD, fh, unix.O_RDONLY)
	if err != nil {
		return "", "", false
	}
	defer unix.Close(dfd)

	link, err := os.Readlink("/proc/self/fd/" + strconv.Itoa(dfd))
	if err != nil {
		return "", "", false
	}
	return link, name, true
}

// fanotifyWhatFrom derives what per spec.md §4.4's exact three-way match:
// Create if FAN_CREATE is set, else Destroy if FAN_DELETE is set, else
// Other. FAN_MOVED_FROM/FAN_MOVED_TO/FAN_MODIFY are marked (fanotifyMask)
// but never produce their own event (FAN_MOVED_FROM on a directory only
// drives mark removal in fanotifyDispatch), so ok is false for a mask
// carrying neither FAN_CREATE nor FAN_DELETE.
func fanotifyWhatFrom(mask uint64) (what What, ok bool) {
	switch {
	case mask&unix.FAN_CREATE != 0:
		return Create, true
	case mask&unix.FAN_DELETE != 0:
		return Destroy, true
	default:
		return Other, false
	}
}

func fanotifyMark(fd int, marked map[string]struct{}, path string) {
	if _, ok := marked[path]; ok {
		return
	}
	if err := unix.FanotifyMark(fd, unix.FAN_MARK_ADD, fanotifyMask, -1, path); err != nil {
		return
	}
	marked[path] = struct{}{}
}

func fanotifyUnmark(fd int, marked map[string]struct{}, path string) {
	if _, ok := marked[path]; !ok {
		return
	}
	unix.FanotifyMark(fd, unix.FAN_MARK_REMOVE, fanotifyMask, -1, path)
	delete(marked, path)
}

func fanotifyMarkTree(fd int, marked map[string]struct{}, root string) error {
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
		fanotifyMark(fd, marked, path)
		return nil
	})
}
