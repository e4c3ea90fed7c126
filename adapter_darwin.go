//go:build darwin

package watch

import (
	"syscall"
	"time"

	"github.com/eXotech-code/fsevents"
	"github.com/watchkit/fswatch/internal/wlog"
)

// darwinPollInterval is how often the worker checks the control channel
// for a stop request while the FSEvents dispatch queue delivers callbacks
// in the background (spec.md §4.2).
const darwinPollInterval = 16 * time.Millisecond

// darwinFlags requests per-file events (not just per-directory), the
// extended record format (needed for reliable inode/path identity across
// renames), and CoreFoundation-typed callback payloads — matching
// original_source/src/watcher/adapter/darwin.rs's FILE_EVENTS |
// USE_EXTENDED_DATA | USE_CF_TYPES exactly.
const darwinFlags = fsevents.FileEvents | fsevents.UseExtendedData | fsevents.UseCFTypes

func adapterOpen(path string, eventTx *eventQueue, ctlRx <-chan bool) bool {
	seen := make(map[string]struct{})

	var stat syscall.Stat_t
	if err := syscall.Lstat(path, &stat); err != nil {
		wlog.Printf("darwin adapter: lstat(%q): %s", path, err)
		return false
	}

	es := &fsevents.EventStream{
		Paths:   []string{path},
		Latency: 1 * time.Second,
		Device:  stat.Dev,
		Flags:   darwinFlags,
	}
	es.Start()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for batch := range es.Events {
			for _, e := range batch {
				emitDarwinEvent(eventTx, seen, e)
			}
		}
	}()

	for {
		select {
		case v, ok := <-ctlRx:
			if !ok || !v {
				es.Stop()
				<-done
				return true
			}
			// v == true is reserved/"continue"; keep living.
		default:
		}
		time.Sleep(darwinPollInterval)
	}
}

func emitDarwinEvent(eventTx *eventQueue, seen map[string]struct{}, e fsevents.Event) {
	f := e.Flags
	kind := darwinKindFrom(f)

	has := func(bit fsevents.EventFlags) bool { return f&bit != 0 }

	_, wasSeen := seen[e.Path]
	var permit bool
	switch {
	case !wasSeen && has(fsevents.ItemCreated):
		seen[e.Path] = struct{}{}
		permit = true
	case wasSeen && has(fsevents.ItemRemoved):
		delete(seen, e.Path)
		permit = true
	case !has(fsevents.ItemCreated) && !has(fsevents.ItemRemoved):
		permit = true
	default:
		permit = false
	}
	if !permit {
		return
	}

	send := func(what What) {
		eventTx.push(Event{Path: e.Path, What: what, Kind: kind, When: now()})
	}

	if has(fsevents.ItemCreated) {
		send(Create)
	}
	if has(fsevents.ItemRemoved) {
		send(Destroy)
	}
	if has(fsevents.ItemModified) {
		send(Modify)
	}
	if has(fsevents.ItemRenamed) {
		send(Rename)
	}
}

func darwinKindFrom(f fsevents.EventFlags) Kind {
	switch {
	case f&fsevents.ItemIsFile != 0:
		return File
	case f&fsevents.ItemIsDir != 0:
		return Dir
	case f&fsevents.ItemIsSymlink != 0:
		return SymLink
	case f&fsevents.ItemIsHardlink != 0:
		return HardLink
	default:
		return KindOther
	}
}
