//go:build linux

package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/watchkit/fswatch/internal/capprobe"
	"golang.org/x/sys/unix"
)

func TestFanotifyOpenDetectsCreate(t *testing.T) {
	if !capprobe.HasSysAdmin() {
		t.Skip("CAP_SYS_ADMIN not available; fanotify requires a privileged process")
	}

	root := t.TempDir()
	eventTx := newEventQueue()
	ctl := make(chan bool, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		fanotifyOpen(root, eventTx, ctl)
	}()

	time.Sleep(50 * time.Millisecond)

	target := filepath.Join(root, "leaf.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	deadline := time.After(5 * time.Second)
	for {
		if ev, ok := eventTx.tryPop(); ok {
			if filepath.Base(ev.Path) == "leaf.txt" {
				ctl <- false
				<-done
				return
			}
			continue
		}
		select {
		case <-time.After(5 * time.Millisecond):
		case <-deadline:
			ctl <- false
			t.Fatal("timed out waiting for create event")
		}
	}
}

func TestFanotifyWhatFromPrecedence(t *testing.T) {
	cases := []struct {
		mask   uint64
		want   What
		wantOk bool
	}{
		{unix.FAN_CREATE, Create, true},
		{unix.FAN_DELETE, Destroy, true},
		{unix.FAN_MOVED_FROM, Other, false},
		{unix.FAN_MODIFY, Other, false},
		{0, Other, false},
	}
	for _, c := range cases {
		got, ok := fanotifyWhatFrom(c.mask)
		if got != c.want || ok != c.wantOk {
			t.Errorf("fanotifyWhatFrom(%#x) = (%v, %v), want (%v, %v)", c.mask, got, ok, c.want, c.wantOk)
		}
	}
}
