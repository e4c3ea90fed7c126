//go:build linux

package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestInotifyOpenDetectsNestedCreate(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))

	eventTx := newEventQueue()
	ctl := make(chan bool, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		inotifyOpen(root, eventTx, ctl)
	}()

	time.Sleep(50 * time.Millisecond)

	target := filepath.Join(sub, "leaf.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	deadline := time.After(5 * time.Second)
	found := false
	for !found {
		if ev, ok := eventTx.tryPop(); ok {
			if filepath.Base(ev.Path) == "leaf.txt" {
				found = true
				break
			}
			continue
		}
		select {
		case <-time.After(5 * time.Millisecond):
		case <-deadline:
			t.Fatal("timed out waiting for nested create event")
		}
	}

	ctl <- false
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("inotifyOpen did not return after stop signal")
	}
}

func TestInotifyWhatFromPrecedence(t *testing.T) {
	cases := []struct {
		mask uint32
		want What
	}{
		{unix.IN_CREATE, Create},
		{unix.IN_DELETE, Destroy},
		{unix.IN_MOVED_FROM, Rename},
		{unix.IN_MODIFY, Modify},
		{0, Other},
	}
	for _, c := range cases {
		if got := inotifyWhatFrom(c.mask); got != c.want {
			t.Errorf("inotifyWhatFrom(%#x) = %v, want %v", c.mask, got, c.want)
		}
	}
}
