package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchEmitsCreateEvent(t *testing.T) {
	dir := t.TempDir()
	s := Watch(dir)
	defer func() {
		s.Stop()
		s.Wait()
	}()

	time.Sleep(50 * time.Millisecond) // let the adapter finish its initial walk

	target := filepath.Join(dir, "new-file.txt")
	require.NoError(t, os.WriteFile(target, []byte("hi"), 0o644))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				t.Fatal("event channel closed before observing create")
			}
			if ev.IsSentinel() {
				continue
			}
			if ev.Path == target || filepath.Base(ev.Path) == "new-file.txt" {
				assert.True(t, ev.IsCreate() || ev.IsModify())
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for create event")
		}
	}
}

func TestStopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	s := Watch(dir)
	assert.True(t, s.Stop()) // first call: control send succeeds
	assert.True(t, s.Stop()) // second call: already closed, reports true
	s.Wait()
}

func TestPollNextEndsAfterStop(t *testing.T) {
	dir := t.TempDir()
	s := Watch(dir)
	s.Stop()
	s.Wait()

	// Stop marks the stream Closed, so PollNext reports PollEnd without
	// draining whatever is still buffered.
	for {
		_, res := s.PollNext(nil)
		if res == PollEnd {
			return
		}
	}
}

func TestPollNextPendingSchedulesWake(t *testing.T) {
	dir := t.TempDir()
	s := Watch(dir)
	defer func() {
		s.Stop()
		s.Wait()
	}()

	woke := make(chan struct{}, 1)
	_, res := s.PollNext(func() { woke <- struct{}{} })
	if res == PollReady {
		return // a stray event (e.g. the dir itself) raced in; acceptable
	}
	assert.Equal(t, PollPending, res)

	select {
	case <-woke:
	case <-time.After(2 * time.Second):
		t.Fatal("wake callback was never invoked")
	}
}
