package watch

import (
	"sync"
	"time"

	"github.com/watchkit/fswatch/internal/wlog"
)

// eventChanCap sizes the relay channel between the queue pump and
// PollNext/Events (below), not the event queue itself — the queue is
// unbounded (spec.md §5: "senders never block"). The relay buffer just
// lets the pump stay ahead of a consumer polling in short bursts instead
// of handing off one event at a time.
const eventChanCap = 64

// eventQueue is an unbounded, non-blocking event queue: push always
// succeeds and never blocks, no matter how far behind the consumer is.
// Adapters push directly into it from their native read loop, so a slow
// or stalled consumer can never stall fanotify/inotify/FSEvents delivery
// the way a bounded channel's full-buffer drop or block would. A
// separate pump goroutine (see Watch) drains it into the bounded relay
// channel that PollNext/Events actually read from.
type eventQueue struct {
	mu     sync.Mutex
	buf    []Event
	closed bool
	notify chan struct{} // capacity 1; signals "buf or closed changed"
}

func newEventQueue() *eventQueue {
	return &eventQueue{notify: make(chan struct{}, 1)}
}

// push appends ev unconditionally. It never blocks and never drops.
func (q *eventQueue) push(ev Event) {
	q.mu.Lock()
	q.buf = append(q.buf, ev)
	q.mu.Unlock()
	q.wake()
}

// tryPop removes and returns the oldest queued event, if any.
func (q *eventQueue) tryPop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		return Event{}, false
	}
	ev := q.buf[0]
	q.buf = q.buf[1:]
	return ev, true
}

// closeQueue marks the queue closed: no more pushes are expected, and
// once drained, tryPop will report an empty queue forever.
func (q *eventQueue) closeQueue() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

func (q *eventQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *eventQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// state is the EventStream lifecycle: Open transitions to Closed exactly
// once, on explicit Stop or on channel disconnection; Closed is terminal.
type state int32

const (
	stateOpen state = iota
	stateClosed
)

// PollResult is the outcome of a single [EventStream.PollNext] call.
type PollResult int

const (
	// PollPending means no event is available yet; wake will be called
	// once the next backoff tick elapses.
	PollPending PollResult = iota
	// PollReady means an event was returned.
	PollReady
	// PollEnd means the stream is finished; no further events will ever
	// be produced.
	PollEnd
)

// EventStream is a pull-based handle on a single watched root. It owns a
// worker goroutine running the platform adapter, the control sender end
// of a one-directional channel, an unbounded event queue the adapter
// pushes into, a pump goroutine relaying that queue into a bounded
// channel for PollNext/Events, and an adaptive backoff cursor used by
// [EventStream.PollNext].
//
// Go has no built-in Future/Waker the way an async Rust Stream does;
// PollNext's wake parameter is the natural analogue — callers that want
// the exact Pending/backoff contract pass a callback to be invoked when
// it's worth polling again. Callers who just want ordinary Go channel
// consumption can use [EventStream.Events] instead; both surfaces are
// backed by the same underlying relay channel.
type EventStream struct {
	mu       sync.Mutex
	st       state
	ctlTx    chan<- bool
	eventRx  <-chan Event
	workerWG sync.WaitGroup
	done     chan struct{} // closed when the worker goroutine returns

	delayMu sync.Mutex
	delay   delay
	waker   *time.Timer
}

// Watch spawns a worker goroutine that runs the platform adapter rooted at
// path and a pump goroutine relaying its events, and returns an EventStream
// in the Open state with a fresh delay cursor at index 0 and no pending
// waker. The constructor never fails: any initialization error inside the
// adapter surfaces as an immediate end-of-stream, matching spec.md §6.
func Watch(path string) *EventStream {
	ctl := make(chan bool, 1)
	queue := newEventQueue()
	eventRx := make(chan Event, eventChanCap)

	s := &EventStream{
		st:      stateOpen,
		ctlTx:   ctl,
		eventRx: eventRx,
		delay:   newDelay(),
		done:    make(chan struct{}),
	}

	s.workerWG.Add(1)
	go func() {
		defer s.workerWG.Done()
		defer close(s.done)
		ok := adapterOpen(path, queue, ctl)
		if ok {
			queue.push(sentinel)
		} else {
			wlog.Printf("watch(%q): adapter exited with failure", path)
		}
		queue.closeQueue()
	}()

	// The pump is the only thing that can block on eventRx; it is
	// decoupled from the adapter's read loop, so a consumer that falls
	// behind slows the pump, never the platform watch itself.
	go func() {
		for {
			ev, ok := queue.tryPop()
			if ok {
				eventRx <- ev
				continue
			}
			if queue.isClosed() {
				close(eventRx)
				return
			}
			<-queue.notify
		}
	}()

	return s
}

func (s *EventStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st == stateClosed
}

// PollNext attempts to deliver the next event without blocking. On
// PollPending, wake (if non-nil) will be invoked once after the current
// backoff delay elapses; callers should call PollNext again at that point.
func (s *EventStream) PollNext(wake func()) (Event, PollResult) {
	if s.isClosed() {
		return Event{}, PollEnd
	}

	select {
	case ev, ok := <-s.eventRx:
		if !ok {
			s.close()
			return Event{}, PollEnd
		}
		s.delayMu.Lock()
		s.delay = s.delay.reset()
		s.delayMu.Unlock()
		return ev, PollReady

	default:
		s.delayMu.Lock()
		if s.waker == nil && wake != nil {
			s.delay = s.delay.next()
			d := s.delay.duration()
			s.waker = time.AfterFunc(d, func() {
				s.delayMu.Lock()
				s.waker = nil
				s.delayMu.Unlock()
				wake()
			})
		}
		s.delayMu.Unlock()
		return Event{}, PollPending
	}
}

// Events returns a channel of events for consumers that prefer ordinary Go
// channel consumption over the explicit poll/wake contract. It is backed
// by the same underlying channel PollNext reads from; use one surface or
// the other, not both, on a given EventStream.
func (s *EventStream) Events() <-chan Event { return s.eventRx }

func (s *EventStream) close() {
	s.mu.Lock()
	s.st = stateClosed
	s.mu.Unlock()
}

// Stop requests cooperative shutdown. It is idempotent: calling it on an
// already-Closed stream returns true. Otherwise it marks the stream
// Closed, sends false on the control channel, and reports whether that
// send succeeded. Go provides no way to forcibly abort a running
// goroutine the way an async runtime can abort a task; the worker is
// expected to observe the control value and return on its own, which
// every adapter's poll loop does within one 16ms tick.
func (s *EventStream) Stop() bool {
	s.mu.Lock()
	if s.st == stateClosed {
		s.mu.Unlock()
		return true
	}
	s.st = stateClosed
	s.mu.Unlock()

	sent := false
	select {
	case s.ctlTx <- false:
		sent = true
	default:
	}
	return sent
}

// Wait blocks until the worker goroutine has returned. Intended for tests;
// ordinary consumers should rely on PollNext/Events reaching end-of-stream.
func (s *EventStream) Wait() {
	s.workerWG.Wait()
}
