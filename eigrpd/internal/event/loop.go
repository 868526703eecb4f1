// Package event is the single-threaded reactor the protocol engine runs on.
//
// A Loop multiplexes descriptor readiness and one-shot timers onto one
// goroutine. Handlers, timer callbacks and posted functions all run on that
// goroutine, so state they share needs no locking.
package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Events is a readiness interest set.
type Events uint8

const (
	Read Events = 1 << iota
	Write
)

func (e Events) String() string {
	switch e {
	case 0:
		return "none"
	case Read:
		return "read"
	case Write:
		return "write"
	case Read | Write:
		return "read|write"
	default:
		return fmt.Sprintf("events(%d)", uint8(e))
	}
}

// Handler receives readiness notifications for one descriptor.
type Handler interface {
	OnReadable()
	OnWritable()
}

// Reactor is the subset of Loop that handlers need. It lets tests drive
// handlers without a real poller.
type Reactor interface {
	Register(fd int, h Handler, ev Events) error
	Modify(fd int, ev Events) error
	Unregister(fd int) error
	AfterFunc(d time.Duration, f func()) Timer
}

// ErrClosed is returned by operations on a closed Loop.
var ErrClosed = errors.New("event: loop closed")

type registration struct {
	h  Handler
	ev Events
}

// Loop is an epoll-backed reactor.
type Loop struct {
	poller poller
	logger *slog.Logger

	handlers map[int]*registration
	// stale holds descriptors unregistered while a batch of readiness events
	// is being delivered; remaining events for them are skipped.
	stale   map[int]struct{}
	timers  timerHeap
	stopped bool

	postMu sync.Mutex
	posted []func()
	closed bool
}

var _ Reactor = (*Loop)(nil)

// New creates a loop.
func New(logger *slog.Logger) (*Loop, error) {
	p, err := newPoller()
	if err != nil {
		return nil, fmt.Errorf("create poller: %w", err)
	}
	return &Loop{
		poller:   p,
		logger:   logger.With("component", "event-loop"),
		handlers: make(map[int]*registration),
	}, nil
}

// Register subscribes h to readiness on fd.
func (l *Loop) Register(fd int, h Handler, ev Events) error {
	if _, ok := l.handlers[fd]; ok {
		return fmt.Errorf("event: fd %d already registered", fd)
	}
	if err := l.poller.add(fd, ev); err != nil {
		return fmt.Errorf("event: register fd %d: %w", fd, err)
	}
	l.handlers[fd] = &registration{h: h, ev: ev}
	delete(l.stale, fd)
	return nil
}

// Modify replaces the interest set for fd.
func (l *Loop) Modify(fd int, ev Events) error {
	reg, ok := l.handlers[fd]
	if !ok {
		return fmt.Errorf("event: fd %d not registered", fd)
	}
	if reg.ev == ev {
		return nil
	}
	if err := l.poller.mod(fd, ev); err != nil {
		return fmt.Errorf("event: modify fd %d: %w", fd, err)
	}
	reg.ev = ev
	return nil
}

// Unregister drops every subscription on fd. It must be called before the
// descriptor is closed.
func (l *Loop) Unregister(fd int) error {
	if _, ok := l.handlers[fd]; !ok {
		return fmt.Errorf("event: fd %d not registered", fd)
	}
	delete(l.handlers, fd)
	if l.stale != nil {
		l.stale[fd] = struct{}{}
	}
	if err := l.poller.del(fd); err != nil {
		return fmt.Errorf("event: unregister fd %d: %w", fd, err)
	}
	return nil
}

// Registered reports the interest set for fd.
func (l *Loop) Registered(fd int) (Events, bool) {
	reg, ok := l.handlers[fd]
	if !ok {
		return 0, false
	}
	return reg.ev, true
}

// AfterFunc arms a one-shot timer that runs f on the loop goroutine.
func (l *Loop) AfterFunc(d time.Duration, f func()) Timer {
	t := &timer{when: time.Now().Add(d), f: f, heap: &l.timers, index: -1}
	l.timers.push(t)
	return t
}

// Post queues f to run on the loop goroutine. Safe from any goroutine.
func (l *Loop) Post(f func()) error {
	l.postMu.Lock()
	if l.closed {
		l.postMu.Unlock()
		return ErrClosed
	}
	l.posted = append(l.posted, f)
	l.postMu.Unlock()
	return l.poller.wakeup()
}

// Call runs f on the loop goroutine and waits for it to finish. It must not
// be called from the loop goroutine itself.
func (l *Loop) Call(ctx context.Context, f func()) error {
	done := make(chan struct{})
	if err := l.Post(func() {
		f()
		close(done)
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run dispatches events until ctx is canceled.
func (l *Loop) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		_ = l.Post(func() { l.stopped = true })
	})
	defer stop()

	l.stopped = false
	for !l.stopped {
		if err := l.RunOnce(-1); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// RunOnce waits at most timeout (negative means until the next timer or
// event) and dispatches whatever became ready.
func (l *Loop) RunOnce(timeout time.Duration) error {
	if d, ok := l.timers.next(time.Now()); ok && (timeout < 0 || d < timeout) {
		timeout = d
	}
	if l.hasPosted() {
		timeout = 0
	}

	l.stale = make(map[int]struct{})
	err := l.poller.wait(timeout, l.dispatch)
	l.stale = nil
	if err != nil {
		return fmt.Errorf("event: wait: %w", err)
	}

	l.timers.fire(time.Now())
	l.runPosted()
	return nil
}

func (l *Loop) dispatch(fd int, readable, writable bool) {
	if _, ok := l.stale[fd]; ok {
		return
	}
	reg, ok := l.handlers[fd]
	if !ok {
		return
	}
	if readable && reg.ev&Read != 0 {
		reg.h.OnReadable()
	}
	// The read handler may have torn the descriptor down.
	if _, ok := l.stale[fd]; ok {
		return
	}
	if reg, ok = l.handlers[fd]; ok && writable && reg.ev&Write != 0 {
		reg.h.OnWritable()
	}
}

func (l *Loop) hasPosted() bool {
	l.postMu.Lock()
	defer l.postMu.Unlock()
	return len(l.posted) > 0
}

func (l *Loop) runPosted() {
	l.postMu.Lock()
	fns := l.posted
	l.posted = nil
	l.postMu.Unlock()

	for _, f := range fns {
		f()
	}
}

// Close releases the poller. Registered descriptors are not closed.
func (l *Loop) Close() error {
	l.postMu.Lock()
	if l.closed {
		l.postMu.Unlock()
		return nil
	}
	l.closed = true
	l.postMu.Unlock()

	for _, t := range l.timers.items {
		t.index = -1
	}
	l.timers.items = nil
	l.handlers = make(map[int]*registration)
	return l.poller.close()
}
