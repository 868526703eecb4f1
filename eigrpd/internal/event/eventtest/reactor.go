// Package eventtest provides a manual event.Reactor for handler tests.
package eventtest

import (
	"fmt"
	"sort"
	"time"

	"github.com/amurg-ai/eigrpd/eigrpd/internal/event"
)

// Reactor records registrations and holds timers until Advance is called.
// It is not safe for concurrent use.
type Reactor struct {
	handlers map[int]*reg
	timers   []*Timer
	now      time.Duration
}

type reg struct {
	h  event.Handler
	ev event.Events
}

var _ event.Reactor = (*Reactor)(nil)

// New returns an empty reactor.
func New() *Reactor {
	return &Reactor{handlers: make(map[int]*reg)}
}

func (r *Reactor) Register(fd int, h event.Handler, ev event.Events) error {
	if _, ok := r.handlers[fd]; ok {
		return fmt.Errorf("eventtest: fd %d already registered", fd)
	}
	r.handlers[fd] = &reg{h: h, ev: ev}
	return nil
}

func (r *Reactor) Modify(fd int, ev event.Events) error {
	g, ok := r.handlers[fd]
	if !ok {
		return fmt.Errorf("eventtest: fd %d not registered", fd)
	}
	g.ev = ev
	return nil
}

func (r *Reactor) Unregister(fd int) error {
	if _, ok := r.handlers[fd]; !ok {
		return fmt.Errorf("eventtest: fd %d not registered", fd)
	}
	delete(r.handlers, fd)
	return nil
}

// Interest reports the current interest set of fd.
func (r *Reactor) Interest(fd int) (event.Events, bool) {
	g, ok := r.handlers[fd]
	if !ok {
		return 0, false
	}
	return g.ev, true
}

// Handler returns the handler registered for fd, or nil.
func (r *Reactor) Handler(fd int) event.Handler {
	if g, ok := r.handlers[fd]; ok {
		return g.h
	}
	return nil
}

// Len is the number of registered descriptors.
func (r *Reactor) Len() int { return len(r.handlers) }

// FDs returns the registered descriptors in ascending order.
func (r *Reactor) FDs() []int {
	fds := make([]int, 0, len(r.handlers))
	for fd := range r.handlers {
		fds = append(fds, fd)
	}
	sort.Ints(fds)
	return fds
}

// Readable delivers a read notification to fd if it is subscribed for reads.
func (r *Reactor) Readable(fd int) bool {
	g, ok := r.handlers[fd]
	if !ok || g.ev&event.Read == 0 {
		return false
	}
	g.h.OnReadable()
	return true
}

// Writable delivers a write notification to fd if it is subscribed for writes.
func (r *Reactor) Writable(fd int) bool {
	g, ok := r.handlers[fd]
	if !ok || g.ev&event.Write == 0 {
		return false
	}
	g.h.OnWritable()
	return true
}

// Flush delivers write notifications until no descriptor wants to write.
func (r *Reactor) Flush() {
	for progress := true; progress; {
		progress = false
		for _, fd := range r.FDs() {
			if r.Writable(fd) {
				progress = true
			}
		}
	}
}

// Timer is a timer armed on Reactor.
type Timer struct {
	at      time.Duration
	f       func()
	pending bool
}

func (t *Timer) Stop() bool {
	was := t.pending
	t.pending = false
	return was
}

func (t *Timer) Pending() bool { return t.pending }

func (r *Reactor) AfterFunc(d time.Duration, f func()) event.Timer {
	t := &Timer{at: r.now + d, f: f, pending: true}
	r.timers = append(r.timers, t)
	return t
}

// PendingTimers counts armed timers.
func (r *Reactor) PendingTimers() int {
	n := 0
	for _, t := range r.timers {
		if t.pending {
			n++
		}
	}
	return n
}

// Advance moves the fake clock forward and fires every timer that became due.
func (r *Reactor) Advance(d time.Duration) {
	r.now += d
	due := r.timers[:0:0]
	keep := r.timers[:0]
	for _, t := range r.timers {
		switch {
		case !t.pending:
		case t.at <= r.now:
			due = append(due, t)
		default:
			keep = append(keep, t)
		}
	}
	r.timers = keep
	for _, t := range due {
		t.pending = false
		t.f()
	}
}
