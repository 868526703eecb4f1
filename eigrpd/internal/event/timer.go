package event

import (
	"container/heap"
	"time"
)

// Timer is a one-shot callback armed with Loop.AfterFunc.
type Timer interface {
	// Stop cancels the timer. It reports whether the call prevented the
	// callback from running.
	Stop() bool
	// Pending reports whether the callback is still scheduled.
	Pending() bool
}

type timer struct {
	when  time.Time
	f     func()
	heap  *timerHeap
	index int // position in heap, -1 when not scheduled
}

func (t *timer) Stop() bool {
	if t.index < 0 {
		return false
	}
	heap.Remove(t.heap, t.index)
	return true
}

func (t *timer) Pending() bool {
	return t.index >= 0
}

// timerHeap is a min-heap on deadline.
type timerHeap struct {
	items []*timer
}

func (h *timerHeap) Len() int           { return len(h.items) }
func (h *timerHeap) Less(i, j int) bool { return h.items[i].when.Before(h.items[j].when) }

func (h *timerHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*timer)
	t.index = len(h.items)
	h.items = append(h.items, t)
}

func (h *timerHeap) Pop() any {
	n := len(h.items)
	t := h.items[n-1]
	h.items[n-1] = nil
	h.items = h.items[:n-1]
	t.index = -1
	return t
}

func (h *timerHeap) push(t *timer) {
	heap.Push(h, t)
}

// next returns the time until the earliest deadline.
func (h *timerHeap) next(now time.Time) (time.Duration, bool) {
	if len(h.items) == 0 {
		return 0, false
	}
	return max(h.items[0].when.Sub(now), 0), true
}

// fire runs every timer due at now. Callbacks may arm or stop timers.
func (h *timerHeap) fire(now time.Time) {
	for len(h.items) > 0 && !h.items[0].when.After(now) {
		t := heap.Pop(h).(*timer)
		t.f()
	}
}
