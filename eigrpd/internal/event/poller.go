package event

import "time"

// poller is the OS readiness interface behind Loop.
type poller interface {
	add(fd int, ev Events) error
	mod(fd int, ev Events) error
	del(fd int) error
	// wait blocks up to timeout (negative: forever) and calls fn for every
	// ready descriptor.
	wait(timeout time.Duration, fn func(fd int, readable, writable bool)) error
	// wakeup interrupts a concurrent wait.
	wakeup() error
	close() error
}
