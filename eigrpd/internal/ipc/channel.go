// Package ipc implements the non-blocking framed channel used on the event
// loop for control clients and for the workers' socketpairs.
package ipc

import (
	"errors"
	"log/slog"

	"golang.org/x/sys/unix"

	"github.com/amurg-ai/eigrpd/eigrpd/internal/event"
	"github.com/amurg-ai/eigrpd/pkg/imsg"
)

const readSize = 64 * 1024

// ErrClosed is returned when writing to a closed channel.
var ErrClosed = errors.New("ipc: channel closed")

// Channel owns a non-blocking stream descriptor and frames imsg traffic on
// it. All methods must be called from the loop goroutine.
type Channel struct {
	fd      int
	reactor event.Reactor
	logger  *slog.Logger

	onMessage func(imsg.Message)
	onClose   func()

	rbuf    []byte
	wbuf    []byte
	scratch []byte
	writing bool
	started bool
	closed  bool
}

// NewChannel wraps fd. onMessage runs for every decoded frame and onClose
// runs once after the channel has been torn down.
func NewChannel(fd int, reactor event.Reactor, logger *slog.Logger, onMessage func(imsg.Message), onClose func()) *Channel {
	return &Channel{
		fd:        fd,
		reactor:   reactor,
		logger:    logger,
		onMessage: onMessage,
		onClose:   onClose,
	}
}

// Start subscribes the channel for reads.
func (c *Channel) Start() error {
	ev := event.Read
	if len(c.wbuf) > 0 {
		ev |= event.Write
		c.writing = true
	}
	if err := c.reactor.Register(c.fd, c, ev); err != nil {
		return err
	}
	c.started = true
	return nil
}

// FD returns the descriptor.
func (c *Channel) FD() int { return c.fd }

// Closed reports whether the channel has been torn down.
func (c *Channel) Closed() bool { return c.closed }

// Pending returns the number of buffered outbound bytes.
func (c *Channel) Pending() int { return len(c.wbuf) }

// OnReadable performs one read and hands every complete frame to onMessage.
func (c *Channel) OnReadable() {
	if c.closed {
		return
	}
	if c.scratch == nil {
		c.scratch = make([]byte, readSize)
	}

	n, err := unix.Read(c.fd, c.scratch)
	switch {
	case err != nil:
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return
		}
		c.logger.Debug("read failed", "fd", c.fd, "error", err)
		c.Close()
		return
	case n == 0:
		c.Close()
		return
	}
	c.rbuf = append(c.rbuf, c.scratch[:n]...)

	for !c.closed {
		msg, used, err := imsg.TryDecode(c.rbuf)
		if errors.Is(err, imsg.ErrNeedMore) {
			break
		}
		if err != nil {
			c.logger.Warn("malformed frame, closing", "fd", c.fd, "error", err)
			c.Close()
			return
		}
		c.rbuf = c.rbuf[used:]
		c.onMessage(msg)
	}
	if len(c.rbuf) == 0 {
		c.rbuf = nil
	}
}

// OnWritable performs one write of the outbound buffer.
func (c *Channel) OnWritable() {
	if c.closed || len(c.wbuf) == 0 {
		c.stopWriting()
		return
	}

	n, err := unix.Write(c.fd, c.wbuf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return
		}
		c.logger.Debug("write failed", "fd", c.fd, "error", err)
		c.Close()
		return
	}
	c.wbuf = c.wbuf[n:]
	if len(c.wbuf) == 0 {
		c.wbuf = nil
		c.stopWriting()
	}
}

func (c *Channel) stopWriting() {
	if !c.writing || c.closed {
		return
	}
	if err := c.reactor.Modify(c.fd, event.Read); err != nil {
		c.logger.Debug("drop write interest", "fd", c.fd, "error", err)
	}
	c.writing = false
}

// Enqueue appends an encoded frame to the outbound buffer.
func (c *Channel) Enqueue(b []byte) error {
	if c.closed {
		return ErrClosed
	}
	c.wbuf = append(c.wbuf, b...)
	if c.writing || !c.started {
		return nil
	}
	if err := c.reactor.Modify(c.fd, event.Read|event.Write); err != nil {
		return err
	}
	c.writing = true
	return nil
}

// Send encodes and enqueues m.
func (c *Channel) Send(m imsg.Message) error {
	if c.closed {
		return ErrClosed
	}
	buf, err := imsg.AppendEncode(nil, m)
	if err != nil {
		return err
	}
	return c.Enqueue(buf)
}

// Compose builds and enqueues a message.
func (c *Channel) Compose(typ, peerID, pid uint32, data []byte) error {
	return c.Send(imsg.New(typ, peerID, pid, data))
}

// Close unsubscribes and closes the descriptor, drops both buffers and runs
// onClose. Later calls do nothing.
func (c *Channel) Close() {
	if c.closed {
		return
	}
	c.closed = true
	if c.started {
		if err := c.reactor.Unregister(c.fd); err != nil {
			c.logger.Debug("unregister", "fd", c.fd, "error", err)
		}
	}
	if err := unix.Close(c.fd); err != nil {
		c.logger.Debug("close", "fd", c.fd, "error", err)
	}
	c.rbuf = nil
	c.wbuf = nil
	c.writing = false
	if c.onClose != nil {
		c.onClose()
	}
}
