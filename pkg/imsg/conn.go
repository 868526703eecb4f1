package imsg

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// Conn is a blocking framed connection. Reads must come from a single
// goroutine; writes may come from several.
type Conn struct {
	rwc io.ReadWriteCloser

	rbuf    []byte
	scratch []byte

	wmu  sync.Mutex
	wbuf []byte
}

// NewConn wraps rwc.
func NewConn(rwc io.ReadWriteCloser) *Conn {
	return &Conn{
		rwc:     rwc,
		scratch: make([]byte, 4096),
	}
}

// ReadMessage blocks until one full frame has arrived. A peer that closes
// mid-frame yields io.ErrUnexpectedEOF; a clean close between frames yields
// io.EOF.
func (c *Conn) ReadMessage() (Message, error) {
	for {
		msg, n, err := TryDecode(c.rbuf)
		switch {
		case err == nil:
			c.rbuf = c.rbuf[n:]
			if len(c.rbuf) == 0 {
				c.rbuf = nil
			}
			return msg, nil
		case !errors.Is(err, ErrNeedMore):
			return Message{}, err
		}

		nr, rerr := c.rwc.Read(c.scratch)
		if nr > 0 {
			c.rbuf = append(c.rbuf, c.scratch[:nr]...)
			continue
		}
		if rerr == nil {
			continue
		}
		if errors.Is(rerr, io.EOF) && len(c.rbuf) > 0 {
			return Message{}, io.ErrUnexpectedEOF
		}
		return Message{}, rerr
	}
}

// WriteMessage encodes and writes m in one call.
func (c *Conn) WriteMessage(m Message) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	buf, err := AppendEncode(c.wbuf[:0], m)
	if err != nil {
		return err
	}
	c.wbuf = buf
	if _, err := c.rwc.Write(buf); err != nil {
		return fmt.Errorf("write imsg: %w", err)
	}
	return nil
}

// Compose builds and writes a message.
func (c *Conn) Compose(typ, peerID, pid uint32, data []byte) error {
	return c.WriteMessage(New(typ, peerID, pid, data))
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.rwc.Close()
}
