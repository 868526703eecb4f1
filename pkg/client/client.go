// Package client talks to the eigrpd control socket.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/amurg-ai/eigrpd/pkg/ctl"
	"github.com/amurg-ai/eigrpd/pkg/imsg"
)

// DefaultSocket is where eigrpd listens unless configured otherwise.
const DefaultSocket = "/var/run/eigrpd.sock"

// ErrClosed is returned after Close.
var ErrClosed = errors.New("client: connection closed")

// Client is a control connection. Requests are serialized; the daemon answers
// one request at a time per connection.
type Client struct {
	conn net.Conn
	ic   *imsg.Conn
	pid  uint32

	mu     sync.Mutex
	closed bool
}

// Dial connects to the control socket at path.
func Dial(ctx context.Context, path string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("dial control socket: %w", err)
	}
	return New(conn, uint32(os.Getpid())), nil
}

// New wraps an established connection. pid tags every request.
func New(conn net.Conn, pid uint32) *Client {
	return &Client{conn: conn, ic: imsg.NewConn(conn), pid: pid}
}

// PID returns the pid requests are tagged with.
func (c *Client) PID() uint32 { return c.pid }

// Send writes one request that has no reply.
func (c *Client) Send(typ ctl.Type, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.ic.Compose(uint32(typ), 0, c.pid, data)
}

// Stream writes a request and calls fn for every reply until CtlEnd.
func (c *Client) Stream(ctx context.Context, typ ctl.Type, data []byte, fn func(imsg.Message) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(dl)
		defer func() { _ = c.conn.SetDeadline(time.Time{}) }()
	}
	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetDeadline(time.Now()) })
	defer stop()

	if err := c.ic.Compose(uint32(typ), 0, c.pid, data); err != nil {
		return c.wrap(ctx, err)
	}
	for {
		m, err := c.ic.ReadMessage()
		if err != nil {
			return c.wrap(ctx, err)
		}
		if ctl.Type(m.Type) == ctl.CtlEnd {
			return nil
		}
		if err := fn(m); err != nil {
			return err
		}
	}
}

// Request writes a request and collects the replies up to CtlEnd.
func (c *Client) Request(ctx context.Context, typ ctl.Type, data []byte) ([]imsg.Message, error) {
	var out []imsg.Message
	err := c.Stream(ctx, typ, data, func(m imsg.Message) error {
		out = append(out, m)
		return nil
	})
	return out, err
}

func (c *Client) wrap(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("control request: %w", err)
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

func decode[T ctl.Record](msgs []imsg.Message, want ctl.Type) ([]T, error) {
	out := make([]T, 0, len(msgs))
	for _, m := range msgs {
		if ctl.Type(m.Type) != want {
			return nil, fmt.Errorf("unexpected reply %s", ctl.Type(m.Type))
		}
		v, err := ctl.Unmarshal[T](m.Data)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Interfaces lists EIGRP interfaces; ifindex 0 lists all.
func (c *Client) Interfaces(ctx context.Context, ifindex uint32) ([]ctl.Iface, error) {
	msgs, err := c.Request(ctx, ctl.CtlShowInterface, ctl.PutUint32(ifindex))
	if err != nil {
		return nil, err
	}
	return decode[ctl.Iface](msgs, ctl.CtlIface)
}

// Neighbors lists adjacencies.
func (c *Client) Neighbors(ctx context.Context) ([]ctl.Nbr, error) {
	msgs, err := c.Request(ctx, ctl.CtlShowNbr, nil)
	if err != nil {
		return nil, err
	}
	return decode[ctl.Nbr](msgs, ctl.CtlShowNbr)
}

// Topology queries the route-decision process.
func (c *Client) Topology(ctx context.Context, req ctl.ShowTopologyReq) ([]ctl.Topo, error) {
	msgs, err := c.Request(ctx, ctl.CtlShowTopology, ctl.Marshal(req))
	if err != nil {
		return nil, err
	}
	return decode[ctl.Topo](msgs, ctl.CtlShowTopology)
}

// Stats returns per-instance counters.
func (c *Client) Stats(ctx context.Context) ([]ctl.Stats, error) {
	msgs, err := c.Request(ctx, ctl.CtlShowStats, nil)
	if err != nil {
		return nil, err
	}
	return decode[ctl.Stats](msgs, ctl.CtlShowStats)
}

// Kroutes lists the forwarding table. A nil filter lists every family.
func (c *Client) Kroutes(ctx context.Context, filter *ctl.Kroute) ([]ctl.Kroute, error) {
	var data []byte
	if filter != nil {
		data = ctl.Marshal(*filter)
	}
	msgs, err := c.Request(ctx, ctl.CtlKroute, data)
	if err != nil {
		return nil, err
	}
	return decode[ctl.Kroute](msgs, ctl.CtlKroute)
}

// Ifinfo lists host interfaces; ifindex 0 lists all.
func (c *Client) Ifinfo(ctx context.Context, ifindex uint32) ([]ctl.Ifinfo, error) {
	var data []byte
	if ifindex != 0 {
		data = ctl.PutUint32(ifindex)
	}
	msgs, err := c.Request(ctx, ctl.CtlIfinfo, data)
	if err != nil {
		return nil, err
	}
	return decode[ctl.Ifinfo](msgs, ctl.CtlIfinfo)
}

// Reload asks the daemon to re-read its configuration.
func (c *Client) Reload() error { return c.Send(ctl.CtlReload, nil) }

// Couple couples or decouples the FIB from the kernel.
func (c *Client) Couple(coupled bool) error {
	if coupled {
		return c.Send(ctl.CtlFibCouple, nil)
	}
	return c.Send(ctl.CtlFibDecouple, nil)
}

// ClearNeighbors resets the adjacencies matching nbr.
func (c *Client) ClearNeighbors(nbr ctl.Nbr) error {
	return c.Send(ctl.CtlClearNbr, ctl.Marshal(nbr))
}

// LogVerbose switches the daemon's log level; v > 0 enables debug.
func (c *Client) LogVerbose(v int32) error {
	return c.Send(ctl.CtlLogVerbose, ctl.PutVerbose(v))
}
