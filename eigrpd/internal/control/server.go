// Package control is the broker between control clients on the local socket
// and the rest of the daemon. It runs entirely on the engine's event loop.
package control

import (
	"log/slog"
	"time"

	"golang.org/x/sys/unix"

	"github.com/amurg-ai/eigrpd/eigrpd/internal/event"
	"github.com/amurg-ai/eigrpd/eigrpd/internal/ipc"
	"github.com/amurg-ai/eigrpd/pkg/ctl"
	"github.com/amurg-ai/eigrpd/pkg/imsg"
)

// Options tune a Server.
type Options struct {
	// AcceptPause overrides DefaultAcceptPause.
	AcceptPause time.Duration
}

// Server owns the listener, the client registry and the dispatcher.
type Server struct {
	reactor  event.Reactor
	logger   *slog.Logger
	reg      *Registry
	disp     *Dispatcher
	listener *Listener
	now      func() time.Time
}

// NewServer creates a broker. Listen must be called before clients can
// connect.
func NewServer(reactor event.Reactor, collab Collaborators, logger *slog.Logger, opts Options) *Server {
	logger = logger.With("component", "control")
	s := &Server{
		reactor: reactor,
		logger:  logger,
		reg:     NewRegistry(logger),
		now:     time.Now,
	}
	s.disp = NewDispatcher(collab, s.reg, logger)
	s.listener = NewListener(reactor, logger, opts.AcceptPause, s.accept)
	return s
}

// Listen binds the control socket at path and starts accepting.
func (s *Server) Listen(path string) error {
	if err := s.listener.Init(path); err != nil {
		return err
	}
	if err := s.listener.Listen(); err != nil {
		_ = s.listener.Close()
		return err
	}
	return nil
}

func (s *Server) accept(fd int) {
	c := newConn(s.now())
	c.Channel = ipc.NewChannel(fd, s.reactor, s.logger.With("client", c.id),
		func(m imsg.Message) { s.disp.Dispatch(c, m) },
		func() { s.release(c) })

	if err := s.reg.Add(c); err != nil {
		s.logger.Error("register client", "fd", fd, "error", err)
		_ = unix.Close(fd)
		return
	}
	if err := c.Start(); err != nil {
		s.logger.Error("subscribe client", "fd", fd, "error", err)
		c.Close()
		return
	}
	s.logger.Debug("client connected", "fd", fd, "client", c.id)
}

func (s *Server) release(c *Conn) {
	s.reg.Remove(c)
	s.logger.Debug("client disconnected", "fd", c.FD(), "client", c.id)
	s.listener.wake()
}

// Relay delivers a reply from a worker to the client that owns m.PID. It
// reports false when no such client is connected.
func (s *Server) Relay(m imsg.Message) bool {
	c := s.reg.ByPID(m.PID)
	if c == nil {
		s.logger.Debug("relay target gone", "type", ctl.Type(m.Type), "pid", m.PID)
		return false
	}
	if err := c.Send(m); err != nil {
		s.logger.Debug("relay failed", "type", ctl.Type(m.Type), "pid", m.PID, "error", err)
		return false
	}
	return true
}

// Clients returns a snapshot of the live clients.
func (s *Server) Clients() []ClientInfo {
	out := make([]ClientInfo, 0, s.reg.Len())
	s.reg.Each(func(c *Conn) bool {
		out = append(out, c.info())
		return true
	})
	return out
}

// Paused reports whether accepting is suspended.
func (s *Server) Paused() bool { return s.listener.Paused() }

// Stats returns the listener counters.
func (s *Server) Stats() ListenerStats { return s.listener.Stats() }

// Cleanup disconnects every client and removes the control socket.
func (s *Server) Cleanup() {
	var conns []*Conn
	s.reg.Each(func(c *Conn) bool {
		conns = append(conns, c)
		return true
	})
	for _, c := range conns {
		c.Close()
	}
	if err := s.listener.Close(); err != nil {
		s.logger.Warn("close control socket", "error", err)
	}
}
