package control

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/amurg-ai/eigrpd/eigrpd/internal/event"
)

const (
	// DefaultAcceptPause is how long accepting stops after the process or
	// system runs out of descriptors.
	DefaultAcceptPause = time.Second

	listenBacklog = 5
	socketMode    = 0o660
	socketUmask   = 0o117
)

// BindError reports a failure to set up the control socket.
type BindError struct {
	Op   string
	Path string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("control socket %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// ListenerStats counts listener activity.
type ListenerStats struct {
	Accepted uint64 `json:"accepted"`
	Pauses   uint64 `json:"pauses"`
	Errors   uint64 `json:"errors"`
}

// Listener accepts control clients on a Unix stream socket. When accept runs
// out of descriptors it unsubscribes and resumes after a fixed pause, or
// sooner if a client goes away.
type Listener struct {
	path    string
	fd      int
	reactor event.Reactor
	logger  *slog.Logger
	pause   time.Duration

	onAccept func(fd int)
	accept   func(fd int) (int, error)

	listening bool
	paused    bool
	resume    event.Timer
	warn      *rate.Limiter
	stats     ListenerStats
}

// NewListener creates a listener that hands every accepted descriptor to
// onAccept.
func NewListener(reactor event.Reactor, logger *slog.Logger, pause time.Duration, onAccept func(fd int)) *Listener {
	if pause <= 0 {
		pause = DefaultAcceptPause
	}
	return &Listener{
		fd:       -1,
		reactor:  reactor,
		logger:   logger,
		pause:    pause,
		onAccept: onAccept,
		accept:   acceptConn,
		warn:     rate.NewLimiter(rate.Every(10*time.Second), 3),
	}
}

// Init creates the socket at path, replacing a stale one, and restricts it
// to owner and group.
func (l *Listener) Init(path string) error {
	fd, err := socketStream()
	if err != nil {
		return &BindError{Op: "socket", Path: path, Err: err}
	}

	if err := unix.Unlink(path); err != nil && !errors.Is(err, unix.ENOENT) {
		_ = unix.Close(fd)
		return &BindError{Op: "unlink", Path: path, Err: err}
	}

	old := unix.Umask(socketUmask)
	err = unix.Bind(fd, &unix.SockaddrUnix{Name: path})
	unix.Umask(old)
	if err != nil {
		_ = unix.Close(fd)
		return &BindError{Op: "bind", Path: path, Err: err}
	}

	if err := unix.Chmod(path, socketMode); err != nil {
		_ = unix.Close(fd)
		_ = unix.Unlink(path)
		return &BindError{Op: "chmod", Path: path, Err: err}
	}

	l.path = path
	l.fd = fd
	return nil
}

// Listen starts accepting.
func (l *Listener) Listen() error {
	if l.fd < 0 {
		return errors.New("control: listener not initialized")
	}
	if err := unix.Listen(l.fd, listenBacklog); err != nil {
		return &BindError{Op: "listen", Path: l.path, Err: err}
	}
	if err := l.reactor.Register(l.fd, l, event.Read); err != nil {
		return fmt.Errorf("subscribe control socket: %w", err)
	}
	l.listening = true
	l.logger.Info("control socket listening", "path", l.path)
	return nil
}

// OnReadable accepts one pending connection.
func (l *Listener) OnReadable() {
	fd, err := l.accept(l.fd)
	if err != nil {
		switch {
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR), errors.Is(err, unix.ECONNABORTED):
		case errors.Is(err, unix.EMFILE), errors.Is(err, unix.ENFILE):
			l.pauseAccept()
		default:
			l.stats.Errors++
			if l.warn.Allow() {
				l.logger.Warn("accept failed", "error", err)
			}
		}
		return
	}
	l.stats.Accepted++
	l.onAccept(fd)
}

// OnWritable is never subscribed.
func (l *Listener) OnWritable() {}

func (l *Listener) pauseAccept() {
	if l.paused {
		return
	}
	if err := l.reactor.Unregister(l.fd); err != nil {
		l.logger.Debug("unsubscribe control socket", "error", err)
	}
	l.paused = true
	l.stats.Pauses++
	l.resume = l.reactor.AfterFunc(l.pause, l.resumeAccept)
	l.logger.Warn("out of descriptors, pausing accept", "pause", l.pause)
}

func (l *Listener) resumeAccept() {
	if !l.paused {
		return
	}
	l.paused = false
	l.resume = nil
	if err := l.reactor.Register(l.fd, l, event.Read); err != nil {
		l.logger.Error("resubscribe control socket", "error", err)
		return
	}
	l.logger.Debug("accept resumed")
}

// wake resumes accepting early, called when a client descriptor is released.
func (l *Listener) wake() {
	if !l.paused {
		return
	}
	if l.resume != nil {
		l.resume.Stop()
	}
	l.resumeAccept()
}

// Paused reports whether accepting is suspended.
func (l *Listener) Paused() bool { return l.paused }

// Stats returns the activity counters.
func (l *Listener) Stats() ListenerStats { return l.stats }

// Path is the socket path.
func (l *Listener) Path() string { return l.path }

// Close stops accepting, closes the socket and removes its path.
func (l *Listener) Close() error {
	if l.fd < 0 {
		return nil
	}
	if l.resume != nil {
		l.resume.Stop()
		l.resume = nil
	}
	if l.listening && !l.paused {
		_ = l.reactor.Unregister(l.fd)
	}
	l.paused = false
	l.listening = false

	err := unix.Close(l.fd)
	l.fd = -1
	if uerr := unix.Unlink(l.path); uerr != nil && !errors.Is(uerr, unix.ENOENT) && err == nil {
		err = uerr
	}
	return err
}
