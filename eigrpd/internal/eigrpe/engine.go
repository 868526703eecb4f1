// Package eigrpe is the protocol engine process. It owns the event loop, the
// control broker, the channels to the parent and route-decision workers, and
// the interface, neighbor and statistics tables the broker answers from.
package eigrpe

import (
	"fmt"
	"log/slog"

	"github.com/amurg-ai/eigrpd/eigrpd/internal/config"
	"github.com/amurg-ai/eigrpd/eigrpd/internal/control"
	"github.com/amurg-ai/eigrpd/eigrpd/internal/event"
	"github.com/amurg-ai/eigrpd/eigrpd/internal/ipc"
	"github.com/amurg-ai/eigrpd/pkg/ctl"
	"github.com/amurg-ai/eigrpd/pkg/imsg"
)

// Worker replies that are passed back to the requesting control client.
var (
	parentRelay = map[ctl.Type]bool{ctl.CtlKroute: true, ctl.CtlIfinfo: true, ctl.CtlEnd: true}
	rdeRelay    = map[ctl.Type]bool{ctl.CtlShowTopology: true, ctl.CtlEnd: true}
)

// Options configure an Engine.
type Options struct {
	Config    *config.Config
	Logger    *slog.Logger
	Verbosity control.Verbosity
	// ParentFD and RDEFD are the loop ends of the worker socketpairs.
	ParentFD int
	RDEFD    int
	// OnWorkerExit runs on the loop when a worker channel closes.
	OnWorkerExit func(name string)
}

// Engine wires the control broker to the rest of the daemon.
type Engine struct {
	reactor event.Reactor
	logger  *slog.Logger
	cfg     *config.Config

	tables *Tables
	server *control.Server
	parent *ipc.Channel
	rde    *ipc.Channel
	hellos []event.Timer
	onExit func(string)
	closed bool
}

// New builds an engine on reactor. Nothing is started until Start.
func New(reactor event.Reactor, opts Options) *Engine {
	logger := opts.Logger.With("component", "eigrpe")
	e := &Engine{
		reactor: reactor,
		logger:  logger,
		cfg:     opts.Config,
		tables:  NewTables(opts.Config, nil),
		onExit:  opts.OnWorkerExit,
	}

	e.parent = ipc.NewChannel(opts.ParentFD, reactor, logger.With("peer", "parent"),
		func(m imsg.Message) { e.fromWorker("parent", parentRelay, m) },
		func() { e.workerGone("parent") })
	e.rde = ipc.NewChannel(opts.RDEFD, reactor, logger.With("peer", "rde"),
		func(m imsg.Message) { e.fromWorker("rde", rdeRelay, m) },
		func() { e.workerGone("rde") })

	e.server = control.NewServer(reactor, control.Collaborators{
		Parent:     e.parent,
		RDE:        e.rde,
		Interfaces: e.tables,
		Neighbors:  e.tables,
		Stats:      e.tables,
		Verbosity:  opts.Verbosity,
	}, opts.Logger, control.Options{AcceptPause: opts.Config.AcceptPause.Duration})
	return e
}

// Start subscribes the worker channels, binds the control socket and arms the
// hello timers.
func (e *Engine) Start() error {
	if err := e.parent.Start(); err != nil {
		return fmt.Errorf("start parent channel: %w", err)
	}
	if err := e.rde.Start(); err != nil {
		return fmt.Errorf("start rde channel: %w", err)
	}
	if err := e.server.Listen(e.cfg.ControlSocket); err != nil {
		return err
	}
	e.armHellos()
	e.logger.Info("engine started", "instances", len(e.cfg.Instances), "interfaces", len(e.tables.ifaces))
	return nil
}

// Server returns the control broker.
func (e *Engine) Server() *control.Server { return e.server }

// Tables returns the engine's tables.
func (e *Engine) Tables() *Tables { return e.tables }

// Reload swaps in a new configuration. It must run on the loop goroutine.
func (e *Engine) Reload(cfg *config.Config) {
	if e.closed {
		return
	}
	e.stopHellos()
	e.cfg = cfg
	e.tables.Load(cfg)
	e.armHellos()
	e.logger.Info("configuration reloaded", "instances", len(cfg.Instances))
}

// RequestReload asks the parent to re-read the configuration, as if a client
// had sent CtlReload. It must run on the loop goroutine.
func (e *Engine) RequestReload() error {
	if e.closed {
		return ipc.ErrClosed
	}
	return e.parent.Compose(uint32(ctl.CtlReload), 0, 0, nil)
}

func (e *Engine) fromWorker(name string, relay map[ctl.Type]bool, m imsg.Message) {
	typ := ctl.Type(m.Type)
	if !relay[typ] {
		e.logger.Debug("unexpected message from worker", "peer", name, "type", typ)
		return
	}
	e.server.Relay(m)
}

func (e *Engine) workerGone(name string) {
	if e.closed {
		return
	}
	e.logger.Error("worker channel closed", "peer", name)
	if e.onExit != nil {
		e.onExit(name)
	}
}

func (e *Engine) armHellos() {
	for _, ifc := range e.tables.ifaces {
		if ifc.rec.Passive != 0 || ifc.hello <= 0 {
			continue
		}
		e.hello(ifc)
	}
}

// hello counts one hello sent on ifc, and one received per neighbor on it,
// then rearms.
func (e *Engine) hello(ifc *iface) {
	var t event.Timer
	t = e.reactor.AfterFunc(ifc.hello, func() {
		if st := e.tables.statsFor(ifc.rec.AF, ifc.rec.AS); st != nil {
			st.HellosSent++
			st.HellosRecv += ifc.rec.NbrCount
		}
		e.removeHello(t)
		e.hello(ifc)
	})
	e.hellos = append(e.hellos, t)
}

func (e *Engine) removeHello(t event.Timer) {
	for i, h := range e.hellos {
		if h == t {
			e.hellos = append(e.hellos[:i], e.hellos[i+1:]...)
			return
		}
	}
}

func (e *Engine) stopHellos() {
	for _, t := range e.hellos {
		t.Stop()
	}
	e.hellos = nil
}

// Shutdown closes the control socket, every client and the worker channels.
// It must run on the loop goroutine.
func (e *Engine) Shutdown() {
	if e.closed {
		return
	}
	e.closed = true
	e.stopHellos()
	e.server.Cleanup()
	e.parent.Close()
	e.rde.Close()
}
