package control

import (
	"log/slog"

	"github.com/amurg-ai/eigrpd/pkg/ctl"
	"github.com/amurg-ai/eigrpd/pkg/imsg"
)

// Sender forwards a frame to another part of the daemon.
type Sender interface {
	Compose(typ, peerID, pid uint32, data []byte) error
}

// InterfaceTable answers interface listings. ifindex 0 selects all.
type InterfaceTable interface {
	Interfaces(ifindex uint32) []ctl.Iface
}

// NeighborTable answers neighbor listings and clear requests.
type NeighborTable interface {
	Neighbors() []ctl.Nbr
	ClearNeighbors(req ctl.Nbr) int
}

// StatsTable answers traffic statistics listings.
type StatsTable interface {
	Stats() []ctl.Stats
}

// Verbosity changes the local log level.
type Verbosity interface {
	SetVerbose(v int32)
}

// Collaborators are the parts of the daemon the dispatcher talks to. Any of
// them may be nil, in which case the matching requests are answered empty or
// dropped.
type Collaborators struct {
	Parent     Sender
	RDE        Sender
	Interfaces InterfaceTable
	Neighbors  NeighborTable
	Stats      StatsTable
	Verbosity  Verbosity
}

// anySize marks kinds whose payload is opaque to the broker.
const anySize = -1

type rule struct {
	size int
	act  func(d *Dispatcher, c *Conn, m imsg.Message)
}

var rules = map[ctl.Type]rule{
	ctl.CtlReload:        {size: 0, act: (*Dispatcher).forwardParent},
	ctl.CtlFibCouple:     {size: 0, act: (*Dispatcher).forwardParent},
	ctl.CtlFibDecouple:   {size: 0, act: (*Dispatcher).forwardParent},
	ctl.CtlKroute:        {size: anySize, act: (*Dispatcher).forwardParent},
	ctl.CtlIfinfo:        {size: anySize, act: (*Dispatcher).forwardParent},
	ctl.CtlShowInterface: {size: ctl.SizeUint32, act: (*Dispatcher).showInterfaces},
	ctl.CtlShowTopology:  {size: ctl.SizeShowTopologyReq, act: (*Dispatcher).forwardRDE},
	ctl.CtlShowNbr:       {size: 0, act: (*Dispatcher).showNeighbors},
	ctl.CtlShowStats:     {size: 0, act: (*Dispatcher).showStats},
	ctl.CtlClearNbr:      {size: ctl.SizeNbr, act: (*Dispatcher).clearNeighbors},
	ctl.CtlLogVerbose:    {size: ctl.SizeUint32, act: (*Dispatcher).logVerbose},
}

// Dispatcher validates client requests and routes them.
type Dispatcher struct {
	collab Collaborators
	reg    *Registry
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher that records pids in reg.
func NewDispatcher(collab Collaborators, reg *Registry, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{collab: collab, reg: reg, logger: logger}
}

// Dispatch handles one request from c. Unknown kinds and payloads of the
// wrong length are dropped without side effects.
func (d *Dispatcher) Dispatch(c *Conn, m imsg.Message) {
	typ := ctl.Type(m.Type)
	r, ok := rules[typ]
	if !ok {
		d.logger.Debug("unexpected message", "type", typ, "fd", c.FD())
		return
	}
	if r.size != anySize && len(m.Data) != r.size {
		d.logger.Debug("wrong payload length", "type", typ, "len", len(m.Data), "want", r.size, "fd", c.FD())
		return
	}
	r.act(d, c, m)
}

func (d *Dispatcher) forwardParent(c *Conn, m imsg.Message) {
	d.reg.SetPID(c, m.PID)
	d.forward(d.collab.Parent, "parent", m)
}

func (d *Dispatcher) forwardRDE(c *Conn, m imsg.Message) {
	d.reg.SetPID(c, m.PID)
	d.forward(d.collab.RDE, "rde", m)
}

func (d *Dispatcher) forward(to Sender, name string, m imsg.Message) {
	if to == nil {
		d.logger.Debug("no collaborator, dropping", "to", name, "type", ctl.Type(m.Type))
		return
	}
	if err := to.Compose(m.Type, 0, m.PID, m.Data); err != nil {
		d.logger.Warn("forward failed", "to", name, "type", ctl.Type(m.Type), "error", err)
	}
}

func (d *Dispatcher) reply(c *Conn, typ ctl.Type, data []byte) {
	if err := c.Compose(uint32(typ), 0, 0, data); err != nil {
		d.logger.Debug("reply dropped", "type", typ, "fd", c.FD(), "error", err)
	}
}

func (d *Dispatcher) showInterfaces(c *Conn, m imsg.Message) {
	ifindex, _ := ctl.Uint32(m.Data)
	if d.collab.Interfaces != nil {
		for _, ifc := range d.collab.Interfaces.Interfaces(ifindex) {
			d.reply(c, ctl.CtlIface, ctl.Marshal(ifc))
		}
	}
	d.reply(c, ctl.CtlEnd, nil)
}

func (d *Dispatcher) showNeighbors(c *Conn, _ imsg.Message) {
	if d.collab.Neighbors != nil {
		for _, nbr := range d.collab.Neighbors.Neighbors() {
			d.reply(c, ctl.CtlShowNbr, ctl.Marshal(nbr))
		}
	}
	d.reply(c, ctl.CtlEnd, nil)
}

func (d *Dispatcher) showStats(c *Conn, _ imsg.Message) {
	if d.collab.Stats != nil {
		for _, st := range d.collab.Stats.Stats() {
			d.reply(c, ctl.CtlShowStats, ctl.Marshal(st))
		}
	}
	d.reply(c, ctl.CtlEnd, nil)
}

func (d *Dispatcher) clearNeighbors(c *Conn, m imsg.Message) {
	req, err := ctl.Unmarshal[ctl.Nbr](m.Data)
	if err != nil {
		d.logger.Debug("bad clear request", "fd", c.FD(), "error", err)
		return
	}
	if d.collab.Neighbors == nil {
		return
	}
	n := d.collab.Neighbors.ClearNeighbors(req)
	d.logger.Info("neighbors cleared", "count", n, "as", req.AS, "af", ctl.AFName(req.AF))
}

func (d *Dispatcher) logVerbose(c *Conn, m imsg.Message) {
	v, _ := ctl.Verbose(m.Data)
	d.forward(d.collab.Parent, "parent", m)
	d.forward(d.collab.RDE, "rde", m)
	if d.collab.Verbosity != nil {
		d.collab.Verbosity.SetVerbose(v)
	}
}
