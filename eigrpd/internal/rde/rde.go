// Package rde is the route-decision worker. It holds the topology table and
// answers topology queries forwarded by the engine.
package rde

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"sort"
	"sync"

	"github.com/amurg-ai/eigrpd/eigrpd/internal/config"
	"github.com/amurg-ai/eigrpd/pkg/ctl"
	"github.com/amurg-ai/eigrpd/pkg/imsg"
)

// Worker serves topology queries.
type Worker struct {
	conn      *imsg.Conn
	logger    *slog.Logger
	verbosity interface{ SetVerbose(int32) }

	mu   sync.RWMutex
	topo []ctl.Topo
}

// New creates a worker speaking on rwc with the topology from cfg.
func New(rwc io.ReadWriteCloser, cfg *config.Config, logger *slog.Logger, verbosity interface{ SetVerbose(int32) }) *Worker {
	w := &Worker{
		conn:      imsg.NewConn(rwc),
		logger:    logger.With("component", "rde"),
		verbosity: verbosity,
	}
	w.Load(cfg)
	return w
}

// Load replaces the topology table. Safe to call from any goroutine.
func (w *Worker) Load(cfg *config.Config) {
	topo := BuildTopology(cfg)
	w.mu.Lock()
	w.topo = topo
	w.mu.Unlock()
}

// BuildTopology converts the configured routes into table entries, sorted by
// family, AS and prefix.
func BuildTopology(cfg *config.Config) []ctl.Topo {
	var out []ctl.Topo
	for _, inst := range cfg.Instances {
		af := ctl.AFInet
		if inst.AF == "inet6" {
			af = ctl.AFInet6
		}
		for _, rc := range inst.Topology {
			p, err := netip.ParsePrefix(rc.Prefix)
			if err != nil {
				continue
			}
			t := ctl.Topo{
				AF:        af,
				PrefixLen: uint8(p.Bits()),
				AS:        inst.AS,
				Prefix:    ctl.AddrFrom(p.Masked().Addr()),
				Ifname:    ctl.NameFrom(rc.Interface),
				Distance:  rc.Distance,
				RDistance: rc.ReportedDistance,
				FDistance: rc.Distance,
			}
			if nh, err := netip.ParseAddr(rc.Nexthop); err == nil {
				t.Nexthop = ctl.AddrFrom(nh)
			}
			if rc.Successor {
				t.Flags |= ctl.RouteSuccessor
			}
			if rc.ReportedDistance < rc.Distance {
				t.Flags |= ctl.RouteFeasible
			}
			if rc.Active {
				t.Active = 1
			}
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.AF != b.AF {
			return a.AF < b.AF
		}
		if a.AS != b.AS {
			return a.AS < b.AS
		}
		if c := a.Prefix.IP(a.AF).Compare(b.Prefix.IP(b.AF)); c != 0 {
			return c < 0
		}
		return a.PrefixLen < b.PrefixLen
	})
	return out
}

// Query returns the entries matching req.
func (w *Worker) Query(req ctl.ShowTopologyReq) []ctl.Topo {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var filter netip.Prefix
	if req.PrefixLen != 0 || req.Prefix != (ctl.Addr{}) {
		filter = netip.PrefixFrom(req.Prefix.IP(req.AF), int(req.PrefixLen)).Masked()
	}

	var out []ctl.Topo
	for _, t := range w.topo {
		if req.AF != 0 && t.AF != req.AF {
			continue
		}
		if filter.IsValid() {
			p := netip.PrefixFrom(t.Prefix.IP(t.AF), int(t.PrefixLen))
			if !filter.Overlaps(p) || p.Bits() < filter.Bits() {
				continue
			}
		}
		if req.Flags&ctl.TopoActiveOnly != 0 && t.Active == 0 {
			continue
		}
		if req.Flags&ctl.TopoAllLinks == 0 && t.Flags&(ctl.RouteSuccessor|ctl.RouteFeasible) == 0 {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Run serves until ctx is canceled or the engine closes its end.
func (w *Worker) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = w.conn.Close() })
	defer stop()

	for {
		m, err := w.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("rde: read: %w", err)
		}
		if err := w.handle(m); err != nil {
			w.logger.Warn("request failed", "type", ctl.Type(m.Type), "error", err)
		}
	}
}

func (w *Worker) handle(m imsg.Message) error {
	switch ctl.Type(m.Type) {
	case ctl.CtlShowTopology:
		req, err := ctl.Unmarshal[ctl.ShowTopologyReq](m.Data)
		if err != nil {
			return err
		}
		for _, t := range w.Query(req) {
			if err := w.conn.Compose(uint32(ctl.CtlShowTopology), 0, m.PID, ctl.Marshal(t)); err != nil {
				return err
			}
		}
		return w.conn.Compose(uint32(ctl.CtlEnd), 0, m.PID, nil)
	case ctl.CtlLogVerbose:
		v, err := ctl.Verbose(m.Data)
		if err != nil {
			return err
		}
		w.logger.Info("log verbosity changed", "verbose", v)
		if w.verbosity != nil {
			w.verbosity.SetVerbose(v)
		}
		return nil
	default:
		w.logger.Debug("unexpected message", "type", ctl.Type(m.Type))
		return nil
	}
}
