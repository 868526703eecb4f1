// Package parent is the privileged parent worker. It owns the configuration
// file and the forwarding table, and answers the engine's forwarded control
// requests over an imsg channel.
package parent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/netip"

	"github.com/amurg-ai/eigrpd/eigrpd/internal/config"
	"github.com/amurg-ai/eigrpd/eigrpd/internal/fib"
	"github.com/amurg-ai/eigrpd/pkg/ctl"
	"github.com/amurg-ai/eigrpd/pkg/imsg"
)

// Interface is one host interface.
type Interface struct {
	Index int
	Name  string
	Flags net.Flags
}

// Options configure a Worker.
type Options struct {
	ConfigPath string
	Store      *fib.Store
	Logger     *slog.Logger
	// Interfaces lists host interfaces; defaults to net.Interfaces.
	Interfaces func() ([]Interface, error)
	// OnReload receives every successfully reloaded configuration.
	OnReload func(*config.Config)
	// Verbosity applies forwarded log verbosity changes.
	Verbosity interface{ SetVerbose(int32) }
}

// Worker serves requests from the engine.
type Worker struct {
	conn   *imsg.Conn
	opts   Options
	logger *slog.Logger
}

// New creates a worker speaking on rwc.
func New(rwc io.ReadWriteCloser, opts Options) *Worker {
	if opts.Interfaces == nil {
		opts.Interfaces = hostInterfaces
	}
	return &Worker{
		conn:   imsg.NewConn(rwc),
		opts:   opts,
		logger: opts.Logger.With("component", "parent"),
	}
}

func hostInterfaces() ([]Interface, error) {
	ifs, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	out := make([]Interface, 0, len(ifs))
	for _, ifc := range ifs {
		out = append(out, Interface{Index: ifc.Index, Name: ifc.Name, Flags: ifc.Flags})
	}
	return out, nil
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
			return fmt.Errorf("parent: read: %w", err)
		}
		if err := w.handle(ctx, m); err != nil {
			w.logger.Warn("request failed", "type", ctl.Type(m.Type), "error", err)
		}
	}
}

func (w *Worker) handle(ctx context.Context, m imsg.Message) error {
	switch ctl.Type(m.Type) {
	case ctl.CtlReload:
		return w.reload(ctx)
	case ctl.CtlFibCouple:
		return w.couple(ctx, true)
	case ctl.CtlFibDecouple:
		return w.couple(ctx, false)
	case ctl.CtlKroute:
		return w.showKroute(ctx, m)
	case ctl.CtlIfinfo:
		return w.showIfinfo(m)
	case ctl.CtlLogVerbose:
		v, err := ctl.Verbose(m.Data)
		if err != nil {
			return err
		}
		w.logger.Info("log verbosity changed", "verbose", v)
		if w.opts.Verbosity != nil {
			w.opts.Verbosity.SetVerbose(v)
		}
		return nil
	default:
		w.logger.Debug("unexpected message", "type", ctl.Type(m.Type))
		return nil
	}
}

func (w *Worker) reload(ctx context.Context) error {
	cfg, err := config.Load(w.opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	if err := SyncStatic(ctx, w.opts.Store, cfg); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	w.logger.Info("configuration reloaded", "path", w.opts.ConfigPath)
	if w.opts.OnReload != nil {
		w.opts.OnReload(cfg)
	}
	return nil
}

// SyncStatic replaces the FIB's static routes with the ones in cfg.
func SyncStatic(ctx context.Context, store *fib.Store, cfg *config.Config) error {
	if store == nil {
		return nil
	}
	var routes []fib.Route
	for _, inst := range cfg.Instances {
		for _, s := range inst.Static {
			p, err := netip.ParsePrefix(s.Prefix)
			if err != nil {
				return err
			}
			nh, err := netip.ParseAddr(s.Nexthop)
			if err != nil {
				return err
			}
			routes = append(routes, fib.Route{Prefix: p, Nexthop: nh, Ifindex: s.Ifindex, Priority: s.Priority})
		}
	}
	return store.ReplaceStatic(ctx, routes)
}

func (w *Worker) couple(ctx context.Context, coupled bool) error {
	if w.opts.Store == nil {
		return errors.New("no forwarding table")
	}
	if err := w.opts.Store.SetCoupled(ctx, coupled); err != nil {
		return err
	}
	w.logger.Info("forwarding table state changed", "coupled", coupled)
	return nil
}

// showKroute answers with every route, or those of one family when the
// request carries a Kroute filter, then CtlEnd.
func (w *Worker) showKroute(ctx context.Context, m imsg.Message) error {
	defer w.end(m.PID)

	var af uint8
	if len(m.Data) == ctl.SizeKroute {
		req, err := ctl.Unmarshal[ctl.Kroute](m.Data)
		if err != nil {
			return err
		}
		af = req.AF
	}
	if w.opts.Store == nil {
		return nil
	}
	routes, err := w.opts.Store.List(ctx, af)
	if err != nil {
		return err
	}
	for _, r := range routes {
		if err := w.conn.Compose(uint32(ctl.CtlKroute), 0, m.PID, ctl.Marshal(r.Kroute())); err != nil {
			return err
		}
	}
	return nil
}

// showIfinfo answers with the host interfaces, optionally one ifindex, then
// CtlEnd.
func (w *Worker) showIfinfo(m imsg.Message) error {
	defer w.end(m.PID)

	var only uint32
	if len(m.Data) == ctl.SizeUint32 {
		only, _ = ctl.Uint32(m.Data)
	}
	ifs, err := w.opts.Interfaces()
	if err != nil {
		return err
	}
	for _, ifc := range ifs {
		if only != 0 && uint32(ifc.Index) != only {
			continue
		}
		rec := ctl.Ifinfo{
			Ifindex:   uint32(ifc.Index),
			Name:      ctl.NameFrom(ifc.Name),
			Flags:     uint32(ifc.Flags),
			Linkstate: ctl.LinkDown,
		}
		if ifc.Flags&net.FlagUp != 0 {
			rec.Linkstate = ctl.LinkUp
		}
		if err := w.conn.Compose(uint32(ctl.CtlIfinfo), 0, m.PID, ctl.Marshal(rec)); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) end(pid uint32) {
	if err := w.conn.Compose(uint32(ctl.CtlEnd), 0, pid, nil); err != nil {
		w.logger.Debug("send end", "error", err)
	}
}
