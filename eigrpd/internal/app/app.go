// Package app assembles the daemon: FIB store, event loop, engine, workers
// and the optional status endpoint.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/amurg-ai/eigrpd/eigrpd/internal/config"
	"github.com/amurg-ai/eigrpd/eigrpd/internal/eigrpe"
	"github.com/amurg-ai/eigrpd/eigrpd/internal/event"
	"github.com/amurg-ai/eigrpd/eigrpd/internal/fib"
	"github.com/amurg-ai/eigrpd/eigrpd/internal/ipc"
	"github.com/amurg-ai/eigrpd/eigrpd/internal/logging"
	"github.com/amurg-ai/eigrpd/eigrpd/internal/parent"
	"github.com/amurg-ai/eigrpd/eigrpd/internal/rde"
	"github.com/amurg-ai/eigrpd/eigrpd/internal/status"
)

// Options configure an App.
type Options struct {
	ConfigPath string
	Logger     *slog.Logger
	Verbosity  *logging.Verbosity
	Ring       *logging.Ring
}

// App is one daemon instance.
type App struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger

	ready      chan struct{}
	statusAddr net.Addr
	loop       *event.Loop
	engine     *eigrpe.Engine
}

// ErrNotReady is returned by Reload before the daemon is up.
var ErrNotReady = errors.New("app: not ready")

// New creates an App for cfg.
func New(cfg *config.Config, opts Options) *App {
	return &App{
		cfg:    cfg,
		opts:   opts,
		logger: opts.Logger,
		ready:  make(chan struct{}),
	}
}

// Ready is closed once the control socket accepts connections.
func (a *App) Ready() <-chan struct{} { return a.ready }

// StatusAddr returns the bound status address, or nil when disabled. Valid
// after Ready.
func (a *App) StatusAddr() net.Addr { return a.statusAddr }

// Run starts the daemon and blocks until ctx is canceled or a worker dies.
// Setup failures, including a control socket that cannot be bound, are
// returned before the loop starts.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	loop, err := event.New(a.logger)
	if err != nil {
		return err
	}
	defer func() { _ = loop.Close() }()

	pfd, pconn, err := ipc.Pair("parent")
	if err != nil {
		return err
	}
	rfd, rconn, err := ipc.Pair("rde")
	if err != nil {
		_ = pconn.Close()
		return err
	}

	var verbosity interface{ SetVerbose(int32) }
	if a.opts.Verbosity != nil {
		verbosity = a.opts.Verbosity
	}

	engine := eigrpe.New(loop, eigrpe.Options{
		Config:    a.cfg,
		Logger:    a.logger,
		Verbosity: verbosity,
		ParentFD:  pfd,
		RDEFD:     rfd,
		OnWorkerExit: func(name string) {
			a.logger.Error("worker exited, shutting down", "worker", name)
			cancel()
		},
	})
	if err := engine.Start(); err != nil {
		engine.Shutdown()
		_ = pconn.Close()
		_ = rconn.Close()
		return err
	}

	rw := rde.New(rconn, a.cfg, a.logger, verbosity)
	pw := parent.New(pconn, parent.Options{
		ConfigPath: a.opts.ConfigPath,
		Store:      store,
		Logger:     a.logger,
		Verbosity:  verbosity,
		OnReload: func(cfg *config.Config) {
			rw.Load(cfg)
			if err := loop.Post(func() { engine.Reload(cfg) }); err != nil {
				a.logger.Warn("reload not applied", "error", err)
			}
		},
	})

	var wg sync.WaitGroup
	worker := func(name string, run func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("worker failed", "worker", name, "error", err)
			}
		}()
	}
	worker("parent", pw.Run)
	worker("rde", rw.Run)

	if a.cfg.StatusAddr != "" {
		ln, err := net.Listen("tcp", a.cfg.StatusAddr)
		if err != nil {
			cancel()
			engine.Shutdown()
			wg.Wait()
			return fmt.Errorf("listen status %s: %w", a.cfg.StatusAddr, err)
		}
		a.statusAddr = ln.Addr()
		srv := status.NewServer(status.Options{
			Control: status.FromServer(loop, engine.Server()),
			Routes:  store,
			Ring:    a.opts.Ring,
			Logger:  a.logger,
		})
		worker("status", func(ctx context.Context) error { return srv.Serve(ctx, ln) })
	}

	a.loop = loop
	a.engine = engine
	a.logger.Info("eigrpd ready", "control_socket", a.cfg.ControlSocket, "router_id", a.cfg.RouterID)
	close(a.ready)

	err = loop.Run(ctx)
	engine.Shutdown()
	cancel()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Reload re-reads the configuration file. Safe from any goroutine once Ready
// is closed.
func (a *App) Reload() error {
	select {
	case <-a.ready:
	default:
		return ErrNotReady
	}
	return a.loop.Post(func() {
		if err := a.engine.RequestReload(); err != nil {
			a.logger.Warn("reload request failed", "error", err)
		}
	})
}

func (a *App) openStore(ctx context.Context) (*fib.Store, error) {
	if a.cfg.FIBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(a.cfg.FIBPath), 0o755); err != nil {
			return nil, fmt.Errorf("create fib dir: %w", err)
		}
	}
	store, err := fib.Open(a.cfg.FIBPath)
	if err != nil {
		return nil, fmt.Errorf("open fib: %w", err)
	}
	if err := parent.SyncStatic(ctx, store, a.cfg); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("install static routes: %w", err)
	}
	if err := store.SetCoupled(ctx, a.cfg.Coupled()); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("set fib state: %w", err)
	}
	return store, nil
}
