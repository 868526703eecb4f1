// Package status serves a read-only HTTP view of the daemon for operators:
// health, control broker state, recent log records and the FIB.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/amurg-ai/eigrpd/eigrpd/internal/control"
	"github.com/amurg-ai/eigrpd/eigrpd/internal/fib"
	"github.com/amurg-ai/eigrpd/eigrpd/internal/logging"
	"github.com/amurg-ai/eigrpd/pkg/ctl"
)

// ControlState is the broker snapshot served at /debug/control.
type ControlState struct {
	Paused   bool                  `json:"paused"`
	Listener control.ListenerStats `json:"listener"`
	Clients  []control.ClientInfo  `json:"clients"`
}

// ControlSource produces broker snapshots.
type ControlSource interface {
	ControlState(ctx context.Context) (ControlState, error)
}

// Caller runs f on the goroutine that owns the broker.
type Caller interface {
	Call(ctx context.Context, f func()) error
}

type loopSource struct {
	loop   Caller
	server *control.Server
}

// FromServer reads server's state through loop so the broker is only touched
// from its own goroutine.
func FromServer(loop Caller, server *control.Server) ControlSource {
	return &loopSource{loop: loop, server: server}
}

func (s *loopSource) ControlState(ctx context.Context) (ControlState, error) {
	var st ControlState
	err := s.loop.Call(ctx, func() {
		st.Paused = s.server.Paused()
		st.Listener = s.server.Stats()
		st.Clients = s.server.Clients()
	})
	return st, err
}

// Routes is the subset of the FIB store the endpoint reads.
type Routes interface {
	Ping(ctx context.Context) error
	List(ctx context.Context, af uint8) ([]fib.Route, error)
	Coupled(ctx context.Context) (bool, error)
}

// Options configure a Server. Any source may be nil; its routes then
// answer 404.
type Options struct {
	Control ControlSource
	Routes  Routes
	Ring    *logging.Ring
	Logger  *slog.Logger
}

// Server is the status HTTP server.
type Server struct {
	control   ControlSource
	routes    Routes
	ring      *logging.Ring
	logger    *slog.Logger
	mux       *chi.Mux
	startTime time.Time
}

// NewServer creates a status server.
func NewServer(opts Options) *Server {
	srv := &Server{
		control:   opts.Control,
		routes:    opts.Routes,
		ring:      opts.Ring,
		logger:    opts.Logger.With("component", "status"),
		startTime: time.Now(),
	}

	mux := chi.NewRouter()
	mux.Use(chimw.Recoverer)
	mux.Use(securityHeadersMiddleware)

	mux.Get("/healthz", srv.handleHealthz)
	mux.Get("/readyz", srv.handleReadyz)

	if srv.control != nil {
		mux.Get("/debug/control", srv.handleControl)
	}
	if srv.ring != nil {
		mux.Get("/debug/log", srv.handleLog)
	}
	if srv.routes != nil {
		mux.Get("/fib", srv.handleFIB)
		mux.Get("/fib/{af}", srv.handleFIB)
	}

	srv.mux = mux
	return srv
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Serve accepts on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("graceful shutdown failed, forcing close", "error", err)
			_ = srv.Close()
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(s.startTime).Truncate(time.Second).String(),
	})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.routes != nil {
		if err := s.routes.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	st, err := s.control.ControlState(ctx)
	if err != nil {
		s.logger.Warn("control snapshot failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "event loop unavailable")
		return
	}
	if st.Clients == nil {
		st.Clients = []control.ClientInfo{}
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	n := 100
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid n")
			return
		}
		n = parsed
	}
	entries := s.ring.Recent(n)
	if entries == nil {
		entries = []logging.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type routeInfo struct {
	Prefix    netip.Prefix `json:"prefix"`
	Nexthop   string       `json:"nexthop,omitempty"`
	Ifindex   uint32       `json:"ifindex,omitempty"`
	Priority  uint8        `json:"priority"`
	Flags     []string     `json:"flags,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

type fibResponse struct {
	Coupled bool        `json:"coupled"`
	Routes  []routeInfo `json:"routes"`
}

func (s *Server) handleFIB(w http.ResponseWriter, r *http.Request) {
	var af uint8
	switch chi.URLParam(r, "af") {
	case "":
	case "inet":
		af = ctl.AFInet
	case "inet6":
		af = ctl.AFInet6
	default:
		writeError(w, http.StatusBadRequest, "unknown address family")
		return
	}

	routes, err := s.routes.List(r.Context(), af)
	if err != nil {
		s.logger.Error("list routes", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list routes")
		return
	}
	coupled, err := s.routes.Coupled(r.Context())
	if err != nil {
		s.logger.Error("read fib state", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read fib state")
		return
	}

	resp := fibResponse{Coupled: coupled, Routes: make([]routeInfo, 0, len(routes))}
	for _, rt := range routes {
		info := routeInfo{
			Prefix:    rt.Prefix,
			Ifindex:   rt.Ifindex,
			Priority:  rt.Priority,
			Flags:     ctl.KrouteFlagNames(rt.Flags),
			UpdatedAt: rt.UpdatedAt,
		}
		if rt.Nexthop.IsValid() {
			info.Nexthop = rt.Nexthop.String()
		}
		resp.Routes = append(resp.Routes, info)
	}
	writeJSON(w, http.StatusOK, resp)
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
