//go:build linux

package eigrpe

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amurg-ai/eigrpd/eigrpd/internal/config"
	"github.com/amurg-ai/eigrpd/eigrpd/internal/event"
	"github.com/amurg-ai/eigrpd/eigrpd/internal/event/eventtest"
	"github.com/amurg-ai/eigrpd/eigrpd/internal/fib"
	"github.com/amurg-ai/eigrpd/eigrpd/internal/ipc"
	"github.com/amurg-ai/eigrpd/eigrpd/internal/parent"
	"github.com/amurg-ai/eigrpd/eigrpd/internal/rde"
	"github.com/amurg-ai/eigrpd/pkg/ctl"
	"github.com/amurg-ai/eigrpd/pkg/imsg"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

const engineConfig = `{
	"instances": [{
		"as": 1, "af": "inet",
		"interfaces": [
			{"name": "em0", "index": 1, "address": "10.0.0.1/24", "hello_interval": "5s"},
			{"name": "em1", "index": 2, "address": "10.0.1.1/24", "passive": true}
		],
		"neighbors": [
			{"address": "10.0.0.2", "interface": "em0"},
			{"address": "10.0.0.3", "interface": "em0"}
		],
		"topology": [
			{"prefix": "192.168.1.0/24", "nexthop": "10.0.0.2", "interface": "em0", "distance": 100, "reported_distance": 50, "successor": true}
		]
	}]
}`

func loadConfig(t *testing.T, socket string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "eigrpd.json")
	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(engineConfig), &raw))
	raw["control_socket"] = socket
	b, err := json.Marshal(raw)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o644))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestEngine_HelloCounters(t *testing.T) {
	r := eventtest.New()
	cfg := loadConfig(t, filepath.Join(t.TempDir(), "e.sock"))

	pfd, pconn, err := ipc.Pair("parent")
	require.NoError(t, err)
	defer pconn.Close()
	rfd, rconn, err := ipc.Pair("rde")
	require.NoError(t, err)
	defer rconn.Close()

	e := New(r, Options{Config: cfg, Logger: discard, ParentFD: pfd, RDEFD: rfd})
	require.NoError(t, e.Start())
	defer e.Shutdown()

	// Only em0 is active.
	assert.Equal(t, 1, r.PendingTimers())
	r.Advance(5 * time.Second)
	r.Advance(5 * time.Second)

	st := e.Tables().Stats()
	require.Len(t, st, 1)
	assert.Equal(t, uint32(2), st[0].HellosSent)
	assert.Equal(t, uint32(4), st[0].HellosRecv)

	e.Reload(cfg)
	assert.Equal(t, 1, r.PendingTimers(), "reload rearms without duplicating timers")
	assert.Equal(t, uint32(2), e.Tables().Stats()[0].HellosSent, "counters survive reload")
}

func TestEngine_WorkerExit(t *testing.T) {
	r := eventtest.New()
	cfg := loadConfig(t, filepath.Join(t.TempDir(), "e.sock"))

	pfd, pconn, err := ipc.Pair("parent")
	require.NoError(t, err)
	rfd, rconn, err := ipc.Pair("rde")
	require.NoError(t, err)
	defer rconn.Close()

	var exited []string
	e := New(r, Options{Config: cfg, Logger: discard, ParentFD: pfd, RDEFD: rfd,
		OnWorkerExit: func(name string) { exited = append(exited, name) }})
	require.NoError(t, e.Start())

	require.NoError(t, pconn.Close())
	r.Readable(pfd)
	assert.Equal(t, []string{"parent"}, exited)

	e.Shutdown()
	assert.Equal(t, []string{"parent"}, exited, "shutdown is not reported as a worker exit")
	assert.Zero(t, r.Len())
}

// daemon runs the engine on a real loop with both workers attached.
type daemon struct {
	socket string
	loop   *event.Loop
	engine *Engine
	store  *fib.Store
}

func startDaemon(t *testing.T) *daemon {
	t.Helper()
	socket := filepath.Join(t.TempDir(), "eigrpd.sock")
	cfg := loadConfig(t, socket)

	store, err := fib.Open(filepath.Join(t.TempDir(), "fib.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	loop, err := event.New(discard)
	require.NoError(t, err)

	pfd, pconn, err := ipc.Pair("parent")
	require.NoError(t, err)
	rfd, rconn, err := ipc.Pair("rde")
	require.NoError(t, err)

	e := New(loop, Options{Config: cfg, Logger: discard, ParentFD: pfd, RDEFD: rfd})
	require.NoError(t, e.Start())

	ctx, cancel := context.WithCancel(context.Background())
	pw := parent.New(pconn, parent.Options{Store: store, Logger: discard})
	rw := rde.New(rconn, cfg, discard, nil)
	go func() { _ = pw.Run(ctx) }()
	go func() { _ = rw.Run(ctx) }()

	done := make(chan struct{})
	go func() {
		_ = loop.Run(ctx)
		e.Shutdown()
		_ = loop.Close()
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &daemon{socket: socket, loop: loop, engine: e, store: store}
}

func dial(t *testing.T, path string) *imsg.Conn {
	t.Helper()
	nc, err := net.Dial("unix", path)
	require.NoError(t, err)
	require.NoError(t, nc.SetDeadline(time.Now().Add(5*time.Second)))
	t.Cleanup(func() { _ = nc.Close() })
	return imsg.NewConn(nc)
}

func request(t *testing.T, c *imsg.Conn, typ ctl.Type, pid uint32, data []byte) []imsg.Message {
	t.Helper()
	require.NoError(t, c.Compose(uint32(typ), 0, pid, data))
	var out []imsg.Message
	for {
		m, err := c.ReadMessage()
		require.NoError(t, err)
		if ctl.Type(m.Type) == ctl.CtlEnd {
			return out
		}
		out = append(out, m)
	}
}

func TestEngine_EndToEnd(t *testing.T) {
	d := startDaemon(t)
	require.NoError(t, d.store.Upsert(context.Background(), fib.Route{
		Prefix:  netip.MustParsePrefix("10.5.0.0/16"),
		Nexthop: netip.MustParseAddr("10.0.0.2"),
		Flags:   ctl.KrouteEigrp,
	}))

	c := dial(t, d.socket)

	nbrs := request(t, c, ctl.CtlShowNbr, 1000, nil)
	assert.Len(t, nbrs, 2)

	ifs := request(t, c, ctl.CtlShowInterface, 1000, ctl.PutUint32(0))
	require.Len(t, ifs, 2)
	em0, err := ctl.Unmarshal[ctl.Iface](ifs[0].Data)
	require.NoError(t, err)
	assert.Equal(t, "em0", em0.Name.String())
	assert.Equal(t, uint32(2), em0.NbrCount)

	topo := request(t, c, ctl.CtlShowTopology, 1000, ctl.Marshal(ctl.ShowTopologyReq{}))
	require.Len(t, topo, 1)
	assert.Equal(t, uint32(1000), topo[0].PID)

	routes := request(t, c, ctl.CtlKroute, 1000, nil)
	require.Len(t, routes, 1)
	k, err := ctl.Unmarshal[ctl.Kroute](routes[0].Data)
	require.NoError(t, err)
	assert.Equal(t, uint8(16), k.PrefixLen)

	var clients int
	require.NoError(t, d.loop.Call(context.Background(), func() {
		clients = len(d.engine.Server().Clients())
	}))
	assert.Equal(t, 1, clients)
}

func TestEngine_RepliesFollowNewestClient(t *testing.T) {
	d := startDaemon(t)

	first := dial(t, d.socket)
	second := dial(t, d.socket)

	// Both claim pid 7; the topology reply goes to the later claimant.
	require.NoError(t, first.Compose(uint32(ctl.CtlFibCouple), 0, 7, nil))
	request(t, first, ctl.CtlShowStats, 7, nil)
	topo := request(t, second, ctl.CtlShowTopology, 7, ctl.Marshal(ctl.ShowTopologyReq{}))
	assert.Len(t, topo, 1)
	assert.Equal(t, uint32(7), topo[0].PID)
}
