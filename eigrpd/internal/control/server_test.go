//go:build linux

package control

import (
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/amurg-ai/eigrpd/eigrpd/internal/event"
	"github.com/amurg-ai/eigrpd/eigrpd/internal/event/eventtest"
	"github.com/amurg-ai/eigrpd/pkg/ctl"
	"github.com/amurg-ai/eigrpd/pkg/imsg"
)

type sent struct {
	typ, pid uint32
	data     []byte
}

type recorder struct{ msgs []sent }

func (r *recorder) Compose(typ, _, pid uint32, data []byte) error {
	r.msgs = append(r.msgs, sent{typ: typ, pid: pid, data: append([]byte(nil), data...)})
	return nil
}

type tables struct {
	ifaces  []ctl.Iface
	nbrs    []ctl.Nbr
	stats   []ctl.Stats
	cleared []ctl.Nbr
	verbose []int32
	askedIf []uint32
}

func (t *tables) Interfaces(ifindex uint32) []ctl.Iface {
	t.askedIf = append(t.askedIf, ifindex)
	return t.ifaces
}
func (t *tables) Neighbors() []ctl.Nbr { return t.nbrs }
func (t *tables) ClearNeighbors(req ctl.Nbr) int {
	t.cleared = append(t.cleared, req)
	return 1
}
func (t *tables) Stats() []ctl.Stats { return t.stats }
func (t *tables) SetVerbose(v int32) { t.verbose = append(t.verbose, v) }

type fixture struct {
	r      *eventtest.Reactor
	s      *Server
	parent *recorder
	rde    *recorder
	tables *tables
	path   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		r:      eventtest.New(),
		parent: &recorder{},
		rde:    &recorder{},
		tables: &tables{},
		path:   filepath.Join(t.TempDir(), "eigrpd.sock"),
	}
	f.s = NewServer(f.r, Collaborators{
		Parent:     f.parent,
		RDE:        f.rde,
		Interfaces: f.tables,
		Neighbors:  f.tables,
		Stats:      f.tables,
		Verbosity:  f.tables,
	}, discard, Options{})
	require.NoError(t, f.s.Listen(f.path))
	t.Cleanup(f.s.Cleanup)
	return f
}

type client struct {
	net.Conn
	ic     *imsg.Conn
	server *Conn
}

// connect dials the socket and drives the accept on the fake reactor.
func (f *fixture) connect(t *testing.T) *client {
	t.Helper()
	known := make(map[*Conn]bool)
	f.s.reg.Each(func(c *Conn) bool {
		known[c] = true
		return true
	})

	nc, err := net.Dial("unix", f.path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = nc.Close() })
	require.True(t, f.r.Readable(f.s.listener.fd))

	var accepted *Conn
	f.s.reg.Each(func(c *Conn) bool {
		if !known[c] {
			accepted = c
		}
		return accepted == nil
	})
	require.NotNil(t, accepted)
	return &client{Conn: nc, ic: imsg.NewConn(nc), server: accepted}
}

func (c *client) send(t *testing.T, typ ctl.Type, pid uint32, data []byte) {
	t.Helper()
	require.NoError(t, c.ic.Compose(uint32(typ), 0, pid, data))
}

// recvAll reads frames until CtlEnd.
func (c *client) recvAll(t *testing.T) []imsg.Message {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	var out []imsg.Message
	for {
		m, err := c.ic.ReadMessage()
		require.NoError(t, err)
		out = append(out, m)
		if ctl.Type(m.Type) == ctl.CtlEnd {
			return out
		}
	}
}

func (f *fixture) deliver(c *client) {
	f.r.Readable(c.server.FD())
	f.r.Flush()
}

func TestServer_SocketPermissions(t *testing.T) {
	f := newFixture(t)
	fi, err := os.Stat(f.path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o660), fi.Mode().Perm())
	assert.NotZero(t, fi.Mode()&os.ModeSocket)
}

func TestServer_ReplacesStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stale.sock")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	s := NewServer(eventtest.New(), Collaborators{}, discard, Options{})
	require.NoError(t, s.Listen(path))
	s.Cleanup()

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "cleanup removes the socket")
}

func TestServer_BindError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "eigrpd.sock")
	s := NewServer(eventtest.New(), Collaborators{}, discard, Options{})

	err := s.Listen(path)
	var be *BindError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "bind", be.Op)
	assert.Equal(t, path, be.Path)
}

// Neighbor listing is answered locally.
func TestServer_ShowNeighbors(t *testing.T) {
	f := newFixture(t)
	nbr := ctl.Nbr{AF: ctl.AFInet, AS: 1, Ifname: ctl.NameFrom("em0"), Addr: ctl.AddrFrom(netip.MustParseAddr("10.0.0.2"))}
	f.tables.nbrs = []ctl.Nbr{nbr, nbr}

	c := f.connect(t)
	c.send(t, ctl.CtlShowNbr, 42, nil)
	f.deliver(c)

	msgs := c.recvAll(t)
	require.Len(t, msgs, 3)
	for _, m := range msgs[:2] {
		assert.Equal(t, uint32(ctl.CtlShowNbr), m.Type)
		got, err := ctl.Unmarshal[ctl.Nbr](m.Data)
		require.NoError(t, err)
		assert.Equal(t, nbr, got)
	}
	assert.Empty(t, f.parent.msgs)
	assert.Empty(t, f.rde.msgs)
	assert.Nil(t, f.s.reg.ByPID(42), "local queries do not claim a pid")
}

// Reload is forwarded unchanged and nothing is written back.
func TestServer_ReloadForwarded(t *testing.T) {
	f := newFixture(t)
	c := f.connect(t)

	c.send(t, ctl.CtlReload, 4242, nil)
	f.deliver(c)

	require.Len(t, f.parent.msgs, 1)
	assert.Equal(t, sent{typ: uint32(ctl.CtlReload), pid: 4242}, f.parent.msgs[0])
	assert.Same(t, c.server, f.s.reg.ByPID(4242))
	assert.Zero(t, c.server.Pending())
	assert.Empty(t, f.rde.msgs)
}

func TestServer_ForwardedKinds(t *testing.T) {
	f := newFixture(t)
	c := f.connect(t)

	c.send(t, ctl.CtlFibCouple, 1, nil)
	c.send(t, ctl.CtlFibDecouple, 1, nil)
	c.send(t, ctl.CtlKroute, 1, []byte{1, 2, 3})
	c.send(t, ctl.CtlIfinfo, 1, nil)
	c.send(t, ctl.CtlFibCouple, 1, []byte{0}) // wrong length
	f.deliver(c)

	var kinds []uint32
	for _, m := range f.parent.msgs {
		kinds = append(kinds, m.typ)
	}
	assert.Equal(t, []uint32{uint32(ctl.CtlFibCouple), uint32(ctl.CtlFibDecouple), uint32(ctl.CtlKroute), uint32(ctl.CtlIfinfo)}, kinds)
	assert.Equal(t, []byte{1, 2, 3}, f.parent.msgs[2].data)
}

func TestServer_TopologyForwardedAndRelayed(t *testing.T) {
	f := newFixture(t)
	c := f.connect(t)

	req := ctl.Marshal(ctl.ShowTopologyReq{AF: ctl.AFInet, Flags: ctl.TopoAllLinks})
	c.send(t, ctl.CtlShowTopology, 77, req)
	f.deliver(c)

	require.Len(t, f.rde.msgs, 1)
	assert.Equal(t, req, f.rde.msgs[0].data)
	assert.Equal(t, uint32(77), f.rde.msgs[0].pid)

	topo := ctl.Marshal(ctl.Topo{AF: ctl.AFInet, PrefixLen: 24, Distance: 10})
	assert.True(t, f.s.Relay(imsg.New(uint32(ctl.CtlShowTopology), 0, 77, topo)))
	assert.True(t, f.s.Relay(imsg.New(uint32(ctl.CtlEnd), 0, 77, nil)))
	f.r.Flush()

	msgs := c.recvAll(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, topo, msgs[0].Data)
	assert.Equal(t, uint32(77), msgs[0].PID)
}

// Descriptor exhaustion pauses accept for the fixed delay.
func TestServer_AcceptPauseAndResume(t *testing.T) {
	f := newFixture(t)
	lfd := f.s.listener.fd

	accept := f.s.listener.accept
	f.s.listener.accept = func(int) (int, error) { return -1, unix.EMFILE }

	nc, err := net.Dial("unix", f.path)
	require.NoError(t, err)
	defer nc.Close()

	f.r.Readable(lfd)
	assert.True(t, f.s.Paused())
	_, subscribed := f.r.Interest(lfd)
	assert.False(t, subscribed)
	assert.Equal(t, 1, f.r.PendingTimers())
	assert.Zero(t, f.s.reg.Len())

	f.s.listener.accept = accept
	f.r.Advance(500 * time.Millisecond)
	assert.True(t, f.s.Paused())

	f.r.Advance(500 * time.Millisecond)
	assert.False(t, f.s.Paused())
	ev, subscribed := f.r.Interest(lfd)
	require.True(t, subscribed)
	assert.Equal(t, event.Read, ev)

	require.True(t, f.r.Readable(lfd))
	assert.Equal(t, 1, f.s.reg.Len())
	assert.Equal(t, uint64(1), f.s.Stats().Pauses)
}

func TestServer_ENFILEPauses(t *testing.T) {
	f := newFixture(t)
	f.s.listener.accept = func(int) (int, error) { return -1, unix.ENFILE }
	f.r.Readable(f.s.listener.fd)
	assert.True(t, f.s.Paused())
}

func TestServer_TransientAcceptErrors(t *testing.T) {
	f := newFixture(t)
	for _, errno := range []unix.Errno{unix.EAGAIN, unix.EINTR, unix.ECONNABORTED, unix.EPERM} {
		f.s.listener.accept = func(int) (int, error) { return -1, errno }
		f.r.Readable(f.s.listener.fd)
		assert.False(t, f.s.Paused(), errno.Error())
	}
	assert.Equal(t, uint64(1), f.s.Stats().Errors)
}

func TestServer_ResumeEarlyOnDisconnect(t *testing.T) {
	f := newFixture(t)
	c := f.connect(t)

	accept := f.s.listener.accept
	f.s.listener.accept = func(int) (int, error) { return -1, unix.EMFILE }
	f.r.Readable(f.s.listener.fd)
	require.True(t, f.s.Paused())
	f.s.listener.accept = accept

	require.NoError(t, c.Close())
	f.r.Readable(c.server.FD())

	assert.False(t, f.s.Paused())
	assert.Zero(t, f.r.PendingTimers())
	_, subscribed := f.r.Interest(f.s.listener.fd)
	assert.True(t, subscribed)
}

// A bad length is dropped and the connection keeps working.
func TestServer_BadLengthDropped(t *testing.T) {
	f := newFixture(t)
	f.tables.ifaces = []ctl.Iface{{AF: ctl.AFInet, Name: ctl.NameFrom("em0"), Ifindex: 3}}
	c := f.connect(t)

	c.send(t, ctl.CtlShowInterface, 9, nil)
	f.deliver(c)
	assert.False(t, c.server.Closed())
	assert.Zero(t, c.server.Pending())
	assert.Empty(t, f.tables.askedIf)

	c.send(t, ctl.CtlShowInterface, 9, ctl.PutUint32(3))
	f.deliver(c)

	msgs := c.recvAll(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, uint32(ctl.CtlIface), msgs[0].Type)
	assert.Equal(t, uint32(ctl.CtlEnd), msgs[1].Type)
	assert.Equal(t, []uint32{3}, f.tables.askedIf)
}

// A reply for a pid with no client goes nowhere.
func TestServer_RelayMiss(t *testing.T) {
	f := newFixture(t)
	bystander := f.connect(t)
	bystander.send(t, ctl.CtlReload, 1, nil)
	f.deliver(bystander)

	ok := f.s.Relay(imsg.New(uint32(ctl.CtlShowTopology), 0, 999, nil))
	assert.False(t, ok)
	assert.Zero(t, bystander.server.Pending())
}

func TestServer_StatsAndEnd(t *testing.T) {
	f := newFixture(t)
	f.tables.stats = []ctl.Stats{{AF: ctl.AFInet, AS: 1, HellosSent: 5}}
	c := f.connect(t)

	c.send(t, ctl.CtlShowStats, 0, nil)
	f.deliver(c)

	msgs := c.recvAll(t)
	require.Len(t, msgs, 2)
	st, err := ctl.Unmarshal[ctl.Stats](msgs[0].Data)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), st.HellosSent)
}

func TestServer_ClearNeighborsAndVerbose(t *testing.T) {
	f := newFixture(t)
	c := f.connect(t)

	req := ctl.Nbr{AF: ctl.AFInet, AS: 7}
	c.send(t, ctl.CtlClearNbr, 0, ctl.Marshal(req))
	c.send(t, ctl.CtlLogVerbose, 5, ctl.PutVerbose(1))
	f.deliver(c)

	assert.Equal(t, []ctl.Nbr{req}, f.tables.cleared)
	assert.Equal(t, []int32{1}, f.tables.verbose)
	require.Len(t, f.parent.msgs, 1)
	require.Len(t, f.rde.msgs, 1)
	assert.Equal(t, uint32(ctl.CtlLogVerbose), f.rde.msgs[0].typ)
}

func TestServer_UnknownKindDropped(t *testing.T) {
	f := newFixture(t)
	c := f.connect(t)

	c.send(t, ctl.Type(200), 0, []byte("junk"))
	c.send(t, ctl.CtlEnd, 0, nil)
	f.deliver(c)

	assert.False(t, c.server.Closed())
	assert.Empty(t, f.parent.msgs)
	assert.Empty(t, f.rde.msgs)
}

func TestServer_MalformedFrameLeavesNoReferences(t *testing.T) {
	f := newFixture(t)
	c := f.connect(t)
	c.send(t, ctl.CtlReload, 31, nil)
	f.deliver(c)
	require.NotNil(t, f.s.reg.ByPID(31))

	bad := make([]byte, imsg.HeaderSize)
	bad[4], bad[5] = 0xff, 0xff // longer than MaxSize
	_, err := c.Write(bad)
	require.NoError(t, err)
	fd := c.server.FD()
	f.deliver(c)

	assert.True(t, c.server.Closed())
	assert.Nil(t, f.s.reg.ByFD(fd))
	assert.Nil(t, f.s.reg.ByPID(31))
	_, subscribed := f.r.Interest(fd)
	assert.False(t, subscribed)
	assert.False(t, f.s.Relay(imsg.New(uint32(ctl.CtlEnd), 0, 31, nil)))
}

func TestServer_ClientsAndCleanup(t *testing.T) {
	f := newFixture(t)
	a := f.connect(t)
	f.connect(t)
	a.send(t, ctl.CtlReload, 12, nil)
	f.deliver(a)

	infos := f.s.Clients()
	require.Len(t, infos, 2)
	var pids []uint32
	for _, ci := range infos {
		assert.NotEmpty(t, ci.ID)
		pids = append(pids, ci.PID)
	}
	assert.Contains(t, pids, uint32(12))

	f.s.Cleanup()
	assert.Zero(t, f.s.reg.Len())
	assert.Zero(t, f.r.Len())
}
