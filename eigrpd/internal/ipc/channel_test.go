//go:build linux

package ipc

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/amurg-ai/eigrpd/eigrpd/internal/event"
	"github.com/amurg-ai/eigrpd/eigrpd/internal/event/eventtest"
	"github.com/amurg-ai/eigrpd/pkg/imsg"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type harness struct {
	r      *eventtest.Reactor
	ch     *Channel
	peer   int
	msgs   []imsg.Message
	closes int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = unix.Close(fds[1]) })

	h := &harness{r: eventtest.New(), peer: fds[1]}
	h.ch = NewChannel(fds[0], h.r, discard,
		func(m imsg.Message) { h.msgs = append(h.msgs, m) },
		func() { h.closes++ })
	require.NoError(t, h.ch.Start())
	t.Cleanup(h.ch.Close)
	return h
}

func (h *harness) write(t *testing.T, b []byte) {
	t.Helper()
	_, err := unix.Write(h.peer, b)
	require.NoError(t, err)
}

func encode(t *testing.T, m imsg.Message) []byte {
	t.Helper()
	b, err := imsg.Encode(m)
	require.NoError(t, err)
	return b
}

func TestChannel_ReadsFramesAcrossReads(t *testing.T) {
	h := newHarness(t)

	a := encode(t, imsg.New(3, 0, 100, nil))
	b := encode(t, imsg.New(4, 0, 100, []byte{1, 2, 3, 4}))
	stream := append(append([]byte{}, a...), b...)

	h.write(t, stream[:5])
	h.r.Readable(h.ch.FD())
	assert.Empty(t, h.msgs)

	h.write(t, stream[5:])
	h.r.Readable(h.ch.FD())
	require.Len(t, h.msgs, 2)
	assert.Equal(t, uint32(3), h.msgs[0].Type)
	assert.Equal(t, []byte{1, 2, 3, 4}, h.msgs[1].Data)
	assert.False(t, h.ch.Closed())
}

func TestChannel_EOFCloses(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, unix.Shutdown(h.peer, unix.SHUT_WR))

	h.r.Readable(h.ch.FD())
	assert.True(t, h.ch.Closed())
	assert.Equal(t, 1, h.closes)
	assert.Zero(t, h.r.Len())

	h.ch.Close()
	assert.Equal(t, 1, h.closes, "close must be idempotent")
}

func TestChannel_MalformedCloses(t *testing.T) {
	h := newHarness(t)

	bad := make([]byte, imsg.HeaderSize)
	bad[5] = 4 // declared length below the header size
	h.write(t, bad)

	h.r.Readable(h.ch.FD())
	assert.True(t, h.ch.Closed())
	assert.Empty(t, h.msgs)
}

func TestChannel_NoReadWhenIdle(t *testing.T) {
	h := newHarness(t)
	h.r.Readable(h.ch.FD())
	assert.False(t, h.ch.Closed())
}

func TestChannel_WriteInterest(t *testing.T) {
	h := newHarness(t)

	ev, _ := h.r.Interest(h.ch.FD())
	assert.Equal(t, event.Read, ev)

	require.NoError(t, h.ch.Compose(12, 0, 7, nil))
	ev, _ = h.r.Interest(h.ch.FD())
	assert.Equal(t, event.Read|event.Write, ev)
	assert.Equal(t, imsg.HeaderSize, h.ch.Pending())

	h.r.Flush()
	ev, _ = h.r.Interest(h.ch.FD())
	assert.Equal(t, event.Read, ev)
	assert.Zero(t, h.ch.Pending())

	buf := make([]byte, 64)
	n, err := unix.Read(h.peer, buf)
	require.NoError(t, err)
	msg, used, err := imsg.TryDecode(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, n, used)
	assert.Equal(t, uint32(12), msg.Type)
	assert.Equal(t, uint32(7), msg.PID)
}

func TestChannel_CloseInsideOnMessage(t *testing.T) {
	h := newHarness(t)
	h.ch.onMessage = func(m imsg.Message) {
		h.msgs = append(h.msgs, m)
		h.ch.Close()
	}

	two := append(encode(t, imsg.New(1, 0, 0, nil)), encode(t, imsg.New(2, 0, 0, nil))...)
	h.write(t, two)
	h.r.Readable(h.ch.FD())

	assert.Len(t, h.msgs, 1)
	assert.True(t, h.ch.Closed())
}

func TestChannel_EnqueueAfterClose(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ch.Compose(1, 0, 0, nil))
	h.ch.Close()

	assert.Zero(t, h.ch.Pending(), "outbound buffer is dropped on close")
	assert.ErrorIs(t, h.ch.Compose(1, 0, 0, nil), ErrClosed)
}
