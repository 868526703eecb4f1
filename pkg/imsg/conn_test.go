package imsg

import (
	"errors"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConn_ComposeReadMessage(t *testing.T) {
	a, b := net.Pipe()
	ca, cb := NewConn(a), NewConn(b)
	defer func() { _ = ca.Close() }()
	defer func() { _ = cb.Close() }()

	go func() {
		_ = ca.Compose(3, 0, 100, []byte("hello"))
		_ = ca.Compose(12, 0, 100, nil)
	}()

	m, err := cb.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, uint32(3), m.Type)
	assert.Equal(t, uint32(100), m.PID)
	assert.Equal(t, []byte("hello"), m.Data)

	m, err = cb.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, uint32(12), m.Type)
	assert.Empty(t, m.Data)
}

type chunkReader struct {
	data  []byte
	chunk int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := min(r.chunk, len(p), len(r.data))
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

func (r *chunkReader) Write(p []byte) (int, error) { return len(p), nil }
func (r *chunkReader) Close() error                { return nil }

func TestConn_ReadMessage_Trickle(t *testing.T) {
	want, stream := sampleStream(t)
	c := NewConn(&chunkReader{data: stream, chunk: 1})

	for _, w := range want {
		got, err := c.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, w.Header, got.Header)
	}
	_, err := c.ReadMessage()
	assert.ErrorIs(t, err, io.EOF)
}

func TestConn_ReadMessage_TruncatedFrame(t *testing.T) {
	_, stream := sampleStream(t)
	c := NewConn(&chunkReader{data: stream[:HeaderSize+2], chunk: 8})

	_, err := c.ReadMessage()
	require.NoError(t, err)
	_, err = c.ReadMessage()
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF), "got %v", err)
}
