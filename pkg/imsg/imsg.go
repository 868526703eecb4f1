// Package imsg implements the framed message format shared by the control
// socket and the channels between the daemon's processes.
//
// Every frame starts with a fixed 16-byte header in network byte order:
//
//	type   uint32
//	len    uint16  total frame length, header included
//	flags  uint16
//	peerid uint32
//	pid    uint32
//
// followed by exactly len-HeaderSize bytes of payload whose shape is fixed by
// the type.
package imsg

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderSize is the encoded size of Header.
	HeaderSize = 16
	// MaxSize is the largest frame, header included, a peer may declare.
	MaxSize = 16384
	// MaxPayload is the largest payload that fits in one frame.
	MaxPayload = MaxSize - HeaderSize
)

var (
	// ErrNeedMore means the buffer does not yet hold a complete frame.
	ErrNeedMore = errors.New("imsg: need more data")
	// ErrMalformed means the buffer starts with a frame that can never be
	// valid. The stream is unrecoverable.
	ErrMalformed = errors.New("imsg: malformed frame")
	// ErrTooLarge is returned when encoding a payload that does not fit.
	ErrTooLarge = errors.New("imsg: payload too large")
)

// Header is the fixed frame header.
type Header struct {
	Type   uint32
	Len    uint16
	Flags  uint16
	PeerID uint32
	PID    uint32
}

// Message is one decoded frame.
type Message struct {
	Header
	Data []byte
}

// New builds a message with Len set from data.
func New(typ, peerID, pid uint32, data []byte) Message {
	return Message{
		Header: Header{
			Type:   typ,
			Len:    uint16(HeaderSize + len(data)),
			PeerID: peerID,
			PID:    pid,
		},
		Data: data,
	}
}

// String is used in log lines.
func (m Message) String() string {
	return fmt.Sprintf("imsg{type=%d len=%d peerid=%d pid=%d}", m.Type, m.Len, m.PeerID, m.PID)
}

// Encode returns the wire form of m. Len is recomputed from the payload.
func Encode(m Message) ([]byte, error) {
	return AppendEncode(make([]byte, 0, HeaderSize+len(m.Data)), m)
}

// AppendEncode appends the wire form of m to dst.
func AppendEncode(dst []byte, m Message) ([]byte, error) {
	if len(m.Data) > MaxPayload {
		return dst, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(m.Data))
	}
	dst = binary.BigEndian.AppendUint32(dst, m.Type)
	dst = binary.BigEndian.AppendUint16(dst, uint16(HeaderSize+len(m.Data)))
	dst = binary.BigEndian.AppendUint16(dst, m.Flags)
	dst = binary.BigEndian.AppendUint32(dst, m.PeerID)
	dst = binary.BigEndian.AppendUint32(dst, m.PID)
	return append(dst, m.Data...), nil
}

// TryDecode parses the frame at the front of buf.
//
// It returns ErrNeedMore when buf holds less than a header or less than the
// declared frame length, and ErrMalformed when the declared length is below
// HeaderSize or above MaxSize. On success it returns the message, with its
// payload copied out of buf, and the number of bytes to drop from the front
// of buf.
func TryDecode(buf []byte) (Message, int, error) {
	if len(buf) < HeaderSize {
		return Message{}, 0, ErrNeedMore
	}

	var h Header
	h.Type = binary.BigEndian.Uint32(buf[0:4])
	h.Len = binary.BigEndian.Uint16(buf[4:6])
	h.Flags = binary.BigEndian.Uint16(buf[6:8])
	h.PeerID = binary.BigEndian.Uint32(buf[8:12])
	h.PID = binary.BigEndian.Uint32(buf[12:16])

	n := int(h.Len)
	if n < HeaderSize || n > MaxSize {
		return Message{}, 0, fmt.Errorf("%w: declared length %d", ErrMalformed, n)
	}
	if len(buf) < n {
		return Message{}, 0, ErrNeedMore
	}

	var data []byte
	if n > HeaderSize {
		data = make([]byte, n-HeaderSize)
		copy(data, buf[HeaderSize:n])
	}
	return Message{Header: h, Data: data}, n, nil
}

// DataLen is the payload length declared by the header.
func (h Header) DataLen() int {
	return int(h.Len) - HeaderSize
}
