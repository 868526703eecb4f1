package control

import (
	"time"

	"github.com/google/uuid"

	"github.com/amurg-ai/eigrpd/eigrpd/internal/ipc"
)

// Conn is one control client.
type Conn struct {
	*ipc.Channel

	id           string
	pid          uint32
	hasPID       bool
	registeredAt time.Time
}

// ID is a diagnostic tag that stays unique across descriptor reuse.
func (c *Conn) ID() string { return c.id }

// PID returns the process id the client last addressed requests from.
func (c *Conn) PID() (uint32, bool) { return c.pid, c.hasPID }

// RegisteredAt is when the connection was accepted.
func (c *Conn) RegisteredAt() time.Time { return c.registeredAt }

func newConn(now time.Time) *Conn {
	return &Conn{id: uuid.NewString(), registeredAt: now}
}

// ClientInfo is a snapshot of a Conn for diagnostics.
type ClientInfo struct {
	ID           string    `json:"id"`
	FD           int       `json:"fd"`
	PID          uint32    `json:"pid,omitempty"`
	Pending      int       `json:"pending_bytes"`
	RegisteredAt time.Time `json:"registered_at"`
}

func (c *Conn) info() ClientInfo {
	return ClientInfo{
		ID:           c.id,
		FD:           c.FD(),
		PID:          c.pid,
		Pending:      c.Pending(),
		RegisteredAt: c.registeredAt,
	}
}
