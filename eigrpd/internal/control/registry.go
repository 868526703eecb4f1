package control

import (
	"fmt"
	"log/slog"
	"sort"
)

// Registry indexes live clients by descriptor and by owning process id.
// A pid maps to at most one client: a newer association replaces an older
// one, and the older client keeps its pid but is no longer reachable by it.
type Registry struct {
	byFD   map[int]*Conn
	byPID  map[uint32]*Conn
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		byFD:   make(map[int]*Conn),
		byPID:  make(map[uint32]*Conn),
		logger: logger,
	}
}

// Add indexes c by its descriptor.
func (r *Registry) Add(c *Conn) error {
	fd := c.FD()
	if _, ok := r.byFD[fd]; ok {
		return fmt.Errorf("control: fd %d already registered", fd)
	}
	r.byFD[fd] = c
	return nil
}

// ByFD returns the client on fd, or nil.
func (r *Registry) ByFD(fd int) *Conn { return r.byFD[fd] }

// ByPID returns the client that last claimed pid, or nil.
func (r *Registry) ByPID(pid uint32) *Conn { return r.byPID[pid] }

// SetPID records pid as the owner of c.
func (r *Registry) SetPID(c *Conn, pid uint32) {
	if c.hasPID && c.pid != pid && r.byPID[c.pid] == c {
		delete(r.byPID, c.pid)
	}
	if prev := r.byPID[pid]; prev != nil && prev != c {
		r.logger.Debug("pid association superseded", "pid", pid, "old", prev.id, "new", c.id)
	}
	c.pid = pid
	c.hasPID = true
	r.byPID[pid] = c
}

// Remove drops every index entry that still points at c.
func (r *Registry) Remove(c *Conn) {
	if r.byFD[c.FD()] == c {
		delete(r.byFD, c.FD())
	}
	if c.hasPID && r.byPID[c.pid] == c {
		delete(r.byPID, c.pid)
	}
}

// Len is the number of live clients.
func (r *Registry) Len() int { return len(r.byFD) }

// Each calls fn for every client in descriptor order until fn returns false.
func (r *Registry) Each(fn func(*Conn) bool) {
	fds := make([]int, 0, len(r.byFD))
	for fd := range r.byFD {
		fds = append(fds, fd)
	}
	sort.Ints(fds)
	for _, fd := range fds {
		c, ok := r.byFD[fd]
		if !ok {
			continue
		}
		if !fn(c) {
			return
		}
	}
}
