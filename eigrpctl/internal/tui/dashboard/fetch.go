package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/amurg-ai/eigrpd/eigrpctl/internal/view"
	"github.com/amurg-ai/eigrpd/pkg/client"
	"github.com/amurg-ai/eigrpd/pkg/ctl"
)

// Snapshot is one poll of the daemon.
type Snapshot struct {
	Interfaces []view.Interface
	Neighbors  []view.Neighbor
	Active     []view.Route
	Traffic    []view.Traffic
	At         time.Time
}

// Fetcher polls the daemon.
type Fetcher interface {
	Fetch(ctx context.Context) (Snapshot, error)
}

// SocketFetcher dials the control socket on every poll so the dashboard
// survives daemon restarts.
type SocketFetcher struct {
	Path string
}

// Fetch implements Fetcher.
func (f SocketFetcher) Fetch(ctx context.Context) (Snapshot, error) {
	c, err := client.Dial(ctx, f.Path)
	if err != nil {
		return Snapshot{}, err
	}
	defer func() { _ = c.Close() }()
	return Collect(ctx, c)
}

// Collect queries interfaces, neighbors, active routes and traffic over c.
func Collect(ctx context.Context, c *client.Client) (Snapshot, error) {
	s := Snapshot{At: time.Now()}

	ifaces, err := c.Interfaces(ctx, 0)
	if err != nil {
		return s, fmt.Errorf("interfaces: %w", err)
	}
	for _, r := range ifaces {
		s.Interfaces = append(s.Interfaces, view.FromIface(r))
	}

	nbrs, err := c.Neighbors(ctx)
	if err != nil {
		return s, fmt.Errorf("neighbors: %w", err)
	}
	for _, r := range nbrs {
		s.Neighbors = append(s.Neighbors, view.FromNbr(r))
	}

	topo, err := c.Topology(ctx, ctl.ShowTopologyReq{Flags: ctl.TopoActiveOnly})
	if err != nil {
		return s, fmt.Errorf("topology: %w", err)
	}
	for _, r := range topo {
		s.Active = append(s.Active, view.FromTopo(r))
	}

	stats, err := c.Stats(ctx)
	if err != nil {
		return s, fmt.Errorf("stats: %w", err)
	}
	for _, r := range stats {
		s.Traffic = append(s.Traffic, view.FromStats(r))
	}
	return s, nil
}
