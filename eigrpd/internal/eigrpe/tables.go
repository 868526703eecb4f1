package eigrpe

import (
	"net/netip"
	"time"

	"github.com/amurg-ai/eigrpd/eigrpd/internal/config"
	"github.com/amurg-ai/eigrpd/pkg/ctl"
)

type iface struct {
	rec   ctl.Iface
	hello time.Duration
	up    time.Time
}

type neighbor struct {
	rec ctl.Nbr
	up  time.Time
}

// Tables holds the engine's interface, neighbor and statistics state. It is
// owned by the event loop goroutine.
type Tables struct {
	now    func() time.Time
	ifaces []*iface
	nbrs   []*neighbor
	stats  []*ctl.Stats
}

// NewTables seeds the tables from cfg.
func NewTables(cfg *config.Config, now func() time.Time) *Tables {
	if now == nil {
		now = time.Now
	}
	t := &Tables{now: now}
	t.Load(cfg)
	return t
}

func afCode(af string) uint8 {
	if af == "inet6" {
		return ctl.AFInet6
	}
	return ctl.AFInet
}

// Load replaces the tables with cfg's contents. Counters of instances that
// survive the reload are kept.
func (t *Tables) Load(cfg *config.Config) {
	now := t.now()

	type key struct {
		af uint8
		as uint16
	}
	oldStats := make(map[key]*ctl.Stats, len(t.stats))
	for _, st := range t.stats {
		oldStats[key{st.AF, st.AS}] = st
	}

	t.ifaces, t.nbrs, t.stats = nil, nil, nil
	for _, inst := range cfg.Instances {
		af := afCode(inst.AF)
		byName := make(map[string]*iface)

		for _, ic := range inst.Interfaces {
			rec := ctl.Iface{
				AF:            af,
				AS:            inst.AS,
				Name:          ctl.NameFrom(ic.Name),
				Ifindex:       ic.Index,
				Linkstate:     ctl.LinkUp,
				MTU:           ic.MTU,
				Bandwidth:     ic.Bandwidth,
				Delay:         ic.Delay,
				HelloHoldtime: uint16(ic.HoldTime.Seconds()),
				HelloInterval: uint16(ic.HelloInterval.Seconds()),
			}
			if ic.Passive {
				rec.Passive = 1
			}
			if p, err := netip.ParsePrefix(ic.Address); err == nil {
				rec.Addr = ctl.AddrFrom(p.Addr())
				rec.PrefixLen = uint8(p.Bits())
			}
			ifc := &iface{rec: rec, hello: ic.HelloInterval.Duration, up: now}
			byName[ic.Name] = ifc
			t.ifaces = append(t.ifaces, ifc)
		}

		for _, nc := range inst.Neighbors {
			addr, err := netip.ParseAddr(nc.Address)
			if err != nil {
				continue
			}
			t.nbrs = append(t.nbrs, &neighbor{
				rec: ctl.Nbr{
					AF:       af,
					AS:       inst.AS,
					Ifname:   ctl.NameFrom(nc.Interface),
					Addr:     ctl.AddrFrom(addr),
					HoldTime: uint16(nc.HoldTime.Seconds()),
				},
				up: now,
			})
			if ifc := byName[nc.Interface]; ifc != nil {
				ifc.rec.NbrCount++
			}
		}

		st := oldStats[key{af, inst.AS}]
		if st == nil {
			st = &ctl.Stats{AF: af, AS: inst.AS}
		}
		t.stats = append(t.stats, st)
	}
}

func uptime(since, now time.Time) uint32 {
	d := now.Sub(since)
	if d < 0 {
		return 0
	}
	return uint32(d / time.Second)
}

// Interfaces lists interfaces, all of them when ifindex is 0.
func (t *Tables) Interfaces(ifindex uint32) []ctl.Iface {
	now := t.now()
	var out []ctl.Iface
	for _, ifc := range t.ifaces {
		if ifindex != 0 && ifc.rec.Ifindex != ifindex {
			continue
		}
		rec := ifc.rec
		rec.Uptime = uptime(ifc.up, now)
		out = append(out, rec)
	}
	return out
}

// Neighbors lists every adjacency.
func (t *Tables) Neighbors() []ctl.Nbr {
	now := t.now()
	out := make([]ctl.Nbr, 0, len(t.nbrs))
	for _, n := range t.nbrs {
		rec := n.rec
		rec.Uptime = uptime(n.up, now)
		out = append(out, rec)
	}
	return out
}

// ClearNeighbors resets the adjacencies matching req and returns how many
// were reset. AF and AS of zero match any instance; a zero address matches
// every neighbor.
func (t *Tables) ClearNeighbors(req ctl.Nbr) int {
	now := t.now()
	n := 0
	for _, nbr := range t.nbrs {
		if req.AF != 0 && nbr.rec.AF != req.AF {
			continue
		}
		if req.AS != 0 && nbr.rec.AS != req.AS {
			continue
		}
		if req.Addr != (ctl.Addr{}) && nbr.rec.Addr != req.Addr {
			continue
		}
		nbr.up = now
		n++
	}
	return n
}

// Stats lists per-instance counters.
func (t *Tables) Stats() []ctl.Stats {
	out := make([]ctl.Stats, 0, len(t.stats))
	for _, st := range t.stats {
		out = append(out, *st)
	}
	return out
}

func (t *Tables) statsFor(af uint8, as uint16) *ctl.Stats {
	for _, st := range t.stats {
		if st.AF == af && st.AS == as {
			return st
		}
	}
	return nil
}
