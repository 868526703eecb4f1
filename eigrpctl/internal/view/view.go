// Package view turns control records into rows for tables and JSON output.
package view

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"

	"github.com/amurg-ai/eigrpd/pkg/ctl"
)

// Uptime formats seconds the way routing daemons usually do: hh:mm:ss under a
// day, then days and hours, then weeks.
func Uptime(secs uint32) string {
	const (
		day  = 24 * 60 * 60
		week = 7 * day
	)
	s := secs % 60
	m := secs / 60 % 60
	h := secs / 3600 % 24
	d := secs / day
	switch {
	case secs < day:
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	case secs < week:
		return fmt.Sprintf("%dd%02dh%02dm", d, h, m)
	default:
		return fmt.Sprintf("%02dw%01dd%02dh", d/7, d%7, h)
	}
}

func family(af uint8) string {
	switch af {
	case ctl.AFInet:
		return "inet"
	case ctl.AFInet6:
		return "inet6"
	default:
		return "unknown"
	}
}

func linkState(s uint8) string {
	switch s {
	case ctl.LinkUp:
		return "up"
	case ctl.LinkDown:
		return "down"
	default:
		return "unknown"
	}
}

func addr(a ctl.Addr, af uint8) string {
	ip := a.IP(af)
	if !ip.IsValid() || ip.IsUnspecified() {
		return "-"
	}
	return ip.String()
}

func prefix(a ctl.Addr, af, bits uint8) string {
	ip := a.IP(af)
	if !ip.IsValid() {
		return "-"
	}
	return netip.PrefixFrom(ip, int(bits)).String()
}

// Interface is one EIGRP interface.
type Interface struct {
	Family        string `json:"af"`
	AS            uint16 `json:"as"`
	Name          string `json:"name"`
	Ifindex       uint32 `json:"ifindex"`
	Address       string `json:"address"`
	Link          string `json:"link"`
	Passive       bool   `json:"passive"`
	MTU           uint32 `json:"mtu"`
	Bandwidth     uint32 `json:"bandwidth"`
	Delay         uint32 `json:"delay"`
	HelloInterval uint16 `json:"hello_interval"`
	HoldTime      uint16 `json:"hold_time"`
	Neighbors     uint32 `json:"neighbors"`
	Uptime        string `json:"uptime"`
}

// InterfaceHeaders are the table columns for interfaces.
var InterfaceHeaders = []string{"AF", "AS", "INTERFACE", "ADDRESS", "LINK", "HELLO", "HOLD", "NBRS", "UPTIME"}

// FromIface converts a record.
func FromIface(r ctl.Iface) Interface {
	v := Interface{
		Family:        family(r.AF),
		AS:            r.AS,
		Name:          r.Name.String(),
		Ifindex:       r.Ifindex,
		Address:       prefix(r.Addr, r.AF, r.PrefixLen),
		Link:          linkState(r.Linkstate),
		Passive:       r.Passive != 0,
		MTU:           r.MTU,
		Bandwidth:     r.Bandwidth,
		Delay:         r.Delay,
		HelloInterval: r.HelloInterval,
		HoldTime:      r.HelloHoldtime,
		Neighbors:     r.NbrCount,
		Uptime:        Uptime(r.Uptime),
	}
	return v
}

// Row returns the table cells.
func (v Interface) Row() []string {
	link := v.Link
	if v.Passive {
		link = "passive"
	}
	return []string{v.Family, strconv.Itoa(int(v.AS)), v.Name, v.Address, link,
		strconv.Itoa(int(v.HelloInterval)), strconv.Itoa(int(v.HoldTime)),
		strconv.Itoa(int(v.Neighbors)), v.Uptime}
}

// Neighbor is one adjacency.
type Neighbor struct {
	Family    string `json:"af"`
	AS        uint16 `json:"as"`
	Address   string `json:"address"`
	Interface string `json:"interface"`
	HoldTime  uint16 `json:"hold_time"`
	Uptime    string `json:"uptime"`
}

// NeighborHeaders are the table columns for neighbors.
var NeighborHeaders = []string{"AF", "AS", "ADDRESS", "IFACE", "HOLD", "UPTIME"}

// FromNbr converts a record.
func FromNbr(r ctl.Nbr) Neighbor {
	return Neighbor{
		Family:    family(r.AF),
		AS:        r.AS,
		Address:   addr(r.Addr, r.AF),
		Interface: r.Ifname.String(),
		HoldTime:  r.HoldTime,
		Uptime:    Uptime(r.Uptime),
	}
}

// Row returns the table cells.
func (v Neighbor) Row() []string {
	return []string{v.Family, strconv.Itoa(int(v.AS)), v.Address, v.Interface,
		strconv.Itoa(int(v.HoldTime)), v.Uptime}
}

// Route is one topology table entry.
type Route struct {
	Family           string `json:"af"`
	AS               uint16 `json:"as"`
	Prefix           string `json:"prefix"`
	Nexthop          string `json:"nexthop"`
	Interface        string `json:"interface,omitempty"`
	FeasibleDistance uint32 `json:"feasible_distance"`
	Distance         uint32 `json:"distance"`
	ReportedDistance uint32 `json:"reported_distance"`
	Successor        bool   `json:"successor"`
	Feasible         bool   `json:"feasible"`
	Active           bool   `json:"active"`
}

// RouteHeaders are the table columns for the topology.
var RouteHeaders = []string{"", "AF", "AS", "PREFIX", "NEXTHOP", "IFACE", "FD", "DIST/RD"}

// FromTopo converts a record.
func FromTopo(r ctl.Topo) Route {
	return Route{
		Family:           family(r.AF),
		AS:               r.AS,
		Prefix:           prefix(r.Prefix, r.AF, r.PrefixLen),
		Nexthop:          addr(r.Nexthop, r.AF),
		Interface:        r.Ifname.String(),
		FeasibleDistance: r.FDistance,
		Distance:         r.Distance,
		ReportedDistance: r.RDistance,
		Successor:        r.Flags&ctl.RouteSuccessor != 0,
		Feasible:         r.Flags&ctl.RouteFeasible != 0,
		Active:           r.Active != 0,
	}
}

// Code is the one-letter state: A for active, P for passive. Successors get
// a trailing asterisk.
func (v Route) Code() string {
	c := "P"
	if v.Active {
		c = "A"
	}
	if v.Successor {
		c += "*"
	}
	return c
}

// Row returns the table cells.
func (v Route) Row() []string {
	ifname := v.Interface
	if ifname == "" {
		ifname = "-"
	}
	return []string{v.Code(), v.Family, strconv.Itoa(int(v.AS)), v.Prefix, v.Nexthop, ifname,
		strconv.FormatUint(uint64(v.FeasibleDistance), 10),
		fmt.Sprintf("%d/%d", v.Distance, v.ReportedDistance)}
}

// Traffic is one instance's packet counters.
type Traffic struct {
	Family string            `json:"af"`
	AS     uint16            `json:"as"`
	Sent   map[string]uint32 `json:"sent"`
	Recv   map[string]uint32 `json:"received"`
}

// TrafficHeaders are the table columns for traffic statistics.
var TrafficHeaders = []string{"AF", "AS", "TYPE", "SENT", "RECEIVED"}

var trafficKinds = []string{"hello", "update", "query", "reply", "ack", "sia-query", "sia-reply"}

// FromStats converts a record.
func FromStats(r ctl.Stats) Traffic {
	return Traffic{
		Family: family(r.AF),
		AS:     r.AS,
		Sent: map[string]uint32{
			"hello": r.HellosSent, "update": r.UpdatesSent, "query": r.QueriesSent,
			"reply": r.RepliesSent, "ack": r.AcksSent,
			"sia-query": r.SIAQueriesSent, "sia-reply": r.SIARepliesSent,
		},
		Recv: map[string]uint32{
			"hello": r.HellosRecv, "update": r.UpdatesRecv, "query": r.QueriesRecv,
			"reply": r.RepliesRecv, "ack": r.AcksRecv,
			"sia-query": r.SIAQueriesRecv, "sia-reply": r.SIARepliesRecv,
		},
	}
}

// Rows returns one table row per packet type.
func (v Traffic) Rows() [][]string {
	rows := make([][]string, 0, len(trafficKinds))
	for _, k := range trafficKinds {
		rows = append(rows, []string{v.Family, strconv.Itoa(int(v.AS)), k,
			strconv.FormatUint(uint64(v.Sent[k]), 10), strconv.FormatUint(uint64(v.Recv[k]), 10)})
	}
	return rows
}

// FIBRoute is one forwarding table entry.
type FIBRoute struct {
	Family   string   `json:"af"`
	Prefix   string   `json:"prefix"`
	Nexthop  string   `json:"nexthop"`
	Ifindex  uint32   `json:"ifindex,omitempty"`
	Priority uint8    `json:"priority"`
	Flags    []string `json:"flags,omitempty"`
}

// FIBHeaders are the table columns for the FIB.
var FIBHeaders = []string{"FLAGS", "PRIO", "PREFIX", "NEXTHOP", "IFINDEX"}

// FromKroute converts a record.
func FromKroute(r ctl.Kroute) FIBRoute {
	return FIBRoute{
		Family:   family(r.AF),
		Prefix:   prefix(r.Prefix, r.AF, r.PrefixLen),
		Nexthop:  addr(r.Nexthop, r.AF),
		Ifindex:  r.Ifindex,
		Priority: r.Priority,
		Flags:    ctl.KrouteFlagNames(r.Flags),
	}
}

// FlagCodes renders flags as compact letters: S static, E eigrp, C connected.
func (v FIBRoute) FlagCodes() string {
	var b strings.Builder
	for _, f := range v.Flags {
		b.WriteByte(strings.ToUpper(f[:1])[0])
	}
	if b.Len() == 0 {
		return "-"
	}
	return b.String()
}

// Row returns the table cells.
func (v FIBRoute) Row() []string {
	ifindex := "-"
	if v.Ifindex != 0 {
		ifindex = strconv.FormatUint(uint64(v.Ifindex), 10)
	}
	return []string{v.FlagCodes(), strconv.Itoa(int(v.Priority)), v.Prefix, v.Nexthop, ifindex}
}

// Link is one host interface as the kernel reports it.
type Link struct {
	Ifindex uint32 `json:"ifindex"`
	Name    string `json:"name"`
	Flags   string `json:"flags"`
	Link    string `json:"link"`
}

// LinkHeaders are the table columns for host interfaces.
var LinkHeaders = []string{"IFINDEX", "INTERFACE", "FLAGS", "LINK"}

// FromIfinfo converts a record.
func FromIfinfo(r ctl.Ifinfo) Link {
	return Link{
		Ifindex: r.Ifindex,
		Name:    r.Name.String(),
		Flags:   net.Flags(r.Flags).String(),
		Link:    linkState(r.Linkstate),
	}
}

// Row returns the table cells.
func (v Link) Row() []string {
	return []string{strconv.FormatUint(uint64(v.Ifindex), 10), v.Name, v.Flags, v.Link}
}
