package ctl

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net/netip"
)

// Encoded sizes of the payload records. TestRecordSizes keeps these in step
// with the struct layouts.
const (
	SizeUint32          = 4
	SizeShowTopologyReq = 20
	SizeNbr             = 44
	SizeIface           = 68
	SizeStats           = 60
	SizeTopo            = 68
	SizeKroute          = 44
	SizeIfinfo          = 28
)

// Topology request flags.
const (
	TopoActiveOnly uint8 = 1 << iota
	TopoAllLinks
)

// Topology entry flags.
const (
	RouteSuccessor uint8 = 1 << iota
	RouteFeasible
)

// Kernel route flags.
const (
	KrouteStatic uint16 = 1 << iota
	KrouteEigrp
	KrouteConnected
)

// KrouteFlagNames lists the names of the bits set in flags.
func KrouteFlagNames(flags uint16) []string {
	var out []string
	if flags&KrouteStatic != 0 {
		out = append(out, "static")
	}
	if flags&KrouteEigrp != 0 {
		out = append(out, "eigrp")
	}
	if flags&KrouteConnected != 0 {
		out = append(out, "connected")
	}
	return out
}

// Interface link states.
const (
	LinkUnknown uint8 = iota
	LinkDown
	LinkUp
)

// Addr is an address in 16-byte form. IPv4 addresses are stored v4-mapped.
type Addr [16]byte

// AddrFrom converts a netip.Addr. The zero Addr is returned for an invalid
// address.
func AddrFrom(a netip.Addr) Addr {
	if !a.IsValid() {
		return Addr{}
	}
	return a.As16()
}

// IP returns the address for family af.
func (a Addr) IP(af uint8) netip.Addr {
	ip := netip.AddrFrom16(a)
	if af == AFInet {
		return ip.Unmap()
	}
	return ip
}

// Name is a NUL-padded interface name.
type Name [16]byte

// NameFrom truncates s to fit.
func NameFrom(s string) Name {
	var n Name
	copy(n[:len(n)-1], s)
	return n
}

func (n Name) String() string {
	if i := bytes.IndexByte(n[:], 0); i >= 0 {
		return string(n[:i])
	}
	return string(n[:])
}

// ShowTopologyReq filters a topology query.
type ShowTopologyReq struct {
	AF        uint8
	PrefixLen uint8
	Flags     uint8
	Pad       uint8
	Prefix    Addr
}

// Nbr describes a neighbor, both in listings and in clear requests.
// A clear request with a zero Addr clears every neighbor matching AF/AS.
type Nbr struct {
	AF       uint8
	Pad      uint8
	AS       uint16
	Ifname   Name
	Addr     Addr
	HoldTime uint16
	Pad2     uint16
	Uptime   uint32
}

// Iface is one interface listing entry.
type Iface struct {
	AF            uint8
	Passive       uint8
	AS            uint16
	Name          Name
	Ifindex       uint32
	Addr          Addr
	PrefixLen     uint8
	Linkstate     uint8
	Flags         uint16
	MTU           uint32
	Bandwidth     uint32
	Delay         uint32
	HelloHoldtime uint16
	HelloInterval uint16
	NbrCount      uint32
	Uptime        uint32
}

// Stats holds per-instance packet counters.
type Stats struct {
	AF             uint8
	Pad            uint8
	AS             uint16
	HellosSent     uint32
	HellosRecv     uint32
	UpdatesSent    uint32
	UpdatesRecv    uint32
	QueriesSent    uint32
	QueriesRecv    uint32
	RepliesSent    uint32
	RepliesRecv    uint32
	AcksSent       uint32
	AcksRecv       uint32
	SIAQueriesSent uint32
	SIAQueriesRecv uint32
	SIARepliesSent uint32
	SIARepliesRecv uint32
}

// Topo is one topology table entry.
type Topo struct {
	AF        uint8
	PrefixLen uint8
	AS        uint16
	Prefix    Addr
	Nexthop   Addr
	Ifname    Name
	Distance  uint32
	RDistance uint32
	FDistance uint32
	Active    uint8
	Flags     uint8
	Pad       uint16
}

// Kroute is one forwarding table entry as seen by the parent process.
type Kroute struct {
	AF        uint8
	PrefixLen uint8
	Priority  uint8
	Pad       uint8
	Prefix    Addr
	Nexthop   Addr
	Ifindex   uint32
	Flags     uint16
	Pad2      uint16
}

// Ifinfo is one host interface as seen by the parent process.
type Ifinfo struct {
	Ifindex   uint32
	Name      Name
	Flags     uint32
	Linkstate uint8
	Pad       [3]uint8
}

// Record is any fixed-size payload record.
type Record interface {
	ShowTopologyReq | Nbr | Iface | Stats | Topo | Kroute | Ifinfo
}

// Marshal encodes a record.
func Marshal[T Record](v T) []byte {
	buf, _ := binary.Append(nil, binary.BigEndian, v)
	return buf
}

// Unmarshal decodes a record. The payload length must match the record size
// exactly.
func Unmarshal[T Record](data []byte) (T, error) {
	var v T
	if want := binary.Size(v); len(data) != want {
		return v, fmt.Errorf("ctl: payload is %d bytes, want %d", len(data), want)
	}
	if _, err := binary.Decode(data, binary.BigEndian, &v); err != nil {
		return v, fmt.Errorf("ctl: decode %T: %w", v, err)
	}
	return v, nil
}

// PutUint32 encodes an interface index or similar scalar payload.
func PutUint32(v uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, v)
}

// Uint32 decodes a 4-byte payload.
func Uint32(data []byte) (uint32, error) {
	if len(data) != SizeUint32 {
		return 0, fmt.Errorf("ctl: payload is %d bytes, want %d", len(data), SizeUint32)
	}
	return binary.BigEndian.Uint32(data), nil
}

// PutVerbose encodes a log verbosity payload.
func PutVerbose(v int32) []byte {
	return PutUint32(uint32(v))
}

// Verbose decodes a log verbosity payload.
func Verbose(data []byte) (int32, error) {
	v, err := Uint32(data)
	return int32(v), err
}
