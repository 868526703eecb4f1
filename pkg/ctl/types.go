// Package ctl defines the message kinds and payload records exchanged over
// the eigrpd control socket.
//
// Payload records are fixed-size and encoded with encoding/binary in network
// byte order, so every kind has a payload length the broker can check before
// acting on a frame.
package ctl

import "fmt"

// Type is the kind carried in the imsg header.
type Type uint32

// Control message kinds. The numbering is part of the wire format.
const (
	None Type = iota
	CtlReload
	CtlShowInterface
	CtlShowNbr
	CtlShowTopology
	CtlShowStats
	CtlClearNbr
	CtlFibCouple
	CtlFibDecouple
	CtlIface
	CtlKroute
	CtlIfinfo
	CtlEnd
	CtlLogVerbose
)

var typeNames = map[Type]string{
	None:             "none",
	CtlReload:        "ctl_reload",
	CtlShowInterface: "ctl_show_interface",
	CtlShowNbr:       "ctl_show_nbr",
	CtlShowTopology:  "ctl_show_topology",
	CtlShowStats:     "ctl_show_stats",
	CtlClearNbr:      "ctl_clear_nbr",
	CtlFibCouple:     "ctl_fib_couple",
	CtlFibDecouple:   "ctl_fib_decouple",
	CtlIface:         "ctl_iface",
	CtlKroute:        "ctl_kroute",
	CtlIfinfo:        "ctl_ifinfo",
	CtlEnd:           "ctl_end",
	CtlLogVerbose:    "ctl_log_verbose",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("type(%d)", uint32(t))
}

// Address families.
const (
	AFInet  uint8 = 2
	AFInet6 uint8 = 24
)

// AFName returns "ipv4", "ipv6" or "unknown".
func AFName(af uint8) string {
	switch af {
	case AFInet:
		return "ipv4"
	case AFInet6:
		return "ipv6"
	default:
		return "unknown"
	}
}
