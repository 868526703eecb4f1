// Package config handles eigrpd configuration loading and validation.
package config

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"os"
	"time"
)

// Defaults.
const (
	DefaultControlSocket = "/var/run/eigrpd.sock"
	DefaultFIBPath       = "/var/db/eigrpd/fib.db"
	DefaultHelloInterval = 5 * time.Second
	DefaultHoldTime      = 15 * time.Second
	DefaultAcceptPause   = time.Second
)

// Config is the top-level daemon configuration.
type Config struct {
	RouterID      string   `json:"router_id"`
	ControlSocket string   `json:"control_socket,omitempty"`
	LogLevel      string   `json:"log_level,omitempty"`
	LogFormat     string   `json:"log_format,omitempty"` // "json" (default) or "text"
	FIBPath       string   `json:"fib_db,omitempty"`
	FIBCoupled    *bool    `json:"fib_coupled,omitempty"` // default true
	StatusAddr    string   `json:"status_addr,omitempty"` // empty disables the HTTP status endpoint
	AcceptPause   Duration `json:"accept_pause,omitempty"`

	Instances []InstanceConfig `json:"instances"`
}

// InstanceConfig is one routing instance, identified by address family and
// autonomous system.
type InstanceConfig struct {
	AS         uint16            `json:"as"`
	AF         string            `json:"af"` // "inet" or "inet6"
	Interfaces []InterfaceConfig `json:"interfaces,omitempty"`
	Neighbors  []NeighborConfig  `json:"neighbors,omitempty"`
	Topology   []RouteConfig     `json:"topology,omitempty"`
	Static     []StaticRoute     `json:"static,omitempty"`
}

// InterfaceConfig enables the instance on one interface.
type InterfaceConfig struct {
	Name          string   `json:"name"`
	Index         uint32   `json:"index"`
	Address       string   `json:"address"` // prefix form, e.g. 10.0.0.1/24
	MTU           uint32   `json:"mtu,omitempty"`
	Bandwidth     uint32   `json:"bandwidth,omitempty"` // kbit/s
	Delay         uint32   `json:"delay,omitempty"`     // tens of microseconds
	HelloInterval Duration `json:"hello_interval,omitempty"`
	HoldTime      Duration `json:"hold_time,omitempty"`
	Passive       bool     `json:"passive,omitempty"`
}

// NeighborConfig seeds an adjacency.
type NeighborConfig struct {
	Address   string   `json:"address"`
	Interface string   `json:"interface"`
	HoldTime  Duration `json:"hold_time,omitempty"`
}

// RouteConfig seeds a topology table entry.
type RouteConfig struct {
	Prefix           string `json:"prefix"`
	Nexthop          string `json:"nexthop,omitempty"`
	Interface        string `json:"interface,omitempty"`
	Distance         uint32 `json:"distance"`
	ReportedDistance uint32 `json:"reported_distance,omitempty"`
	Successor        bool   `json:"successor,omitempty"`
	Active           bool   `json:"active,omitempty"`
}

// StaticRoute is installed in the FIB on startup and reload.
type StaticRoute struct {
	Prefix   string `json:"prefix"`
	Nexthop  string `json:"nexthop"`
	Ifindex  uint32 `json:"ifindex,omitempty"`
	Priority uint8  `json:"priority,omitempty"`
}

// Duration is a JSON-friendly time.Duration (accepts strings like "30s", "5m").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case string:
		dur, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		d.Duration = dur
	case float64:
		d.Duration = time.Duration(val) * time.Second
	default:
		return fmt.Errorf("invalid duration: %v", v)
	}
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Load reads and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Coupled reports whether the FIB starts coupled to the kernel.
func (c *Config) Coupled() bool {
	return c.FIBCoupled == nil || *c.FIBCoupled
}

func (c *Config) validate() error {
	if c.RouterID != "" {
		if a, err := netip.ParseAddr(c.RouterID); err != nil || !a.Is4() {
			return fmt.Errorf("router_id must be an IPv4 address")
		}
	}
	switch c.LogFormat {
	case "", "json", "text":
	default:
		return fmt.Errorf("log_format must be json or text")
	}
	if len(c.Instances) == 0 {
		return fmt.Errorf("at least one instance is required")
	}

	type key struct {
		af string
		as uint16
	}
	seen := make(map[key]bool)
	for i, inst := range c.Instances {
		if inst.AS == 0 {
			return fmt.Errorf("instances[%d].as is required", i)
		}
		if inst.AF != "inet" && inst.AF != "inet6" {
			return fmt.Errorf("instances[%d].af must be inet or inet6", i)
		}
		k := key{inst.AF, inst.AS}
		if seen[k] {
			return fmt.Errorf("duplicate instance: %s as %d", inst.AF, inst.AS)
		}
		seen[k] = true

		ifnames := make(map[string]bool)
		for j, ifc := range inst.Interfaces {
			if ifc.Name == "" {
				return fmt.Errorf("instances[%d].interfaces[%d].name is required", i, j)
			}
			if ifnames[ifc.Name] {
				return fmt.Errorf("instances[%d]: duplicate interface %s", i, ifc.Name)
			}
			ifnames[ifc.Name] = true
			if ifc.Address != "" {
				if err := checkFamily(inst.AF, ifc.Address, true); err != nil {
					return fmt.Errorf("instances[%d].interfaces[%d].address: %w", i, j, err)
				}
			}
		}
		for j, nbr := range inst.Neighbors {
			if err := checkFamily(inst.AF, nbr.Address, false); err != nil {
				return fmt.Errorf("instances[%d].neighbors[%d].address: %w", i, j, err)
			}
			if !ifnames[nbr.Interface] {
				return fmt.Errorf("instances[%d].neighbors[%d]: unknown interface %q", i, j, nbr.Interface)
			}
		}
		for j, rt := range inst.Topology {
			if err := checkFamily(inst.AF, rt.Prefix, true); err != nil {
				return fmt.Errorf("instances[%d].topology[%d].prefix: %w", i, j, err)
			}
			if rt.Nexthop != "" {
				if err := checkFamily(inst.AF, rt.Nexthop, false); err != nil {
					return fmt.Errorf("instances[%d].topology[%d].nexthop: %w", i, j, err)
				}
			}
		}
		for j, rt := range inst.Static {
			if err := checkFamily(inst.AF, rt.Prefix, true); err != nil {
				return fmt.Errorf("instances[%d].static[%d].prefix: %w", i, j, err)
			}
			if err := checkFamily(inst.AF, rt.Nexthop, false); err != nil {
				return fmt.Errorf("instances[%d].static[%d].nexthop: %w", i, j, err)
			}
		}
	}
	return nil
}

func checkFamily(af, s string, prefix bool) error {
	var a netip.Addr
	if prefix {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return err
		}
		a = p.Addr()
	} else {
		var err error
		if a, err = netip.ParseAddr(s); err != nil {
			return err
		}
	}
	if (af == "inet") != a.Is4() {
		return fmt.Errorf("%s is not an %s address", s, af)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.ControlSocket == "" {
		c.ControlSocket = DefaultControlSocket
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.FIBPath == "" {
		c.FIBPath = DefaultFIBPath
	}
	if c.AcceptPause.Duration == 0 {
		c.AcceptPause.Duration = DefaultAcceptPause
	}
	for i := range c.Instances {
		inst := &c.Instances[i]
		for j := range inst.Interfaces {
			ifc := &inst.Interfaces[j]
			if ifc.MTU == 0 {
				ifc.MTU = 1500
			}
			if ifc.Bandwidth == 0 {
				ifc.Bandwidth = 100000
			}
			if ifc.Delay == 0 {
				ifc.Delay = 10
			}
			if ifc.HelloInterval.Duration == 0 {
				ifc.HelloInterval.Duration = DefaultHelloInterval
			}
			if ifc.HoldTime.Duration == 0 {
				ifc.HoldTime.Duration = DefaultHoldTime
			}
		}
		for j := range inst.Neighbors {
			if inst.Neighbors[j].HoldTime.Duration == 0 {
				inst.Neighbors[j].HoldTime.Duration = DefaultHoldTime
			}
		}
	}
}
