package fib

import (
	"context"
	"net/netip"
	"path/filepath"
	"testing"

	"github.com/amurg-ai/eigrpd/pkg/ctl"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "fib.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func route(prefix, nexthop string, flags uint16) Route {
	r := Route{Prefix: netip.MustParsePrefix(prefix), Flags: flags}
	if nexthop != "" {
		r.Nexthop = netip.MustParseAddr(nexthop)
	}
	return r
}

func TestStore_UpsertList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Upsert(ctx, route("10.1.0.0/16", "10.0.0.2", ctl.KrouteEigrp)); err != nil {
		t.Fatal(err)
	}
	if err := s.Upsert(ctx, route("2001:db8::/32", "fe80::1", ctl.KrouteEigrp)); err != nil {
		t.Fatal(err)
	}
	r := route("10.1.0.0/16", "10.0.0.2", ctl.KrouteEigrp)
	r.Priority = 28
	if err := s.Upsert(ctx, r); err != nil {
		t.Fatal(err)
	}

	all, err := s.List(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 routes, got %d", len(all))
	}

	v4, err := s.List(ctx, ctl.AFInet)
	if err != nil {
		t.Fatal(err)
	}
	if len(v4) != 1 || v4[0].Priority != 28 {
		t.Fatalf("unexpected inet routes: %+v", v4)
	}
	if v4[0].UpdatedAt.IsZero() {
		t.Error("updated_at not stored")
	}
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := route("10.1.0.0/16", "10.0.0.2", 0)
	if err := s.Upsert(ctx, r); err != nil {
		t.Fatal(err)
	}

	ok, err := s.Delete(ctx, r.Prefix, r.Nexthop)
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	ok, err = s.Delete(ctx, r.Prefix, r.Nexthop)
	if err != nil || ok {
		t.Fatalf("second delete: ok=%v err=%v", ok, err)
	}
}

func TestStore_ReplaceStaticKeepsDynamic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Upsert(ctx, route("10.9.0.0/16", "10.0.0.9", ctl.KrouteEigrp)); err != nil {
		t.Fatal(err)
	}
	if err := s.ReplaceStatic(ctx, []Route{route("172.16.0.0/12", "10.0.0.254", 0), route("0.0.0.0/0", "10.0.0.1", 0)}); err != nil {
		t.Fatal(err)
	}
	if err := s.ReplaceStatic(ctx, []Route{route("172.16.0.0/12", "10.0.0.254", 0)}); err != nil {
		t.Fatal(err)
	}

	all, err := s.List(ctx, ctl.AFInet)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 routes, got %+v", all)
	}
	var static, dynamic int
	for _, r := range all {
		if r.Flags&ctl.KrouteStatic != 0 {
			static++
		}
		if r.Flags&ctl.KrouteEigrp != 0 {
			dynamic++
		}
	}
	if static != 1 || dynamic != 1 {
		t.Errorf("static=%d dynamic=%d", static, dynamic)
	}
}

func TestStore_Coupled(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.Coupled(ctx)
	if err != nil || !c {
		t.Fatalf("expected coupled by default: %v %v", c, err)
	}
	if err := s.SetCoupled(ctx, false); err != nil {
		t.Fatal(err)
	}
	if c, _ := s.Coupled(ctx); c {
		t.Error("expected decoupled")
	}
}

func TestRoute_Kroute(t *testing.T) {
	r := route("192.168.0.0/24", "10.0.0.2", ctl.KrouteStatic)
	r.Ifindex = 3
	k := r.Kroute()
	if k.AF != ctl.AFInet || k.PrefixLen != 24 || k.Ifindex != 3 || k.Flags != ctl.KrouteStatic {
		t.Errorf("unexpected kroute: %+v", k)
	}
	if got := k.Nexthop.IP(k.AF); got != r.Nexthop {
		t.Errorf("nexthop %v, want %v", got, r.Nexthop)
	}
}
