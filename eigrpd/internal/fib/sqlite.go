// Package fib persists the forwarding table the parent process keeps in sync
// with the kernel, plus the coupled/decoupled state.
package fib

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/netip"
	"time"

	_ "modernc.org/sqlite"

	"github.com/amurg-ai/eigrpd/pkg/ctl"
)

// Route is one forwarding entry.
type Route struct {
	Prefix    netip.Prefix
	Nexthop   netip.Addr
	Ifindex   uint32
	Priority  uint8
	Flags     uint16 // ctl.Kroute* bits
	UpdatedAt time.Time
}

// AF returns the route's address family.
func (r Route) AF() uint8 {
	if r.Prefix.Addr().Is4() {
		return ctl.AFInet
	}
	return ctl.AFInet6
}

// Kroute converts r to its wire record.
func (r Route) Kroute() ctl.Kroute {
	return ctl.Kroute{
		AF:        r.AF(),
		PrefixLen: uint8(r.Prefix.Bits()),
		Priority:  r.Priority,
		Prefix:    ctl.AddrFrom(r.Prefix.Addr()),
		Nexthop:   ctl.AddrFrom(r.Nexthop),
		Ifindex:   r.Ifindex,
		Flags:     r.Flags,
	}
}

// Store is a SQLite-backed forwarding table.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at dsn and runs migrations.
func Open(dsn string) (*Store, error) {
	// For in-memory databases, use shared cache so all connections in the pool
	// see the same data.
	if dsn == ":memory:" {
		dsn = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS routes (
			prefix TEXT NOT NULL,
			nexthop TEXT NOT NULL,
			af INTEGER NOT NULL,
			ifindex INTEGER NOT NULL DEFAULT 0,
			priority INTEGER NOT NULL DEFAULT 0,
			flags INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (prefix, nexthop)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_routes_af ON routes(af)`,
		`CREATE TABLE IF NOT EXISTS state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`INSERT OR IGNORE INTO state (key, value) VALUES ('coupled', '1')`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n  SQL: %s", err, m)
		}
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert inserts or replaces r.
func (s *Store) Upsert(ctx context.Context, r Route) error {
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO routes (prefix, nexthop, af, ifindex, priority, flags, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(prefix, nexthop) DO UPDATE SET
			ifindex = excluded.ifindex, priority = excluded.priority,
			flags = excluded.flags, updated_at = excluded.updated_at`,
		r.Prefix.Masked().String(), nexthopString(r.Nexthop), r.AF(), r.Ifindex, r.Priority, r.Flags, r.UpdatedAt.UTC())
	return err
}

// Delete removes the route for prefix via nexthop. It reports whether a row
// was removed.
func (s *Store) Delete(ctx context.Context, prefix netip.Prefix, nexthop netip.Addr) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM routes WHERE prefix = ? AND nexthop = ?`,
		prefix.Masked().String(), nexthopString(nexthop))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ReplaceStatic swaps every static route for routes in one transaction.
// Routes in the list get the static flag.
func (s *Store) ReplaceStatic(ctx context.Context, routes []Route) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM routes WHERE flags & ? != 0`, ctl.KrouteStatic); err != nil {
		return fmt.Errorf("clear static routes: %w", err)
	}
	now := time.Now().UTC()
	for _, r := range routes {
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO routes (prefix, nexthop, af, ifindex, priority, flags, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.Prefix.Masked().String(), nexthopString(r.Nexthop), r.AF(), r.Ifindex, r.Priority, r.Flags|ctl.KrouteStatic, now)
		if err != nil {
			return fmt.Errorf("insert %s: %w", r.Prefix, err)
		}
	}
	return tx.Commit()
}

// List returns routes of family af (0 for all), ordered by prefix.
func (s *Store) List(ctx context.Context, af uint8) ([]Route, error) {
	q := `SELECT prefix, nexthop, ifindex, priority, flags, updated_at FROM routes`
	var args []any
	if af != 0 {
		q += ` WHERE af = ?`
		args = append(args, af)
	}
	q += ` ORDER BY af, prefix, nexthop`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Route
	for rows.Next() {
		var (
			r               Route
			prefix, nexthop string
		)
		if err := rows.Scan(&prefix, &nexthop, &r.Ifindex, &r.Priority, &r.Flags, &r.UpdatedAt); err != nil {
			return nil, err
		}
		if r.Prefix, err = netip.ParsePrefix(prefix); err != nil {
			return nil, fmt.Errorf("stored prefix %q: %w", prefix, err)
		}
		if nexthop != "" {
			if r.Nexthop, err = netip.ParseAddr(nexthop); err != nil {
				return nil, fmt.Errorf("stored nexthop %q: %w", nexthop, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Coupled reports whether the table is coupled to the kernel.
func (s *Store) Coupled(ctx context.Context) (bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = 'coupled'`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return v == "1", nil
}

// SetCoupled records the coupled state.
func (s *Store) SetCoupled(ctx context.Context, coupled bool) error {
	v := "0"
	if coupled {
		v = "1"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO state (key, value) VALUES ('coupled', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, v)
	return err
}

func nexthopString(a netip.Addr) string {
	if !a.IsValid() {
		return ""
	}
	return a.String()
}
