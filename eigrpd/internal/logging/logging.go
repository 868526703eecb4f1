// Package logging builds the daemon's slog logger and lets the control socket
// change its verbosity at runtime.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// ParseLevel maps a config level name to a slog level. Unknown names are
// treated as info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Verbosity is the runtime-adjustable level of a logger built by New.
type Verbosity struct {
	base  slog.Level
	level slog.LevelVar
}

// NewVerbosity starts at base.
func NewVerbosity(base slog.Level) *Verbosity {
	v := &Verbosity{base: base}
	v.level.Set(base)
	return v
}

// SetVerbose switches to debug for v > 0 and back to the configured level
// otherwise.
func (v *Verbosity) SetVerbose(n int32) {
	if n > 0 {
		v.level.Set(slog.LevelDebug)
		return
	}
	v.level.Set(v.base)
}

// Level implements slog.Leveler.
func (v *Verbosity) Level() slog.Level { return v.level.Level() }

// Options configure New.
type Options struct {
	Level  string
	Format string // "json" or "text"
	// Ring, when set, also receives every record that passes the level.
	Ring *Ring
}

// New builds a logger writing to w.
func New(w io.Writer, opts Options) (*slog.Logger, *Verbosity) {
	v := NewVerbosity(ParseLevel(opts.Level))
	hopts := &slog.HandlerOptions{Level: v}

	var h slog.Handler
	if opts.Format == "text" {
		h = slog.NewTextHandler(w, hopts)
	} else {
		h = slog.NewJSONHandler(w, hopts)
	}
	if opts.Ring != nil {
		h = NewRingHandler(h, opts.Ring)
	}
	return slog.New(h), v
}
