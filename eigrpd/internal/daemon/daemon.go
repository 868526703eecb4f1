// Package daemon provides helpers for running eigrpd as a background process.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Paths locates the files of a detached daemon.
type Paths struct {
	Dir string
}

// DefaultPaths returns /var/run/eigrpd for root and ~/.eigrpd otherwise.
// EIGRPD_RUNDIR overrides both.
func DefaultPaths() Paths {
	if dir := os.Getenv("EIGRPD_RUNDIR"); dir != "" {
		return Paths{Dir: dir}
	}
	if os.Geteuid() == 0 {
		return Paths{Dir: "/var/run/eigrpd"}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return Paths{Dir: ".eigrpd"}
	}
	return Paths{Dir: filepath.Join(home, ".eigrpd")}
}

// PIDPath returns the path to the PID file.
func (p Paths) PIDPath() string {
	return filepath.Join(p.Dir, "eigrpd.pid")
}

// LogPath returns the path to the log file.
func (p Paths) LogPath() string {
	return filepath.Join(p.Dir, "eigrpd.log")
}

// WritePID writes the given PID to the PID file.
func (p Paths) WritePID(pid int) error {
	if err := os.MkdirAll(p.Dir, 0o700); err != nil {
		return fmt.Errorf("create daemon dir: %w", err)
	}
	return os.WriteFile(p.PIDPath(), []byte(strconv.Itoa(pid)+"\n"), 0o600)
}

// ReadPID reads the PID from the PID file. Returns 0 if the file doesn't exist.
func (p Paths) ReadPID() (int, error) {
	data, err := os.ReadFile(p.PIDPath())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", p.PIDPath(), err)
	}
	return pid, nil
}

// RemovePID removes the PID file.
func (p Paths) RemovePID() error {
	err := os.Remove(p.PIDPath())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// OpenLogFile opens or creates the log file for appending.
func (p Paths) OpenLogFile() (*os.File, error) {
	if err := os.MkdirAll(p.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("create daemon dir: %w", err)
	}
	return os.OpenFile(p.LogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
}
