package ipc

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// Pair creates a connected stream socketpair. The first end is non-blocking
// and meant for a Channel on the event loop; the second is returned as a
// net.Conn for a worker goroutine.
func Pair(name string) (int, net.Conn, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, nil, fmt.Errorf("socketpair %s: %w", name, err)
	}
	unix.CloseOnExec(fds[0])
	unix.CloseOnExec(fds[1])
	if err := unix.SetNonblock(fds[0], true); err != nil {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
		return -1, nil, fmt.Errorf("socketpair %s: %w", name, err)
	}

	f := os.NewFile(uintptr(fds[1]), name)
	conn, err := net.FileConn(f)
	// FileConn dups the descriptor.
	_ = f.Close()
	if err != nil {
		_ = unix.Close(fds[0])
		return -1, nil, fmt.Errorf("socketpair %s: %w", name, err)
	}
	return fds[0], conn, nil
}
