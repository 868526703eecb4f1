//go:build linux

package event

import (
	"encoding/binary"
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

const maxEvents = 64

type epoller struct {
	epfd   int
	wakefd int
	events []unix.EpollEvent
}

func newPoller() (poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, err
	}
	p := &epoller{epfd: epfd, wakefd: wakefd, events: make([]unix.EpollEvent, maxEvents)}
	if err := p.add(wakefd, Read); err != nil {
		_ = unix.Close(wakefd)
		_ = unix.Close(epfd)
		return nil, err
	}
	return p, nil
}

func epollMask(ev Events) uint32 {
	var m uint32
	if ev&Read != 0 {
		m |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if ev&Write != 0 {
		m |= unix.EPOLLOUT
	}
	return m
}

func (p *epoller) add(fd int, ev Events) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Events: epollMask(ev), Fd: int32(fd)})
}

func (p *epoller) mod(fd int, ev Events) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Events: epollMask(ev), Fd: int32(fd)})
}

func (p *epoller) del(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epoller) wait(timeout time.Duration, fn func(fd int, readable, writable bool)) error {
	msec := -1
	if timeout >= 0 {
		// Round up so a timer due in under a millisecond does not spin.
		msec = int((timeout + time.Millisecond - 1) / time.Millisecond)
	}

	n, err := unix.EpollWait(p.epfd, p.events, msec)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil
		}
		return err
	}

	for i := 0; i < n; i++ {
		ev := p.events[i]
		fd := int(ev.Fd)
		if fd == p.wakefd {
			p.drainWake()
			continue
		}
		hup := ev.Events&(unix.EPOLLHUP|unix.EPOLLERR) != 0
		readable := hup || ev.Events&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0
		writable := hup || ev.Events&unix.EPOLLOUT != 0
		fn(fd, readable, writable)
	}
	return nil
}

func (p *epoller) drainWake() {
	var buf [8]byte
	_, _ = unix.Read(p.wakefd, buf[:])
}

func (p *epoller) wakeup() error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(p.wakefd, buf[:])
	if errors.Is(err, unix.EAGAIN) {
		// Counter saturated; a wakeup is already pending.
		return nil
	}
	return err
}

func (p *epoller) close() error {
	err := unix.Close(p.wakefd)
	if cerr := unix.Close(p.epfd); err == nil {
		err = cerr
	}
	return err
}
