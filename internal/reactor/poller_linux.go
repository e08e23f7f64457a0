//go:build linux

package reactor

import (
	"golang.org/x/sys/unix"
)

// epollPoller wraps a Linux epoll instance. Grounded on
// joeycumines-go-utilpkg/eventloop's FastPoller (poller_linux.go):
// EpollCreate1/EpollCtl/EpollWait via golang.org/x/sys/unix, a reused
// event buffer, EINTR tolerance. Unlike FastPoller we don't need direct
// FD-indexed dispatch tables here — the reactor already owns a socket
// slot array and passes its index in as ud, so epoll_event.Fd carries
// that index back directly (packed into Fd, mirroring
// socket_epoll.h's ev.data.ptr).
type epollPoller struct {
	epfd int
	buf  [256]unix.EpollEvent
	out  []Event
}

func newPoller() (poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollPoller{epfd: epfd}, nil
}

func (p *epollPoller) add(fd int, ud int) error {
	ev := &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(ud)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, ev)
}

func (p *epollPoller) del(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) write(fd int, ud int, enable bool) error {
	events := uint32(unix.EPOLLIN)
	if enable {
		events |= unix.EPOLLOUT
	}
	ev := &unix.EpollEvent{Events: events, Fd: int32(ud)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, ev)
}

func (p *epollPoller) wait() ([]Event, error) {
	n, err := unix.EpollWait(p.epfd, p.buf[:], -1)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	p.out = p.out[:0]
	for i := 0; i < n; i++ {
		flags := p.buf[i].Events
		p.out = append(p.out, Event{
			UD:    int(p.buf[i].Fd),
			Read:  flags&(unix.EPOLLIN|unix.EPOLLHUP) != 0,
			Write: flags&unix.EPOLLOUT != 0,
			Error: flags&unix.EPOLLERR != 0,
		})
	}
	return p.out, nil
}

func (p *epollPoller) close() error {
	return unix.Close(p.epfd)
}
