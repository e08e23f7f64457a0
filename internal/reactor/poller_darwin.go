//go:build darwin

package reactor

import (
	"sync"

	"golang.org/x/sys/unix"
)

// kqueuePoller wraps a Darwin/BSD kqueue instance. Grounded on
// joeycumines-go-utilpkg/eventloop's FastPoller (poller_darwin.go):
// Kqueue/Kevent via golang.org/x/sys/unix, EVFILT_READ/EVFILT_WRITE as
// separate add/delete kevents, EINTR tolerance. kqueue's Ident is always
// the real fd (unlike epoll there is no free data field to stash ud in),
// so this poller keeps a small fd->ud map the way socket_poll.h expects
// callers to track their own association.
type kqueuePoller struct {
	kq int

	mu  sync.RWMutex
	uds map[int]int

	buf [256]unix.Kevent_t
	out []Event
}

func newPoller() (poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	return &kqueuePoller{kq: kq, uds: make(map[int]int)}, nil
}

func (p *kqueuePoller) add(fd int, ud int) error {
	p.mu.Lock()
	p.uds[fd] = ud
	p.mu.Unlock()

	kev := unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | unix.EV_ENABLE}
	_, err := unix.Kevent(p.kq, []unix.Kevent_t{kev}, nil, nil)
	return err
}

func (p *kqueuePoller) del(fd int) error {
	p.mu.Lock()
	delete(p.uds, fd)
	p.mu.Unlock()

	evs := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	_, err := unix.Kevent(p.kq, evs, nil, nil)
	return err
}

func (p *kqueuePoller) write(fd int, ud int, enable bool) error {
	p.mu.Lock()
	p.uds[fd] = ud
	p.mu.Unlock()

	flags := uint16(unix.EV_DELETE)
	if enable {
		flags = unix.EV_ADD | unix.EV_ENABLE
	}
	kev := unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags}
	_, err := unix.Kevent(p.kq, []unix.Kevent_t{kev}, nil, nil)
	if enable {
		return err
	}
	// Deleting a filter that was never added is harmless and expected
	// whenever write interest is toggled off twice in a row.
	return nil
}

func (p *kqueuePoller) wait() ([]Event, error) {
	n, err := unix.Kevent(p.kq, nil, p.buf[:], nil)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	p.out = p.out[:0]
	for i := 0; i < n; i++ {
		kev := &p.buf[i]
		fd := int(kev.Ident)
		p.mu.RLock()
		ud := p.uds[fd]
		p.mu.RUnlock()

		ev := Event{UD: ud, Error: kev.Flags&unix.EV_ERROR != 0}
		switch kev.Filter {
		case unix.EVFILT_READ:
			ev.Read = true
		case unix.EVFILT_WRITE:
			ev.Write = true
		}
		if kev.Flags&unix.EV_EOF != 0 {
			ev.Read = true
		}
		p.out = append(p.out, ev)
	}
	return p.out, nil
}

func (p *kqueuePoller) close() error {
	return unix.Close(p.kq)
}
