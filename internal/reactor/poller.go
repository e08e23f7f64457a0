package reactor

// Event is one ready-notification from the platform poller, grounded on
// original_source/skynet-src/socket_epoll.h's struct event (s/write/read/
// error fields) — ud carries back whatever opaque token Add was given,
// here always a socket slot index.
type Event struct {
	UD    int
	Read  bool
	Write bool
	Error bool
}

// poller is the platform-specific multiplexer interface. Linux gets an
// epoll implementation, Darwin/BSD gets kqueue; both are grounded on
// joeycumines-go-utilpkg/eventloop's poller_linux.go/poller_darwin.go
// (golang.org/x/sys/unix, direct syscalls, no third-party event-loop
// framework) adapted to the read/write/error Event shape
// socket_epoll.h/socket_poll.h use.
type poller interface {
	// add registers fd for readability, tagging it with ud.
	add(fd int, ud int) error
	// del removes fd from monitoring.
	del(fd int) error
	// write toggles writability monitoring for fd (readability stays on).
	write(fd int, ud int, enable bool) error
	// wait blocks, with no timeout, until at least one event is ready,
	// appending ready events to the poller's internal buffer and returning
	// a slice of it.
	wait() ([]Event, error)
	// close releases the underlying poller fd.
	close() error
}
