package reactor

import (
	"sync"

	"github.com/actorcore/actorcored/internal/actor"
)

// socketState enumerates a reactor slot's lifecycle.
type socketState int32

const (
	stateInvalid socketState = iota
	stateReserve
	statePListen
	stateListen
	stateConnecting
	stateConnected
	stateHalfClose
	statePAccept
	stateBind
)

func (s socketState) String() string {
	switch s {
	case stateReserve:
		return "reserve"
	case statePListen:
		return "plisten"
	case stateListen:
		return "listen"
	case stateConnecting:
		return "connecting"
	case stateConnected:
		return "connected"
	case stateHalfClose:
		return "halfclose"
	case statePAccept:
		return "paccept"
	case stateBind:
		return "bind"
	default:
		return "invalid"
	}
}

const (
	initialReadSize  = 64
	initialWBWarning = 1 << 20 // 1 MiB, the wb_size doubling threshold that triggers a warning event
)

// socket is one reactor slot: a file descriptor plus its write buffers,
// read-size estimator, and owning service handle. One lock per socket
// protects the direct-write path and both priority queues. Sends reach
// the socket as control commands run on the event loop, which writes
// directly when it can and queues the rest.
type socket struct {
	mu sync.Mutex

	id    int32
	state socketState
	fd    int
	owner actor.Handle
	udp   bool

	readSize int

	high     [][]byte
	low      [][]byte
	wbSize   int64
	wbNotify int64 // next doubling threshold that triggers a warning event

	// udpPeer is the address a bare (unconnected) UDP socket should send
	// to, set by a 'C' associate-peer command.
	udpPeer []byte
}

func newSocket(id int32) *socket {
	return &socket{id: id, state: stateInvalid, readSize: initialReadSize, wbNotify: initialWBWarning}
}

// reset clears a slot back to invalid, ready for reuse by slot allocation.
func (s *socket) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = stateInvalid
	s.fd = 0
	s.owner = 0
	s.udp = false
	s.readSize = initialReadSize
	s.high = nil
	s.low = nil
	s.wbSize = 0
	s.wbNotify = initialWBWarning
	s.udpPeer = nil
}

// queue appends data to the requested priority queue and reports whether
// the running wb_size total just crossed wbNotify, the signal for an
// EventWarning delivery. Caller holds s.mu.
func (s *socket) queueLocked(data []byte, highPriority bool) (warnKB int64, warn bool) {
	if highPriority {
		s.high = append(s.high, data)
	} else {
		s.low = append(s.low, data)
	}
	s.wbSize += int64(len(data))
	if s.wbSize >= s.wbNotify {
		warnKB = s.wbSize / 1024
		warn = true
		for s.wbNotify <= s.wbSize {
			s.wbNotify *= 2
		}
	}
	return warnKB, warn
}

// nextSendLocked returns the next buffer to attempt writing: all of high
// before any of low. ok is false when both queues are empty.
func (s *socket) nextSendLocked() (data []byte, fromHigh bool, ok bool) {
	if len(s.high) > 0 {
		return s.high[0], true, true
	}
	if len(s.low) > 0 {
		return s.low[0], false, true
	}
	return nil, false, false
}

// consumeLocked removes n bytes from the front of the queue fromHigh
// identifies. If the buffer is only partially consumed and it came from
// low, it is promoted to the front of high so the rest of a high-priority
// write always completes before any low-priority data is sent.
func (s *socket) consumeLocked(n int, fromHigh bool) {
	queue := &s.low
	if fromHigh {
		queue = &s.high
	}
	buf := (*queue)[0]
	if n >= len(buf) {
		s.wbSize -= int64(len(buf))
		*queue = (*queue)[1:]
		return
	}
	remainder := buf[n:]
	s.wbSize -= int64(n)
	*queue = (*queue)[1:]
	if fromHigh {
		s.high = append([][]byte{remainder}, s.high...)
	} else {
		s.high = append([][]byte{remainder}, s.high...)
	}
}

// empty reports whether both write queues are drained. Caller holds s.mu.
func (s *socket) emptyLocked() bool {
	return len(s.high) == 0 && len(s.low) == 0
}

// nextReadSize implements a doubling/halving read-buffer estimator:
// full read doubles, less-than-half halves (floor 64).
func (s *socket) nextReadSize(n int) {
	if n >= s.readSize {
		s.readSize *= 2
		return
	}
	if n < s.readSize/2 && s.readSize > initialReadSize {
		s.readSize /= 2
	}
}
