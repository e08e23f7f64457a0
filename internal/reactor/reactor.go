// Package reactor implements a single-thread socket event loop: one
// poller (epoll on Linux, kqueue on Darwin/BSD), a fixed table of socket
// slots, and a control channel of single-letter commands. Grounded on
// original_source/skynet-src/socket_server.c, with
// the platform multiplexer itself grounded on
// joeycumines-go-utilpkg/eventloop's poller_linux.go/poller_darwin.go.
package reactor

import (
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/actorcore/actorcored/internal/actor"
	"github.com/actorcore/actorcored/internal/observability"
)

const (
	maxSlots        = 1 << 16
	maxEventsPerPoll = 64
	controlUD       = -1
)

// Deliver pushes one reactor-originated message to the owning service's
// mailbox, the same mailbox push ordinary inter-service sends use.
type Deliver func(owner actor.Handle, typ actor.Type, session int32, payload []byte)

// EventKind tags the fixed envelope that precedes optional inline data in
// a socket event payload.
type EventKind uint8

const (
	EventData EventKind = iota
	EventConnect
	EventClose
	EventAccept
	EventError
	EventUDP
	EventWarning
)

func (k EventKind) String() string {
	switch k {
	case EventData:
		return "data"
	case EventConnect:
		return "connect"
	case EventClose:
		return "close"
	case EventAccept:
		return "accept"
	case EventError:
		return "error"
	case EventUDP:
		return "udp"
	case EventWarning:
		return "warning"
	default:
		return "unknown"
	}
}

type ctrlOp byte

const (
	opStart ctrlOp = 'S'
	opBind  ctrlOp = 'B'
	opListen ctrlOp = 'L'
	opClose ctrlOp = 'K'
	opConnect ctrlOp = 'O'
	opExit  ctrlOp = 'X'
	opSendHigh ctrlOp = 'D'
	opSendLow  ctrlOp = 'P'
	opSendUDP  ctrlOp = 'A'
	opSetOpt   ctrlOp = 'T'
	opUDPListen ctrlOp = 'U'
	opAssocUDP  ctrlOp = 'C'
)

type ctrlCmd struct {
	op      ctrlOp
	id      int32
	owner   actor.Handle
	addr    string
	fd      int
	force   bool
	enable  bool
	data    []byte
	udpAddr *net.UDPAddr
	reply   chan ctrlReply
}

type ctrlReply struct {
	id  int32
	err error
}

// Reactor owns the poller and the socket slot table. One Reactor runs its
// Run loop on a single dedicated goroutine; all socket state is only ever
// touched from that goroutine, so callers reach it through the control
// channel instead of locking.
type Reactor struct {
	p poller

	slots  [maxSlots]*socket
	nextID int32

	cmdMu sync.Mutex
	cmds  []ctrlCmd
	wakeR *os.File
	wakeW *os.File

	deliver Deliver
	metrics *observability.Metrics

	stop chan struct{}
	done chan struct{}
}

// SetMetrics wires m so every emitted socket event is counted by kind on
// the admin surface's /metrics route; nil (the default) keeps the event
// loop free of Prometheus calls, matching every other optional
// subsystem's off-by-default wiring.
func (r *Reactor) SetMetrics(m *observability.Metrics) {
	r.metrics = m
}

// emit wraps deliver so every reactor-originated event is counted by kind
// before handing off to the owning mailbox.
func (r *Reactor) emit(owner actor.Handle, typ actor.Type, session int32, payload []byte) {
	if r.metrics != nil {
		if kind, _, _, err := DecodeEnvelope(payload); err == nil {
			r.metrics.ReactorEventsTotal.WithLabelValues(kind.String()).Inc()
		}
	}
	r.deliver(owner, typ, session, payload)
}

// New creates a Reactor bound to the platform poller and wires deliver as
// the event-to-mailbox sink. Call Run (typically in its own goroutine)
// and Stop to shut down.
func New(deliver Deliver) (*Reactor, error) {
	p, err := newPoller()
	if err != nil {
		return nil, fmt.Errorf("reactor: new poller: %w", err)
	}
	r, w, err := os.Pipe()
	if err != nil {
		p.close()
		return nil, fmt.Errorf("reactor: control pipe: %w", err)
	}
	if err := unix.SetNonblock(int(r.Fd()), true); err != nil {
		p.close()
		r.Close()
		w.Close()
		return nil, err
	}
	if err := p.add(int(r.Fd()), controlUD); err != nil {
		p.close()
		r.Close()
		w.Close()
		return nil, err
	}
	return &Reactor{
		p:       p,
		deliver: deliver,
		wakeR:   r,
		wakeW:   w,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// allocSlot finds the next free slot by a monotonic counter modulo
// maxSlots, skipping in-use slots. Caller must not hold any socket lock.
func (r *Reactor) allocSlot() int32 {
	for i := 0; i < maxSlots; i++ {
		id := atomic.AddInt32(&r.nextID, 1) % maxSlots
		if id < 0 {
			id += maxSlots
		}
		if r.slots[id] == nil {
			r.slots[id] = newSocket(id)
			return id
		}
	}
	return -1
}

func (r *Reactor) enqueue(cmd ctrlCmd) ctrlReply {
	cmd.reply = make(chan ctrlReply, 1)
	r.cmdMu.Lock()
	r.cmds = append(r.cmds, cmd)
	r.cmdMu.Unlock()
	r.wakeW.Write([]byte{0})
	return <-cmd.reply
}

func (r *Reactor) popCmd() (ctrlCmd, bool) {
	r.cmdMu.Lock()
	defer r.cmdMu.Unlock()
	if len(r.cmds) == 0 {
		return ctrlCmd{}, false
	}
	c := r.cmds[0]
	r.cmds = r.cmds[1:]
	return c, true
}

// Listen creates a non-blocking listening socket bound to addr and
// registers it in plisten state; Start must be called to begin accepting.
func (r *Reactor) Listen(owner actor.Handle, addr string) (int32, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return -1, err
	}
	fd, err := rawListen(tcpAddr)
	if err != nil {
		return -1, err
	}
	reply := r.enqueue(ctrlCmd{op: opListen, owner: owner, fd: fd})
	return reply.id, reply.err
}

// Connect initiates a non-blocking TCP connect; completion is reported
// via an EventConnect delivery.
func (r *Reactor) Connect(owner actor.Handle, addr string) (int32, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return -1, err
	}
	fd, inProgress, err := rawConnect(tcpAddr)
	if err != nil {
		return -1, err
	}
	reply := r.enqueue(ctrlCmd{op: opConnect, owner: owner, fd: fd, enable: inProgress})
	return reply.id, reply.err
}

// Bind registers an externally-provided fd in the bind state.
func (r *Reactor) Bind(owner actor.Handle, fd int) (int32, error) {
	reply := r.enqueue(ctrlCmd{op: opBind, owner: owner, fd: fd})
	return reply.id, reply.err
}

// UDPListen opens a UDP socket bound to addr (empty addr picks an
// ephemeral unbound socket for outbound-only use).
func (r *Reactor) UDPListen(owner actor.Handle, addr string) (int32, error) {
	var udpAddr *net.UDPAddr
	if addr != "" {
		a, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			return -1, err
		}
		udpAddr = a
	}
	fd, err := rawUDP(udpAddr)
	if err != nil {
		return -1, err
	}
	reply := r.enqueue(ctrlCmd{op: opUDPListen, owner: owner, fd: fd})
	return reply.id, reply.err
}

// Start begins watching a paccept/plisten/bind slot for events.
func (r *Reactor) Start(id int32) error {
	return r.enqueue(ctrlCmd{op: opStart, id: id}).err
}

// Close requests the socket close; if force is set, queued writes are
// discarded instead of drained first.
func (r *Reactor) Close(id int32, force bool) error {
	return r.enqueue(ctrlCmd{op: opClose, id: id, force: force}).err
}

// Send queues data for a connected TCP socket, high or low priority.
func (r *Reactor) Send(id int32, data []byte, highPriority bool) error {
	op := opSendLow
	if highPriority {
		op = opSendHigh
	}
	return r.enqueue(ctrlCmd{op: op, id: id, data: data}).err
}

// SendUDP sends one datagram to addr over socket id.
func (r *Reactor) SendUDP(id int32, addr *net.UDPAddr, data []byte) error {
	return r.enqueue(ctrlCmd{op: opSendUDP, id: id, data: data, udpAddr: addr}).err
}

// AssociateUDP sets the default peer address for a bare UDP socket.
func (r *Reactor) AssociateUDP(id int32, addr *net.UDPAddr) error {
	return r.enqueue(ctrlCmd{op: opAssocUDP, id: id, udpAddr: addr}).err
}

// SetNoDelay toggles TCP_NODELAY on a connected socket.
func (r *Reactor) SetNoDelay(id int32, enable bool) error {
	return r.enqueue(ctrlCmd{op: opSetOpt, id: id, enable: enable}).err
}

// Addr reports the local address a listening or bound socket ended up
// on, which is the only way to learn the real port after Listen/UDPListen
// was asked for an ephemeral ":0" address. Mirrors adminapi.API's
// BoundAddr field, expressed as a method here since a Reactor can hold
// many sockets rather than one fixed listener.
func (r *Reactor) Addr(id int32) (string, error) {
	s := r.slots[id]
	if s == nil {
		return "", fmt.Errorf("reactor: no socket for id %d", id)
	}
	return unixGetsockname(s.fd)
}

// Exit stops the reactor loop after processing pending commands.
func (r *Reactor) Exit() {
	r.enqueue(ctrlCmd{op: opExit})
}

// Stop signals Run to return and waits for it, releasing the poller.
func (r *Reactor) Stop() {
	close(r.stop)
	<-r.done
	r.p.close()
	r.wakeR.Close()
	r.wakeW.Close()
}

// Run is the event loop. It must run on its own goroutine; it returns
// when Stop is signalled or an 'X' command is processed.
func (r *Reactor) Run() {
	defer close(r.done)
	drain := make([]byte, 256)
	for {
		select {
		case <-r.stop:
			return
		default:
		}

		if cmd, ok := r.popCmd(); ok {
			r.wakeR.Read(drain)
			exit := r.handleCmd(cmd)
			if exit {
				return
			}
			continue
		}

		events, err := r.p.wait()
		if err != nil {
			return
		}
		for i := 0; i < len(events); i++ {
			ev := events[i]
			if ev.UD == controlUD {
				continue
			}
			rewind := r.handleEvent(ev)
			if rewind {
				// A read on this socket just delivered data; its write
				// half is left to a later poll, which reports the
				// socket writable again.
				continue
			}
		}
	}
}

func (r *Reactor) handleCmd(cmd ctrlCmd) (exit bool) {
	switch cmd.op {
	case opExit:
		cmd.reply <- ctrlReply{}
		return true
	case opListen:
		id := r.allocSlot()
		if id < 0 {
			unix.Close(cmd.fd)
			cmd.reply <- ctrlReply{id: -1, err: fmt.Errorf("reactor: slot table full")}
			return false
		}
		s := r.slots[id]
		s.fd = cmd.fd
		s.owner = cmd.owner
		s.state = statePListen
		cmd.reply <- ctrlReply{id: id}
	case opConnect:
		id := r.allocSlot()
		if id < 0 {
			unix.Close(cmd.fd)
			cmd.reply <- ctrlReply{id: -1, err: fmt.Errorf("reactor: slot table full")}
			return false
		}
		s := r.slots[id]
		s.fd = cmd.fd
		s.owner = cmd.owner
		if cmd.enable {
			s.state = stateConnecting
			r.p.add(s.fd, int(id))
			r.p.write(s.fd, int(id), true)
		} else {
			s.state = stateConnected
			r.p.add(s.fd, int(id))
			r.emit(s.owner, actor.TypeSocket, 0, encodeEnvelope(EventConnect, id, nil))
		}
		cmd.reply <- ctrlReply{id: id}
	case opBind:
		id := r.allocSlot()
		if id < 0 {
			cmd.reply <- ctrlReply{id: -1, err: fmt.Errorf("reactor: slot table full")}
			return false
		}
		s := r.slots[id]
		s.fd = cmd.fd
		s.owner = cmd.owner
		s.state = stateBind
		unix.SetNonblock(s.fd, true)
		r.p.add(s.fd, int(id))
		cmd.reply <- ctrlReply{id: id}
	case opUDPListen:
		id := r.allocSlot()
		if id < 0 {
			unix.Close(cmd.fd)
			cmd.reply <- ctrlReply{id: -1, err: fmt.Errorf("reactor: slot table full")}
			return false
		}
		s := r.slots[id]
		s.fd = cmd.fd
		s.owner = cmd.owner
		s.udp = true
		s.state = stateConnected
		r.p.add(s.fd, int(id))
		cmd.reply <- ctrlReply{id: id}
	case opStart:
		s := r.slots[cmd.id]
		if s == nil {
			cmd.reply <- ctrlReply{err: fmt.Errorf("reactor: unknown slot %d", cmd.id)}
			return false
		}
		switch s.state {
		case statePListen:
			s.state = stateListen
			r.p.add(s.fd, int(cmd.id))
		case statePAccept, stateBind:
			s.state = stateConnected
			r.p.add(s.fd, int(cmd.id))
		}
		cmd.reply <- ctrlReply{}
	case opClose:
		r.closeSlot(cmd.id, cmd.force)
		cmd.reply <- ctrlReply{}
	case opSendHigh, opSendLow:
		r.queueSend(cmd.id, cmd.data, cmd.op == opSendHigh)
		cmd.reply <- ctrlReply{}
	case opSendUDP:
		r.sendUDP(cmd.id, cmd.udpAddr, cmd.data)
		cmd.reply <- ctrlReply{}
	case opAssocUDP:
		if s := r.slots[cmd.id]; s != nil {
			s.mu.Lock()
			s.udpPeer = encodeUDPAddr(cmd.udpAddr)
			s.mu.Unlock()
		}
		cmd.reply <- ctrlReply{}
	case opSetOpt:
		if s := r.slots[cmd.id]; s != nil {
			v := 0
			if cmd.enable {
				v = 1
			}
			unix.SetsockoptInt(s.fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, v)
		}
		cmd.reply <- ctrlReply{}
	default:
		cmd.reply <- ctrlReply{err: fmt.Errorf("reactor: unknown command %q", cmd.op)}
	}
	return false
}

func (r *Reactor) closeSlot(id int32, force bool) {
	s := r.slots[id]
	if s == nil {
		return
	}
	s.mu.Lock()
	hasPending := !s.emptyLocked()
	s.mu.Unlock()
	if hasPending && !force {
		s.state = stateHalfClose
		return
	}
	r.p.del(s.fd)
	unix.Close(s.fd)
	r.emit(s.owner, actor.TypeSocket, 0, encodeEnvelope(EventClose, id, nil))
	r.slots[id] = nil
}

func (r *Reactor) queueSend(id int32, data []byte, highPriority bool) {
	s := r.slots[id]
	if s == nil || s.state != stateConnected {
		return
	}
	s.mu.Lock()
	if s.emptyLocked() {
		n, err := unix.Write(s.fd, data)
		if err == nil && n == len(data) {
			s.mu.Unlock()
			return
		}
		if err != nil && err != unix.EAGAIN {
			s.mu.Unlock()
			r.closeSlot(id, true)
			return
		}
		if n > 0 {
			data = data[n:]
		}
	}
	warnKB, warn := s.queueLocked(data, highPriority)
	s.mu.Unlock()
	r.p.write(s.fd, int(id), true)
	if warn {
		r.emit(s.owner, actor.TypeSocket, 0, encodeEnvelope(EventWarning, id, encodeWarning(warnKB)))
	}
}

func (r *Reactor) sendUDP(id int32, addr *net.UDPAddr, data []byte) {
	s := r.slots[id]
	if s == nil {
		return
	}
	s.mu.Lock()
	peer := addr
	if peer == nil && s.udpPeer != nil {
		if a, _, err := decodeUDPAddr(s.udpPeer); err == nil {
			peer = a
		}
	}
	s.mu.Unlock()
	if peer == nil {
		return
	}
	sa, err := sockaddrFromUDPAddr(peer)
	if err != nil {
		return
	}
	unix.Sendto(s.fd, data, 0, sa)
}

// handleEvent dispatches one poller-ready event by slot state. It reports
// whether the write half should be deferred to the next iteration.
func (r *Reactor) handleEvent(ev Event) (rewindWrite bool) {
	id := int32(ev.UD)
	s := r.slots[id]
	if s == nil {
		return false
	}

	switch s.state {
	case stateConnecting:
		if ev.Error {
			r.emit(s.owner, actor.TypeSocket, 0, encodeEnvelope(EventError, id, []byte("connect failed")))
			r.closeSlot(id, true)
			return false
		}
		errno, _ := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if errno != 0 {
			r.emit(s.owner, actor.TypeSocket, 0, encodeEnvelope(EventError, id, []byte(unix.Errno(errno).Error())))
			r.closeSlot(id, true)
			return false
		}
		s.state = stateConnected
		r.p.write(s.fd, int(id), false)
		r.emit(s.owner, actor.TypeSocket, 0, encodeEnvelope(EventConnect, id, nil))
		return false
	case stateListen:
		r.handleAccept(id, s)
		return false
	default:
		readDidWork := false
		if ev.Read {
			readDidWork = r.handleRead(id, s)
		}
		if ev.Write {
			if readDidWork {
				return true
			}
			r.handleWrite(id, s)
		}
		if ev.Error && !ev.Read && !ev.Write {
			r.emit(s.owner, actor.TypeSocket, 0, encodeEnvelope(EventError, id, []byte("socket error")))
			r.closeSlot(id, true)
		}
		return false
	}
}

func (r *Reactor) handleAccept(listenID int32, s *socket) {
	for {
		fd, sa, err := unix.Accept4(s.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			if err == unix.EMFILE || err == unix.ENFILE {
				r.emit(s.owner, actor.TypeSocket, 0, encodeEnvelope(EventError, listenID, []byte("accept: too many open files")))
				return
			}
			return
		}
		id := r.allocSlot()
		if id < 0 {
			unix.Close(fd)
			return
		}
		ns := r.slots[id]
		ns.fd = fd
		ns.owner = s.owner
		ns.state = statePAccept
		peer := peerString(sa)
		r.emit(s.owner, actor.TypeSocket, 0, encodeEnvelope(EventAccept, id, []byte(peer)))
	}
}

func (r *Reactor) handleRead(id int32, s *socket) (didWork bool) {
	if s.udp {
		return r.handleUDPRead(id, s)
	}
	buf := make([]byte, s.readSize)
	n, err := unix.Read(s.fd, buf)
	if n == 0 && err == nil {
		r.closeSlot(id, true)
		return false
	}
	if err != nil {
		if err == unix.EAGAIN {
			return false
		}
		r.closeSlot(id, true)
		return false
	}
	s.nextReadSize(n)
	r.emit(s.owner, actor.TypeSocket, 0, encodeEnvelope(EventData, id, buf[:n]))
	return true
}

func (r *Reactor) handleUDPRead(id int32, s *socket) (didWork bool) {
	buf := make([]byte, 65536)
	n, from, err := unix.Recvfrom(s.fd, buf, 0)
	if err != nil {
		if err == unix.EAGAIN {
			return false
		}
		return false
	}
	addr := udpAddrFromSockaddr(from)
	payload := appendUDPAddr(buf[:n], addr)
	r.emit(s.owner, actor.TypeSocket, 0, encodeEnvelope(EventUDP, id, payload))
	return true
}

func (r *Reactor) handleWrite(id int32, s *socket) {
	s.mu.Lock()
	for {
		data, fromHigh, ok := s.nextSendLocked()
		if !ok {
			break
		}
		n, err := unix.Write(s.fd, data)
		if err != nil {
			if err == unix.EAGAIN {
				break
			}
			s.mu.Unlock()
			r.closeSlot(id, true)
			return
		}
		s.consumeLocked(n, fromHigh)
		if n < len(data) {
			break
		}
	}
	empty := s.emptyLocked()
	s.mu.Unlock()
	if empty {
		r.p.write(s.fd, int(id), false)
		if s.state == stateHalfClose {
			r.closeSlot(id, true)
		}
	}
}

// encodeEnvelope packs an EventKind and slot id as a small fixed header
// followed by optional inline data: a fixed struct followed by optional
// inline data, the same shape every socket event payload uses.
func encodeEnvelope(kind EventKind, id int32, data []byte) []byte {
	out := make([]byte, 5+len(data))
	out[0] = byte(kind)
	out[1] = byte(id >> 24)
	out[2] = byte(id >> 16)
	out[3] = byte(id >> 8)
	out[4] = byte(id)
	copy(out[5:], data)
	return out
}

func encodeWarning(kb int64) []byte {
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[i] = byte(kb >> uint(56-8*i))
	}
	return out
}

// DecodeEnvelope reverses encodeEnvelope, for deliver hooks that need the
// slot id and kind back out of a socket message payload.
func DecodeEnvelope(payload []byte) (kind EventKind, id int32, data []byte, err error) {
	if len(payload) < 5 {
		return 0, 0, nil, fmt.Errorf("reactor: truncated event envelope")
	}
	kind = EventKind(payload[0])
	id = int32(payload[1])<<24 | int32(payload[2])<<16 | int32(payload[3])<<8 | int32(payload[4])
	return kind, id, payload[5:], nil
}
