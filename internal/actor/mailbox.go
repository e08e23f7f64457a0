package actor

import "sync"

// defaultMailboxCapacity is the initial circular buffer size; it doubles
// on fill.
const defaultMailboxCapacity = 64

// defaultOverloadThreshold is where overload tracking starts watching.
const defaultOverloadThreshold = 1024

// Mailbox is a service's private FIFO of incoming messages: a growable
// circular buffer guarded by one lock, plus overload-length tracking and
// the ready-queue linkage (inGlobal / next) the scheduler walks.
//
// Unlike a channel-backed queue, Mailbox exposes Length() so the
// scheduler can size a dispatch batch and so overload can be computed —
// neither is expressible through a chan's buffered-send/receive API.
type Mailbox struct {
	mu   sync.Mutex
	buf  []Message
	head int
	tail int
	size int

	threshold int
	overload  int

	releasePending bool

	// Ready-queue linkage. Owned by the ready queue's lock, not mu; see
	// readyqueue.go. inGlobal mirrors the original runtime's "in-global" flag.
	inGlobal bool
	next     *Mailbox

	// Owner handle, set once at construction for diagnostics/log-file
	// labelling; never mutated afterward.
	Owner Handle
}

// NewMailbox allocates an empty mailbox for the given owning handle.
func NewMailbox(owner Handle) *Mailbox {
	return &Mailbox{
		buf:       make([]Message, defaultMailboxCapacity),
		threshold: defaultOverloadThreshold,
		Owner:     owner,
	}
}

// Push appends msg to the mailbox, growing the buffer if full. It reports
// whether the mailbox transitioned from empty to non-empty (the caller
// uses this to decide whether to push the mailbox onto the ready queue).
func (m *Mailbox) Push(msg Message) (becameReady bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wasEmpty := m.size == 0

	if m.size == len(m.buf) {
		m.grow()
	}
	m.buf[m.tail] = msg
	m.tail = (m.tail + 1) % len(m.buf)
	m.size++

	if m.size > m.threshold {
		m.overload = m.size
		m.threshold *= 2
	}

	return wasEmpty
}

// grow doubles the backing array. Caller holds m.mu.
func (m *Mailbox) grow() {
	newBuf := make([]Message, len(m.buf)*2)
	n := copy(newBuf, m.buf[m.head:])
	copy(newBuf[n:], m.buf[:m.head])
	m.buf = newBuf
	m.head = 0
	m.tail = m.size
}

// Pop removes and returns the oldest message. ok is false if the mailbox
// is empty.
func (m *Mailbox) Pop() (msg Message, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.size == 0 {
		return Message{}, false
	}
	msg = m.buf[m.head]
	m.buf[m.head] = Message{} // drop reference so GC can reclaim payload
	m.head = (m.head + 1) % len(m.buf)
	m.size--

	if m.size == 0 {
		m.threshold = defaultOverloadThreshold
	}

	return msg, true
}

// Length returns the current number of queued messages.
func (m *Mailbox) Length() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size
}

// Overload reads and clears the overload marker. Zero means no overload
// has been observed since the last read. This is STAT overload's
// consuming read.
func (m *Mailbox) Overload() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.overload
	m.overload = 0
	return v
}

// PeekOverload reads the overload marker without clearing it, for the
// dispatch loop's own "may overload" diagnostic: the original runtime
// logs the condition every time it dispatches from an overloaded queue,
// independent of whether anything has since asked STAT for the same
// counter (mirrors skynet_server.c's skynet_context_message_dispatch
// checking skynet_mq_overload around the log line, kept non-destructive
// here so a later STAT overload still sees the crossing once).
func (m *Mailbox) PeekOverload() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overload
}

// MarkReleasePending flags the mailbox for drain-and-free by the next
// worker that pops it.
func (m *Mailbox) MarkReleasePending() {
	m.mu.Lock()
	m.releasePending = true
	m.mu.Unlock()
}

// ReleasePending reports whether the mailbox has been marked for drain.
func (m *Mailbox) ReleasePending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.releasePending
}

// Drain removes every queued message, invoking fn for each (used to
// synthesize error responses to pending senders on service retirement).
func (m *Mailbox) Drain(fn func(Message)) {
	for {
		msg, ok := m.Pop()
		if !ok {
			return
		}
		fn(msg)
	}
}
