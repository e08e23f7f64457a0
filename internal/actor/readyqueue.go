package actor

import "sync"

// ReadyQueue is the process-wide FIFO of mailboxes awaiting dispatch. A
// mailbox appears at most once; membership is tracked by its own
// inGlobal flag so Push and the queue's internal linked list stay in
// lock-step: the invariant is inGlobal ⇔ mailbox ∈ ready-queue.
//
// The wake-up discipline is folded in here rather than
// left to callers: Push signals at most one waiter, and only when the
// scheduler reports enough workers are asleep to justify it.
type ReadyQueue struct {
	mu         sync.Mutex
	cond       *sync.Cond
	head, tail *Mailbox

	sleeping int
	workers  int
	busy     int
	closed   bool
}

// NewReadyQueue creates an empty ready queue sized for workers worker
// threads (used only to compute the wake-up threshold).
func NewReadyQueue(workers int) *ReadyQueue {
	q := &ReadyQueue{workers: workers}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// PushMessage appends msg to mb and, if mb transitioned from idle to
// ready, pushes mb onto the queue and applies the wake-up policy. This is
// the single entry point callers use to deliver a message — it never
// lets a mailbox end up off the ready queue while non-empty.
func (q *ReadyQueue) PushMessage(mb *Mailbox, msg Message) {
	becameReady := mb.Push(msg)
	if !becameReady {
		return
	}
	q.push(mb)
}

// push enqueues mb onto the ready list if it is not already linked in,
// and wakes a sleeping worker if enough workers are already idle to
// justify it.
func (q *ReadyQueue) push(mb *Mailbox) {
	q.mu.Lock()
	if mb.inGlobal {
		q.mu.Unlock()
		return
	}
	mb.inGlobal = true
	mb.next = nil
	if q.tail == nil {
		q.head, q.tail = mb, mb
	} else {
		q.tail.next = mb
		q.tail = mb
	}
	shouldSignal := q.sleeping >= q.workers-q.busy
	q.mu.Unlock()

	if shouldSignal {
		q.cond.Signal()
	}
}

// Requeue pushes a mailbox the scheduler has finished a batch on (and
// which still has messages) back onto the ready list, unconditionally
// signalling since the caller is itself a worker about to go idle.
func (q *ReadyQueue) Requeue(mb *Mailbox) {
	q.push(mb)
	q.mu.Lock()
	q.cond.Signal()
	q.mu.Unlock()
}

// Pop blocks until a mailbox is ready or the queue is closed. ok is false
// only after Close.
func (q *ReadyQueue) Pop() (mb *Mailbox, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.head == nil && !q.closed {
		q.sleeping++
		q.cond.Wait()
		q.sleeping--
	}
	if q.head == nil {
		return nil, false
	}

	mb = q.head
	q.head = mb.next
	if q.head == nil {
		q.tail = nil
	}
	mb.next = nil
	mb.inGlobal = false
	return mb, true
}

// SetBusy updates the number of workers currently dispatching a batch
// (as opposed to blocked in Pop), used by the wake-up threshold.
func (q *ReadyQueue) SetBusy(delta int) {
	q.mu.Lock()
	q.busy += delta
	q.mu.Unlock()
}

// SignalIfSleeping wakes one waiter if any worker is asleep. Used by the
// timer and reactor threads, which are not themselves workers; when no
// worker is asleep it signals nothing.
func (q *ReadyQueue) SignalIfSleeping() {
	q.mu.Lock()
	sleeping := q.sleeping
	q.mu.Unlock()
	if sleeping > 0 {
		q.cond.Signal()
	}
}

// Close wakes every waiter and makes subsequent Pop calls return
// (nil, false). Used during shutdown.
func (q *ReadyQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}
