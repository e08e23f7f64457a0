// Package scheduler runs the fixed worker pool that dispatches ready
// mailboxes, plus the monitor that watches for stuck services.
// Shape grounded on the teacher's pkg/core/concurrency executor
// (fixed worker count, atomic stats, explicit Start/Stop), generalized
// from a task queue to the weighted mailbox-batch model this runtime needs.
package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/actorcore/actorcored/internal/actor"
	"github.com/actorcore/actorcored/internal/observability"
)

// weight returns the per-worker batch-size policy: the
// first 4 workers take one message per visit (weight -1) so a single fat
// mailbox cannot monopolize them; the next 4 drain the whole queue in one
// visit (weight 0); subsequent groups of 4 take len/2, len/4, len/8.
// Workers beyond the table fall back to weight 0.
func weight(id int) int {
	switch {
	case id < 4:
		return -1
	case id < 8:
		return 0
	case id < 12:
		return 1
	case id < 16:
		return 2
	case id < 20:
		return 3
	default:
		return 0
	}
}

// batchSize applies weight w to a mailbox currently holding n messages.
func batchSize(w, n int) int {
	if w < 0 {
		return 1
	}
	b := n >> uint(w)
	if b < 1 {
		b = 1
	}
	return b
}

// Scheduler runs a fixed pool of worker goroutines draining a ready queue,
// plus a monitor goroutine detecting stuck services.
type Scheduler struct {
	ready    *actor.ReadyQueue
	registry *actor.Registry
	monitor  *Monitor
	workers  int

	wg   sync.WaitGroup
	stop chan struct{}

	dispatched int64 // atomic, total messages dispatched across all workers

	metrics *observability.Metrics
	logger  observability.Logger
}

// NewScheduler creates a scheduler for workers worker goroutines operating
// against ready and registry. Fewer than 1 worker is rounded up to 1.
func NewScheduler(ready *actor.ReadyQueue, registry *actor.Registry, workers int) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{
		ready:    ready,
		registry: registry,
		monitor:  NewMonitor(registry, workers),
		workers:  workers,
		stop:     make(chan struct{}),
	}
}

// Start launches the worker pool and the monitor. It returns immediately;
// call Stop to shut both down.
func (s *Scheduler) Start() {
	s.wg.Add(s.workers + 1)
	for i := 0; i < s.workers; i++ {
		go s.runWorker(i)
	}
	go func() {
		defer s.wg.Done()
		s.monitor.Run(s.stop)
	}()
}

// Stop closes the ready queue (waking every idle worker with ok == false)
// and the monitor's stop channel, then waits for all of them to return.
func (s *Scheduler) Stop() {
	close(s.stop)
	s.ready.Close()
	s.wg.Wait()
}

// Dispatched returns the total number of messages dispatched so far.
func (s *Scheduler) Dispatched() int64 {
	return atomic.LoadInt64(&s.dispatched)
}

// SetMetrics wires m so every dispatch and stuck-service detection feeds
// the admin surface's /metrics route; nil (the default) keeps the
// dispatch loop free of Prometheus calls, matching every other optional
// subsystem's off-by-default wiring.
func (s *Scheduler) SetMetrics(m *observability.Metrics) {
	s.metrics = m
	s.monitor.metrics = m
}

// SetLogger wires l as the destination for the overload diagnostic
// dispatchBatch logs when a mailbox's length crosses its threshold;
// nil (the default) silences it.
func (s *Scheduler) SetLogger(l observability.Logger) {
	s.logger = l
	s.monitor.logger = l
}

func (s *Scheduler) runWorker(id int) {
	defer s.wg.Done()
	w := weight(id)

	for {
		mb, ok := s.ready.Pop()
		if !ok {
			return
		}
		s.ready.SetBusy(1)
		s.dispatchBatch(id, w, mb)
		s.ready.SetBusy(-1)
	}
}

// dispatchBatch pops up to batch(w, mailbox.length) messages from mb and
// feeds them to its service's callback, then re-enqueues mb if messages
// remain.
func (s *Scheduler) dispatchBatch(workerID, w int, mb *actor.Mailbox) {
	if mb.ReleasePending() {
		// command.Dispatcher's kill/abort already drained and released
		// this service; a worker only sees this when it had already
		// popped the mailbox before retirement finished marking it, so
		// just drop whatever is left rather than dispatch into a torn-
		// down instance.
		mb.Drain(func(actor.Message) {})
		return
	}

	svc := s.registry.Lookup(mb.Owner)
	if svc == nil {
		// The service was retired between becoming ready and being picked
		// up; there is nowhere left to deliver its queued messages.
		mb.Drain(func(actor.Message) {})
		return
	}
	defer svc.Release()

	moduleName := svc.ModuleName()
	batch := batchSize(w, mb.Length())
	cb := svc.DispatchCallback()

	for i := 0; i < batch; i++ {
		msg, ok := mb.Pop()
		if !ok {
			break
		}
		if n := mb.PeekOverload(); n > 0 && s.logger != nil {
			s.logger.Warnf("service %v may overload, message queue length = %d", svc.Handle, n)
		}
		s.monitor.BeginDispatch(workerID, msg.Source, svc.Handle)
		start := time.Now()
		if cb != nil {
			cb(msg.Type, msg.Session, msg.Source, msg.Payload)
		}
		elapsed := time.Since(start)
		svc.AddCPUCost(int64(elapsed))
		svc.IncMessageCount()
		atomic.AddInt64(&s.dispatched, 1)
		s.monitor.EndDispatch(workerID)

		if s.metrics != nil {
			s.metrics.DispatchTotal.WithLabelValues(moduleName).Inc()
			s.metrics.DispatchDuration.WithLabelValues(moduleName).Observe(elapsed.Seconds())
			s.metrics.ServiceCPUCost.WithLabelValues(svc.Handle.String(), moduleName).Set(float64(svc.CPUCost()) / 1e9)
			s.metrics.SchedulerDispatched.Inc()
		}
	}

	if mb.Length() > 0 {
		s.ready.Requeue(mb)
	}
}
