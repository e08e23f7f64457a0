package actor

import (
	"fmt"
	"sync/atomic"

	"github.com/actorcore/actorcored/pkg/svclog"
)

// Callback is a service's message handler. Returning true
// means the callback retained Payload and the runtime must not reuse or
// discard it on the caller's behalf; false means the runtime may drop
// its reference immediately after the call returns.
type Callback func(typ Type, session int32, source Handle, payload []byte) (retain bool)

// Module is the external module factory contract — the Go
// rendition of a dynamically loaded native object, since dynamic loading
// itself is out of scope. A Module is registered by name and
// instantiated per LAUNCH command.
type Module interface {
	// Create produces fresh, opaque instance state.
	Create() (instance any, err error)
	// Init wires instance to ctx and parses args; a non-nil error retires
	// the service and drains its mailbox with error responses.
	Init(instance any, ctx Context, args []string) error
	// Release tears down instance. Called exactly once, when KILL, EXIT or
	// ABORT retires the service; a service whose Init failed is retired
	// without a Release call.
	Release(instance any)
	// Signal delivers a module-defined out-of-band signal (SIGNAL command).
	Signal(instance any, n int)
	// Dispatch is the per-message callback bound to instance.
	Dispatch(instance any) Callback
}

// Service is a registered, running (or not-yet-initialized) actor.
type Service struct {
	Handle   Handle
	Module   Module
	instance any

	Mailbox *Mailbox

	refCount int32 // atomic

	LogFile *svclog.Logger // nil unless LOGON was issued

	cpuCost  int64 // atomic, nanoseconds
	msgCount int64 // atomic

	endless int32 // atomic bool, set by the monitor
	initOK  int32 // atomic bool

	// profiling tracks whether StartProfile has an outstanding call
	// without a matching StopProfile: re-starting without stopping first
	// is treated as an error rather than an implicit restart.
	profiling int32 // atomic bool

	session int32 // atomic, last-allocated session id for this service
}

// NewService allocates an unregistered Service wrapping instance, created
// via mod.Create(). The caller assigns Handle and Mailbox.
func NewService(mod Module, instance any) *Service {
	return &Service{Module: mod, instance: instance}
}

// NextSession allocates the next session id, skipping zero on wrap.
func (s *Service) NextSession() int32 {
	for {
		v := atomic.AddInt32(&s.session, 1)
		if v > 0 {
			return v
		}
		// Wrapped through zero or negative: reset and retry.
		atomic.CompareAndSwapInt32(&s.session, v, 0)
	}
}

// Retain increments the ref-count. Matching Release is mandatory.
func (s *Service) Retain() { atomic.AddInt32(&s.refCount, 1) }

// Release decrements the ref-count and reports whether it reached zero.
func (s *Service) Release() (zero bool) {
	return atomic.AddInt32(&s.refCount, -1) == 0
}

// RefCount returns the current ref-count.
func (s *Service) RefCount() int32 { return atomic.LoadInt32(&s.refCount) }

// MarkInitialized records a successful Init.
func (s *Service) MarkInitialized() { atomic.StoreInt32(&s.initOK, 1) }

// Initialized reports whether Init has completed successfully.
func (s *Service) Initialized() bool { return atomic.LoadInt32(&s.initOK) == 1 }

// SetEndless sets or clears the monitor's stuck-service flag.
func (s *Service) SetEndless(v bool) {
	if v {
		atomic.StoreInt32(&s.endless, 1)
	} else {
		atomic.StoreInt32(&s.endless, 0)
	}
}

// Endless reports the monitor's stuck-service flag.
func (s *Service) Endless() bool { return atomic.LoadInt32(&s.endless) == 1 }

// ConsumeEndless reads and clears the monitor's stuck-service flag, the
// STAT endless command's "returns 1 then 0" read-once semantics,
// mirroring Mailbox.Overload's read-and-clear shape.
func (s *Service) ConsumeEndless() bool {
	return atomic.CompareAndSwapInt32(&s.endless, 1, 0)
}

// AddCPUCost accumulates dispatch cost in nanoseconds. The scheduler
// charges each callback's wall-clock duration, not per-thread CPU time.
func (s *Service) AddCPUCost(ns int64) { atomic.AddInt64(&s.cpuCost, ns) }

// CPUCost returns the accumulated dispatch cost in nanoseconds.
func (s *Service) CPUCost() int64 { return atomic.LoadInt64(&s.cpuCost) }

// IncMessageCount counts one dispatched message.
func (s *Service) IncMessageCount() { atomic.AddInt64(&s.msgCount, 1) }

// MessageCount returns the number of messages dispatched so far.
func (s *Service) MessageCount() int64 { return atomic.LoadInt64(&s.msgCount) }

// ErrProfileAlreadyStarted: restarting profiling on a service that never
// stopped it is an error, not a silent no-op or an implicit stop+restart.
var ErrProfileAlreadyStarted = errProfileAlreadyStarted{}

type errProfileAlreadyStarted struct{}

func (errProfileAlreadyStarted) Error() string {
	return "actor: profiling already started for this service"
}

// StartProfile marks this service as profiled. Dispatch does not consult
// the mark: the scheduler accumulates cost for every dispatch whether or
// not profiling was started.
func (s *Service) StartProfile() error {
	if !atomic.CompareAndSwapInt32(&s.profiling, 0, 1) {
		return ErrProfileAlreadyStarted
	}
	return nil
}

// StopProfile clears the profiling mark. It is a no-op if profiling was
// not started.
func (s *Service) StopProfile() {
	atomic.StoreInt32(&s.profiling, 0)
}

// DispatchCallback returns the module callback bound to this service's
// instance, for the scheduler to invoke.
func (s *Service) DispatchCallback() Callback {
	return s.Module.Dispatch(s.instance)
}

// ModuleName identifies s.Module for metrics/log labels (its concrete Go
// type, since Module itself carries no name field).
func (s *Service) ModuleName() string {
	return fmt.Sprintf("%T", s.Module)
}

// Instance returns the opaque module instance (for Release/Signal calls).
func (s *Service) Instance() any { return s.instance }
