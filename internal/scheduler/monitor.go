package scheduler

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/actorcore/actorcored/internal/actor"
	"github.com/actorcore/actorcored/internal/observability"
)

// record is one worker's dispatch fingerprint: version increments on
// every dispatch begin/end; dest is the handle currently being
// dispatched, or 0 between messages.
type record struct {
	version      int64
	checkVersion int64
	source       uint32
	dest         uint32
}

// Monitor watches the per-worker records for stuck services: a worker whose
// version hasn't advanced since the previous tick, while still mid-dispatch
// (dest != 0), gets its service's endless flag set.
type Monitor struct {
	records  []record
	registry *actor.Registry
	interval time.Duration

	metrics *observability.Metrics
	logger  observability.Logger
}

// NewMonitor creates a monitor with one record per worker.
func NewMonitor(registry *actor.Registry, workers int) *Monitor {
	return &Monitor{
		records:  make([]record, workers),
		registry: registry,
		interval: 5 * time.Second,
	}
}

// BeginDispatch records that worker id is about to invoke dest's callback on
// behalf of source.
func (m *Monitor) BeginDispatch(id int, source, dest actor.Handle) {
	r := &m.records[id]
	atomic.StoreUint32(&r.source, uint32(source))
	atomic.StoreUint32(&r.dest, uint32(dest))
	atomic.AddInt64(&r.version, 1)
}

// EndDispatch records that worker id's in-flight dispatch has returned.
func (m *Monitor) EndDispatch(id int) {
	r := &m.records[id]
	atomic.StoreUint32(&r.source, 0)
	atomic.StoreUint32(&r.dest, 0)
	atomic.AddInt64(&r.version, 1)
}

// Run ticks every m.interval until stop is closed, flagging any worker whose
// version has not moved since the previous tick while mid-dispatch.
func (m *Monitor) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.check()
		}
	}
}

func (m *Monitor) check() {
	for i := range m.records {
		r := &m.records[i]
		version := atomic.LoadInt64(&r.version)
		checked := atomic.LoadInt64(&r.checkVersion)
		dest := atomic.LoadUint32(&r.dest)

		if version == checked && dest != 0 {
			h := actor.Handle(dest)
			if svc := m.registry.Lookup(h); svc != nil {
				svc.SetEndless(true)
				src := actor.Handle(atomic.LoadUint32(&r.source))
				msg := fmt.Sprintf("scheduler: worker %d maybe in an endless loop dispatching %v (source %v)", i, h, src)
				if m.logger != nil {
					m.logger.Warnf("%s", msg)
				} else {
					log.Print(msg)
				}
				if m.metrics != nil {
					m.metrics.EndlessServices.Inc()
				}
				svc.Release()
			}
		}
		atomic.StoreInt64(&r.checkVersion, version)
	}
}
