package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the runtime's Prometheus collectors, grounded on the
// teacher's pkg/observability/prometheus.Metrics — same
// promauto.With(registerer) construction shape, narrowed from the
// teacher's HTTP/DB/verticle metric families down to the ones this
// runtime's dispatch loop, reactor, and scheduler actually produce.
type Metrics struct {
	DispatchTotal    *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
	ServiceCPUCost   *prometheus.GaugeVec
	MailboxLength    *prometheus.GaugeVec
	SchedulerDispatched prometheus.Counter
	ReactorEventsTotal  *prometheus.CounterVec
	EndlessServices     prometheus.Counter
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// DefaultRegistry is the registry new collectors attach to unless a
// caller supplies its own (used by the admin surface's /metrics route).
var DefaultRegistry = prometheus.NewRegistry()

// GetMetrics returns the process-wide Metrics instance, creating it
// against DefaultRegistry on first use.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = NewMetrics(DefaultRegistry)
	})
	return metrics
}

// NewMetrics registers a fresh set of collectors against registerer. Used
// directly by tests that need an isolated registry.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = DefaultRegistry
	}
	f := promauto.With(registerer)
	return &Metrics{
		DispatchTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "actorcored_dispatch_total",
			Help: "Total messages dispatched to service callbacks.",
		}, []string{"module"}),
		DispatchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name: "actorcored_dispatch_duration_seconds",
			Help: "Time spent inside one service callback invocation.",
		}, []string{"module"}),
		ServiceCPUCost: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "actorcored_service_cpu_seconds",
			Help: "Cumulative CPU time charged to a service, by handle.",
		}, []string{"handle", "module"}),
		MailboxLength: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "actorcored_mailbox_length",
			Help: "Current mailbox queue length, by handle.",
		}, []string{"handle", "module"}),
		SchedulerDispatched: f.NewCounter(prometheus.CounterOpts{
			Name: "actorcored_scheduler_dispatched_total",
			Help: "Total messages dispatched across all workers.",
		}),
		ReactorEventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "actorcored_reactor_events_total",
			Help: "Total socket reactor events, by kind.",
		}, []string{"kind"}),
		EndlessServices: f.NewCounter(prometheus.CounterOpts{
			Name: "actorcored_endless_services_total",
			Help: "Total services flagged as stuck by the scheduler monitor.",
		}),
	}
}
