package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestNewMetricsRegistersAgainstSuppliedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.SchedulerDispatched.Inc()
	m.SchedulerDispatched.Inc()
	if got := counterValue(t, m.SchedulerDispatched); got != 2 {
		t.Fatalf("SchedulerDispatched = %v, want 2", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected at least one registered metric family")
	}
}

func TestDispatchTotalLabeledByModule(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.DispatchTotal.WithLabelValues("echo").Inc()
	m.DispatchTotal.WithLabelValues("gate").Inc()
	m.DispatchTotal.WithLabelValues("echo").Inc()

	if got := counterValue(t, m.DispatchTotal.WithLabelValues("echo")); got != 2 {
		t.Fatalf("echo dispatch count = %v, want 2", got)
	}
	if got := counterValue(t, m.DispatchTotal.WithLabelValues("gate")); got != 1 {
		t.Fatalf("gate dispatch count = %v, want 1", got)
	}
}

func TestGetMetricsIsASingleton(t *testing.T) {
	a := GetMetrics()
	b := GetMetrics()
	if a != b {
		t.Fatal("GetMetrics should return the same instance across calls")
	}
}
