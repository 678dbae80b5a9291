package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestObserveBeforeInitIsNoop(t *testing.T) {
	ObserveBackendRequest("list systems", ResultSuccess, time.Millisecond)
	AddRunningTimers(1)
	SetOpenSessions(-3)
}

func TestInitRegistersCollectors(t *testing.T) {
	Init()
	Init()

	ObserveFinalize(ResultError, 20*time.Millisecond)
	AddRunningTimers(2)
	AddRunningTimers(-1)

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := map[string]*dto.MetricFamily{}
	for _, family := range families {
		found[family.GetName()] = family
	}
	finalize, ok := found[metricPrefix+"finalize_total"]
	if !ok {
		t.Fatalf("finalize counter not registered")
	}
	if got := finalize.GetMetric()[0].GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected one finalize, got %v", got)
	}
	timers, ok := found[metricPrefix+"running_station_timers"]
	if !ok || timers.GetMetric()[0].GetGauge().GetValue() != 1 {
		t.Fatalf("expected running timers gauge at 1")
	}
}
