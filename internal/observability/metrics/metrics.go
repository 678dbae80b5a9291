package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "lounge_desk_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	backendRequests *prometheus.CounterVec
	backendLatency  *prometheus.HistogramVec
	breakerState    *prometheus.GaugeVec

	stationEvents *prometheus.CounterVec
	runningTimers prometheus.Gauge
	openSessions  prometheus.Gauge

	finalizeTotal   *prometheus.CounterVec
	finalizeLatency *prometheus.HistogramVec

	receiptExportTotal   *prometheus.CounterVec
	receiptExportLatency *prometheus.HistogramVec

	verificationTotal *prometheus.CounterVec
	foodOrderTotal    *prometheus.CounterVec
)

// Init registers desk metrics with the default registry.
func Init() {
	registerOnce.Do(func() {
		backendRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "backend_requests_total",
				Help: "Total lounge backend requests by operation and result",
			},
			[]string{"op", "result"},
		)
		backendLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "backend_latency_seconds",
				Help:    "Lounge backend request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op", "result"},
		)
		breakerState = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "backend_breaker_state",
				Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"name"},
		)

		stationEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "station_events_total",
				Help: "Total station start/end events by kind",
			},
			[]string{"kind", "event"},
		)
		runningTimers = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "running_station_timers",
				Help: "Station refresh timers currently armed",
			},
		)
		openSessions = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "open_sessions",
				Help: "Session views currently open on the desk",
			},
		)

		finalizeTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "finalize_total",
				Help: "Total bill finalize operations by result",
			},
			[]string{"result"},
		)
		finalizeLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "finalize_latency_seconds",
				Help:    "Bill finalize latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		receiptExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total receipt and bill table exports by format and result",
			},
			[]string{"format", "result"},
		)
		receiptExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		verificationTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "bill_verification_total",
				Help: "Total bill verification toggles by result",
			},
			[]string{"result"},
		)
		foodOrderTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "food_orders_total",
				Help: "Total batch food order lines by result",
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			backendRequests,
			backendLatency,
			breakerState,
			stationEvents,
			runningTimers,
			openSessions,
			finalizeTotal,
			finalizeLatency,
			receiptExportTotal,
			receiptExportLatency,
			verificationTotal,
			foodOrderTotal,
		)
	})
}

// ObserveBackendRequest records a lounge backend call.
func ObserveBackendRequest(op, result string, duration time.Duration) {
	if op == "" {
		op = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if backendRequests != nil {
		backendRequests.WithLabelValues(op, result).Inc()
	}
	if backendLatency != nil {
		backendLatency.WithLabelValues(op, result).Observe(duration.Seconds())
	}
}

// SetBreakerState records the circuit breaker state.
func SetBreakerState(name string, state int) {
	if name == "" {
		name = "unknown"
	}
	if breakerState != nil {
		breakerState.WithLabelValues(name).Set(float64(state))
	}
}

// IncStationEvent counts a station start or end.
func IncStationEvent(kind, event string) {
	if kind == "" {
		kind = "unknown"
	}
	if stationEvents != nil {
		stationEvents.WithLabelValues(kind, event).Inc()
	}
}

// AddRunningTimers moves the armed timer gauge by delta.
func AddRunningTimers(delta int) {
	if runningTimers != nil {
		runningTimers.Add(float64(delta))
	}
}

// SetOpenSessions sets the open session view gauge.
func SetOpenSessions(count int) {
	if count < 0 {
		count = 0
	}
	if openSessions != nil {
		openSessions.Set(float64(count))
	}
}

// ObserveFinalize records finalize latency and result.
func ObserveFinalize(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if finalizeTotal != nil {
		finalizeTotal.WithLabelValues(result).Inc()
	}
	if finalizeLatency != nil {
		finalizeLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if receiptExportTotal != nil {
		receiptExportTotal.WithLabelValues(format, result).Inc()
	}
	if receiptExportLatency != nil {
		receiptExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// IncVerification counts a bill verification toggle.
func IncVerification(result string) {
	if result == "" {
		result = resultSuccess
	}
	if verificationTotal != nil {
		verificationTotal.WithLabelValues(result).Inc()
	}
}

// IncFoodOrder counts a batch order line.
func IncFoodOrder(result string) {
	if result == "" {
		result = resultSuccess
	}
	if foodOrderTotal != nil {
		foodOrderTotal.WithLabelValues(result).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
