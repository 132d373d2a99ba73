// Package metrics exposes the platform's Prometheus metric set, grounded
// on internal/interfaces/http/metrics.go's MetricsRegistry: one struct
// bundling every counter/gauge/histogram, constructed once and passed by
// reference into every subsystem that records against it.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric the platform's subsystems record against.
type Registry struct {
	AdapterLatency     *prometheus.HistogramVec
	AdapterErrors      *prometheus.CounterVec

	DetectionCycleDuration prometheus.Histogram
	OpportunitiesDetected  *prometheus.CounterVec
	OpportunitiesExpired   prometheus.Counter

	ExecutionDuration *prometheus.HistogramVec
	ExecutionRollbacks prometheus.Counter

	ReconciliationConflicts prometheus.Counter
	ReconciliationAutoFixed prometheus.Counter

	AutoUnwinds prometheus.Counter

	CircuitBreakerState prometheus.Gauge // 0=closed, 1=half-open, 2=open

	ConcurrentCoins prometheus.Gauge
	CapitalUtilizationPct prometheus.Gauge

	ActivePositions prometheus.Gauge
}

// New constructs and registers a Registry. Call once per process; a
// second call will panic on duplicate registration, matching
// prometheus.MustRegister's own behavior.
func New() *Registry {
	r := &Registry{
		AdapterLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexus_adapter_request_duration_seconds",
				Help:    "Exchange adapter request latency in seconds",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"exchange", "operation"},
		),
		AdapterErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_adapter_errors_total",
				Help: "Exchange adapter errors by exchange and operation",
			},
			[]string{"exchange", "operation"},
		),
		DetectionCycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "nexus_detection_cycle_duration_seconds",
				Help:    "Duration of one funding-rate detection cycle",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
		),
		OpportunitiesDetected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_opportunities_detected_total",
				Help: "Opportunities detected by symbol",
			},
			[]string{"symbol"},
		),
		OpportunitiesExpired: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "nexus_opportunities_expired_total",
				Help: "Opportunities that expired without execution",
			},
		),
		ExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexus_execution_duration_seconds",
				Help:    "Duration of two-leg execution attempts",
				Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"result"},
		),
		ExecutionRollbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "nexus_execution_rollbacks_total",
				Help: "Executions where one leg failed and the other was rolled back",
			},
		),
		ReconciliationConflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "nexus_reconciliation_conflicts_total",
				Help: "Reconciliation runs that found a critical, review-requiring diff",
			},
		),
		ReconciliationAutoFixed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "nexus_reconciliation_auto_fixed_total",
				Help: "Reconciliation diffs auto-corrected without operator review",
			},
		),
		AutoUnwinds: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "nexus_auto_unwinds_total",
				Help: "Positions force-closed to free capital for a higher-scoring opportunity",
			},
		),
		CircuitBreakerState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nexus_circuit_breaker_state",
				Help: "Auto-execute circuit breaker state: 0=closed 1=half-open 2=open",
			},
		),
		ConcurrentCoins: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nexus_concurrent_coins",
				Help: "Distinct symbols currently holding a capital reservation",
			},
		),
		CapitalUtilizationPct: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nexus_capital_utilization_pct",
				Help: "Active + pending capital as a percentage of total capital",
			},
		),
		ActivePositions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nexus_active_positions",
				Help: "Currently open delta-neutral positions",
			},
		),
	}

	prometheus.MustRegister(
		r.AdapterLatency, r.AdapterErrors,
		r.DetectionCycleDuration, r.OpportunitiesDetected, r.OpportunitiesExpired,
		r.ExecutionDuration, r.ExecutionRollbacks,
		r.ReconciliationConflicts, r.ReconciliationAutoFixed,
		r.AutoUnwinds, r.CircuitBreakerState,
		r.ConcurrentCoins, r.CapitalUtilizationPct, r.ActivePositions,
	)
	return r
}

// Handler exposes the registry in Prometheus text exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.Handler()
}

// AdapterTimer times one adapter call and records its latency/error count
// on Stop.
type AdapterTimer struct {
	reg       *Registry
	exchange  string
	operation string
	start     time.Time
}

// StartAdapterTimer begins timing an exchange adapter call.
func (r *Registry) StartAdapterTimer(exchange, operation string) *AdapterTimer {
	return &AdapterTimer{reg: r, exchange: exchange, operation: operation, start: time.Now()}
}

// Stop records the elapsed duration and, if err is non-nil, increments the
// adapter error counter.
func (t *AdapterTimer) Stop(err error) {
	t.reg.AdapterLatency.WithLabelValues(t.exchange, t.operation).Observe(time.Since(t.start).Seconds())
	if err != nil {
		t.reg.AdapterErrors.WithLabelValues(t.exchange, t.operation).Inc()
	}
}

// SetBreakerState maps a gobreaker state string onto the numeric gauge.
func (r *Registry) SetBreakerState(state string) {
	switch state {
	case "closed":
		r.CircuitBreakerState.Set(0)
	case "half-open":
		r.CircuitBreakerState.Set(1)
	case "open":
		r.CircuitBreakerState.Set(2)
	}
}
