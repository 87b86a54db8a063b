package external

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Check results, used as metric labels.
const (
	resultAllowed     = "allowed"
	resultDenied      = "denied"
	resultTimeout     = "timeout"
	resultUnavailable = "unavailable"
	resultOK          = "ok"
)

// Relationship operations, used as metric labels.
const (
	operationWrite       = "write"
	operationListObjects = "list_objects"
)

// Metrics holds Prometheus metrics for authority checks.
type Metrics struct {
	checksTotal         *prometheus.CounterVec
	checkDuration       *prometheus.HistogramVec
	operationsTotal     *prometheus.CounterVec
	breakerTransitions  *prometheus.CounterVec
	rateLimitedWaitTime prometheus.Histogram
}

// NewMetrics creates metrics registered with the default registerer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates metrics registered with registerer.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "avaguard"
	}

	m := &Metrics{
		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "authority",
				Name:      "checks_total",
				Help:      "Total number of checks sent to the policy engine",
			},
			[]string{"backend", "result"},
		),
		checkDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "authority",
				Name:      "check_duration_seconds",
				Help:      "Policy engine check duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"backend", "result"},
		),
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "authority",
				Name:      "operations_total",
				Help:      "Total number of relationship writes and listings sent to the policy engine",
			},
			[]string{"backend", "operation", "result"},
		),
		breakerTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "authority",
				Name:      "circuit_breaker_transitions_total",
				Help:      "Total number of circuit breaker state transitions",
			},
			[]string{"name", "from", "to"},
		),
		rateLimitedWaitTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "authority",
				Name:      "rate_limit_wait_seconds",
				Help:      "Time spent waiting for the client-side rate limiter",
				Buckets:   []float64{.0001, .001, .01, .1, .5, 1, 5},
			},
		),
	}

	if registerer != nil {
		_ = registerer.Register(m.checksTotal)
		_ = registerer.Register(m.checkDuration)
		_ = registerer.Register(m.operationsTotal)
		_ = registerer.Register(m.breakerTransitions)
		_ = registerer.Register(m.rateLimitedWaitTime)
	}

	return m
}

// RecordCheck records one check outcome.
func (m *Metrics) RecordCheck(backend, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.checksTotal.WithLabelValues(backend, result).Inc()
	m.checkDuration.WithLabelValues(backend, result).Observe(duration.Seconds())
}

// RecordOperation records one relationship operation outcome.
func (m *Metrics) RecordOperation(backend, operation, result string) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(backend, operation, result).Inc()
}

func (m *Metrics) recordTransition(name, from, to string) {
	if m == nil {
		return
	}
	m.breakerTransitions.WithLabelValues(name, from, to).Inc()
}

func (m *Metrics) recordRateLimitWait(d time.Duration) {
	if m == nil {
		return
	}
	m.rateLimitedWaitTime.Observe(d.Seconds())
}
