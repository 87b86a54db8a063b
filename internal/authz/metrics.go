package authz

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Eviction reasons, used as metric labels.
const (
	evictCapacity    = "capacity"
	evictExpired     = "expired"
	evictInvalidated = "invalidated"
)

// Metrics holds Prometheus metrics for the cache and the coordinator.
type Metrics struct {
	cacheLookups      *prometheus.CounterVec
	cacheEvictions    *prometheus.CounterVec
	cacheSize         prometheus.Gauge
	singleflightJoins prometheus.Counter
	decisionsTotal    *prometheus.CounterVec
	rejectionsTotal   *prometheus.CounterVec
	authorizeDuration *prometheus.HistogramVec
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
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "decision_cache",
				Name:      "lookups_total",
				Help:      "Total number of decision cache lookups",
			},
			[]string{"result"},
		),
		cacheEvictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "decision_cache",
				Name:      "evictions_total",
				Help:      "Total number of decisions removed from the cache",
			},
			[]string{"reason"},
		),
		cacheSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "decision_cache",
				Name:      "entries",
				Help:      "Current number of cached decisions",
			},
		),
		singleflightJoins: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "decision_cache",
				Name:      "singleflight_joins_total",
				Help:      "Total number of lookups that waited on an in-flight engine call",
			},
		),
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "authz",
				Name:      "decisions_total",
				Help:      "Total number of resolved authorizations",
			},
			[]string{"outcome", "source"},
		),
		rejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "authz",
				Name:      "rejections_total",
				Help:      "Total number of rejected authorizations",
			},
			[]string{"reason"},
		),
		authorizeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "authz",
				Name:      "authorize_duration_seconds",
				Help:      "End-to-end authorization duration in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"source"},
		),
	}

	if registerer != nil {
		_ = registerer.Register(m.cacheLookups)
		_ = registerer.Register(m.cacheEvictions)
		_ = registerer.Register(m.cacheSize)
		_ = registerer.Register(m.singleflightJoins)
		_ = registerer.Register(m.decisionsTotal)
		_ = registerer.Register(m.rejectionsTotal)
		_ = registerer.Register(m.authorizeDuration)
	}

	return m
}

func (m *Metrics) recordLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

func (m *Metrics) recordEvictions(reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.cacheEvictions.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) setSize(n int) {
	if m == nil {
		return
	}
	m.cacheSize.Set(float64(n))
}

func (m *Metrics) recordJoin() {
	if m == nil {
		return
	}
	m.singleflightJoins.Inc()
}

func (m *Metrics) recordDecision(r *Result) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(string(r.Outcome), string(r.Source)).Inc()
	m.authorizeDuration.WithLabelValues(string(r.Source)).Observe(r.Latency.Seconds())
}

func (m *Metrics) recordRejection(reason string, d time.Duration) {
	if m == nil {
		return
	}
	m.rejectionsTotal.WithLabelValues(reason).Inc()
	m.authorizeDuration.WithLabelValues("Rejected").Observe(d.Seconds())
}
