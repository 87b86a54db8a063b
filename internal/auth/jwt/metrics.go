package jwt

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for token verification.
type Metrics struct {
	verificationTotal    *prometheus.CounterVec
	verificationDuration *prometheus.HistogramVec
}

// NewMetrics creates metrics registered with the default registerer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates metrics registered with registerer.
// Already-registered collectors are tolerated.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "avaguard"
	}

	m := &Metrics{
		verificationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "jwt",
				Name:      "verifications_total",
				Help:      "Total number of bearer token verifications",
			},
			[]string{"result", "reason"},
		),
		verificationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "jwt",
				Name:      "verification_duration_seconds",
				Help:      "Bearer token verification duration in seconds",
				Buckets:   []float64{.00005, .0001, .0005, .001, .005, .01, .05},
			},
			[]string{"result"},
		),
	}

	if registerer != nil {
		_ = registerer.Register(m.verificationTotal)
		_ = registerer.Register(m.verificationDuration)
	}

	return m
}

// RecordVerification records one verification outcome.
func (m *Metrics) RecordVerification(result, reason string, duration time.Duration) {
	if m == nil {
		return
	}
	m.verificationTotal.WithLabelValues(result, reason).Inc()
	m.verificationDuration.WithLabelValues(result).Observe(duration.Seconds())
}
