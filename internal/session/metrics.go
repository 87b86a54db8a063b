package session

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for session checks.
type Metrics struct {
	checksTotal   *prometheus.CounterVec
	checkDuration prometheus.Histogram
	writesTotal   *prometheus.CounterVec
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
		checksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "checks_total",
			Help:      "Total number of session revocation checks by result",
		}, []string{"result"}),
		checkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "check_duration_seconds",
			Help:      "Session store lookup duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		writesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "writes_total",
			Help:      "Total number of session writes by operation and status",
		}, []string{"operation", "status"}),
	}

	if registerer != nil {
		_ = registerer.Register(m.checksTotal)
		_ = registerer.Register(m.checkDuration)
		_ = registerer.Register(m.writesTotal)
	}
	return m
}

func (m *Metrics) recordCheck(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.checksTotal.WithLabelValues(result).Inc()
	m.checkDuration.Observe(d.Seconds())
}

func (m *Metrics) recordWrite(operation string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.writesTotal.WithLabelValues(operation, status).Inc()
}
