package hnap

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records call and login outcomes. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	calls    *prometheus.CounterVec
	logins   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hnap",
			Name:      "calls_total",
			Help:      "HNAP calls by method and result.",
		}, []string{"method", "result"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hnap",
			Name:      "logins_total",
			Help:      "HNAP login attempts by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hnap",
			Name:      "call_duration_seconds",
			Help:      "HNAP call round trip duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}

	if reg != nil {
		reg.MustRegister(m.calls, m.logins, m.duration)
	}

	return m
}

func (m *Metrics) observeCall(method string, err error, d time.Duration) {
	if m == nil {
		return
	}

	result := "ok"
	if err != nil {
		result = "error"
	}

	m.calls.WithLabelValues(method, result).Inc()
	m.duration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) observeLogin(result string) {
	if m == nil {
		return
	}

	m.logins.WithLabelValues(result).Inc()
}
