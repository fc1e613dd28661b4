package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Rejected   *prometheus.CounterVec
	FailedOpen *prometheus.CounterVec
	Fallback   *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cardgate_ratelimit_rejected_total",
			Help: "Requests rejected by the rate limiter by endpoint class",
		}, []string{"class"}),
		FailedOpen: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cardgate_ratelimit_failed_open_total",
			Help: "Requests let through because the limiter backend errored",
		}, []string{"class"}),
		Fallback: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cardgate_ratelimit_fallback_total",
			Help: "Checks answered by the in-process fallback after a backend error",
		}, []string{"class"}),
	}
}

func (m *Metrics) IncrementRejected(class string) {
	if m != nil {
		m.Rejected.WithLabelValues(class).Inc()
	}
}

func (m *Metrics) IncrementFailedOpen(class string) {
	if m != nil {
		m.FailedOpen.WithLabelValues(class).Inc()
	}
}

func (m *Metrics) IncrementFallback(class string) {
	if m != nil {
		m.Fallback.WithLabelValues(class).Inc()
	}
}
