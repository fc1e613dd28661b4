package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	dErrors "cardgate/pkg/domain-errors"
)

// Outcome labels shared by delivery and confirmation counters.
const (
	OutcomePayload         = "payload"
	OutcomeRedirect        = "redirect"
	OutcomeConsumed        = "consumed"
	OutcomeNotFound        = "not_found"
	OutcomeExpired         = "expired"
	OutcomeAlreadyConsumed = "already_consumed"
	OutcomeError           = "error"
)

// OutcomeFor maps a rejection code to its outcome label.
func OutcomeFor(code dErrors.Code) string {
	switch code {
	case dErrors.CodeNotFound:
		return OutcomeNotFound
	case dErrors.CodeExpired:
		return OutcomeExpired
	case dErrors.CodeAlreadyConsumed:
		return OutcomeAlreadyConsumed
	default:
		return OutcomeError
	}
}

type Metrics struct {
	DistributionsCreated prometheus.Counter
	Deliveries           *prometheus.CounterVec
	Confirmations        *prometheus.CounterVec
	ConsumeLatency       prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		DistributionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "cardgate_distributions_created_total",
			Help: "Distributions minted, including redistributions",
		}),
		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cardgate_deliveries_total",
			Help: "Token fetches by outcome",
		}, []string{"outcome"}),
		Confirmations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cardgate_confirmations_total",
			Help: "Consume attempts by outcome",
		}, []string{"outcome"}),
		ConsumeLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cardgate_consume_duration_seconds",
			Help:    "Latency of the conditional consume write",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncrementCreated() {
	if m != nil {
		m.DistributionsCreated.Inc()
	}
}

func (m *Metrics) IncrementDelivery(outcome string) {
	if m != nil {
		m.Deliveries.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncrementConfirmation(outcome string) {
	if m != nil {
		m.Confirmations.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ObserveConsume(d time.Duration) {
	if m != nil {
		m.ConsumeLatency.Observe(d.Seconds())
	}
}
