package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	dErrors "cardgate/pkg/domain-errors"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementCreated()
	m.IncrementDelivery(OutcomeRedirect)
	m.IncrementDelivery(OutcomeRedirect)
	m.IncrementConfirmation(OutcomeAlreadyConsumed)
	m.ObserveConsume(3 * time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DistributionsCreated))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Deliveries.WithLabelValues(OutcomeRedirect)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Confirmations.WithLabelValues(OutcomeAlreadyConsumed)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ConsumeLatency))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncrementCreated()
		m.IncrementDelivery(OutcomePayload)
		m.IncrementConfirmation(OutcomeConsumed)
		m.ObserveConsume(time.Millisecond)
	})
}

func TestOutcomeFor(t *testing.T) {
	assert.Equal(t, OutcomeExpired, OutcomeFor(dErrors.CodeExpired))
	assert.Equal(t, OutcomeAlreadyConsumed, OutcomeFor(dErrors.CodeAlreadyConsumed))
	assert.Equal(t, OutcomeNotFound, OutcomeFor(dErrors.CodeNotFound))
	assert.Equal(t, OutcomeError, OutcomeFor(dErrors.CodeInternal))
}
