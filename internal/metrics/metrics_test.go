package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.PaymentProcessed(PaymentSucceeded, 20*time.Millisecond)
	m.PaymentProcessed(PaymentSucceeded, 30*time.Millisecond)
	m.PaymentProcessed(PaymentDuplicate, time.Millisecond)
	m.DiscountCommit(CommitCommitted)
	m.DiscountCommit(CommitLimitReached)
	m.CommitConflict()
	m.EventPublished("payment.succeeded", nil)
	m.EventPublished("payment.succeeded", errors.New("broker down"))

	assert.Equal(t, float64(2), testutil.ToFloat64(m.payments.WithLabelValues(PaymentSucceeded)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.payments.WithLabelValues(PaymentDuplicate)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.commits.WithLabelValues(CommitCommitted)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.commits.WithLabelValues(CommitLimitReached)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.commitConflicts))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.events.WithLabelValues("payment.succeeded", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.events.WithLabelValues("payment.succeeded", "error")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "billing_payments_duration_seconds")
	assert.Contains(t, names, "billing_discounts_commit_conflicts_total")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.PaymentProcessed(PaymentFailed, time.Second)
		m.DiscountCommit(CommitError)
		m.CommitConflict()
		m.EventPublished("invoice.paid", nil)
	})
}

func TestNewPanicsOnDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
