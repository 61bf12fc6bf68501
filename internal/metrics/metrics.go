package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "billing"

// Payment outcomes
const (
	PaymentSucceeded = "succeeded"
	PaymentFailed    = "failed"
	PaymentDuplicate = "duplicate"
	PaymentRetry     = "retry"
)

// Discount commit outcomes
const (
	CommitCommitted       = "committed"
	CommitAlreadyRecorded = "already_recorded"
	CommitLimitReached    = "limit_reached"
	CommitError           = "error"
)

// Metrics holds the collectors reported by the billing services.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	payments        *prometheus.CounterVec
	paymentDuration prometheus.Histogram
	commits         *prometheus.CounterVec
	commitConflicts prometheus.Counter
	events          *prometheus.CounterVec
}

// New registers the billing collectors with reg, falling back to the default
// registerer when reg is nil. Registering twice on the same registry panics.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		payments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "payments",
				Name:      "processed_total",
				Help:      "Payments handled, by outcome.",
			},
			[]string{"outcome"},
		),
		paymentDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "payments",
				Name:      "duration_seconds",
				Help:      "Time spent processing a single payment.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		commits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "discounts",
				Name:      "commits_total",
				Help:      "Discount usage commits, by outcome.",
			},
			[]string{"outcome"},
		),
		commitConflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "discounts",
				Name:      "commit_conflicts_total",
				Help:      "Usage commits that lost a race and were re-validated.",
			},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Billing events handed to the publisher, by type and result.",
			},
			[]string{"event_type", "result"},
		),
	}

	reg.MustRegister(m.payments, m.paymentDuration, m.commits, m.commitConflicts, m.events)
	return m
}

func (m *Metrics) PaymentProcessed(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(outcome).Inc()
	m.paymentDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) DiscountCommit(outcome string) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CommitConflict() {
	if m == nil {
		return
	}
	m.commitConflicts.Inc()
}

// EventPublished counts one publish attempt, err marks it failed
func (m *Metrics) EventPublished(eventType string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.events.WithLabelValues(eventType, result).Inc()
}
