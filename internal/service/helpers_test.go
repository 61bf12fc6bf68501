package service

import (
	"testing"

	"github.com/edulane/billing/internal/metrics"
	"github.com/edulane/billing/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// testServiceParams wires every service dependency to the suite's stores
func testServiceParams(s *testutil.BaseServiceTestSuite) ServiceParams {
	params := NewServiceParams(
		s.GetLogger(),
		s.GetConfig(),
		s.GetDB(),
		s.GetStores().DiscountRepo,
		s.GetStores().SubscriptionRepo,
		s.GetStores().InvoiceRepo,
		s.GetStores().PaymentRepo,
		s.GetPubSub(),
		metrics.New(prometheus.NewRegistry()),
	)
	params.Clock = s.Clock()
	return params
}

// counterValue sums the samples of a gathered counter whose labels include
// every pair in labels
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)

	var total float64
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			matched := 0
			for _, pair := range m.GetLabel() {
				if want, ok := labels[pair.GetName()]; ok && want == pair.GetValue() {
					matched++
				}
			}
			if matched == len(labels) {
				total += m.GetCounter().GetValue()
			}
		}
	}
	return total
}
