package testutil

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

// PromCounterHasValue reports whether the counter name with the given label
// values (in label order) has value.
func PromCounterHasValue(t testing.TB, metrics []*dto.MetricFamily, value float64, name string, label ...string) bool {
	t.Helper()
	m := findMetric(t, metrics, name, label...)
	return m != nil && value == m.GetCounter().GetValue()
}

// PromHistogramHasCount reports whether the histogram name with the given
// label values has recorded count observations.
func PromHistogramHasCount(t testing.TB, metrics []*dto.MetricFamily, count uint64, name string, label ...string) bool {
	t.Helper()
	m := findMetric(t, metrics, name, label...)
	return m != nil && count == m.GetHistogram().GetSampleCount()
}

// PromHistogramSum returns the sum of observations of the histogram name with
// the given label values, failing the test if it does not exist.
func PromHistogramSum(t testing.TB, metrics []*dto.MetricFamily, name string, label ...string) float64 {
	t.Helper()
	m := findMetric(t, metrics, name, label...)
	require.NotNil(t, m, "histogram %s%v not found", name, label)
	return m.GetHistogram().GetSampleSum()
}

func findMetric(t testing.TB, metrics []*dto.MetricFamily, name string, label ...string) *dto.Metric {
	t.Helper()
	for _, family := range metrics {
		if family.GetName() != name {
			continue
		}
	metricsLoop:
		for _, m := range family.GetMetric() {
			require.Equal(t, len(label), len(m.GetLabel()))
			for i, lv := range label {
				if lv != m.GetLabel()[i].GetValue() {
					continue metricsLoop
				}
			}
			return m
		}
	}
	return nil
}
