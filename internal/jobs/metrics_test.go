package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("scan").End(nil))
	err := m.Track("scan").End(errors.New("boom"))
	require.EqualError(t, err, "boom")

	require.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues("scan", "success")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues("scan", "failure")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.failures.WithLabelValues("scan")))
}

func TestAddItemsIgnoresEmptyCounts(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddItems("bulk", "resolved", 3)
	m.AddItems("bulk", "resolved", 0)
	require.Equal(t, float64(3), testutil.ToFloat64(m.items.WithLabelValues("bulk", "resolved")))

	var nilMetrics *Metrics
	nilMetrics.AddItems("bulk", "failed", 1)
	require.NoError(t, nilMetrics.Track("bulk").End(nil))
}
