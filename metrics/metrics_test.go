package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestObserveEnqueueUpdatesQueueDepthAndCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveEnqueue(1, "signed_tx", 3)

	require.Equal(t, float64(3), gaugeValue(t, m.QueueDepth.WithLabelValues("1")))
	require.Equal(t, float64(1), counterValue(t, m.QueueEnqueued.WithLabelValues("signed_tx")))
}

func TestObserveFinalizeAccumulatesLatencyAndTxCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveFinalize(0.05, 4)
	m.ObserveFinalize(0.10, 2)

	require.Equal(t, float64(6), counterValue(t, m.FinalizedTxs))
}

func TestObserveAggregateTracksActiveOracleCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveAggregate("DFI", "USD", 2)

	require.Equal(t, float64(2), gaugeValue(t, m.TickerBuckets.WithLabelValues("DFI", "USD")))
	require.Equal(t, float64(1), counterValue(t, m.AggregatorRuns.WithLabelValues("DFI", "USD")))
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}
