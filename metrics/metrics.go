// Package metrics exposes this module's operational surface as
// Prometheus collectors: queue depth, finalize latency, and oracle
// aggregator run and contributing-oracle counts (spec §6/§4 operations that a host node
// would otherwise have no visibility into).
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the full set of collectors a Core instance reports
// through. Callers register it once against their own registry (or
// the default one via prometheus.DefaultRegisterer); the Observe*
// methods are called from package coreapi's call sites.
type Metrics struct {
	QueueDepth      *prometheus.GaugeVec
	QueueEnqueued   *prometheus.CounterVec
	FinalizeLatency prometheus.Histogram
	FinalizedTxs    prometheus.Counter
	Disconnects     prometheus.Counter
	AggregatorRuns  *prometheus.CounterVec
	TickerBuckets   *prometheus.GaugeVec
}

// New constructs a Metrics set and registers every collector against
// reg. Use prometheus.NewRegistry() for an isolated registry in tests;
// production callers typically pass prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "evmcore",
			Subsystem: "txpool",
			Name:      "queue_depth",
			Help:      "Number of transactions currently queued per context.",
		}, []string{"context"}),
		QueueEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evmcore",
			Subsystem: "txpool",
			Name:      "enqueued_total",
			Help:      "Total entries admitted into a queue context, by kind.",
		}, []string{"kind"}),
		FinalizeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "evmcore",
			Subsystem: "chain",
			Name:      "finalize_latency_seconds",
			Help:      "Wall-clock time spent finalizing one block.",
			Buckets:   prometheus.DefBuckets,
		}),
		FinalizedTxs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "evmcore",
			Subsystem: "chain",
			Name:      "finalized_transactions_total",
			Help:      "Total transactions committed across all finalized blocks.",
		}),
		Disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "evmcore",
			Subsystem: "chain",
			Name:      "disconnects_total",
			Help:      "Total disconnect_tip reorg-hook invocations.",
		}),
		AggregatorRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evmcore",
			Subsystem: "indexer",
			Name:      "aggregator_runs_total",
			Help:      "Oracle price aggregate recomputations, by token/currency pair.",
		}, []string{"token", "currency"}),
		TickerBuckets: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "evmcore",
			Subsystem: "indexer",
			Name:      "ticker_contributing_oracles",
			Help:      "Number of oracles whose feed contributed to the latest aggregate, by token/currency pair.",
		}, []string{"token", "currency"}),
	}

	reg.MustRegister(
		m.QueueDepth, m.QueueEnqueued, m.FinalizeLatency, m.FinalizedTxs,
		m.Disconnects, m.AggregatorRuns, m.TickerBuckets,
	)
	return m
}

// ObserveEnqueue records one admitted queue entry (spec §6 queue_tx /
// queue_bridge).
func (m *Metrics) ObserveEnqueue(ctx uint64, kind string, depth int) {
	m.QueueEnqueued.WithLabelValues(kind).Inc()
	m.QueueDepth.WithLabelValues(contextLabel(ctx)).Set(float64(depth))
}

// ObserveFinalize records one finalize_block call's latency and
// transaction count (spec §4.5).
func (m *Metrics) ObserveFinalize(seconds float64, txCount int) {
	m.FinalizeLatency.Observe(seconds)
	m.FinalizedTxs.Add(float64(txCount))
}

// ObserveDisconnect records one disconnect_tip call (spec §6).
func (m *Metrics) ObserveDisconnect() {
	m.Disconnects.Inc()
}

// ObserveAggregate records one oracle aggregate recomputation and the
// number of oracles that actually contributed to it (spec §4.7).
func (m *Metrics) ObserveAggregate(token, currency string, active int) {
	m.AggregatorRuns.WithLabelValues(token, currency).Inc()
	m.TickerBuckets.WithLabelValues(token, currency).Set(float64(active))
}

func contextLabel(ctx uint64) string {
	return strconv.FormatUint(ctx, 10)
}
