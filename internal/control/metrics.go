// File: internal/control/metrics.go
// Package control
// Author: momentics <momentics@gmail.com>
//
// MetricsRegistry exports the worker's runtime counters and the
// drop-class taxonomy as Prometheus collectors.

package control

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/momentics/nfvworker/internal/api"
)

// MetricsRegistry bundles every Prometheus collector the runtime updates.
// Construction registers all collectors against reg; callers typically
// pass prometheus.NewRegistry() so tests don't collide with the global
// default registry.
type MetricsRegistry struct {
	PerCorePps       *prometheus.GaugeVec
	PerCoreFlowCount *prometheus.GaugeVec
	BucketPackets    *prometheus.CounterVec
	BucketFlows      *prometheus.GaugeVec
	DropsByClass     *prometheus.CounterVec
	NfBatches        *prometheus.CounterVec
	EpochID          prometheus.Gauge
	ActiveCores      prometheus.Gauge
	RssUpdates       prometheus.Counter

	// dropTally mirrors DropsByClass as plain atomics so get_stats()
	// can read drop totals back without gathering the registry.
	dropTally [api.DropNicTxDrop + 1]atomic.Uint64
}

// IncDrop records one dropped packet of the given class, updating both the
// Prometheus counter and the readable tally.
func (m *MetricsRegistry) IncDrop(class api.DropClass) {
	m.DropsByClass.WithLabelValues(class.String()).Inc()
	m.dropTally[class].Add(1)
}

// DropTotals returns the per-class drop totals accumulated so far.
func (m *MetricsRegistry) DropTotals() map[string]uint64 {
	out := make(map[string]uint64, len(m.dropTally))
	for class := api.DropLocalQueueOverflow; class <= api.DropNicTxDrop; class++ {
		out[class.String()] = m.dropTally[class].Load()
	}
	return out
}

// NewMetricsRegistry builds and registers every collector against reg.
func NewMetricsRegistry(reg prometheus.Registerer) *MetricsRegistry {
	m := &MetricsRegistry{
		PerCorePps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nfvworker", Name: "core_pps", Help: "Per-core packet rate over the last long epoch.",
		}, []string{"core_id"}),
		PerCoreFlowCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nfvworker", Name: "core_flow_count", Help: "Per-core distinct flow count over the last long epoch.",
		}, []string{"core_id"}),
		BucketPackets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nfvworker", Name: "bucket_packets_total", Help: "Cumulative packets observed per RSS bucket.",
		}, []string{"bucket"}),
		BucketFlows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nfvworker", Name: "bucket_flow_count", Help: "Distinct flow count per RSS bucket over the last long epoch.",
		}, []string{"bucket"}),
		DropsByClass: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nfvworker", Name: "drops_total", Help: "Dropped packets by drop class.",
		}, []string{"class"}),
		NfBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nfvworker", Name: "nf_batches_total", Help: "Batches handed to the downstream NF, by core.",
		}, []string{"core_id"}),
		EpochID: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nfvworker", Name: "epoch_id", Help: "Current short-epoch sequence number.",
		}),
		ActiveCores: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nfvworker", Name: "active_cores", Help: "Number of cores currently in role Normal.",
		}),
		RssUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nfvworker", Name: "rss_updates_total", Help: "Number of UpdateRss calls issued by the scheduler.",
		}),
	}
	reg.MustRegister(
		m.PerCorePps, m.PerCoreFlowCount, m.BucketPackets, m.BucketFlows,
		m.DropsByClass, m.NfBatches, m.EpochID, m.ActiveCores, m.RssUpdates,
	)
	return m
}
