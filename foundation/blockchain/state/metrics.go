package state

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusTxsAdmitted    prometheus.Counter
	prometheusTxsRejected    *prometheus.CounterVec
	prometheusTxsRelayed     prometheus.Counter
	prometheusBlocksCommited prometheus.Counter
	prometheusBlocksRelayed  prometheus.Counter
	prometheusRelayErrors    *prometheus.CounterVec
	prometheusSyncedPeers    prometheus.Gauge
	prometheusMempoolSize    prometheus.Gauge

	prometheusMetricsInitOnce sync.Once
)

func initMetrics() {
	prometheusMetricsInitOnce.Do(_initMetrics)
}

func _initMetrics() {
	prometheusTxsAdmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "signchain",
			Name:      "txs_admitted_total",
			Help:      "Number of transactions admitted to the mempool",
		},
	)
	prometheusTxsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signchain",
			Name:      "txs_rejected_total",
			Help:      "Number of transactions rejected by admission",
		},
		[]string{
			"reason", // stable reject reason
		},
	)
	prometheusTxsRelayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "signchain",
			Name:      "txs_relayed_total",
			Help:      "Number of transactions sent to peers",
		},
	)
	prometheusBlocksCommited = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "signchain",
			Name:      "blocks_committed_total",
			Help:      "Number of blocks appended to the ledger",
		},
	)
	prometheusBlocksRelayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "signchain",
			Name:      "blocks_relayed_total",
			Help:      "Number of blocks sent to peers",
		},
	)
	prometheusRelayErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signchain",
			Name:      "relay_errors_total",
			Help:      "Number of failed calls to peers",
		},
		[]string{
			"operation", // operation raising the error
		},
	)
	prometheusSyncedPeers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "signchain",
			Name:      "synced_peers",
			Help:      "Number of peer connections that completed the handshake",
		},
	)
	prometheusMempoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "signchain",
			Name:      "mempool_size",
			Help:      "Number of transactions in the mempool",
		},
	)
}
