package transaction

import "github.com/prometheus/client_golang/prometheus"

var (
	txnCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tinydb",
			Subsystem: "txn",
			Name:      "txns_count",
			Help:      "Counter of finished transactions.",
		}, []string{"result"})

	txnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tinydb",
			Subsystem: "txn",
			Name:      "duration_seconds",
			Help:      "Bucketed histogram of transaction lifetime (s).",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 13),
		}, []string{"result"})

	gcCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tinydb",
			Subsystem: "gc",
			Name:      "reclaimed_total",
			Help:      "Counter of versions and chains reclaimed by GC.",
		}, []string{"type"})
)

func init() {
	prometheus.MustRegister(txnCounter)
	prometheus.MustRegister(txnDuration)
	prometheus.MustRegister(gcCounter)
}
