package wal

import "github.com/prometheus/client_golang/prometheus"

var (
	eventCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tinydb",
			Subsystem: "wal",
			Name:      "events_total",
			Help:      "Counter of WAL events by outcome.",
		}, []string{"result"})

	batchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tinydb",
			Subsystem: "wal",
			Name:      "batch_bytes",
			Help:      "Bucketed histogram of bytes written per WAL batch.",
			Buckets:   prometheus.ExponentialBuckets(64, 2, 16),
		})
)

func init() {
	prometheus.MustRegister(eventCounter)
	prometheus.MustRegister(batchSize)
}
