package session

import "github.com/prometheus/client_golang/prometheus"

var (
	sessionGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tinydb",
			Subsystem: "session",
			Name:      "connections",
			Help:      "Number of open sessions.",
		})

	queryCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tinydb",
			Subsystem: "session",
			Name:      "queries_total",
			Help:      "Counter of statements by kind and result.",
		}, []string{"kind", "result"})

	gcDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tinydb",
			Subsystem: "gc",
			Name:      "duration_seconds",
			Help:      "Bucketed histogram of version GC pass duration.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		})
)

func init() {
	prometheus.MustRegister(sessionGauge)
	prometheus.MustRegister(queryCounter)
	prometheus.MustRegister(gcDuration)
}
