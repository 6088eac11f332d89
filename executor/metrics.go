package executor

import "github.com/prometheus/client_golang/prometheus"

var (
	statementCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tinydb",
			Subsystem: "executor",
			Name:      "statements_total",
			Help:      "Counter of executed plans by root operator and result.",
		}, []string{"type", "result"})

	statementDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tinydb",
			Subsystem: "executor",
			Name:      "duration_seconds",
			Help:      "Bucketed histogram of plan execution time (s).",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15),
		}, []string{"type"})

	scanCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tinydb",
			Subsystem: "executor",
			Name:      "scanned_rows_total",
			Help:      "Counter of visible rows returned by sequential scans.",
		})

	writeCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tinydb",
			Subsystem: "executor",
			Name:      "written_rows_total",
			Help:      "Counter of rows written by kind.",
		}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(statementCounter)
	prometheus.MustRegister(statementDuration)
	prometheus.MustRegister(scanCounter)
	prometheus.MustRegister(writeCounter)
}
