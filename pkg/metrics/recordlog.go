package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	FlushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordlog_flushes_total",
			Help: "Total number of log flushes by outcome",
		},
		[]string{"status"},
	)

	FlushLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "recordlog_flush_latency_seconds",
		Help:    "Histogram of append plus fsync latency per flush",
		Buckets: prometheus.DefBuckets,
	})

	FlushedRecords = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "recordlog_flushed_records_total",
		Help: "Total number of records made durable",
	})

	FlushedBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "recordlog_flushed_bytes_total",
		Help: "Total number of segment bytes appended to log files",
	})

	ProduceLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "recordlog_produce_latency_seconds",
		Help:    "Histogram of produce latency until the record is durable",
		Buckets: prometheus.DefBuckets,
	})

	FetchLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "recordlog_fetch_latency_seconds",
		Help:    "Histogram of fetch latency",
		Buckets: prometheus.DefBuckets,
	})

	FetchRecords = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "recordlog_fetch_records",
		Help:    "Number of records returned per fetch",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})

	CorruptSegments = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "recordlog_corrupt_segments_total",
		Help: "Total number of reads stopped by a bad segment magic",
	})

	IndexLinesSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "recordlog_index_lines_skipped_total",
		Help: "Total number of commit index lines skipped on load",
	})
)
