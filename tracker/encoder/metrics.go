package encoder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchSizeBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "encoder_batch_size_bytes",
		Help:    "Size of encoded aircraft batches before encryption.",
		Buckets: prometheus.ExponentialBuckets(512, 2, 10),
	})
	rowsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "encoder_rows_written_total",
		Help: "Total observations written into archive batches.",
	})
)
