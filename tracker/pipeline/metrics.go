package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pipeline_queue_depth",
		Help: "Batches waiting for an upload slot.",
	}, []string{"pipeline"})
	activeUploads = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pipeline_active_uploads",
		Help: "Claimed upload slots.",
	}, []string{"pipeline"})
	uploadSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_upload_seconds",
		Help:    "Wall clock time from slot claim to completion or failure.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"pipeline"})
)
