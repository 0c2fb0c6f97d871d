package archive

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archive_uploaded_bytes_total",
		Help: "Total payload bytes accepted by the gateway.",
	})
	submitFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archive_submit_failures_total",
		Help: "Total transaction submissions rejected or failed.",
	})
)
