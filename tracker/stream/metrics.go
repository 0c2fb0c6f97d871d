package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stream_subscribers",
		Help: "Number of connected live stats subscribers.",
	})
	broadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stream_broadcasts_total",
		Help: "Count of stats views pushed to subscribers.",
	})
)
