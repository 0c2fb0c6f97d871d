package batcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var pairFallbacks = promauto.NewCounter(prometheus.CounterOpts{
	Name: "batcher_pair_fallbacks_total",
	Help: "Count of encrypted uploads whose batch pairing had expired before lookup.",
})
