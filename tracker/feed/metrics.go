package feed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_cache_hits_total",
		Help: "Count of feed polls answered from the conditional request cache.",
	})
	fetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_fetch_errors_total",
		Help: "Count of feed polls that ended in a transport, status or decode error.",
	})
)
