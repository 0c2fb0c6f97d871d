package keyshare

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	keysShared = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keyshare_keys_shared_total",
		Help: "Total encryption keys accepted by the share service.",
	})
	postFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keyshare_post_failures_total",
		Help: "Total failed posts to the share service.",
	})
)
