package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	statsPersists = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stats_persists_total",
		Help: "Count of counter rows written to the database.",
	})
	persistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stats_persist_failures_total",
		Help: "Count of counter row writes that failed.",
	})
	transactionsPerMinute = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stats_transactions_per_minute",
		Help: "Successful uploads over the last sliding minute.",
	})
)
