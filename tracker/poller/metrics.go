package poller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pollCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poller_cycles_total",
		Help: "Count of poll cycles started.",
	})
	cycleOverruns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poller_cycle_overruns_total",
		Help: "Count of poll cycles that ran longer than the poll interval.",
	})
	pollCycleSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "poller_cycle_seconds",
		Help:    "Duration of poll cycles in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})
	trackedAircraft = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "poller_tracked_aircraft",
		Help: "Number of aircraft currently inside the reception window.",
	})
)
