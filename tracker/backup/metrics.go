package backup

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	backupsArchived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backup_snapshots_archived_total",
		Help: "Count of counter snapshots uploaded to the archive.",
	})
	backupFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backup_snapshot_failures_total",
		Help: "Count of snapshot uploads that failed.",
	})
	restoresApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backup_restores_applied_total",
		Help: "Count of boot time restores that overwrote local counters.",
	})
)
