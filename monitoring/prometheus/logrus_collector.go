package prometheus

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var logEntries = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "log_entries_total",
	Help: "Total number of log messages.",
}, []string{"level", "prefix"})

const defaultPrefix = "global"

// LogrusCollector is a logrus hook counting log lines by level and
// component prefix.
type LogrusCollector struct{}

// NewLogrusCollector returns a hook ready to be attached with logrus.AddHook.
func NewLogrusCollector() *LogrusCollector {
	return &LogrusCollector{}
}

// Fire is called on every log call.
func (*LogrusCollector) Fire(entry *logrus.Entry) error {
	prefix := defaultPrefix
	if prefixValue, ok := entry.Data["prefix"]; ok {
		prefix, ok = prefixValue.(string)
		if !ok {
			return errors.New("prefix is not a string")
		}
	}
	logEntries.WithLabelValues(entry.Level.String(), prefix).Inc()
	return nil
}

// Levels lists the levels the hook fires on. Debug and below stay uncounted
// to keep the series cardinality down.
func (*LogrusCollector) Levels() []logrus.Level {
	return []logrus.Level{logrus.InfoLevel, logrus.WarnLevel, logrus.ErrorLevel}
}
