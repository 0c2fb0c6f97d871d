// Package tracing sets up the process wide opencensus tracer, exporting the
// ingest and upload spans to Jaeger.
package tracing

import (
	"contrib.go.opencensus.io/exporter/jaeger"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opencensus.io/trace"
)

var log = logrus.WithField("prefix", "tracing")

// Setup creates and initializes a new tracing configuration. With enable
// false every span turns into a no-op.
func Setup(serviceName, processName, endpoint string, sampleFraction float64, enable bool) error {
	if !enable {
		trace.ApplyConfig(trace.Config{DefaultSampler: trace.NeverSample()})
		return nil
	}

	if serviceName == "" {
		return errors.New("tracing service name cannot be empty")
	}

	trace.ApplyConfig(trace.Config{DefaultSampler: trace.ProbabilitySampler(sampleFraction)})

	log.WithFields(logrus.Fields{
		"endpoint":       endpoint,
		"sampleFraction": sampleFraction,
	}).Info("Starting Jaeger exporter")
	exporter, err := jaeger.NewExporter(jaeger.Options{
		Endpoint: endpoint,
		Process: jaeger.Process{
			ServiceName: serviceName,
			Tags: []jaeger.Tag{
				jaeger.StringTag("process_name", processName),
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "could not initialize jaeger exporter")
	}
	trace.RegisterExporter(exporter)

	return nil
}
