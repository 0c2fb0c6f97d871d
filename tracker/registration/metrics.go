package registration

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registrationsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "registration_submitted_total",
		Help: "Count of successful node registrations.",
	})
	registrationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "registration_failures_total",
		Help: "Count of failed node registration attempts.",
	})
)
