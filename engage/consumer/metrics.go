package consumer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var submissionsPolled = promauto.NewCounter(prometheus.CounterOpts{
	Name: "gatekeeper_poller_submissions",
	Help: "Number of new submissions handed to the engine",
})

var pollErrorCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "gatekeeper_poller_errors",
	Help: "Number of failed submission listing fetches",
})
