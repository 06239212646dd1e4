package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("gatekeeper/engine")

var submissionProcessDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "gatekeeper_submission_duration_sec",
	Help: "Total duration of submission processing",
})

var submissionDecisionCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gatekeeper_submission_decisions",
	Help: "Number of submissions processed, by decision",
}, []string{"decision"})

var submissionErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gatekeeper_submission_errors",
	Help: "Number of submissions which failed processing, by stage",
}, []string{"stage"})

var qualifyingCommentCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "gatekeeper_qualifying_comments",
	Help: "Number of comments newly counted towards author engagement",
})

var moderatorFetches = promauto.NewCounter(prometheus.CounterOpts{
	Name: "gatekeeper_moderator_fetches",
	Help: "Number of moderator list reads (API calls)",
})

var actionCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gatekeeper_actions",
	Help: "Number of moderation actions completed",
}, []string{"kind"})

var actionFailureCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gatekeeper_action_failures",
	Help: "Number of moderation action steps which failed",
}, []string{"kind", "step"})

var actionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "gatekeeper_action_duration_sec",
	Help: "Duration of moderation actions, including backoff and pacing",
}, []string{"kind"})

var rateLimitCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gatekeeper_platform_ratelimits",
	Help: "Number of platform rate-limit responses to moderation actions",
}, []string{"step"})
