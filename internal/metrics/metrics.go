package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Classifier
	ClassificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "outreach",
		Subsystem: "classifier",
		Name:      "results_total",
		Help:      "Profiles classified, by verdict and the path that produced it",
	}, []string{"classification", "basis"})

	// Decision engine
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "outreach",
		Subsystem: "engine",
		Name:      "decisions_total",
		Help:      "Decisions produced, by proposed action and reason",
	}, []string{"action", "reason"})

	// Orchestrator
	ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "outreach",
		Subsystem: "orchestrator",
		Name:      "actions_total",
		Help:      "Outreach actions attempted, by kind and outcome",
	}, []string{"kind", "outcome"})

	ActionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "outreach",
		Subsystem: "orchestrator",
		Name:      "action_duration_seconds",
		Help:      "Time spent executing one action at the browser boundary",
		Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80},
	}, []string{"kind"})

	// AI text service
	AIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "outreach",
		Subsystem: "ai",
		Name:      "requests_total",
		Help:      "Requests to the text generation service, by operation and status",
	}, []string{"op", "status"})

	AIFallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "outreach",
		Subsystem: "ai",
		Name:      "fallbacks_total",
		Help:      "Static templates used because generation failed",
	}, []string{"op"})
)
