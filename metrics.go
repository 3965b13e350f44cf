package main

import (
	"github.com/prometheus/client_golang/prometheus"
)

//////////////////////////////////////////////////////////////
// METRICS
//////////////////////////////////////////////////////////////

var (
	// messagesTotal counts group messages by what the handler did with them.
	messagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wamod_messages_total",
		Help: "Group messages seen by the moderator",
	}, []string{"outcome"}) // skipped_outside_hours, skipped_not_moderated, evaluated, deleted

	verdictsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wamod_verdicts_total",
		Help: "Moderation verdicts by verdict and failure reason",
	}, []string{"verdict", "reason"})

	deleteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wamod_delete_failures_total",
		Help: "Revoke requests that WhatsApp rejected",
	})

	inferenceLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wamod_inference_latency_seconds",
		Help:    "Latency of the moderation model call",
		Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 20, 30},
	})

	moderationActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wamod_moderation_active",
		Help: "1 while inside waking hours",
	})
)

func init() {
	prometheus.MustRegister(
		messagesTotal,
		verdictsTotal,
		deleteFailures,
		inferenceLatency,
		moderationActive,
	)
}

const (
	outcomeOutsideHours = "skipped_outside_hours"
	outcomeNotModerated = "skipped_not_moderated"
	outcomeEvaluated    = "evaluated"
	outcomeDeleted      = "deleted"
)
