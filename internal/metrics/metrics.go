// Package metrics registers the engine's Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PhaseDuration observes wall time per phase execution.
	PhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "draftengine",
		Name:      "phase_duration_seconds",
		Help:      "Wall time of phase executions.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"phase"})

	// VerificationOutcomes counts citation verification classifications.
	VerificationOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "draftengine",
		Name:      "citation_verifications_total",
		Help:      "Citation verification results by terminal classification.",
	}, []string{"classification"})

	// RevisionLoops counts grading outcomes: pass, fail, bounded_exit.
	RevisionLoops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "draftengine",
		Name:      "revision_loops_total",
		Help:      "Grading outcomes driving the revision loop.",
	}, []string{"outcome"})

	// SweepDetections counts recovery sweep findings per check.
	SweepDetections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "draftengine",
		Name:      "sweep_detections_total",
		Help:      "Stale-state detections by the recovery sweep.",
	}, []string{"check"})

	// AlertsSent counts operator alerts that passed rate limiting.
	AlertsSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "draftengine",
		Name:      "alerts_sent_total",
		Help:      "Operator alerts emitted after cooldown filtering.",
	})

	// Notifications counts outbound notification deliveries by result.
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "draftengine",
		Name:      "notifications_total",
		Help:      "Outbound notification deliveries.",
	}, []string{"template", "result"})

	// MeteredLookups counts paid research lookups.
	MeteredLookups = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "draftengine",
		Name:      "metered_lookups_total",
		Help:      "Metered proprietary research lookups consumed.",
	})
)
