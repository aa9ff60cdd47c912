// Package metrics holds the Prometheus instruments for the reel engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EngagementEvents counts recorder calls by kind (like, unlike, view, share) and outcome.
	EngagementEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reels_engagement_events_total",
			Help: "Engagement events processed by the recorder",
		},
		[]string{"kind", "outcome"},
	)

	EngagementConflictRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reels_engagement_conflict_retries_total",
			Help: "Optimistic concurrency retries performed by the recorder",
		},
	)

	TrendingTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reels_trending_transitions_total",
			Help: "Changes of the trending flag",
		},
		[]string{"to"},
	)

	// ExistenceChecks counts blob existence checks by result: found, missing, no_ref, fail_open.
	ExistenceChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reels_reconcile_existence_checks_total",
			Help: "Blob store existence checks by result",
		},
		[]string{"result"},
	)

	ExistenceCheckDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reels_reconcile_existence_check_duration_seconds",
			Help:    "Latency of blob store existence checks",
			Buckets: prometheus.DefBuckets,
		},
	)

	Invalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reels_reconcile_invalidations_total",
			Help: "Invalidation attempts by outcome (invalidated, already_inactive, failed)",
		},
		[]string{"outcome"},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reels_reconcile_sweep_duration_seconds",
			Help:    "Duration of full reconciliation sweeps",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
		},
	)

	SampledBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reels_reconcile_sampled_batches_total",
			Help: "Feed pages submitted for background validation",
		},
		[]string{"outcome"}, // queued, dropped
	)

	LedgerAdjustments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reels_ledger_adjustments_total",
			Help: "Category counter adjustments by operation",
		},
		[]string{"op"},
	)

	LedgerAnomalies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reels_ledger_anomalies_total",
			Help: "Counter drift corrected by the recount sweep",
		},
		[]string{"category"},
	)

	CascadeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reels_ledger_cascade_failures_total",
			Help: "Per-user index removals that failed during a delete cascade",
		},
	)

	CleanupTasksResolved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reels_ledger_cleanup_tasks_resolved_total",
			Help: "Pending cascade cleanups resolved by the cleanup sweep",
		},
	)

	BlobBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reels_blob_breaker_state",
			Help: "Blob store circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	BlobDeleteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reels_blob_delete_failures_total",
			Help: "Best-effort blob deletions that failed",
		},
	)
)
