package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Aggregation metrics
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_pages_fetched_total",
			Help: "Total number of pages fetched by the paginated aggregator",
		},
		[]string{"collection"},
	)

	AggregationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_failures_total",
			Help: "Total number of failed full-history aggregations",
		},
		[]string{"collection"},
	)

	AggregationRows = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aggregator_rows",
			Help:    "Row count distribution of completed aggregations",
			Buckets: []float64{10, 100, 500, 1000, 2500, 5000, 10000, 50000},
		},
		[]string{"collection"},
	)

	// Scoring metrics
	ScoresComputed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "health_scores_computed_total",
			Help: "Total number of health scores computed by classification",
		},
		[]string{"classification"},
	)

	BulkComputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bulk_score_compute_duration_seconds",
			Help:    "Duration of bulk health score recomputation",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Churn metrics
	ChurnEventsOpened = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "churn_events_opened_total",
			Help: "Total number of churn events opened",
		},
	)

	ChurnEventsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "churn_events_resolved_total",
			Help: "Total number of churn events resolved by outcome",
		},
		[]string{"outcome"},
	)

	// Playbook metrics
	PlaybooksStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playbooks_started_total",
			Help: "Total number of playbook instances started",
		},
		[]string{"template"},
	)

	PlaybooksEnded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playbooks_ended_total",
			Help: "Total number of playbook instances reaching a terminal status",
		},
		[]string{"status"},
	)

	ActionsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retention_actions_resolved_total",
			Help: "Total number of retention actions resolved",
		},
		[]string{"status"},
	)

	// Report metrics
	ReportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "report_duration_seconds",
			Help:    "Duration of analytical report computation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"report"},
	)
)

// ObserveReport records the duration of one report computation
func ObserveReport(report string, start time.Time) {
	ReportDuration.WithLabelValues(report).Observe(time.Since(start).Seconds())
}
