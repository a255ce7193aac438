package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iota-uz/org-hierarchy/modules/org/domain/hierarchy"
)

var (
	orgCacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "org",
		Subsystem: "cache",
		Name:      "requests_total",
		Help:      "Total number of Org cache lookups broken down by cache and hit/miss.",
	}, []string{"cache", "result"})

	orgCacheInvalidate = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "org",
		Subsystem: "cache",
		Name:      "invalidate_total",
		Help:      "Total number of Org cache invalidations broken down by reason.",
	}, []string{"reason"})

	orgWriteConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "org",
		Subsystem: "write",
		Name:      "conflicts_total",
		Help:      "Total number of Org write conflicts broken down by kind.",
	}, []string{"kind"})

	orgHierarchyValidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "org",
		Subsystem: "hierarchy",
		Name:      "validations_total",
		Help:      "Reparent validations broken down by kind and result.",
	}, []string{"kind", "result"})

	orgHierarchyCommits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "org",
		Subsystem: "hierarchy",
		Name:      "commits_total",
		Help:      "Hierarchy batch commits broken down by kind and outcome.",
	}, []string{"kind", "outcome"})

	orgHierarchyFetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "org",
		Subsystem: "hierarchy",
		Name:      "fetch_failures_total",
		Help:      "Failed hierarchy fetches broken down by kind.",
	}, []string{"kind"})

	orgHierarchyBatchSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "org",
		Subsystem: "hierarchy",
		Name:      "batch_size",
		Help:      "Number of parent updates per committed batch.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	}, []string{"kind"})
)

func recordCacheRequest(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	orgCacheRequests.WithLabelValues(cache, result).Inc()
}

func recordCacheInvalidate(reason string) {
	if reason == "" {
		reason = "manual"
	}
	orgCacheInvalidate.WithLabelValues(reason).Inc()
}

func recordWriteConflict(kind string) {
	if kind == "" {
		kind = "other"
	}
	orgWriteConflicts.WithLabelValues(kind).Inc()
}

// RecordValidation counts one validator outcome. The canvas controller reports
// through here as well so gestures and server batches share one series.
func RecordValidation(kind hierarchy.Kind, result hierarchy.Result) {
	orgHierarchyValidations.WithLabelValues(kind.String(), result.String()).Inc()
}

func RecordCommit(kind hierarchy.Kind, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	orgHierarchyCommits.WithLabelValues(kind.String(), outcome).Inc()
}

func RecordFetchFailure(kind hierarchy.Kind) {
	orgHierarchyFetchFailures.WithLabelValues(kind.String()).Inc()
}

func recordBatchSize(kind hierarchy.Kind, n int) {
	orgHierarchyBatchSize.WithLabelValues(kind.String()).Observe(float64(n))
}
