// Package metrics defines Prometheus metrics for the permission engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Resolution metrics
var (
	// ResolutionsTotal tracks permission resolutions by source
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permission_resolutions_total",
			Help: "Total number of permission resolutions by source (cache, database)",
		},
		[]string{"tenant_id", "source"},
	)

	// ResolutionDuration tracks resolution latency
	ResolutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "permission_resolution_duration_seconds",
			Help:    "Permission resolution duration in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"source"},
	)

	// ResolutionCacheInvalidations tracks cache invalidations by trigger
	ResolutionCacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permission_cache_invalidations_total",
			Help: "Total number of resolution cache invalidations by trigger",
		},
		[]string{"trigger"},
	)
)

// Authorization metrics
var (
	// EscalationsDenied tracks admin operations rejected for missing authority
	EscalationsDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escalations_denied_total",
			Help: "Total number of operations denied because the acting admin lacked the permissions being delegated",
		},
		[]string{"tenant_id", "operation"},
	)

	// GrantViolations tracks role writes rejected for exceeding tenant grants
	GrantViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grant_violations_total",
			Help: "Total number of role writes rejected because the expansion exceeded the tenant grant set",
		},
		[]string{"tenant_id"},
	)

	// ConsistencyBreaks tracks grant/role divergence detected at read time
	ConsistencyBreaks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grant_consistency_breaks_total",
			Help: "Total number of reads that found role permissions outside the tenant grant set",
		},
	)
)

// Registry write metrics
var (
	// GrantChangesTotal tracks tenant grant mutations by operation
	GrantChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_grant_changes_total",
			Help: "Total number of tenant grant mutations by operation (grant, revoke, replace)",
		},
		[]string{"tenant_id", "operation"},
	)

	// RevokeCascadeStripped tracks permissions stripped from roles by revoke cascades
	RevokeCascadeStripped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "revoke_cascade_stripped_total",
			Help: "Total number of role permissions stripped by grant revoke cascades",
		},
	)

	// AssignmentChangesTotal tracks assignment mutations by operation
	AssignmentChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assignment_changes_total",
			Help: "Total number of assignment mutations by operation (create, update, remove)",
		},
		[]string{"tenant_id", "operation"},
	)
)
