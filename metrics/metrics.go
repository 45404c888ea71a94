// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "f1mirror"

var (
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Requests sent to the Ergast API by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"},
	)

	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Ergast API request latency.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint"},
	)

	CircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upstream_circuit_breaker_state",
			Help:      "0=closed, 1=half-open, 2=open.",
		},
	)

	Backfills = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backfills_total",
			Help:      "Champion and race winner backfill attempts by outcome.",
		},
		[]string{"kind", "outcome"},
	)

	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Scheduled or manual sync runs by job and outcome.",
		},
		[]string{"job", "outcome"},
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of sync runs.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"job"},
	)
)

// Backfill outcomes.
const (
	OutcomeAttached = "attached"
	OutcomeMissing  = "missing"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
	OutcomeOK       = "ok"
)

// RecordUpstream records one upstream call.
func RecordUpstream(endpoint string, start time.Time, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeFailed
	}
	UpstreamRequests.WithLabelValues(endpoint, outcome).Inc()
	UpstreamDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// RecordSync records one sync run.
func RecordSync(job string, start time.Time, outcome string) {
	SyncRuns.WithLabelValues(job, outcome).Inc()
	SyncDuration.WithLabelValues(job).Observe(time.Since(start).Seconds())
}
