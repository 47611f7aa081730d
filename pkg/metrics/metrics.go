// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-objbackup.
//
// go-objbackup is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package metrics exposes Prometheus instrumentation for ingestion, restore
// runs, the job dispatcher, circuit breakers and the REST API. Collectors are
// registered on the default registry at init and served by promhttp.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion Metrics
	IngestMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "objbackup_ingest_messages_total",
			Help: "Total number of change notifications handled by the ingestion worker",
		},
		[]string{"outcome"}, // "journaled", "copied", "missing", "duplicate", "malformed", "failed"
	)

	IngestBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "objbackup_ingest_batch_duration_seconds",
			Help:    "Duration of one ingestion batch in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Restore Metrics
	RestoreEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "objbackup_restore_entries_total",
			Help: "Total number of journal entries replayed by restore runs",
		},
		[]string{"action", "outcome"}, // action: "copy", "delete", "decode"; outcome: "success", "failure", "skipped"
	)

	RestoreRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "objbackup_restore_runs_total",
			Help: "Total number of restore runs",
		},
		[]string{"mode", "outcome"},
	)

	RestoreRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "objbackup_restore_run_duration_seconds",
			Help:    "Duration of restore runs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		},
		[]string{"mode"},
	)

	// Job Metrics
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "objbackup_jobs_total",
			Help: "Total number of restore job status changes",
		},
		[]string{"status"},
	)

	DispatchTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "objbackup_dispatch_ticks_total",
			Help: "Total number of dispatcher ticks",
		},
		[]string{"outcome"}, // "idle", "completed", "exception", "overlap", "error"
	)

	// Circuit Breaker Metrics
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "objbackup_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	BreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "objbackup_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "objbackup_api_requests_total",
			Help: "Total number of REST API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "objbackup_api_request_duration_seconds",
			Help:    "Duration of REST API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordIngestMessage counts one handled notification.
func RecordIngestMessage(outcome string) {
	IngestMessagesTotal.WithLabelValues(outcome).Inc()
}

// ObserveIngestBatch records the duration of one batch.
func ObserveIngestBatch(duration time.Duration) {
	IngestBatchDuration.Observe(duration.Seconds())
}

// RecordRestoreEntry counts one replayed journal entry.
func RecordRestoreEntry(action, outcome string) {
	RestoreEntriesTotal.WithLabelValues(action, outcome).Inc()
}

// RecordRestoreRun records a finished restore run.
func RecordRestoreRun(mode string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	RestoreRunsTotal.WithLabelValues(mode, outcome).Inc()
	RestoreRunDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordJobStatus counts a job entering status.
func RecordJobStatus(status string) {
	JobsTotal.WithLabelValues(status).Inc()
}

// RecordDispatchTick counts one dispatcher tick.
func RecordDispatchTick(outcome string) {
	DispatchTicksTotal.WithLabelValues(outcome).Inc()
}

// SetBreakerState publishes the numeric state of a circuit breaker.
func SetBreakerState(name string, state int) {
	BreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordBreakerTransition counts a state change and updates the state gauge.
func RecordBreakerTransition(name, from, to string, state int) {
	BreakerTransitions.WithLabelValues(name, from, to).Inc()
	SetBreakerState(name, state)
}

// RecordAPIRequest records a REST request.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
