// Package metrics defines the Prometheus instruments for the sync service.
//
// Instruments are package-level promauto vars registered on the default
// registry and served by the API at /metrics. Call the Record* helpers
// rather than touching the vars directly.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cycles
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wb_tariffs_cycles_total",
			Help: "Ingestion and export cycles by outcome",
		},
		[]string{"kind", "status"},
	)

	CycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wb_tariffs_cycle_duration_seconds",
			Help:    "Duration of ingestion and export cycles",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	LastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wb_tariffs_last_success_timestamp_seconds",
			Help: "Unix time of the last completed cycle",
		},
		[]string{"kind"},
	)

	// Store
	TariffsUpserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wb_tariffs_upserted_total",
			Help: "Tariff records written by ingestion cycles",
		},
	)

	// Export
	ExportTargets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wb_tariffs_export_targets_total",
			Help: "Spreadsheet export attempts by outcome",
		},
		[]string{"outcome"}, // "success", "failure"
	)

	// Source
	SourceRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wb_tariffs_source_requests_total",
			Help: "Requests to the tariff API by outcome",
		},
		[]string{"outcome"}, // "success", "http_error", "transport_error", "decode_error", "circuit_open"
	)

	SourceRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wb_tariffs_source_request_duration_seconds",
			Help:    "Latency of tariff API requests",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wb_tariffs_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// HTTP API
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wb_tariffs_api_requests_total",
			Help: "HTTP API requests",
		},
		[]string{"method", "route", "status"},
	)
)

// RecordCycle records the outcome of one cycle.
func RecordCycle(kind, status string, duration time.Duration) {
	CyclesTotal.WithLabelValues(kind, status).Inc()
	CycleDuration.WithLabelValues(kind).Observe(duration.Seconds())
	if status == "completed" {
		LastSuccess.WithLabelValues(kind).SetToCurrentTime()
	}
}

// RecordUpsert adds n written tariff records.
func RecordUpsert(n int) {
	TariffsUpserted.Add(float64(n))
}

// RecordExportTarget records one spreadsheet export attempt.
func RecordExportTarget(err error) {
	if err != nil {
		ExportTargets.WithLabelValues("failure").Inc()
		return
	}
	ExportTargets.WithLabelValues("success").Inc()
}

// RecordSourceRequest records one tariff API call.
func RecordSourceRequest(outcome string, duration time.Duration) {
	SourceRequests.WithLabelValues(outcome).Inc()
	if duration > 0 {
		SourceRequestDuration.Observe(duration.Seconds())
	}
}

// SetCircuitBreakerState publishes a breaker state (0 closed, 1 half-open, 2 open).
func SetCircuitBreakerState(name string, state int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordAPIRequest records one HTTP API request.
func RecordAPIRequest(method, route, status string) {
	APIRequests.WithLabelValues(method, route, status).Inc()
}
