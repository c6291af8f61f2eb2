// UGC Pipeline - User-Generated Content ingestion and fan-out for Practix
// Copyright 2026 Practix Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/practix/ugc-pipeline

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation shared by the three binaries:
// - Ingest API request latency and publish outcomes
// - Bus consume / parse / drop counts per consumer group
// - ETL batch sizes, load durations and spill activity
// - Document store operation latency and aggregate deltas

var (
	// API metrics

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ugc_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ugc_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// Bus publish metrics

	PublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ugc_bus_publish_total",
			Help: "Total events handed to a bus backend",
		},
		[]string{"backend", "topic"},
	)

	PublishAcks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ugc_bus_publish_acks_total",
			Help: "Total asynchronous publish acknowledgements",
		},
		[]string{"backend", "topic"},
	)

	PublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ugc_bus_publish_failures_total",
			Help: "Total failed publishes after retries",
		},
		[]string{"backend", "topic"},
	)

	PublishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ugc_bus_publish_duration_seconds",
			Help:    "Publish call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	// Bus consume metrics

	ConsumeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ugc_bus_consume_total",
			Help: "Total records fetched from the bus",
		},
		[]string{"group", "topic"},
	)

	ConsumeParseFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ugc_bus_consume_parse_failures_total",
			Help: "Records that failed envelope parsing or validation",
		},
		[]string{"group"},
	)

	ConsumeDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ugc_bus_consume_dropped_total",
			Help: "Records dropped (unknown subtype or poison payload)",
		},
		[]string{"group", "reason"},
	)

	// ETL metrics

	ETLBatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ugc_etl_batch_size",
			Help:    "Number of records per processed batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"etl"},
	)

	ETLLoadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ugc_etl_load_duration_seconds",
			Help:    "Duration of a batch load into the sink",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"etl"},
	)

	ETLGuardWaits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ugc_etl_guard_waits_total",
			Help: "Times the minimum-batch guard deferred a load",
		},
		[]string{"etl"},
	)

	ETLSpilledEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ugc_etl_spilled_events_total",
			Help: "Events written to the spill file on shutdown",
		},
	)

	ETLRecoveredEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ugc_etl_recovered_events_total",
			Help: "Events recovered from the spill file at startup",
		},
	)

	// Document store metrics

	DocstoreOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ugc_docstore_op_duration_seconds",
			Help:    "Duration of document store operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "collection"},
	)

	DocstoreOpErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ugc_docstore_op_errors_total",
			Help: "Total document store operation errors",
		},
		[]string{"operation", "collection"},
	)

	AggregateDeltas = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ugc_aggregate_deltas_total",
			Help: "Aggregate mutations applied, by aggregate and operation",
		},
		[]string{"aggregate", "operation"},
	)

	ReconcilerCorrections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ugc_reconciler_corrections_total",
			Help: "Aggregates corrected by the periodic reconciler",
		},
		[]string{"aggregate"},
	)
)

// RecordAPIRequest records one finished HTTP request.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordDocstoreOp records one document store operation.
func RecordDocstoreOp(operation, collection string, duration time.Duration, err error) {
	DocstoreOpDuration.WithLabelValues(operation, collection).Observe(duration.Seconds())
	if err != nil {
		DocstoreOpErrors.WithLabelValues(operation, collection).Inc()
	}
}
