// Melograph - Streaming History Star-Schema Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/melograph

// Package metrics exposes Prometheus instrumentation for the pipeline:
// ingest throughput and malformed-record counts, per-table merge volumes,
// geo lookup outcomes, and per-stage durations. The cmd/etl binary can
// serve these on an optional /metrics endpoint for the duration of a run.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingest metrics
	EventsIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "melograph_events_ingested_total",
			Help: "Total number of raw events accepted from export files",
		},
	)

	EventsMalformed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "melograph_events_malformed_total",
			Help: "Total number of raw events rejected on ingest",
		},
		[]string{"reason"}, // "decode", "schema", "content"
	)

	// Storage metrics
	RowsMerged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "melograph_rows_merged_total",
			Help: "Total number of rows merged into each table",
		},
		[]string{"table"},
	)

	FactRowsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "melograph_fact_rows_dropped_total",
			Help: "Total number of events dropped for missing a mandatory dimension reference",
		},
	)

	// Geo enrichment metrics
	GeoLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "melograph_geo_lookups_total",
			Help: "Total number of geolocation lookups by outcome",
		},
		[]string{"outcome"}, // "resolved", "failed", "private", "skipped"
	)

	// Pipeline metrics
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "melograph_stage_duration_seconds",
			Help:    "Duration of each pipeline stage in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"}, // "ingest", "dimensions", "fact", "enrich", "validate"
	)

	ValidationRuleFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "melograph_validation_rule_failed_rows",
			Help: "Offending row count per data-quality rule in the last run",
		},
		[]string{"rule"},
	)
)
