// Melograph - Streaming History Star-Schema Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/melograph

// Package models defines the data structures shared across the pipeline:
// the raw streaming-history event as it appears in the export files, the
// star-schema dimension and fact rows, geolocation lookup results, and the
// data-quality validation report.
//
// Raw events are immutable input; they are never persisted directly. The
// persisted shapes are the dimension rows (keyed by surrogate key) and the
// fact rows (keyed by a deterministic event ID), which are merged into the
// DuckDB store on every run.
package models
