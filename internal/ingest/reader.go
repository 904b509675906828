// Melograph - Streaming History Star-Schema Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/melograph

// Package ingest reads raw events from streaming-history export files.
// Each export file is a JSON array of playback records. Records are decoded
// one element at a time so that a single malformed record poisons only
// itself, not the whole file: under the default lenient policy it is
// counted, sampled and skipped; under the strict policy it aborts the run.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/goccy/go-json"

	"github.com/tomtom215/melograph/internal/logging"
	"github.com/tomtom215/melograph/internal/metrics"
	"github.com/tomtom215/melograph/internal/models"
	"github.com/tomtom215/melograph/internal/validation"
)

// ErrMalformedInput indicates a record that does not conform to the raw
// event schema. Under the strict policy the returned error wraps it.
var ErrMalformedInput = errors.New("malformed input record")

// maxSamples bounds the offending-record samples kept in Stats.
const maxSamples = 5

// Stats summarizes one ingest pass.
type Stats struct {
	Files     int      `json:"files"`
	Total     int      `json:"total"`
	Accepted  int      `json:"accepted"`
	Malformed int      `json:"malformed"`
	Samples   []string `json:"samples,omitempty"`
}

// Reader reads and validates raw events from export files.
type Reader struct {
	strict bool
}

// NewReader creates a reader. With strict=true the first malformed record
// fails the run; otherwise malformed records are counted and skipped.
func NewReader(strict bool) *Reader {
	return &Reader{strict: strict}
}

// ReadDir reads every *.json file in dir, in lexical order so that repeated
// runs see records in the same order. It is an error for the directory to
// contain no export files.
func (r *Reader) ReadDir(ctx context.Context, dir string) ([]models.RawEvent, *Stats, error) {
	pattern := filepath.Join(dir, "*.json")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list export files: %w", err)
	}
	if len(files) == 0 {
		return nil, nil, fmt.Errorf("no export files matching %s", pattern)
	}
	sort.Strings(files)

	return r.ReadFiles(ctx, files)
}

// ReadFiles reads the given export files in order.
func (r *Reader) ReadFiles(ctx context.Context, paths []string) ([]models.RawEvent, *Stats, error) {
	stats := &Stats{Files: len(paths)}
	var events []models.RawEvent

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if err := r.readFile(path, &events, stats); err != nil {
			return nil, nil, err
		}
	}

	logging.Info().
		Int("files", stats.Files).
		Int("accepted", stats.Accepted).
		Int("malformed", stats.Malformed).
		Msg("Ingest completed")

	return events, stats, nil
}

// readFile appends the valid events of one export file.
func (r *Reader) readFile(path string, events *[]models.RawEvent, stats *Stats) error {
	f, err := os.Open(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return fmt.Errorf("failed to open export file %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			logging.Warn().Str("file", path).Err(closeErr).Msg("Error closing export file")
		}
	}()

	dec := json.NewDecoder(f)

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return fmt.Errorf("export file %s is not a JSON array", path)
	}

	index := -1
	for dec.More() {
		index++
		stats.Total++

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			// The element is not even valid JSON; the rest of the file is
			// unrecoverable.
			return fmt.Errorf("failed to decode record %d in %s: %w", index, path, err)
		}

		event, reason, recErr := decodeRecord(raw)
		if recErr != nil {
			if r.strict {
				return fmt.Errorf("%w: record %d in %s: %v", ErrMalformedInput, index, path, recErr)
			}
			stats.Malformed++
			metrics.EventsMalformed.WithLabelValues(reason).Inc()
			if len(stats.Samples) < maxSamples {
				stats.Samples = append(stats.Samples, fmt.Sprintf("%s[%d]: %v", filepath.Base(path), index, recErr))
			}
			continue
		}

		*events = append(*events, *event)
		stats.Accepted++
		metrics.EventsIngested.Inc()
	}

	// Consume the closing bracket.
	if _, err := dec.Token(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read end of %s: %w", path, err)
	}

	logging.Debug().Str("file", path).Int("records", index+1).Msg("Export file read")
	return nil
}

// decodeRecord turns one JSON element into a validated raw event. The
// reason string labels the malformed-record metric: "decode" for JSON/type
// errors, "schema" for tag validation failures, "content" for semantic
// violations.
func decodeRecord(raw json.RawMessage) (*models.RawEvent, string, error) {
	var event models.RawEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, "decode", err
	}

	if err := validation.ValidateStruct(&event); err != nil {
		return nil, "schema", err
	}

	// An event is music or a podcast episode, never both.
	if event.IsMusic() && event.IsPodcast() {
		return nil, "content", fmt.Errorf("record carries both track and episode URIs")
	}

	return &event, "", nil
}
