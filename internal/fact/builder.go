// Melograph - Streaming History Star-Schema Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/melograph

// Package fact builds the play-event fact table. Foreign keys are resolved
// through the surrogate key registry using the same extraction functions
// the dimension builders use, so every reference is guaranteed to hit a
// registered key. Event identity is a deterministic content-derived UUID:
// re-running the pipeline over the same export produces the same IDs, which
// is what lets the store merge instead of duplicate.
package fact

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/melograph/internal/dimension"
	"github.com/tomtom215/melograph/internal/logging"
	"github.com/tomtom215/melograph/internal/metrics"
	"github.com/tomtom215/melograph/internal/models"
	"github.com/tomtom215/melograph/internal/registry"
)

// ErrIntegrity indicates a fact row referenced a natural key the registry
// does not know. With shared extraction logic this cannot happen; seeing it
// means a bug, not bad data, so the run fails.
var ErrIntegrity = errors.New("fact reference to unregistered dimension key")

// ErrMissingTimestamp indicates an event without a usable timestamp. Under
// the strict policy it aborts the build instead of dropping the event.
var ErrMissingTimestamp = errors.New("event is missing its timestamp")

// maxSamples bounds the dropped-event samples kept in Stats.
const maxSamples = 5

// Stats summarizes one fact-build pass.
type Stats struct {
	Events     int      `json:"events"`
	Rows       int      `json:"rows"`
	Dropped    int      `json:"dropped"`
	Duplicates int      `json:"duplicates"`
	Samples    []string `json:"samples,omitempty"`
}

// Builder turns raw events into fact rows.
type Builder struct {
	reg    *registry.Registry
	strict bool
}

// NewBuilder creates a fact builder. The registry must already contain the
// keys registered by the dimension builders for the same batch. With
// strict=true an event without a timestamp fails the build instead of
// being dropped.
func NewBuilder(reg *registry.Registry, strict bool) *Builder {
	return &Builder{reg: reg, strict: strict}
}

// Build produces one fact row per usable event. Events with a zero
// timestamp are dropped and counted (the date reference is mandatory).
// Duplicate event IDs within the batch keep the first occurrence, matching
// the store's merge semantics.
func (b *Builder) Build(events []models.RawEvent) ([]models.FactRow, *Stats, error) {
	stats := &Stats{Events: len(events)}
	seen := make(map[uuid.UUID]struct{}, len(events))
	rows := make([]models.FactRow, 0, len(events))

	for i := range events {
		e := &events[i]

		if e.Timestamp.IsZero() {
			if b.strict {
				return nil, nil, fmt.Errorf("%w: event %d", ErrMissingTimestamp, i)
			}
			stats.Dropped++
			metrics.FactRowsDropped.Inc()
			if len(stats.Samples) < maxSamples {
				stats.Samples = append(stats.Samples, fmt.Sprintf("event %d: missing timestamp", i))
			}
			continue
		}

		row := models.FactRow{
			EventID:       EventID(e),
			DateID:        dimension.DateKey(e.Timestamp),
			MsPlayed:      e.MsPlayed,
			Skipped:       e.Skipped,
			Shuffle:       e.Shuffle,
			Offline:       e.Offline,
			IncognitoMode: e.IncognitoMode,
		}

		if _, dup := seen[row.EventID]; dup {
			stats.Duplicates++
			continue
		}
		seen[row.EventID] = struct{}{}

		var err error
		if row.DeviceID, err = b.resolve(dimension.Device, dimension.DeviceKey, e); err != nil {
			return nil, nil, err
		}
		if row.TrackID, err = b.resolve(dimension.Track, dimension.TrackKey, e); err != nil {
			return nil, nil, err
		}
		if row.EpisodeID, err = b.resolve(dimension.Episode, dimension.EpisodeKey, e); err != nil {
			return nil, nil, err
		}
		if row.LocationID, err = b.resolve(dimension.Location, dimension.LocationKey, e); err != nil {
			return nil, nil, err
		}

		rows = append(rows, row)
	}

	stats.Rows = len(rows)

	logging.Info().
		Int("rows", stats.Rows).
		Int("dropped", stats.Dropped).
		Int("duplicates", stats.Duplicates).
		Msg("Fact table built")

	return rows, stats, nil
}

// resolve looks up one optional foreign key. A missing natural key yields a
// null reference; a natural key the registry does not know is an integrity
// bug.
func (b *Builder) resolve(dim string, extract func(*models.RawEvent) (registry.NaturalKey, bool), e *models.RawEvent) (*int64, error) {
	key, ok := extract(e)
	if !ok {
		return nil, nil //nolint:nilnil // null foreign key
	}

	surrogate, found := b.reg.Lookup(dim, key)
	if !found {
		return nil, fmt.Errorf("%w: dimension %s, key %s", ErrIntegrity, dim, key.String())
	}
	return &surrogate, nil
}

// EventID derives the deterministic event identity from the fields that
// identify a play: stop timestamp, content URI, IP, duration and platform.
// The SHA-256 digest is folded into a UUID so the ID is stable for a given
// source event across reruns.
func EventID(e *models.RawEvent) uuid.UUID {
	platform := ""
	if e.Platform != nil {
		platform = *e.Platform
	}
	ip := ""
	if e.IPAddress != nil {
		ip = *e.IPAddress
	}

	input := fmt.Sprintf("melograph:%s:%s:%s:%d:%s",
		e.Timestamp.UTC().Format(time.RFC3339),
		e.ContentURI(),
		ip,
		e.MsPlayed,
		platform,
	)

	hash := sha256.Sum256([]byte(input))

	id, err := uuid.FromBytes(hash[:16])
	if err != nil {
		// Cannot happen with 16 bytes of input.
		return uuid.New()
	}

	// Stamp version and variant bits so the result is a well-formed UUID.
	id[6] = (id[6] & 0x0f) | 0x50
	id[8] = (id[8] & 0x3f) | 0x80

	return id
}
