// Melograph - Streaming History Star-Schema Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/melograph

package dimension

import (
	"github.com/tomtom215/melograph/internal/logging"
	"github.com/tomtom215/melograph/internal/models"
	"github.com/tomtom215/melograph/internal/registry"
)

// Tables holds the dimension rows built from one input batch. Only rows
// whose natural keys appear in the batch are present; previously persisted
// rows are merged at write time, not here.
type Tables struct {
	Dates     []models.DateRow
	Devices   []models.DeviceRow
	Tracks    []models.TrackRow
	Episodes  []models.EpisodeRow
	Locations []models.LocationRow
}

// Builder derives dimension rows from raw events and registers their
// natural keys in the surrogate key registry.
type Builder struct {
	reg *registry.Registry
}

// NewBuilder creates a dimension builder backed by the given registry.
// The registry must already be loaded with any persisted dimension state.
func NewBuilder(reg *registry.Registry) *Builder {
	return &Builder{reg: reg}
}

// BuildAll derives all five dimensions from the input batch.
func (b *Builder) BuildAll(events []models.RawEvent) *Tables {
	t := &Tables{
		Dates:     b.BuildDate(events),
		Devices:   b.BuildDevice(events),
		Tracks:    b.BuildTrack(events),
		Episodes:  b.BuildEpisode(events),
		Locations: b.BuildLocation(events),
	}

	logging.Debug().
		Int("dates", len(t.Dates)).
		Int("devices", len(t.Devices)).
		Int("tracks", len(t.Tracks)).
		Int("episodes", len(t.Episodes)).
		Int("locations", len(t.Locations)).
		Msg("Dimension tables built")

	return t
}

// BuildDate derives the distinct date rows present in the batch. The smart
// key makes deduplication trivial: one row per distinct YYYYMMDDHH.
func (b *Builder) BuildDate(events []models.RawEvent) []models.DateRow {
	seen := make(map[int64]struct{})
	var rows []models.DateRow

	for i := range events {
		row := DateAttributes(events[i].Timestamp)
		if _, ok := seen[row.DateID]; ok {
			continue
		}
		seen[row.DateID] = struct{}{}
		rows = append(rows, row)
	}
	return rows
}

// BuildDevice derives the distinct device rows in the batch. Events with
// no platform are excluded, never given a placeholder row.
func (b *Builder) BuildDevice(events []models.RawEvent) []models.DeviceRow {
	seen := make(map[string]struct{})
	var rows []models.DeviceRow

	for i := range events {
		key, ok := DeviceKey(&events[i])
		if !ok {
			continue
		}
		platform := *events[i].Platform
		if _, dup := seen[platform]; dup {
			continue
		}
		seen[platform] = struct{}{}

		rows = append(rows, models.DeviceRow{
			DeviceID:   b.reg.LookupOrCreate(Device, key),
			Platform:   platform,
			DeviceType: ClassifyDevice(platform),
		})
	}
	return rows
}

// BuildTrack derives the distinct track rows in the batch. Attributes come
// from the first event carrying each URI.
func (b *Builder) BuildTrack(events []models.RawEvent) []models.TrackRow {
	seen := make(map[string]struct{})
	var rows []models.TrackRow

	for i := range events {
		e := &events[i]
		key, ok := TrackKey(e)
		if !ok {
			continue
		}
		uri := *e.TrackURI
		if _, dup := seen[uri]; dup {
			continue
		}
		seen[uri] = struct{}{}

		rows = append(rows, models.TrackRow{
			TrackID:    b.reg.LookupOrCreate(Track, key),
			TrackURI:   uri,
			TrackName:  e.TrackName,
			ArtistName: e.ArtistName,
			AlbumName:  e.AlbumName,
		})
	}
	return rows
}

// BuildEpisode derives the distinct podcast episode rows in the batch.
func (b *Builder) BuildEpisode(events []models.RawEvent) []models.EpisodeRow {
	seen := make(map[string]struct{})
	var rows []models.EpisodeRow

	for i := range events {
		e := &events[i]
		key, ok := EpisodeKey(e)
		if !ok {
			continue
		}
		uri := *e.EpisodeURI
		if _, dup := seen[uri]; dup {
			continue
		}
		seen[uri] = struct{}{}

		rows = append(rows, models.EpisodeRow{
			EpisodeID:   b.reg.LookupOrCreate(Episode, key),
			EpisodeURI:  uri,
			EpisodeName: e.EpisodeName,
			ShowName:    e.ShowName,
		})
	}
	return rows
}

// BuildLocation derives the distinct location rows in the batch, one per
// IP address.
func (b *Builder) BuildLocation(events []models.RawEvent) []models.LocationRow {
	seen := make(map[string]struct{})
	var rows []models.LocationRow

	for i := range events {
		e := &events[i]
		key, ok := LocationKey(e)
		if !ok {
			continue
		}
		ip := *e.IPAddress
		if _, dup := seen[ip]; dup {
			continue
		}
		seen[ip] = struct{}{}

		rows = append(rows, models.LocationRow{
			LocationID: b.reg.LookupOrCreate(Location, key),
			IPAddress:  ip,
			Country:    e.ConnCountry,
		})
	}
	return rows
}
