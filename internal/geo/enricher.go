// Melograph - Streaming History Star-Schema Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/melograph

package geo

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/melograph/internal/config"
	"github.com/tomtom215/melograph/internal/logging"
	"github.com/tomtom215/melograph/internal/metrics"
	"github.com/tomtom215/melograph/internal/models"
)

// locationStore is the slice of the database the enricher needs.
type locationStore interface {
	SeedEnrichedLocations(ctx context.Context) (int64, error)
	LocationsToEnrich(ctx context.Context, force bool) ([]models.EnrichedLocationRow, error)
	UpsertEnrichedLocation(ctx context.Context, row *models.EnrichedLocationRow) error
}

// Stats summarizes one enrichment pass.
type Stats struct {
	Seeded    int64 `json:"seeded"`
	Attempted int   `json:"attempted"`
	Resolved  int   `json:"resolved"`
	Failed    int   `json:"failed"`
	Private   int   `json:"private"`
	Skipped   int   `json:"skipped"`
}

// Enricher resolves location dimension rows against a geo provider with a
// bounded worker pool. Lookups run concurrently; store writes are
// serialized on the collector side.
type Enricher struct {
	store    locationStore
	provider Provider
	cfg      *config.GeoConfig
}

// NewEnricher creates an enricher. provider may be nil when enrichment is
// disabled; Run then only seeds pending rows.
func NewEnricher(store locationStore, provider Provider, cfg *config.GeoConfig) *Enricher {
	return &Enricher{store: store, provider: provider, cfg: cfg}
}

// Run seeds the enriched location table and resolves whatever it can.
// Individual lookup failures mark rows failed and continue: the error
// return covers store access only.
func (e *Enricher) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	seeded, err := e.store.SeedEnrichedLocations(ctx)
	if err != nil {
		return nil, err
	}
	stats.Seeded = seeded

	if !e.cfg.Enabled || e.provider == nil || !e.provider.IsAvailable() {
		pending, err := e.store.LocationsToEnrich(ctx, false)
		if err != nil {
			return nil, err
		}
		stats.Skipped = len(pending)
		metrics.GeoLookups.WithLabelValues("skipped").Add(float64(stats.Skipped))
		logging.Info().Int("pending", stats.Skipped).Msg("Geo enrichment skipped, rows left pending")
		return stats, nil
	}

	rows, err := e.store.LocationsToEnrich(ctx, e.cfg.Force)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return stats, nil
	}

	// Private-range IPs are settled without touching the provider.
	var lookups []models.EnrichedLocationRow
	for i := range rows {
		if IsPrivateIP(rows[i].IPAddress) {
			local := LocalGeolocation(rows[i].IPAddress)
			rows[i].LookupStatus = models.LookupPrivate
			rows[i].City = local.City
			rows[i].LastUpdated = local.LastUpdated
			if err := e.store.UpsertEnrichedLocation(ctx, &rows[i]); err != nil {
				return nil, err
			}
			stats.Private++
			metrics.GeoLookups.WithLabelValues("private").Inc()
			continue
		}
		lookups = append(lookups, rows[i])
	}

	if err := e.resolve(ctx, lookups, stats); err != nil {
		return nil, err
	}

	logging.Info().
		Str("provider", e.provider.Name()).
		Int("attempted", stats.Attempted).
		Int("resolved", stats.Resolved).
		Int("failed", stats.Failed).
		Int("private", stats.Private).
		Msg("Geo enrichment complete")

	return stats, nil
}

// resolve fans lookups out to a worker pool and serializes the writes.
func (e *Enricher) resolve(ctx context.Context, rows []models.EnrichedLocationRow, stats *Stats) error {
	if len(rows) == 0 {
		return nil
	}

	workers := e.cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	if workers > len(rows) {
		workers = len(rows)
	}

	rctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan models.EnrichedLocationRow)
	results := make(chan models.EnrichedLocationRow)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for row := range jobs {
				results <- e.lookupOne(rctx, row)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range rows {
			select {
			case jobs <- rows[i]:
			case <-rctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	// A store failure cancels the feeder but keeps draining results until
	// the workers finish, so none of them blocks on the channel.
	var storeErr error
	for row := range results {
		if storeErr != nil {
			continue
		}
		stats.Attempted++
		switch row.LookupStatus {
		case models.LookupResolved:
			stats.Resolved++
			metrics.GeoLookups.WithLabelValues("resolved").Inc()
		default:
			stats.Failed++
			metrics.GeoLookups.WithLabelValues("failed").Inc()
		}
		if err := e.store.UpsertEnrichedLocation(ctx, &row); err != nil {
			storeErr = err
			cancel()
		}
	}
	if storeErr != nil {
		return storeErr
	}

	return ctx.Err()
}

// lookupOne performs a single bounded lookup and returns the row with its
// outcome applied.
func (e *Enricher) lookupOne(ctx context.Context, row models.EnrichedLocationRow) models.EnrichedLocationRow {
	timeout := e.cfg.LookupTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	lctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	geo, err := e.provider.Lookup(lctx, row.IPAddress)
	row.LastUpdated = time.Now().UTC()

	if err != nil {
		logging.Debug().Err(err).Str("ip", row.IPAddress).Msg("Geo lookup failed")
		row.LookupStatus = models.LookupFailed
		return row
	}

	row.LookupStatus = models.LookupResolved
	row.Latitude = &geo.Latitude
	row.Longitude = &geo.Longitude
	row.City = geo.City
	row.Region = geo.Region
	row.ISP = geo.ISP
	if geo.Country != "" {
		country := geo.Country
		row.Country = &country
	}
	return row
}
