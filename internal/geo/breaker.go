// Melograph - Streaming History Star-Schema Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/melograph

package geo

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/melograph/internal/logging"
	"github.com/tomtom215/melograph/internal/models"
)

// BreakerProvider wraps a Provider with a circuit breaker so a dead or
// rate-limited geo service stops receiving traffic instead of stalling the
// whole enrichment stage. Rejected lookups surface as ordinary lookup
// errors; the enricher marks the row failed and moves on.
//
// The breaker uses real time for its interval and timeout calculations.
// Tests exercise the wrapped provider directly.
type BreakerProvider struct {
	provider Provider
	cb       *gobreaker.CircuitBreaker[*models.Geolocation]
}

// NewBreakerProvider wraps provider with a circuit breaker:
// - Max 3 requests in half-open state
// - 1 minute measurement window
// - 2 minute timeout before attempting recovery
// - Opens after 60% failure rate with minimum 10 requests
func NewBreakerProvider(provider Provider) *BreakerProvider {
	cb := gobreaker.NewCircuitBreaker[*models.Geolocation](gobreaker.Settings{
		Name:        provider.Name(),
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false // Need at least 10 requests for statistical significance
			}

			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6

			if shouldTrip {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Str("provider", provider.Name()).
					Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("[CIRCUIT BREAKER] State transition")
		},
	})

	return &BreakerProvider{provider: provider, cb: cb}
}

// Lookup executes the wrapped provider's lookup under the breaker.
func (b *BreakerProvider) Lookup(ctx context.Context, ipAddress string) (*models.Geolocation, error) {
	geo, err := b.cb.Execute(func() (*models.Geolocation, error) {
		return b.provider.Lookup(ctx, ipAddress)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			logging.Warn().Err(err).Str("ip", ipAddress).Msg("[CIRCUIT BREAKER] Lookup rejected")
		}
		return nil, err
	}
	return geo, nil
}

// Name returns the wrapped provider's name.
func (b *BreakerProvider) Name() string {
	return b.provider.Name()
}

// IsAvailable reports the wrapped provider's availability.
func (b *BreakerProvider) IsAvailable() bool {
	return b.provider.IsAvailable()
}
