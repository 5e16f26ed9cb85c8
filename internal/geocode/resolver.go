package geocode

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"trackas/internal/geo"
	"trackas/internal/metrics"
)

// DefaultTimeout bounds a single resolution attempt.
const DefaultTimeout = 5 * time.Second

// Resolver turns a venue name into a coordinate. It never fails: every
// problem (transport error, timeout, no match, unusable coordinates) is
// reported as unresolved and logged.
type Resolver struct {
	lookup   Lookup
	provider string
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewResolver creates a resolver around lookup.
func NewResolver(lookup Lookup, provider string, timeout time.Duration, logger zerolog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Resolver{lookup: lookup, provider: provider, timeout: timeout, logger: logger}
}

// Resolve looks up name once and returns the first candidate, re-validated
// through geo.Normalize.
func (r *Resolver) Resolve(ctx context.Context, name string) (geo.Coordinate, bool) {
	name = strings.TrimSpace(name)
	if r == nil || r.lookup == nil || name == "" {
		return geo.Coordinate{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	candidates, err := r.lookup.Lookup(ctx, name)
	metrics.GeocodeDuration.WithLabelValues(r.provider).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.GeocodeLookups.WithLabelValues(r.provider, "error").Inc()
		r.logger.Warn().Err(err).Str("venue", name).Msg("geocode lookup failed")
		return geo.Coordinate{}, false
	}
	if len(candidates) == 0 {
		metrics.GeocodeLookups.WithLabelValues(r.provider, "empty").Inc()
		r.logger.Info().Str("venue", name).Msg("geocode lookup returned no candidates")
		return geo.Coordinate{}, false
	}

	c, ok := geo.Normalize(candidates[0].Lat, candidates[0].Lng)
	if !ok {
		metrics.GeocodeLookups.WithLabelValues(r.provider, "invalid").Inc()
		r.logger.Warn().
			Interface("lat", candidates[0].Lat).
			Interface("lng", candidates[0].Lng).
			Str("venue", name).
			Msg("geocode candidate has unusable coordinates")
		return geo.Coordinate{}, false
	}

	metrics.GeocodeLookups.WithLabelValues(r.provider, "resolved").Inc()
	r.logger.Debug().
		Str("venue", name).
		Float64("lat", c.Lat).
		Float64("lng", c.Lng).
		Msg("venue geocoded")
	return c, true
}
