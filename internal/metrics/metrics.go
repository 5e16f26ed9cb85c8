package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GeocodeLookups counts venue geocoding attempts by result
	// (resolved, empty, error, invalid, cache_hit).
	GeocodeLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trackas_geocode_lookups_total",
		Help: "Venue geocoding lookups by result",
	}, []string{"provider", "result"})

	GeocodeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trackas_geocode_duration_seconds",
		Help:    "Latency of geocoding provider calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})
)

var (
	// EligibilityVerdicts counts evaluated positions (within, outside, disabled, unavailable).
	EligibilityVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trackas_eligibility_verdicts_total",
		Help: "Eligibility evaluations by outcome",
	}, []string{"outcome"})

	// Registrations counts attendance submissions by outcome.
	Registrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trackas_registrations_total",
		Help: "Attendance registration attempts by outcome",
	}, []string{"outcome"})

	VenueWriteBacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trackas_venue_writebacks_total",
		Help: "Resolved venue coordinates written back to storage",
	}, []string{"result"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trackas_registration_sessions_active",
		Help: "Registration sessions currently held in memory",
	})
)

var (
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trackas_http_rate_limited_total",
		Help: "Requests rejected by the per-IP token bucket",
	})
)
