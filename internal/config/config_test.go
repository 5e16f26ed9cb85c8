package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, 30000.0, cfg.AllowedDistanceMeters)
	assert.Equal(t, 5*time.Second, cfg.GeocodeTimeout)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 5*time.Second, cfg.AttendancePollInterval)
	assert.Equal(t, "nominatim", cfg.Geocoder)
	assert.True(t, cfg.GeocodeCache)
	assert.False(t, cfg.CloudinaryEnabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ALLOWED_DISTANCE_METERS", "250.5")
	t.Setenv("GEOCODE_TIMEOUT", "2s")
	t.Setenv("GEOCODER", "google")
	t.Setenv("GEOCODE_CACHE", "false")
	t.Setenv("RATE_LIMIT_PER_MIN", "10")
	t.Setenv("CLOUDINARY_CLOUD_NAME", "demo")
	t.Setenv("CLOUDINARY_API_KEY", "key")
	t.Setenv("CLOUDINARY_API_SECRET", "secret")
	t.Setenv("TIME_ZONE", "UTC")

	cfg := Load()
	assert.Equal(t, 250.5, cfg.AllowedDistanceMeters)
	assert.Equal(t, 2*time.Second, cfg.GeocodeTimeout)
	assert.Equal(t, "google", cfg.Geocoder)
	assert.False(t, cfg.GeocodeCache)
	assert.Equal(t, 10, cfg.RateLimitPerMin)
	assert.True(t, cfg.CloudinaryEnabled())
	assert.Empty(t, cfg.Warnings)
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("ALLOWED_DISTANCE_METERS", "-5")
	t.Setenv("SESSION_TTL", "soon")
	t.Setenv("GEOCODE_CACHE", "maybe")
	t.Setenv("RATE_LIMIT_PER_MIN", "lots")
	t.Setenv("TIME_ZONE", "Nowhere/Special")

	cfg := Load()
	assert.Equal(t, 30000.0, cfg.AllowedDistanceMeters)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.True(t, cfg.GeocodeCache)
	assert.Equal(t, 120, cfg.RateLimitPerMin)
	assert.Equal(t, time.UTC, cfg.Location())

	require.Len(t, cfg.Warnings, 5)
	for _, key := range []string{"ALLOWED_DISTANCE_METERS", "SESSION_TTL", "GEOCODE_CACHE", "RATE_LIMIT_PER_MIN", "TIME_ZONE"} {
		found := false
		for _, w := range cfg.Warnings {
			if strings.Contains(w, key) {
				found = true
			}
		}
		assert.True(t, found, "no warning for %s", key)
	}
}

func TestLocationFallback(t *testing.T) {
	assert.Equal(t, time.UTC, App{TimeZone: "Nowhere/Special"}.Location())
	assert.Equal(t, "UTC", App{TimeZone: "UTC"}.Location().String())
}
