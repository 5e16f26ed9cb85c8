package geocode

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Provider names accepted by Build.
const (
	ProviderNominatim = "nominatim"
	ProviderGoogle    = "google"
)

// Options selects and tunes the geocoding backend.
type Options struct {
	Provider     string
	NominatimURL string
	UserAgent    string
	GoogleAPIKey string
	Timeout      time.Duration
	Cache        bool
	CacheTTL     time.Duration
}

// Build wires a Resolver from opts. Google is used only when an API key is
// present; Redis caching is applied when enabled and client is non-nil.
func Build(opts Options, client *redis.Client, logger zerolog.Logger) (*Resolver, error) {
	provider := opts.Provider
	if provider == "" {
		provider = ProviderNominatim
	}

	var lookup Lookup
	switch provider {
	case ProviderGoogle:
		if opts.GoogleAPIKey == "" {
			logger.Warn().Msg("GOOGLE_MAPS_API_KEY not set, falling back to nominatim")
			provider = ProviderNominatim
			lookup = NewNominatim(opts.NominatimURL, opts.UserAgent)
			break
		}
		g, err := NewGoogle(opts.GoogleAPIKey)
		if err != nil {
			return nil, fmt.Errorf("google geocoder: %w", err)
		}
		lookup = g
	case ProviderNominatim:
		lookup = NewNominatim(opts.NominatimURL, opts.UserAgent)
	default:
		return nil, fmt.Errorf("unknown geocoder %q", provider)
	}

	if opts.Cache && client != nil {
		lookup = NewCachedLookup(lookup, NewRedisCache(client), opts.CacheTTL, provider, logger)
	}
	return NewResolver(lookup, provider, opts.Timeout, logger), nil
}
