package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"trackas/internal/metrics"
)

// ErrCacheMiss is returned by a Cache when the key is absent.
var ErrCacheMiss = errors.New("geocode: cache miss")

// Cache stores encoded lookup results.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// RedisCache adapts a redis client to Cache.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get returns ErrCacheMiss for absent keys.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return val, err
}

// Set stores value with a TTL.
func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// CachedLookup memoizes non-empty results of another Lookup. Cache failures
// are logged and fall through to the provider.
type CachedLookup struct {
	inner    Lookup
	cache    Cache
	ttl      time.Duration
	provider string
	logger   zerolog.Logger
}

// NewCachedLookup wraps inner with cache.
func NewCachedLookup(inner Lookup, cache Cache, ttl time.Duration, provider string, logger zerolog.Logger) *CachedLookup {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedLookup{inner: inner, cache: cache, ttl: ttl, provider: provider, logger: logger}
}

func cacheKey(text string) string {
	return "geocode:" + strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// Lookup serves from cache when possible.
func (c *CachedLookup) Lookup(ctx context.Context, text string) ([]Candidate, error) {
	key := cacheKey(text)

	if raw, err := c.cache.Get(ctx, key); err == nil {
		var cached []Candidate
		if jerr := json.Unmarshal([]byte(raw), &cached); jerr == nil && len(cached) > 0 {
			metrics.GeocodeLookups.WithLabelValues(c.provider, "cache_hit").Inc()
			return cached, nil
		}
		c.logger.Warn().Str("key", key).Msg("discarding undecodable geocode cache entry")
	} else if !errors.Is(err, ErrCacheMiss) {
		c.logger.Warn().Err(err).Str("key", key).Msg("geocode cache read failed")
	}

	res, err := c.inner.Lookup(ctx, text)
	if err != nil || len(res) == 0 {
		return res, err
	}

	if payload, jerr := json.Marshal(res); jerr == nil {
		if serr := c.cache.Set(ctx, key, string(payload), c.ttl); serr != nil {
			c.logger.Warn().Err(serr).Str("key", key).Msg("geocode cache write failed")
		}
	}
	return res, nil
}
