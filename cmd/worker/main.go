package main

import (
	"context"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"trackas/internal/attendance"
	"trackas/internal/config"
	"trackas/internal/geocode"
	"trackas/internal/logging"
	"trackas/internal/queue"
	"trackas/internal/report"
	"trackas/internal/store"
	"trackas/internal/worker"
)

// Worker consumes venue.resolve messages, geocodes the class venue and
// stores the coordinate.
func main() {
	cfg := config.Load()
	logger := logging.New(cfg.Env, cfg.LogLevel).With().Str("component", "worker").Logger()
	for _, w := range cfg.Warnings {
		logger.Warn().Msg(w)
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reporter, err := report.New(cfg.SentryDSN, cfg.Env, cfg.Version, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("sentry init failed, errors will only be logged")
	}
	defer reporter.Flush()

	if cfg.QueueBackend == "memory" {
		logger.Fatal().Msg("QUEUE_BACKEND=memory: venues are resolved inside the api process")
	}

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("db connect failed")
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		logger.Warn().Str("addr", cfg.RedisAddr).Msg("redis not reachable, will keep retrying")
	}

	resolver, err := geocode.Build(geocode.Options{
		Provider:     cfg.Geocoder,
		NominatimURL: cfg.NominatimURL,
		UserAgent:    cfg.GeocodeUserAgent,
		GoogleAPIKey: cfg.GoogleMapsAPIKey,
		Timeout:      cfg.GeocodeTimeout,
		Cache:        cfg.GeocodeCache,
		CacheTTL:     cfg.GeocodeCacheTTL,
	}, redisClient.Client, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("geocoder setup failed")
	}

	repo := attendance.NewRepository(db.Client)
	q := queue.NewRedisQueue(redisClient.Client, queue.DefaultKey, logger)

	if err := worker.NewVenueWorker(repo, resolver, reporter, logger).Run(ctx, q); err != nil {
		logger.Fatal().Err(err).Msg("worker failed")
	}
}
