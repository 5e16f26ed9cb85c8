package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"trackas/internal/attendance"
	"trackas/internal/auth"
	"trackas/internal/cloudinary"
	"trackas/internal/config"
	"trackas/internal/geocode"
	"trackas/internal/handler"
	"trackas/internal/httpmiddleware"
	"trackas/internal/logging"
	"trackas/internal/queue"
	"trackas/internal/registration"
	"trackas/internal/report"
	"trackas/internal/store"
	"trackas/internal/worker"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.Env, cfg.LogLevel)
	for _, w := range cfg.Warnings {
		logger.Warn().Msg(w)
	}

	// Set Gin mode based on environment
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("http server failed")
	}
}

func runHTTP(cfg config.App, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reporter, err := report.New(cfg.SentryDSN, cfg.Env, cfg.Version, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("sentry init failed, errors will only be logged")
	}
	defer reporter.Flush()

	db, err := store.NewDB(cfg.DatabaseURL)
	if db == nil {
		return err
	}
	if err != nil {
		logger.Warn().Err(err).Msg("db not reachable")
	}
	defer db.Close()

	repo := attendance.NewRepository(db.Client)
	migrateCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := repo.Migrate(migrateCtx); err != nil {
		logger.Warn().Err(err).Msg("schema migration failed")
	}
	cancel()

	redisClient := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword)
	defer redisClient.Close()

	q := queue.New(cfg.QueueBackend, redisClient.Client, logger)

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
		return err
	}

	// Cloudinary client (nil when not configured)
	var uploader attendance.ImageUploader
	if cfg.CloudinaryEnabled() {
		uploader = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		logger.Info().Str("cloud", cfg.CloudinaryCloudName).Msg("cloudinary configured")
	} else {
		logger.Info().Msg("cloudinary not configured, QR codes stored as data URLs")
	}

	svc := attendance.NewService(repo, uploader, q, reporter, cfg.PublicBaseURL, cfg.Location(), logger)
	wf := registration.NewWorkflow(repo, resolver, cfg.AllowedDistanceMeters, reporter, logger)
	sessions := registration.NewSessions(wf, cfg.SessionTTL)
	go sessions.Run(ctx)

	// The in-memory queue only reaches consumers in this process.
	if cfg.QueueBackend == "memory" || redisClient.Client == nil {
		go func() {
			_ = worker.NewVenueWorker(repo, resolver, reporter, logger).Run(ctx, q)
		}()
	}

	limiter := httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	go pruneLoop(ctx, limiter)

	h := handler.New(
		svc,
		sessions,
		auth.NewSigner(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL),
		attendance.NewPoller(cfg.AttendancePollInterval, logger),
		map[string]handler.HealthCheck{"db": db.Healthy, "redis": redisClient.Healthy},
		logger,
	)

	// No write timeout: attendance streams stay open while a lecturer watches.
	srv := &http.Server{
		Addr:        ":" + cfg.HTTPPort,
		Handler:     h.Router(limiter.GinMiddleware()),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info().Msg("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("server forced shutdown")
	}

	logger.Info().Msg("server exited")
	return nil
}

func pruneLoop(ctx context.Context, l *httpmiddleware.SimpleTokenBucket) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Prune(10 * time.Minute)
		}
	}
}
