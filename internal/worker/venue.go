package worker

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"trackas/internal/attendance"
	"trackas/internal/geo"
	"trackas/internal/metrics"
	"trackas/internal/queue"
)

// Store is the class persistence the venue worker needs.
type Store interface {
	GetClass(ctx context.Context, id string) (*attendance.Class, error)
	UpdateClassCoordinates(ctx context.Context, id string, lat, lng float64) error
}

// Resolver geocodes a venue name.
type Resolver interface {
	Resolve(ctx context.Context, name string) (geo.Coordinate, bool)
}

// ErrorReporter receives failures worth alerting on.
type ErrorReporter interface {
	ReportError(err error, tags map[string]string)
}

// VenueWorker resolves venues of classes scheduled without usable
// coordinates so that registration sessions find them already set.
type VenueWorker struct {
	store    Store
	resolver Resolver
	reporter ErrorReporter
	logger   zerolog.Logger
}

// NewVenueWorker creates a worker. reporter may be nil.
func NewVenueWorker(store Store, resolver Resolver, reporter ErrorReporter, logger zerolog.Logger) *VenueWorker {
	return &VenueWorker{store: store, resolver: resolver, reporter: reporter, logger: logger}
}

// Run consumes q until ctx is done.
func (w *VenueWorker) Run(ctx context.Context, q queue.Queue) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init failed: %w", err)
	}
	w.logger.Info().Msg("venue worker started, waiting for messages")
	for msg := range messages {
		if err := w.Handle(ctx, msg); err != nil {
			w.report(err, string(msg.Body))
		}
	}
	w.logger.Info().Msg("venue worker stopped")
	return nil
}

// Handle processes one message. Messages of other types are ignored.
func (w *VenueWorker) Handle(ctx context.Context, msg queue.Message) error {
	if msg.Type != queue.TypeVenueResolve {
		return nil
	}
	classID := string(msg.Body)
	log := w.logger.With().Str("class_id", classID).Logger()

	c, err := w.store.GetClass(ctx, classID)
	if err != nil {
		return fmt.Errorf("fetch class %s: %w", classID, err)
	}
	if c == nil {
		log.Warn().Msg("class vanished before venue resolution")
		return nil
	}
	if c.Venue() != nil {
		log.Debug().Msg("venue already has coordinates")
		return nil
	}

	coord, ok := w.resolver.Resolve(ctx, c.LocationName)
	if !ok {
		log.Info().Str("venue", c.LocationName).Msg("venue could not be located")
		return nil
	}
	if err := w.store.UpdateClassCoordinates(ctx, c.ID, coord.Lat, coord.Lng); err != nil {
		metrics.VenueWriteBacks.WithLabelValues("error").Inc()
		return fmt.Errorf("store venue coordinates for %s: %w", classID, err)
	}
	metrics.VenueWriteBacks.WithLabelValues("ok").Inc()
	log.Info().Float64("lat", coord.Lat).Float64("lng", coord.Lng).Msg("venue resolved")
	return nil
}

func (w *VenueWorker) report(err error, classID string) {
	if w.reporter != nil {
		w.reporter.ReportError(err, map[string]string{"op": "venue_resolve", "class_id": classID})
		return
	}
	w.logger.Error().Err(err).Str("class_id", classID).Msg("venue resolution failed")
}
