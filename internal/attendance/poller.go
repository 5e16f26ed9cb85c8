package attendance

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultPollInterval matches the refresh rate of the lecturer's live list.
const DefaultPollInterval = 5 * time.Second

// ListFunc loads the current attendance of a class.
type ListFunc func(ctx context.Context) ([]Record, error)

// Poller re-fetches an attendance list on a fixed interval and emits it
// whenever it changes. Its lifetime is the context passed to Watch.
type Poller struct {
	interval time.Duration
	logger   zerolog.Logger
}

// NewPoller creates a poller.
func NewPoller(interval time.Duration, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{interval: interval, logger: logger}
}

// Watch emits the initial list immediately and then every change until ctx
// is cancelled or emit returns an error. Fetch errors are logged and retried
// on the next tick.
func (p *Poller) Watch(ctx context.Context, list ListFunc, emit func([]Record) error) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var last []Record
	first := true
	for {
		recs, err := list(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Warn().Err(err).Msg("attendance poll failed")
		case first || changed(last, recs):
			if recs == nil {
				recs = []Record{}
			}
			if err := emit(recs); err != nil {
				return err
			}
			last, first = recs, false
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func changed(a, b []Record) bool {
	if len(a) != len(b) {
		return true
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return true
		}
	}
	return false
}
