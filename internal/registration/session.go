package registration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"trackas/internal/attendance"
	"trackas/internal/geo"
	"trackas/internal/metrics"
)

// State is a step of the per-student registration flow.
type State string

const (
	StateLoading          State = "loading"
	StateVenueReady       State = "venue_ready"
	StateAwaitingPosition State = "awaiting_position"
	StateEvaluated        State = "evaluated"
	StateSubmitting       State = "submitting"
	StateSubmitted        State = "submitted"
	StateRejected         State = "rejected"
)

// PositionStatus distinguishes "not reported yet" from "refused or failed".
type PositionStatus string

const (
	PositionUnknown   PositionStatus = "unknown"
	PositionAvailable PositionStatus = "available"
	PositionDenied    PositionStatus = "denied"
)

// Position is a device position sample or the reason there is none.
type Position struct {
	Status PositionStatus
	Coord  geo.Coordinate
}

// Available wraps a position fix.
func Available(c geo.Coordinate) Position {
	return Position{Status: PositionAvailable, Coord: c}
}

// Denied reports that the device refused or failed to provide a position.
func Denied() Position {
	return Position{Status: PositionDenied}
}

// Session is one student's registration attempt. All methods are safe for
// concurrent use; once closed, late completions leave it untouched.
type Session struct {
	id      string
	classID string
	wf      *Workflow

	mu            sync.Mutex
	state         State
	class         attendance.Class
	venue         *geo.Coordinate
	venueResolved bool
	writeBackDone bool
	position      Position
	verdict       geo.Verdict
	record        *attendance.Record
	closed        bool
	lastActive    time.Time
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Load fetches the class, validates the venue coordinate and, if needed,
// geocodes the venue name and writes the result back. A venue that cannot be
// located leaves the session in degraded mode with the distance check
// disabled.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.state != StateLoading {
		s.mu.Unlock()
		return ErrInvalidState
	}
	s.mu.Unlock()

	c, err := s.wf.store.GetClass(ctx, s.classID)
	if err != nil {
		s.wf.report(err, "get_class", s)
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if c == nil {
		return ErrClassNotFound
	}

	venue := c.Venue()
	resolved := false
	if venue == nil {
		venue, resolved = s.resolveVenue(ctx, c)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	s.class = *c
	s.class.Latitude, s.class.Longitude = nil, nil
	if venue != nil {
		s.class.Latitude, s.class.Longitude = &venue.Lat, &venue.Lng
	}
	s.venue = venue
	s.venueResolved = resolved
	s.state = StateVenueReady
	s.verdict = geo.Verdict{CheckDisabled: venue == nil}
	s.position = Position{Status: PositionUnknown}

	if venue == nil {
		s.wf.logger.Warn().
			Str("class_id", s.classID).
			Str("venue", c.LocationName).
			Msg("venue has no usable coordinates, distance check disabled")
	}

	// The position request is issued by the client as soon as the venue is known.
	s.state = StateAwaitingPosition
	s.touch()
	return nil
}

func (s *Session) resolveVenue(ctx context.Context, c *attendance.Class) (*geo.Coordinate, bool) {
	if s.wf.resolver == nil {
		return nil, false
	}
	coord, ok := s.wf.resolver.Resolve(ctx, c.LocationName)
	if !ok {
		return nil, false
	}

	s.mu.Lock()
	if s.closed || s.writeBackDone {
		s.mu.Unlock()
		return &coord, true
	}
	s.writeBackDone = true
	s.mu.Unlock()

	if err := s.wf.store.UpdateClassCoordinates(ctx, c.ID, coord.Lat, coord.Lng); err != nil {
		metrics.VenueWriteBacks.WithLabelValues("error").Inc()
		s.wf.report(fmt.Errorf("write back venue coordinates: %w", err), "update_class_coordinates", s)
	} else {
		metrics.VenueWriteBacks.WithLabelValues("ok").Inc()
		s.wf.logger.Info().
			Str("class_id", c.ID).
			Float64("lat", coord.Lat).
			Float64("lng", coord.Lng).
			Msg("venue coordinates resolved and stored")
	}
	return &coord, true
}

// UpdatePosition records a device position (or its absence) and recomputes
// the verdict.
func (s *Session) UpdatePosition(p Position) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Snapshot{}, ErrSessionClosed
	}
	switch s.state {
	case StateLoading, StateVenueReady:
		return Snapshot{}, ErrNotReady
	case StateAwaitingPosition, StateEvaluated:
	default:
		return Snapshot{}, ErrInvalidState
	}

	if p.Status == PositionAvailable && !p.Coord.Valid() {
		p = Denied()
	}
	s.position = p
	if p.Status == PositionAvailable {
		s.verdict = geo.Evaluate(p.Coord, s.venue, s.wf.threshold)
	} else {
		s.verdict = geo.Verdict{CheckDisabled: s.venue == nil}
	}
	s.state = StateEvaluated
	s.touch()
	countVerdict(s.verdict, p)
	return s.snapshotLocked(), nil
}

// Submit registers attendance for the student if the session's latest
// verdict allows it and no record exists yet for the matric number.
func (s *Session) Submit(ctx context.Context, name, matricNo string) (attendance.Record, error) {
	name = attendance.NormalizeName(name)
	matricNo = attendance.NormalizeMatricNo(matricNo)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return attendance.Record{}, ErrSessionClosed
	}
	switch s.state {
	case StateLoading, StateVenueReady:
		s.mu.Unlock()
		return attendance.Record{}, ErrNotReady
	case StateAwaitingPosition, StateEvaluated:
	default:
		s.mu.Unlock()
		return attendance.Record{}, ErrInvalidState
	}
	if name == "" || matricNo == "" {
		s.mu.Unlock()
		return attendance.Record{}, ErrMissingFields
	}
	if s.verdict.CheckDisabled {
		s.mu.Unlock()
		metrics.Registrations.WithLabelValues("check_disabled").Inc()
		return attendance.Record{}, ErrDistanceCheckDisabled
	}
	switch s.position.Status {
	case PositionAvailable:
	case PositionDenied:
		s.mu.Unlock()
		metrics.Registrations.WithLabelValues("location_unavailable").Inc()
		return attendance.Record{}, ErrLocationUnavailable
	default:
		s.mu.Unlock()
		metrics.Registrations.WithLabelValues("position_unknown").Inc()
		return attendance.Record{}, ErrPositionUnknown
	}
	if !s.verdict.WithinRange {
		s.mu.Unlock()
		metrics.Registrations.WithLabelValues("out_of_range").Inc()
		return attendance.Record{}, ErrOutOfRange
	}

	var distance *float64
	if s.verdict.DistanceMeters != nil {
		d := *s.verdict.DistanceMeters
		distance = &d
	}
	classID := s.class.ID
	s.state = StateSubmitting
	s.touch()
	s.mu.Unlock()

	existing, err := s.wf.store.FindRecord(ctx, classID, matricNo)
	if err != nil {
		s.wf.report(err, "find_record", s)
		s.finish(StateEvaluated, nil)
		metrics.Registrations.WithLabelValues("error").Inc()
		return attendance.Record{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if existing != nil {
		s.finish(StateRejected, nil)
		metrics.Registrations.WithLabelValues("duplicate").Inc()
		return attendance.Record{}, ErrDuplicate
	}

	// Distance and verdict come from the client-reported position.
	rec, err := s.wf.store.InsertRecord(ctx, attendance.Record{
		ClassID:     classID,
		StudentName: name,
		MatricNo:    matricNo,
		Distance:    distance,
		Status:      true,
		Timestamp:   s.wf.now().UTC(),
	})
	if errors.Is(err, attendance.ErrDuplicate) {
		s.finish(StateRejected, nil)
		metrics.Registrations.WithLabelValues("duplicate").Inc()
		return attendance.Record{}, ErrDuplicate
	}
	if err != nil {
		s.wf.report(err, "insert_record", s)
		s.finish(StateEvaluated, nil)
		metrics.Registrations.WithLabelValues("error").Inc()
		return attendance.Record{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	s.finish(StateSubmitted, &rec)
	metrics.Registrations.WithLabelValues("accepted").Inc()
	s.wf.logger.Info().
		Str("class_id", classID).
		Str("matric_no", matricNo).
		Msg("attendance registered")
	return rec, nil
}

// finish applies the outcome of a submission unless the session was closed
// while the storage calls were in flight.
func (s *Session) finish(state State, rec *attendance.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.state = state
	if rec != nil {
		s.record = rec
	}
	s.touch()
}

// Close tears the session down. It is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) touch() {
	s.lastActive = s.wf.now()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Snapshot returns the current session view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}
