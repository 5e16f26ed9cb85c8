package registration

import (
	"trackas/internal/attendance"
	"trackas/internal/geo"
)

// Snapshot is the externally visible state of a session.
type Snapshot struct {
	ID                  string             `json:"session_id"`
	State               State              `json:"state"`
	Class               attendance.Class   `json:"class"`
	Venue               *geo.Coordinate    `json:"venue,omitempty"`
	VenueResolved       bool               `json:"venue_resolved"`
	Position            PositionStatus     `json:"position"`
	DistanceMeters      *float64           `json:"distance_meters,omitempty"`
	DistanceDisplay     string             `json:"distance,omitempty"`
	WithinRange         bool               `json:"within_range"`
	CheckDisabled       bool               `json:"distance_check_disabled"`
	LocationUnavailable bool               `json:"location_unavailable"`
	ThresholdMeters     float64            `json:"threshold_meters"`
	Notice              string             `json:"notice,omitempty"`
	Record              *attendance.Record `json:"record,omitempty"`
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:                  s.id,
		State:               s.state,
		Class:               s.class,
		VenueResolved:       s.venueResolved,
		Position:            s.position.Status,
		WithinRange:         s.verdict.WithinRange,
		CheckDisabled:       s.verdict.CheckDisabled,
		LocationUnavailable: s.position.Status == PositionDenied,
		ThresholdMeters:     s.wf.threshold,
	}
	if s.record != nil {
		rec := *s.record
		snap.Record = &rec
	}
	if snap.Position == "" {
		snap.Position = PositionUnknown
	}
	if s.venue != nil {
		v := *s.venue
		snap.Venue = &v
	}
	if s.verdict.DistanceMeters != nil {
		d := *s.verdict.DistanceMeters
		snap.DistanceMeters = &d
		snap.DistanceDisplay = geo.FormatKilometers(d)
	}
	snap.Notice = s.noticeLocked()
	return snap
}

func (s *Session) noticeLocked() string {
	switch {
	case s.state == StateLoading:
		return ""
	case s.verdict.CheckDisabled:
		return "Class coordinates are missing or invalid. Distance check is disabled."
	case s.position.Status == PositionDenied:
		return "Location unavailable. Please enable location services to register."
	case s.position.Status != PositionAvailable:
		return "Waiting for your location. Eligibility cannot be verified yet."
	case s.state == StateEvaluated && !s.verdict.WithinRange:
		return "You are not within range of the lecture venue (" + geo.FormatKilometers(s.wf.threshold) + ")."
	}
	return ""
}
