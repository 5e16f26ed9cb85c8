package geo

// DefaultThresholdMeters is the default registration radius. It is a
// same-city bound, not a tight geofence; deployments tune it through
// ALLOWED_DISTANCE_METERS.
const DefaultThresholdMeters = 30000

// Verdict is the outcome of an eligibility check.
type Verdict struct {
	// DistanceMeters is nil when the distance is unknown.
	DistanceMeters *float64 `json:"distance_meters"`
	WithinRange    bool     `json:"within_range"`
	// CheckDisabled is set when the venue has no usable coordinate. Callers
	// must surface it to the user rather than treat it as a pass.
	CheckDisabled bool `json:"check_disabled"`
}

// Evaluate decides whether live is within thresholdMeters of venue. The
// boundary is inclusive.
func Evaluate(live Coordinate, venue *Coordinate, thresholdMeters float64) Verdict {
	if venue == nil || !venue.Valid() {
		return Verdict{CheckDisabled: true}
	}
	if !live.Valid() {
		return Verdict{}
	}
	d := DistanceMeters(live, *venue)
	return Verdict{
		DistanceMeters: &d,
		WithinRange:    d <= thresholdMeters,
	}
}

// Policy carries the configured registration radius.
type Policy struct {
	ThresholdMeters float64
}

// Evaluate applies the policy, using DefaultThresholdMeters when unset.
func (p Policy) Evaluate(live Coordinate, venue *Coordinate) Verdict {
	t := p.ThresholdMeters
	if t <= 0 {
		t = DefaultThresholdMeters
	}
	return Evaluate(live, venue, t)
}
