package geo

import (
	"database/sql"
	"encoding/json"
	"math"
	"testing"

	"github.com/golang/geo/s2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	strPtr := func(s string) *string { return &s }
	fPtr := func(f float64) *float64 { return &f }

	tests := []struct {
		name   string
		lat    any
		lng    any
		want   Coordinate
		wantOK bool
	}{
		{"valid floats unchanged", 6.5, 3.4, Coordinate{6.5, 3.4}, true},
		{"valid extremes unchanged", -90.0, 180.0, Coordinate{-90, 180}, true},
		{"numeric strings", " 6.5 ", "3.4", Coordinate{6.5, 3.4}, true},
		{"ints", 10, -20, Coordinate{10, -20}, true},
		{"json number", json.Number("1.5"), json.Number("2.5"), Coordinate{1.5, 2.5}, true},
		{"pointers", fPtr(1), strPtr("2"), Coordinate{1, 2}, true},
		{"null float valid", sql.NullFloat64{Float64: 4, Valid: true}, 5.0, Coordinate{4, 5}, true},
		{"lat out of range swaps", 120.0, 45.0, Coordinate{45, 120}, true},
		{"lng out of range swaps into invalid", 45.0, 200.0, Coordinate{}, false},
		{"lat slightly over swaps", 91.0, 10.0, Coordinate{10, 91}, true},
		{"nil lat", nil, 5.0, Coordinate{}, false},
		{"nil lng", 5.0, nil, Coordinate{}, false},
		{"nil pointer", (*float64)(nil), 5.0, Coordinate{}, false},
		{"null float invalid", sql.NullFloat64{}, 5.0, Coordinate{}, false},
		{"garbage string", "abc", 5, Coordinate{}, false},
		{"trailing garbage", "6.5abc", 5, Coordinate{}, false},
		{"empty string", "", 5, Coordinate{}, false},
		{"both out of range", 91.0, 200.0, Coordinate{}, false},
		{"both beyond longitude range", 200.0, 250.0, Coordinate{}, false},
		{"NaN", math.NaN(), 1.0, Coordinate{}, false},
		{"Inf", 1.0, math.Inf(1), Coordinate{}, false},
		{"unsupported type", []int{1}, 1.0, Coordinate{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Normalize(tt.lat, tt.lng)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_IdentityForValidPairs(t *testing.T) {
	for lat := -90.0; lat <= 90; lat += 7.5 {
		for lng := -180.0; lng <= 180; lng += 15 {
			got, ok := Normalize(lat, lng)
			require.True(t, ok, "lat=%v lng=%v", lat, lng)
			assert.Equal(t, Coordinate{lat, lng}, got)
		}
	}
}

func TestNormalize_SwapOnlyWhenSwappedPairValid(t *testing.T) {
	// |lat| > 90 and |lng| <= 90: swapped pair is valid whenever |lat| <= 180.
	got, ok := Normalize(-150.0, 30.0)
	require.True(t, ok)
	assert.Equal(t, Coordinate{30, -150}, got)

	_, ok = Normalize(181.0, 30.0)
	assert.False(t, ok)
}

func TestNormalizePtr(t *testing.T) {
	lat, lng := 6.5, 3.4
	got, ok := NormalizePtr(&lat, &lng)
	require.True(t, ok)
	assert.Equal(t, Coordinate{6.5, 3.4}, got)

	_, ok = NormalizePtr(nil, &lng)
	assert.False(t, ok)
}

func TestDistanceMeters(t *testing.T) {
	a := Coordinate{Lat: 0, Lng: 0}
	b := Coordinate{Lat: 0, Lng: 1}

	assert.InDelta(t, 111195, DistanceMeters(a, b), 50)
	assert.Equal(t, 0.0, DistanceMeters(a, a))

	lagos := Coordinate{Lat: 6.5244, Lng: 3.3792}
	ibadan := Coordinate{Lat: 7.3775, Lng: 3.9470}
	assert.Equal(t, DistanceMeters(lagos, ibadan), DistanceMeters(ibadan, lagos))
	assert.Zero(t, DistanceMeters(lagos, lagos))
}

func TestDistanceMeters_MatchesS2(t *testing.T) {
	pairs := [][2]Coordinate{
		{{6.5244, 3.3792}, {7.3775, 3.9470}},
		{{51.5074, -0.1278}, {48.8566, 2.3522}},
		{{-33.8688, 151.2093}, {-37.8136, 144.9631}},
		{{0, 179.5}, {0, -179.5}},
	}
	for _, p := range pairs {
		want := s2.LatLngFromDegrees(p[0].Lat, p[0].Lng).
			Distance(s2.LatLngFromDegrees(p[1].Lat, p[1].Lng)).Radians() * earthRadiusMeters
		assert.InDelta(t, want, DistanceMeters(p[0], p[1]), 1e-3)
	}
}

// northOf returns a point due north of c by the given number of meters.
func northOf(c Coordinate, meters float64) Coordinate {
	return Coordinate{Lat: c.Lat + meters/earthRadiusMeters*180/math.Pi, Lng: c.Lng}
}

func TestEvaluate(t *testing.T) {
	venue := Coordinate{Lat: 6.5, Lng: 3.4}

	t.Run("no venue disables check", func(t *testing.T) {
		v := Evaluate(venue, nil, DefaultThresholdMeters)
		assert.False(t, v.WithinRange)
		assert.Nil(t, v.DistanceMeters)
		assert.True(t, v.CheckDisabled)
	})

	t.Run("invalid venue disables check", func(t *testing.T) {
		v := Evaluate(venue, &Coordinate{Lat: 91, Lng: 10}, DefaultThresholdMeters)
		assert.False(t, v.WithinRange)
		assert.True(t, v.CheckDisabled)
	})

	t.Run("invalid live position", func(t *testing.T) {
		v := Evaluate(Coordinate{Lat: math.NaN()}, &venue, DefaultThresholdMeters)
		assert.False(t, v.WithinRange)
		assert.Nil(t, v.DistanceMeters)
		assert.False(t, v.CheckDisabled)
	})

	t.Run("inside radius", func(t *testing.T) {
		v := Evaluate(northOf(venue, 29999), &venue, DefaultThresholdMeters)
		require.NotNil(t, v.DistanceMeters)
		assert.InDelta(t, 29999, *v.DistanceMeters, 0.01)
		assert.True(t, v.WithinRange)
	})

	t.Run("just outside radius", func(t *testing.T) {
		v := Evaluate(northOf(venue, 30001), &venue, DefaultThresholdMeters)
		assert.False(t, v.WithinRange)
	})

	t.Run("boundary is inclusive", func(t *testing.T) {
		live := northOf(venue, 30000)
		d := DistanceMeters(live, venue)
		assert.True(t, Evaluate(live, &venue, d).WithinRange)
		assert.False(t, Evaluate(live, &venue, math.Nextafter(d, 0)).WithinRange)
	})
}

func TestFormatKilometers(t *testing.T) {
	assert.Equal(t, "12.34 km", FormatKilometers(12340))
	assert.Equal(t, "0.00 km", FormatKilometers(0))
}

func TestPolicyDefaultsThreshold(t *testing.T) {
	venue := Coordinate{Lat: 6.5, Lng: 3.4}
	assert.True(t, Policy{}.Evaluate(northOf(venue, 29000), &venue).WithinRange)
	assert.False(t, Policy{ThresholdMeters: 100}.Evaluate(northOf(venue, 29000), &venue).WithinRange)
}

func TestDistanceMeters_Antipodal(t *testing.T) {
	halfCircumference := math.Pi * earthRadiusMeters
	pairs := []Coordinate{
		{Lat: 18.8389, Lng: 158.5833},
		{Lat: 0, Lng: 0},
		{Lat: 90, Lng: 0},
		{Lat: -45.5, Lng: 179.9},
		{Lat: 6.5, Lng: 3.4},
	}
	for _, a := range pairs {
		lng := a.Lng - 180
		if lng < -180 {
			lng += 360
		}
		b := Coordinate{Lat: -a.Lat, Lng: lng}
		d := DistanceMeters(a, b)
		assert.False(t, math.IsNaN(d), "%v -> %v", a, b)
		assert.InDelta(t, halfCircumference, d, 1, "%v -> %v", a, b)
	}

	// A pseudo-random sweep of exact antipodes must never yield NaN.
	for i := 0; i < 10000; i++ {
		lat := math.Mod(float64(i)*7.919, 180) - 90
		lng := math.Mod(float64(i)*13.37, 180)
		d := DistanceMeters(Coordinate{Lat: lat, Lng: lng}, Coordinate{Lat: -lat, Lng: lng - 180})
		require.False(t, math.IsNaN(d), "lat=%v lng=%v", lat, lng)
		require.GreaterOrEqual(t, d, 0.0)
	}
}

func TestParse_NoAxisSwap(t *testing.T) {
	tests := []struct {
		name     string
		lat, lng any
		want     Coordinate
		ok       bool
	}{
		{"valid", 6.5, 3.4, Coordinate{Lat: 6.5, Lng: 3.4}, true},
		{"string values", " 6.5 ", "3.4", Coordinate{Lat: 6.5, Lng: 3.4}, true},
		{"transposed rejected", 120.0, 45.0, Coordinate{}, false},
		{"lng out of range", 45.0, 200.0, Coordinate{}, false},
		{"nil", nil, 3.4, Coordinate{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.lat, tt.lng)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	swapped, ok := Normalize(120.0, 45.0)
	require.True(t, ok)
	assert.Equal(t, Coordinate{Lat: 45, Lng: 120}, swapped)
}
