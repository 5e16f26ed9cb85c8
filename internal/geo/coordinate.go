package geo

import (
	"database/sql"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Coordinate is a latitude/longitude pair in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}

// Valid reports whether both components are finite and within range.
func (c Coordinate) Valid() bool {
	if !finite(c.Lat) || !finite(c.Lng) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// Ptr returns a pointer to a copy of c.
func (c Coordinate) Ptr() *Coordinate {
	return &c
}

// Normalize coerces a raw latitude/longitude pair to a valid Coordinate.
//
// Values may be numbers, numeric strings, pointers to either, json.Number or
// sql.NullFloat64. When one axis is out of range for latitude but plausible as
// longitude (or the reverse) the pair is assumed to be transposed and swapped
// before the range check. The function never panics; anything it cannot make
// sense of yields ok == false.
func Normalize(rawLat, rawLng any) (Coordinate, bool) {
	lat, ok := toFloat(rawLat)
	if !ok {
		return Coordinate{}, false
	}
	lng, ok := toFloat(rawLng)
	if !ok {
		return Coordinate{}, false
	}

	// Both axes out of range at once is left alone and fails below.
	if (math.Abs(lat) > 90 && math.Abs(lng) <= 90) || (math.Abs(lat) <= 90 && math.Abs(lng) > 180) {
		lat, lng = lng, lat
	}

	c := Coordinate{Lat: lat, Lng: lng}
	if !c.Valid() {
		return Coordinate{}, false
	}
	return c, true
}

// Parse coerces a raw pair like Normalize but never swaps axes. Device
// positions go through Parse so that a transposed fix is rejected.
func Parse(rawLat, rawLng any) (Coordinate, bool) {
	lat, ok := toFloat(rawLat)
	if !ok {
		return Coordinate{}, false
	}
	lng, ok := toFloat(rawLng)
	if !ok {
		return Coordinate{}, false
	}
	c := Coordinate{Lat: lat, Lng: lng}
	if !c.Valid() {
		return Coordinate{}, false
	}
	return c, true
}

// NormalizePtr is Normalize for nullable float columns.
func NormalizePtr(lat, lng *float64) (Coordinate, bool) {
	if lat == nil || lng == nil {
		return Coordinate{}, false
	}
	return Normalize(*lat, *lng)
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int8:
		f = float64(x)
	case int16:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint8:
		f = float64(x)
	case uint16:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case json.Number:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(string(x)), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case sql.NullFloat64:
		if !x.Valid {
			return 0, false
		}
		f = x.Float64
	case *float64:
		if x == nil {
			return 0, false
		}
		f = *x
	case *string:
		if x == nil {
			return 0, false
		}
		return toFloat(*x)
	default:
		return 0, false
	}
	if !finite(f) {
		return 0, false
	}
	return f, true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
