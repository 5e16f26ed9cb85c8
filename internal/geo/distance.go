package geo

import (
	"fmt"
	"math"
)

// earthRadiusMeters is the mean Earth radius used by the haversine formula.
const earthRadiusMeters = 6371000

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// DistanceMeters returns the great-circle distance between a and b using the
// haversine formula.
func DistanceMeters(a, b Coordinate) float64 {
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(a.Lat))*math.Cos(toRadians(b.Lat))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	// Rounding can push h slightly outside [0, 1] for antipodal points.
	h = math.Min(1, math.Max(0, h))

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusMeters * c
}

// MetersToKilometers converts meters to kilometers.
func MetersToKilometers(m float64) float64 {
	return m / 1000
}

// FormatKilometers renders a distance for display, e.g. "12.34 km".
func FormatKilometers(m float64) string {
	return fmt.Sprintf("%.2f km", MetersToKilometers(m))
}
