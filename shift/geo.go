package shift

import "math"

// EarthRadiusMeters is the mean radius used by the haversine formula.
const EarthRadiusMeters = 6371e3

// DefaultProximityMeters is how close a caregiver must be to the patient's
// address to clock in or out.
const DefaultProximityMeters = 70.0

// LatLng is a WGS84 coordinate in degrees.
type LatLng struct {
	Lat float64
	Lng float64
}

// Valid reports whether the coordinate is on the globe.
func (p LatLng) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// DistanceMeters returns the great-circle distance between a and b.
func DistanceMeters(a, b LatLng) float64 {
	phi1 := a.Lat * math.Pi / 180
	phi2 := b.Lat * math.Pi / 180
	dPhi := (b.Lat - a.Lat) * math.Pi / 180
	dLambda := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}

// Within reports whether a and b are at most thresholdMeters apart.
// An unknown location (nil or invalid) is never within range.
func Within(a, b *LatLng, thresholdMeters float64) bool {
	if a == nil || b == nil || !a.Valid() || !b.Valid() {
		return false
	}
	return DistanceMeters(*a, *b) <= thresholdMeters
}
