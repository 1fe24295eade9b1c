package geomath

import (
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// EarthRadiusMeters is the mean Earth radius used for every distance.
const EarthRadiusMeters = 6371000.0

// HaversineMeters is the great-circle distance between two points.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	a := s2.LatLngFromDegrees(lat1, lon1)
	b := s2.LatLngFromDegrees(lat2, lon2)
	return a.Distance(b).Radians() * EarthRadiusMeters
}

func DegToRad(deg float64) float64 {
	return (s1.Angle(deg) * s1.Degree).Radians()
}

func RadToDeg(rad float64) float64 {
	return (s1.Angle(rad) * s1.Radian).Degrees()
}

// MetersToDegrees converts an arc length on the Earth's surface to degrees.
func MetersToDegrees(m float64) float64 {
	return RadToDeg(m / EarthRadiusMeters)
}

func DegreesToMeters(deg float64) float64 {
	return DegToRad(deg) * EarthRadiusMeters
}
