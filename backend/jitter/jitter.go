package jitter

import (
	"math"

	"pricemap/backend/geomath"
	"pricemap/backend/model"
)

// minLatitudeScale keeps the longitude offset bounded near the poles.
const minLatitudeScale = 0.1

// Config describes the circle on which markers of one entity class are spread.
// Different classes use different angular steps so that equal ids of, say, a
// store and a supplier do not land on the same spot.
type Config struct {
	RadiusDegrees float64 `json:"radius_degrees"`
	StepDegrees   float64 `json:"step_degrees"`
}

var (
	Prices    = Config{RadiusDegrees: 0.0015, StepDegrees: 53}
	Suppliers = Config{RadiusDegrees: 0.002, StepDegrees: 37}
	Stores    = Config{RadiusDegrees: 0.0018, StepDegrees: 71}
)

// FromMeters builds a config whose radius is given in meters.
func FromMeters(radiusMeters, stepDegrees float64) Config {
	return Config{
		RadiusDegrees: geomath.MetersToDegrees(radiusMeters),
		StepDegrees:   stepDegrees,
	}
}

// ForKind returns the preset used for an entity class.
func ForKind(k model.Kind) Config {
	switch k {
	case model.KindStore:
		return Stores
	case model.KindSupplier:
		return Suppliers
	default:
		return Prices
	}
}

// Angle is the direction, in degrees, of the offset for the given id.
func (c Config) Angle(id model.EntityID) float64 {
	return math.Mod(float64(id.Seed())*c.StepDegrees, 360)
}

// Offset returns the display position of a marker. It is a pure function of
// its inputs and must never be stored back as the entity's coordinate.
func (c Config) Offset(lat, lon float64, id model.EntityID) (float64, float64) {
	angle := geomath.DegToRad(c.Angle(id))
	dLat := c.RadiusDegrees * math.Cos(angle)
	dLon := c.RadiusDegrees * math.Sin(angle) / math.Max(math.Cos(geomath.DegToRad(lat)), minLatitudeScale)
	return lat + dLat, lon + dLon
}
