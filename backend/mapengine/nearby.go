package mapengine

import (
	"sort"

	"pricemap/backend/geomath"
)

type NearbyPlace struct {
	PlaceMarker
	DistanceMeters float64 `json:"distance_meters"`
}

// Nearby lists rendered stores and suppliers within radiusMeters of the
// point, closest first. Distances use the resolved position, not the
// display offset.
func (e *Engine) Nearby(lat, lon, radiusMeters float64) []NearbyPlace {
	m := e.Render()
	out := []NearbyPlace{}
	for _, p := range m.Places {
		d := geomath.HaversineMeters(lat, lon, p.TruePosition.Lat, p.TruePosition.Lon)
		if d <= radiusMeters {
			out = append(out, NearbyPlace{PlaceMarker: p, DistanceMeters: d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DistanceMeters < out[j].DistanceMeters
	})
	return out
}
