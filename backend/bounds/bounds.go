package bounds

import (
	"math"

	"github.com/golang/geo/r1"
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

const (
	tileSize    = 256
	maxMercLat  = 85.05112878
	MinZoom     = 0
	MaxTileZoom = 18
)

// Box is a latitude/longitude bounding box.
type Box struct {
	LatMin float64 `json:"latmin"`
	LonMin float64 `json:"lonmin"`
	LatMax float64 `json:"latmax"`
	LonMax float64 `json:"lonmax"`
}

// Calculator accumulates points; every point weighs the same regardless of
// which collection it came from.
type Calculator struct {
	lat r1.Interval
	lon r1.Interval
	n   int
}

func NewCalculator() *Calculator {
	return &Calculator{lat: r1.EmptyInterval(), lon: r1.EmptyInterval()}
}

func (c *Calculator) Add(lat, lon float64) {
	if c.n == 0 {
		c.lat = r1.IntervalFromPoint(lat)
		c.lon = r1.IntervalFromPoint(lon)
	} else {
		c.lat = c.lat.AddPoint(lat)
		c.lon = c.lon.AddPoint(lon)
	}
	c.n++
}

func (c *Calculator) AddLatLng(ll s2.LatLng) {
	c.Add(ll.Lat.Degrees(), ll.Lng.Degrees())
}

func (c *Calculator) Count() int {
	return c.n
}

// Box returns nil when no point was added.
func (c *Calculator) Box() *Box {
	if c.n == 0 {
		return nil
	}
	return &Box{
		LatMin: c.lat.Lo,
		LonMin: c.lon.Lo,
		LatMax: c.lat.Hi,
		LonMax: c.lon.Hi,
	}
}

// Compute returns the minimal box covering every point of every set.
func Compute(sets ...[]s2.LatLng) *Box {
	c := NewCalculator()
	for _, set := range sets {
		for _, ll := range set {
			c.AddLatLng(ll)
		}
	}
	return c.Box()
}

func (b Box) Rect() s2.Rect {
	minLL := s2.LatLngFromDegrees(b.LatMin, b.LonMin)
	maxLL := s2.LatLngFromDegrees(b.LatMax, b.LonMax)
	return s2.Rect{
		Lat: r1.Interval{
			Lo: minLL.Lat.Radians(),
			Hi: maxLL.Lat.Radians()},
		Lng: s1.Interval{
			Lo: minLL.Lng.Radians(),
			Hi: maxLL.Lng.Radians()},
	}
}

func (b Box) Center() s2.LatLng {
	return b.Rect().Center()
}

func (b Box) IsPoint() bool {
	return b.LatMin == b.LatMax && b.LonMin == b.LonMax
}

func (b Box) Contains(lat, lon float64) bool {
	return lat >= b.LatMin && lat <= b.LatMax && lon >= b.LonMin && lon <= b.LonMax
}

// Pad grows the box on each side by ratio of its own size.
func (b Box) Pad(ratio float64) Box {
	dLat := (b.LatMax - b.LatMin) * ratio
	dLon := (b.LonMax - b.LonMin) * ratio
	return Box{
		LatMin: b.LatMin - dLat,
		LonMin: b.LonMin - dLon,
		LatMax: b.LatMax + dLat,
		LonMax: b.LonMax + dLon,
	}
}

func mercatorX(lon float64) float64 {
	return (lon + 180) / 360
}

func mercatorY(lat float64) float64 {
	lat = math.Max(-maxMercLat, math.Min(maxMercLat, lat))
	rad := lat * math.Pi / 180
	return (1 - math.Log(math.Tan(rad)+1/math.Cos(rad))/math.Pi) / 2
}

// FitZoom finds the highest web-mercator zoom, between minZoom and maxZoom,
// at which the box fits a map of the given pixel size with padding on every
// side. A box that never fits gets minZoom.
func FitZoom(b Box, widthPx, heightPx, paddingPx, minZoom, maxZoom int) int {
	if maxZoom < minZoom {
		maxZoom = minZoom
	}
	availW := float64(widthPx - 2*paddingPx)
	availH := float64(heightPx - 2*paddingPx)
	if availW <= 0 || availH <= 0 {
		return minZoom
	}
	spanX := mercatorX(b.LonMax) - mercatorX(b.LonMin)
	spanY := mercatorY(b.LatMin) - mercatorY(b.LatMax)

	for z := maxZoom; z >= minZoom; z-- {
		world := tileSize * math.Exp2(float64(z))
		if spanX*world <= availW && spanY*world <= availH {
			return z
		}
	}
	return minZoom
}
