package mapengine

import (
	geojson "github.com/paulmach/go.geojson"
)

// FeatureCollection exports the rendered markers as GeoJSON points at their
// display positions.
func (m RenderModel) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, p := range m.Prices {
		f := geojson.NewPointFeature([]float64{p.Position.Lon, p.Position.Lat})
		f.ID = string(p.ID)
		f.SetProperty("kind", "price")
		f.SetProperty("product_name", p.Price.ProductName)
		f.SetProperty("price", p.Price.Price.String())
		f.SetProperty("unit_symbol", p.Price.UnitSymbol)
		f.SetProperty("locality_name", p.Price.LocalityName)
		f.SetProperty("tier", p.Icon.Tier)
		f.SetProperty("color", p.Icon.Color)
		f.SetProperty("size", p.Icon.SizePx)
		f.SetProperty("glyph", p.Icon.Glyph)
		f.SetProperty("approximate", p.Approximate)
		fc.AddFeature(f)
	}
	for _, p := range m.Places {
		f := geojson.NewPointFeature([]float64{p.Position.Lon, p.Position.Lat})
		f.ID = p.Ref.String()
		f.SetProperty("kind", string(p.Ref.Kind))
		f.SetProperty("name", p.Place.Name)
		f.SetProperty("address", p.Place.Address)
		f.SetProperty("city", p.Place.City)
		f.SetProperty("color", p.Icon.Color)
		f.SetProperty("glyph", p.Icon.Glyph)
		f.SetProperty("approximate", p.Approximate)
		f.SetProperty("summary_state", string(p.Summary.State))
		fc.AddFeature(f)
	}
	if m.Bounds != nil {
		fc.BoundingBox = []float64{m.Bounds.LonMin, m.Bounds.LatMin, m.Bounds.LonMax, m.Bounds.LatMax}
	}
	return fc
}
