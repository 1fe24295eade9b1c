package locality

import (
	"github.com/apex/log"

	"pricemap/backend/model"
	"pricemap/backend/normalize"
)

// Index maps normalized locality names to their records.
type Index struct {
	byKey map[string]model.Locality
}

// NewIndex indexes localities by normalized name. On duplicate names the
// last record wins.
func NewIndex(localities []model.Locality) *Index {
	idx := &Index{byKey: make(map[string]model.Locality, len(localities))}
	for _, l := range localities {
		key := normalize.Key(l.Name)
		if key == "" {
			continue
		}
		if prev, ok := idx.byKey[key]; ok {
			log.Debugf("Locality %q (id %s) replaces %q (id %s)", l.Name, l.ID, prev.Name, prev.ID)
		}
		idx.byKey[key] = l
	}
	return idx
}

func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.byKey)
}

func (idx *Index) Lookup(name string) (model.Locality, bool) {
	if idx == nil {
		return model.Locality{}, false
	}
	l, ok := idx.byKey[normalize.Key(name)]
	if !ok || !model.ValidCoordinate(l.Latitude, l.Longitude) {
		return model.Locality{}, false
	}
	return l, true
}

// ResolveEntity returns a copy of e with a usable position if possible.
// Own coordinates win over the locality match; a miss clears the position.
func (idx *Index) ResolveEntity(e model.Entity, localityName string) model.Entity {
	if lat, lon, ok := e.Position(); ok {
		return e.WithPosition(lat, lon, false)
	}
	if l, ok := idx.Lookup(localityName); ok {
		return e.WithPosition(l.Latitude, l.Longitude, true)
	}
	return e.WithoutPosition()
}

// ResolvePlaces resolves stores and suppliers through their city.
func ResolvePlaces(places []model.Place, idx *Index) []model.Place {
	out := make([]model.Place, len(places))
	for i, p := range places {
		p.Entity = idx.ResolveEntity(p.Entity, p.City)
		out[i] = p
	}
	return out
}

// ResolvePrices resolves price observations through their locality name.
func ResolvePrices(prices []model.PriceObservation, idx *Index) []model.PriceObservation {
	out := make([]model.PriceObservation, len(prices))
	for i, p := range prices {
		p.Entity = idx.ResolveEntity(p.Entity, p.LocalityName)
		out[i] = p
	}
	return out
}
