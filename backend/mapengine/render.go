package mapengine

import (
	"context"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"pricemap/backend/bounds"
	"pricemap/backend/locality"
	"pricemap/backend/metrics"
	"pricemap/backend/model"
	"pricemap/backend/tier"
	"pricemap/backend/viewport"
)

type LatLng struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type PriceMarker struct {
	ID model.EntityID `json:"id"`
	// Position is where the marker is drawn; TruePosition is the resolved
	// coordinate before the display offset.
	Position     LatLng                 `json:"position"`
	TruePosition LatLng                 `json:"true_position"`
	Approximate  bool                   `json:"is_approximate_location"`
	Icon         Icon                   `json:"icon"`
	Price        model.PriceObservation `json:"price"`
	OnClick      func() bool            `json:"-"`
}

type SummaryState string

const (
	SummaryNone    SummaryState = "none"
	SummaryLoading SummaryState = "loading"
	SummaryReady   SummaryState = "ready"
	SummaryFailed  SummaryState = "failed"
)

// SummaryView is what the popup of a place shows.
type SummaryView struct {
	State        SummaryState         `json:"state"`
	Summary      *model.EntitySummary `json:"summary,omitempty"`
	AnyAvailable bool                 `json:"any_available"`
	Error        string               `json:"error,omitempty"`
}

type PlaceMarker struct {
	Ref          model.EntityRef                                         `json:"ref"`
	Position     LatLng                                                  `json:"position"`
	TruePosition LatLng                                                  `json:"true_position"`
	Approximate  bool                                                    `json:"is_approximate_location"`
	Icon         Icon                                                    `json:"icon"`
	Place        model.Place                                             `json:"place"`
	Summary      SummaryView                                             `json:"summary"`
	OnOpen       func(ctx context.Context) (*model.EntitySummary, error) `json:"-"`
}

type Counts struct {
	Prices    int `json:"prices"`
	Stores    int `json:"stores"`
	Suppliers int `json:"suppliers"`
	// Places is stores and suppliers together.
	Places int `json:"places"`
	// Unplaced records had no usable position and are not drawn.
	Unplaced int `json:"unplaced"`
}

type RenderModel struct {
	Revision    uint64                         `json:"revision"`
	Prices      []PriceMarker                  `json:"prices"`
	Places      []PlaceMarker                  `json:"places"`
	Bounds      *bounds.Box                    `json:"bounds"`
	Counts      Counts                         `json:"counts"`
	Collections map[Collection]CollectionState `json:"collections"`
	Loading     bool                           `json:"loading"`
	Viewport    viewport.State                 `json:"viewport"`
	DefaultView View                           `json:"default_view"`
	Legend      []tier.LegendEntry             `json:"legend"`
}

// scene is the derived, positioned state of the last rebuild.
type scene struct {
	revision uint64
	prices   []PriceMarker
	places   []PlaceMarker
	bounds   *bounds.Box
	unplaced int
}

// rebuildLocked resolves, offsets and classifies every loaded record.
func (e *Engine) rebuildLocked() (uint64, *bounds.Box) {
	calc := bounds.NewCalculator()
	unplaced := 0

	prices := locality.ResolvePrices(e.prices, e.localities)
	priceMarkers := make([]PriceMarker, 0, len(prices))
	for _, p := range prices {
		lat, lon, ok := p.Position()
		if !ok {
			unplaced++
			continue
		}
		dLat, dLon := e.cfg.PriceJitter.Offset(lat, lon, p.ID)
		icon, _ := e.icons.ForPrice(p.Price)
		calc.Add(dLat, dLon)
		priceMarkers = append(priceMarkers, PriceMarker{
			ID:           p.ID,
			Position:     LatLng{Lat: dLat, Lon: dLon},
			TruePosition: LatLng{Lat: lat, Lon: lon},
			Approximate:  p.IsApproximateLocation,
			Icon:         icon,
			Price:        p,
		})
	}

	var placeMarkers []PlaceMarker
	for _, group := range [][]model.Place{e.stores, e.suppliers} {
		for _, p := range locality.ResolvePlaces(group, e.localities) {
			lat, lon, ok := p.Position()
			if !ok {
				unplaced++
				continue
			}
			dLat, dLon := e.cfg.jitterFor(p.Kind).Offset(lat, lon, p.ID)
			calc.Add(dLat, dLon)
			placeMarkers = append(placeMarkers, PlaceMarker{
				Ref:          p.Ref(),
				Position:     LatLng{Lat: dLat, Lon: dLon},
				TruePosition: LatLng{Lat: lat, Lon: lon},
				Approximate:  p.IsApproximateLocation,
				Icon:         e.icons.ForPlace(p.Kind),
				Place:        p,
			})
		}
	}

	e.scene = scene{
		revision: e.scene.revision + 1,
		prices:   priceMarkers,
		places:   placeMarkers,
		bounds:   calc.Box(),
		unplaced: unplaced,
	}
	metrics.RenderedMarkers.WithLabelValues("price").Set(float64(len(priceMarkers)))
	metrics.RenderedMarkers.WithLabelValues("place").Set(float64(len(placeMarkers)))
	return e.scene.revision, e.scene.bounds
}

// Render returns a snapshot of what the map should show.
func (e *Engine) Render() RenderModel {
	e.mu.Lock()
	sc := e.scene
	m := RenderModel{
		Revision:    sc.revision,
		Prices:      make([]PriceMarker, len(sc.prices)),
		Places:      make([]PlaceMarker, len(sc.places)),
		Collections: make(map[Collection]CollectionState, len(e.collections)),
		DefaultView: e.cfg.DefaultView,
		Counts: Counts{
			Prices:    len(e.prices),
			Stores:    len(e.stores),
			Suppliers: len(e.suppliers),
			Places:    len(e.stores) + len(e.suppliers),
			Unplaced:  sc.unplaced,
		},
	}
	if sc.bounds != nil {
		b := *sc.bounds
		m.Bounds = &b
	}
	for c, col := range e.collections {
		m.Collections[c] = col.state
		if col.state.Status == StatusLoading {
			m.Loading = true
		}
	}
	copy(m.Prices, sc.prices)
	copy(m.Places, sc.places)
	opening := lo.Keys(e.opening)
	openErrors := lo.MapEntries(e.openErrors, func(ref model.EntityRef, err error) (model.EntityRef, string) {
		return ref, err.Error()
	})
	e.mu.Unlock()

	for i := range m.Prices {
		id := m.Prices[i].ID
		m.Prices[i].OnClick = func() bool { return e.ClickPrice(id) }
	}
	for i := range m.Places {
		ref := m.Places[i].Ref
		m.Places[i].Summary = e.summaryView(ref, lo.Contains(opening, ref), openErrors[ref])
		m.Places[i].OnOpen = func(ctx context.Context) (*model.EntitySummary, error) {
			return e.OpenPlace(ctx, ref)
		}
	}
	m.Viewport = e.viewport.State()
	m.Legend = e.cfg.Tiers.Legend(e.cfg.Currency)
	return m
}

func (e *Engine) summaryView(ref model.EntityRef, opening bool, openErr string) SummaryView {
	if s, ok := e.cache.Peek(ref); ok {
		return SummaryView{State: SummaryReady, Summary: s, AnyAvailable: s.AnyAvailable()}
	}
	if opening || e.cache.Loading(ref) {
		return SummaryView{State: SummaryLoading}
	}
	if openErr != "" {
		return SummaryView{State: SummaryFailed, Error: openErr}
	}
	return SummaryView{State: SummaryNone}
}

// PriceTier classifies a price with the engine's tier table.
func (e *Engine) PriceTier(price decimal.Decimal) tier.Tier {
	_, t := e.icons.ForPrice(price)
	return t
}
