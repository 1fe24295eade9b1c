package api

import (
	"pricemap/backend/chart"
	"pricemap/backend/mapengine"
	"pricemap/backend/model"
	"pricemap/backend/viewport"
)

const Version = "2.0"

type BaseArgs struct {
	Version string `json:"version"` // Must be "2.0"
}

type SessionArgs struct {
	Version   string `json:"version"` // Must be "2.0"
	SessionID string `json:"session_id"`
}

type CreateSessionArgs struct {
	Version string        `json:"version"` // Must be "2.0"
	Filters model.Filters `json:"filters"`
	// Map size in pixels, used to pick the fit zoom.
	WidthPx  int   `json:"width_px"`
	HeightPx int   `json:"height_px"`
	AutoFit  *bool `json:"auto_fit"` // Defaults to true.
}

type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}

type FiltersArgs struct {
	Version   string        `json:"version"` // Must be "2.0"
	SessionID string        `json:"session_id"`
	Filters   model.Filters `json:"filters"`
}

type MapViewResponse struct {
	mapengine.RenderModel
	Selected *model.PriceObservation `json:"selected,omitempty"`
}

type FitResponse struct {
	Applied bool          `json:"applied"`
	Fit     *viewport.Fit `json:"fit,omitempty"`
}

type RetryArgs struct {
	Version    string `json:"version"` // Must be "2.0"
	SessionID  string `json:"session_id"`
	Collection string `json:"collection"` // prices, stores, suppliers or localities
}

type ClickPriceArgs struct {
	Version   string         `json:"version"` // Must be "2.0"
	SessionID string         `json:"session_id"`
	ID        model.EntityID `json:"id"`
}

type OpenPlaceArgs struct {
	Version   string         `json:"version"` // Must be "2.0"
	SessionID string         `json:"session_id"`
	Kind      string         `json:"kind"` // store or supplier
	ID        model.EntityID `json:"id"`
	// Async returns immediately; the summary then shows up in /get_map_view.
	Async bool `json:"async"`
}

type OpenPlaceResponse struct {
	Ref          model.EntityRef      `json:"ref"`
	Loading      bool                 `json:"loading"`
	Summary      *model.EntitySummary `json:"summary,omitempty"`
	AnyAvailable bool                 `json:"any_available"`
}

type NearbyArgs struct {
	Version   string  `json:"version"` // Must be "2.0"
	SessionID string  `json:"session_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	RadiusKm  float64 `json:"radius_km"` // Defaults to 10.
}

type NearbyResponse struct {
	Places []mapengine.NearbyPlace `json:"places"`
}

type ChartArgs struct {
	Version    string         `json:"version"` // Must be "2.0"
	ProductID  model.EntityID `json:"product_id"`
	LocalityID model.EntityID `json:"locality_id"`
	PeriodDays int            `json:"period_days"` // 7, 30, 90 or 180; defaults to 30.
	// PointerX is the pointer offset within the rendered chart, if hovering.
	PointerX      *float64 `json:"pointer_x"`
	RenderedWidth float64  `json:"rendered_width"`
}

type ChartResponse struct {
	chart.Model
	PeriodDays       int                   `json:"period_days"`
	Periods          []int                 `json:"periods"`
	Focus            *model.EvolutionPoint `json:"focus,omitempty"`
	DayOverDay       string                `json:"var_day_label"`
	PeriodOverPeriod string                `json:"var_period_label"`
}
