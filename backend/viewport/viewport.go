package viewport

import (
	"sync"

	"github.com/apex/log"

	"pricemap/backend/bounds"
)

type Phase string

const (
	Uninitialized Phase = "uninitialized"
	AutoFitted    Phase = "auto_fitted"
	Idle          Phase = "idle"
	Refitting     Phase = "refitting"
)

type Reason string

const (
	ReasonAuto      Reason = "auto"
	ReasonRequested Reason = "requested"
)

type Config struct {
	InitialAutoFit bool
	PaddingPx      int
	// MaxZoom caps explicit fits so a single point does not over-zoom.
	MaxZoom int
	// AutoFitMaxZoom caps the initial fit.
	AutoFitMaxZoom int
	WidthPx        int
	HeightPx       int
}

func DefaultConfig() Config {
	return Config{
		InitialAutoFit: true,
		PaddingPx:      30,
		MaxZoom:        12,
		AutoFitMaxZoom: bounds.MaxTileZoom,
		WidthPx:        1024,
		HeightPx:       600,
	}
}

// Fit is the instruction handed to the map to show a box.
type Fit struct {
	Bounds    bounds.Box `json:"bounds"`
	CenterLat float64    `json:"center_lat"`
	CenterLon float64    `json:"center_lon"`
	Zoom      int        `json:"zoom"`
	PaddingPx int        `json:"padding_px"`
	Reason    Reason     `json:"reason"`
}

type State struct {
	Bounds        *bounds.Box `json:"bounds"`
	HasAutoFitted bool        `json:"has_auto_fitted"`
	FitRequested  bool        `json:"fit_requested"`
	Phase         Phase       `json:"phase"`
	LastFit       *Fit        `json:"last_fit,omitempty"`
}

// Controller decides when the map viewport is fitted to the current bounds.
// The automatic fit happens at most once per controller; later bounds
// changes only move the map when a fit is requested explicitly.
type Controller struct {
	mu            sync.Mutex
	cfg           Config
	onFit         func(Fit)
	bounds        *bounds.Box
	hasAutoFitted bool
	fitRequested  bool
	phase         Phase
	lastFit       *Fit
}

func NewController(cfg Config, onFit func(Fit)) *Controller {
	return &Controller{
		cfg:   cfg,
		onFit: onFit,
		phase: Uninitialized,
	}
}

func (c *Controller) SetMapSize(widthPx, heightPx int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.WidthPx = widthPx
	c.cfg.HeightPx = heightPx
}

// SetBounds records freshly computed bounds and performs the initial fit if
// it is due.
func (c *Controller) SetBounds(b *bounds.Box) {
	c.mu.Lock()
	c.bounds = copyBox(b)
	if c.hasAutoFitted || !c.cfg.InitialAutoFit || b == nil {
		if c.phase == AutoFitted {
			c.phase = Idle
		}
		c.mu.Unlock()
		return
	}
	c.hasAutoFitted = true
	fit := c.fitLocked(*b, c.cfg.AutoFitMaxZoom, ReasonAuto)
	c.phase = AutoFitted
	c.mu.Unlock()

	log.Debugf("Initial viewport fit to %+v at zoom %d", fit.Bounds, fit.Zoom)
	c.emit(fit)
}

// RequestFit fits the map to the current bounds. Without bounds the request
// is dropped and false is returned.
func (c *Controller) RequestFit() bool {
	c.mu.Lock()
	c.fitRequested = true
	if c.bounds == nil {
		c.fitRequested = false
		c.mu.Unlock()
		log.Debug("Viewport fit requested without bounds, ignoring")
		return false
	}
	c.phase = Refitting
	fit := c.fitLocked(*c.bounds, c.cfg.MaxZoom, ReasonRequested)
	c.mu.Unlock()

	c.emit(fit)

	c.mu.Lock()
	c.fitRequested = false
	c.phase = Idle
	c.mu.Unlock()
	return true
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	var last *Fit
	if c.lastFit != nil {
		f := *c.lastFit
		last = &f
	}
	return State{
		Bounds:        copyBox(c.bounds),
		HasAutoFitted: c.hasAutoFitted,
		FitRequested:  c.fitRequested,
		Phase:         c.phase,
		LastFit:       last,
	}
}

func (c *Controller) fitLocked(b bounds.Box, maxZoom int, reason Reason) Fit {
	center := b.Center()
	fit := Fit{
		Bounds:    b,
		CenterLat: center.Lat.Degrees(),
		CenterLon: center.Lng.Degrees(),
		Zoom:      bounds.FitZoom(b, c.cfg.WidthPx, c.cfg.HeightPx, c.cfg.PaddingPx, bounds.MinZoom, maxZoom),
		PaddingPx: c.cfg.PaddingPx,
		Reason:    reason,
	}
	c.lastFit = &fit
	return fit
}

func (c *Controller) emit(fit Fit) {
	if c.onFit != nil {
		c.onFit(fit)
	}
}

func copyBox(b *bounds.Box) *bounds.Box {
	if b == nil {
		return nil
	}
	cp := *b
	return &cp
}
