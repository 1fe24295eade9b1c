package mapengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/samber/lo"

	"pricemap/backend/bounds"
	"pricemap/backend/jitter"
	"pricemap/backend/locality"
	"pricemap/backend/metrics"
	"pricemap/backend/model"
	"pricemap/backend/summary"
	"pricemap/backend/tier"
	"pricemap/backend/viewport"
)

type Config struct {
	// Debounce coalesces filter changes before collections are reloaded.
	Debounce time.Duration
	// FetchTimeout bounds every call into the Source. Zero means no limit.
	FetchTimeout time.Duration

	PriceJitter    jitter.Config
	StoreJitter    jitter.Config
	SupplierJitter jitter.Config

	Tiers    tier.Table
	Currency string

	Viewport viewport.Config
	// DefaultView is shown until the first fit.
	DefaultView View
	// Filters apply to the first load started by Start.
	Filters model.Filters
}

// View is a map center and zoom.
type View struct {
	CenterLat float64 `json:"center_lat"`
	CenterLon float64 `json:"center_lon"`
	Zoom      int     `json:"zoom"`
}

func DefaultConfig() Config {
	return Config{
		Debounce:       300 * time.Millisecond,
		FetchTimeout:   30 * time.Second,
		PriceJitter:    jitter.Prices,
		StoreJitter:    jitter.Stores,
		SupplierJitter: jitter.Suppliers,
		Tiers:          tier.Default,
		Currency:       "FCFA",
		Viewport:       viewport.DefaultConfig(),
		DefaultView:    View{CenterLat: 9.3077, CenterLon: 2.3158, Zoom: 7},
	}
}

func (c Config) jitterFor(k model.Kind) jitter.Config {
	switch k {
	case model.KindStore:
		return c.StoreJitter
	case model.KindSupplier:
		return c.SupplierJitter
	default:
		return c.PriceJitter
	}
}

// Callbacks are invoked without any engine lock held.
type Callbacks struct {
	OnPriceClick func(model.PriceObservation)
	OnFit        func(viewport.Fit)
	// OnChange fires whenever the render model may have changed.
	OnChange func()
}

type collection struct {
	generation uint64
	state      CollectionState
}

// Engine turns the host's collections into map markers. Each collection
// loads on its own; whatever has arrived is rendered.
type Engine struct {
	cfg      Config
	src      Source
	cb       Callbacks
	icons    *IconFactory
	cache    *summary.Cache
	viewport *viewport.Controller

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	closed      bool
	filters     model.Filters
	debounce    *time.Timer
	debounceSeq uint64
	collections map[Collection]*collection
	prices      []model.PriceObservation
	stores      []model.Place
	suppliers   []model.Place
	localities  *locality.Index
	scene       scene
	opening     map[model.EntityRef]int
	openErrors  map[model.EntityRef]error

	notifyMu sync.Mutex
	notified uint64
}

func New(src Source, cfg Config, cb Callbacks) (*Engine, error) {
	if src == nil {
		return nil, errors.New("map engine needs a source")
	}
	if err := cfg.Tiers.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tier table: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:         cfg,
		src:         src,
		cb:          cb,
		icons:       NewIconFactory(cfg.Tiers),
		cache:       summary.New(),
		ctx:         ctx,
		cancel:      cancel,
		filters:     cfg.Filters,
		collections: map[Collection]*collection{},
		opening:     map[model.EntityRef]int{},
		openErrors:  map[model.EntityRef]error{},
	}
	for _, c := range Collections {
		e.collections[c] = &collection{state: CollectionState{Status: StatusIdle}}
	}
	e.viewport = viewport.NewController(cfg.Viewport, e.handleFit)
	return e, nil
}

// Start loads every collection with the current filters.
func (e *Engine) Start() {
	for _, c := range Collections {
		e.load(c)
	}
}

// SetFilters schedules a reload of the filtered collections. Calls within
// the debounce window collapse into one reload with the last filters.
func (e *Engine) SetFilters(f model.Filters) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.filters = f
	if e.debounce != nil {
		e.debounce.Stop()
	}
	e.debounceSeq++
	seq := e.debounceSeq
	e.debounce = time.AfterFunc(e.cfg.Debounce, func() { e.flushFilters(seq) })
}

func (e *Engine) Filters() model.Filters {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.filters
}

func (e *Engine) flushFilters(seq uint64) {
	e.mu.Lock()
	if e.closed || seq != e.debounceSeq {
		e.mu.Unlock()
		return
	}
	e.debounce = nil
	key := e.filters.QueryKey()
	e.mu.Unlock()

	log.Infof("Reloading map collections for filters %q", key)
	for _, c := range filtered {
		e.load(c)
	}
}

// Retry reloads a collection whose last load failed.
func (e *Engine) Retry(c Collection) error {
	e.mu.Lock()
	col, ok := e.collections[c]
	if !ok {
		e.mu.Unlock()
		return ErrUnknownCollection
	}
	if col.state.Status != StatusFailed {
		e.mu.Unlock()
		return fmt.Errorf("%s: %w", c, ErrNotFailed)
	}
	e.mu.Unlock()

	log.Infof("Retrying %s", c)
	e.load(c)
	return nil
}

func (e *Engine) load(c Collection) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	col := e.collections[c]
	col.generation++
	gen := col.generation
	col.state.Status = StatusLoading
	col.state.Retryable = false
	filters := e.filters
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		ctx, cancel := e.fetchContext(e.ctx)
		defer cancel()

		start := time.Now()
		apply, n, err := e.fetch(ctx, c, filters)
		metrics.CollectionFetchDurationSeconds.WithLabelValues(string(c)).Observe(time.Since(start).Seconds())
		e.finish(c, gen, apply, n, err)
	}()
	e.changed()
}

// fetch calls the source and returns a function that installs the result.
// The returned function must run under e.mu.
func (e *Engine) fetch(ctx context.Context, c Collection, filters model.Filters) (func(), int, error) {
	switch c {
	case Prices:
		v, err := e.src.FetchPrices(ctx, filters)
		return func() { e.prices = v }, len(v), err
	case Stores:
		v, err := e.src.FetchStores(ctx)
		v = withKind(v, model.KindStore)
		return func() { e.stores = v }, len(v), err
	case Suppliers:
		v, err := e.src.FetchSuppliers(ctx)
		v = withKind(v, model.KindSupplier)
		return func() { e.suppliers = v }, len(v), err
	case Localities:
		v, err := e.src.FetchLocalities(ctx)
		if err != nil {
			return nil, 0, err
		}
		idx := locality.NewIndex(v)
		return func() { e.localities = idx }, len(v), nil
	}
	return nil, 0, fmt.Errorf("%s: %w", c, ErrUnknownCollection)
}

func withKind(places []model.Place, k model.Kind) []model.Place {
	return lo.Map(places, func(p model.Place, _ int) model.Place {
		p.Kind = k
		return p
	})
}

func (e *Engine) finish(c Collection, gen uint64, apply func(), n int, err error) {
	e.mu.Lock()
	col := e.collections[c]
	if e.closed || gen != col.generation {
		current := col.generation
		e.mu.Unlock()
		metrics.StaleResultsTotal.WithLabelValues(string(c)).Inc()
		log.Debugf("Dropping stale %s result (generation %d, current %d)", c, gen, current)
		return
	}

	if err != nil {
		kind := ClassifyError(err)
		col.state = CollectionState{
			Status:    StatusFailed,
			Error:     err.Error(),
			ErrorKind: kind,
			Message:   kind.Message(),
			Retryable: true,
			UpdatedAt: time.Now(),
		}
		e.resetLocked(c)
		rev, b := e.rebuildLocked()
		e.mu.Unlock()

		log.Errorf("Failed to load %s: %v", c, err)
		metrics.CollectionFetchesTotal.WithLabelValues(string(c), "error").Inc()
		e.publish(rev, b)
		return
	}

	apply()
	col.state = CollectionState{Status: StatusReady, Count: n, UpdatedAt: time.Now()}
	rev, b := e.rebuildLocked()
	e.mu.Unlock()

	log.Debugf("Loaded %d %s", n, c)
	metrics.CollectionFetchesTotal.WithLabelValues(string(c), "ok").Inc()
	e.publish(rev, b)
}

func (e *Engine) resetLocked(c Collection) {
	switch c {
	case Prices:
		e.prices = nil
	case Stores:
		e.stores = nil
	case Suppliers:
		e.suppliers = nil
	case Localities:
		e.localities = nil
	}
}

// publish feeds new bounds to the viewport, in revision order.
func (e *Engine) publish(rev uint64, b *bounds.Box) {
	e.notifyMu.Lock()
	if rev > e.notified {
		e.notified = rev
		e.viewport.SetBounds(b)
	}
	e.notifyMu.Unlock()
	e.changed()
}

func (e *Engine) changed() {
	if e.cb.OnChange != nil {
		e.cb.OnChange()
	}
}

func (e *Engine) handleFit(fit viewport.Fit) {
	metrics.ViewportFitsTotal.WithLabelValues(string(fit.Reason)).Inc()
	if e.cb.OnFit != nil {
		e.cb.OnFit(fit)
	}
}

// RequestViewportFit fits the map to the rendered markers. It reports false
// when nothing is positioned.
func (e *Engine) RequestViewportFit() bool {
	return e.viewport.RequestFit()
}

func (e *Engine) SetMapSize(widthPx, heightPx int) {
	e.viewport.SetMapSize(widthPx, heightPx)
}

// ClickPrice hands the price to the host's click handler.
func (e *Engine) ClickPrice(id model.EntityID) bool {
	e.mu.Lock()
	p, ok := lo.Find(e.prices, func(p model.PriceObservation) bool { return p.ID == id })
	e.mu.Unlock()
	if !ok {
		return false
	}
	if e.cb.OnPriceClick != nil {
		e.cb.OnPriceClick(p)
	}
	return true
}

// OpenPlace returns the summary of a store or supplier, fetching it once.
func (e *Engine) OpenPlace(ctx context.Context, ref model.EntityRef) (*model.EntitySummary, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	if !e.hasPlaceLocked(ref) {
		e.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", ref, ErrUnknownPlace)
	}
	delete(e.openErrors, ref)
	e.mu.Unlock()

	s, err := e.cache.GetOrFetch(ctx, ref, e.fetchSummary)

	e.mu.Lock()
	if err != nil && ctx.Err() == nil {
		e.openErrors[ref] = err
	}
	e.mu.Unlock()
	e.changed()
	return s, err
}

// OpenPlaceAsync starts loading a summary in the background. The render
// model shows it as loading until it arrives.
func (e *Engine) OpenPlaceAsync(ref model.EntityRef) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if !e.hasPlaceLocked(ref) {
		e.mu.Unlock()
		return fmt.Errorf("%s: %w", ref, ErrUnknownPlace)
	}
	e.opening[ref]++
	e.wg.Add(1)
	e.mu.Unlock()
	e.changed()

	go func() {
		defer e.wg.Done()
		if _, err := e.OpenPlace(e.ctx, ref); err != nil && !errors.Is(err, context.Canceled) {
			log.Warnf("Failed to open %s: %v", ref, err)
		}
		e.mu.Lock()
		if e.opening[ref]--; e.opening[ref] <= 0 {
			delete(e.opening, ref)
		}
		e.mu.Unlock()
		e.changed()
	}()
	return nil
}

func (e *Engine) fetchSummary(ctx context.Context, ref model.EntityRef) (*model.EntitySummary, error) {
	ctx, cancel := e.fetchContext(ctx)
	defer cancel()
	return e.src.FetchEntitySummary(ctx, ref)
}

func (e *Engine) hasPlaceLocked(ref model.EntityRef) bool {
	var places []model.Place
	switch ref.Kind {
	case model.KindStore:
		places = e.stores
	case model.KindSupplier:
		places = e.suppliers
	default:
		return false
	}
	return lo.ContainsBy(places, func(p model.Place) bool { return p.ID == ref.ID })
}

func (e *Engine) fetchContext(parent context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.FetchTimeout > 0 {
		return context.WithTimeout(parent, e.cfg.FetchTimeout)
	}
	return context.WithCancel(parent)
}

// Close stops pending reloads, cancels in-flight fetches and drops the
// summary cache. The engine cannot be restarted.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	if e.debounce != nil {
		e.debounce.Stop()
		e.debounce = nil
	}
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
	e.cache.Clear()
}
