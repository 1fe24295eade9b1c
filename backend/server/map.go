package server

import (
	"errors"
	"net/http"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"pricemap/backend/db"
	"pricemap/backend/mapengine"
	"pricemap/backend/model"
	"pricemap/backend/server/api"
	"pricemap/backend/viewport"
)

const defaultNearbyRadiusKm = 10

func (s *Service) CreateMapSession(c *gin.Context) {
	var args api.CreateSessionArgs

	if err := c.BindJSON(&args); err != nil {
		log.Errorf("Failed to get the argument in %s call: %v", EndPointCreateMapSession, err)
		return
	}
	if !checkVersion(c, EndPointCreateMapSession, args.Version) {
		return
	}

	cfg := s.cfg
	cfg.Filters = args.Filters
	if args.AutoFit != nil {
		cfg.Viewport.InitialAutoFit = *args.AutoFit
	}
	ss, err := s.sessions.create(func(ss *session) (*mapengine.Engine, error) {
		return mapengine.New(s.src, cfg, mapengine.Callbacks{
			OnPriceClick: ss.selectPrice,
			OnFit: func(fit viewport.Fit) {
				log.Debugf("Session %s fitted to zoom %d (%s)", ss.id, fit.Zoom, fit.Reason)
			},
		})
	})
	if err != nil {
		log.Errorf("Failed to create a map session: %v", err)
		c.Status(http.StatusInternalServerError) // 500
		return
	}
	if args.WidthPx > 0 && args.HeightPx > 0 {
		ss.engine.SetMapSize(args.WidthPx, args.HeightPx)
	}
	ss.engine.Start()
	log.Infof("Created map session %s with filters %q", ss.id, args.Filters.QueryKey())
	c.IndentedJSON(http.StatusOK, api.CreateSessionResponse{SessionID: ss.id}) // 200
}

func (s *Service) UpdateMapFilters(c *gin.Context) {
	var args api.FiltersArgs

	if err := c.BindJSON(&args); err != nil {
		log.Errorf("Failed to get the argument in %s call: %v", EndPointUpdateMapFilters, err)
		return
	}
	if !checkVersion(c, EndPointUpdateMapFilters, args.Version) {
		return
	}
	ss, ok := s.session(c, EndPointUpdateMapFilters, args.SessionID)
	if !ok {
		return
	}
	ss.engine.SetFilters(args.Filters)
	c.Status(http.StatusOK) // 200
}

func (s *Service) GetMapView(c *gin.Context) {
	var args api.SessionArgs

	if err := c.BindJSON(&args); err != nil {
		log.Errorf("Failed to get the argument in %s call: %v", EndPointGetMapView, err)
		return
	}
	if !checkVersion(c, EndPointGetMapView, args.Version) {
		return
	}
	ss, ok := s.session(c, EndPointGetMapView, args.SessionID)
	if !ok {
		return
	}
	c.IndentedJSON(http.StatusOK, api.MapViewResponse{
		RenderModel: ss.engine.Render(),
		Selected:    ss.selection(),
	}) // 200
}

func (s *Service) GetMapGeoJSON(c *gin.Context) {
	var args api.SessionArgs

	if err := c.BindJSON(&args); err != nil {
		log.Errorf("Failed to get the argument in %s call: %v", EndPointGetMapGeoJSON, err)
		return
	}
	if !checkVersion(c, EndPointGetMapGeoJSON, args.Version) {
		return
	}
	ss, ok := s.session(c, EndPointGetMapGeoJSON, args.SessionID)
	if !ok {
		return
	}
	c.IndentedJSON(http.StatusOK, ss.engine.Render().FeatureCollection()) // 200
}

func (s *Service) RequestViewportFit(c *gin.Context) {
	var args api.SessionArgs

	if err := c.BindJSON(&args); err != nil {
		log.Errorf("Failed to get the argument in %s call: %v", EndPointRequestViewportFit, err)
		return
	}
	if !checkVersion(c, EndPointRequestViewportFit, args.Version) {
		return
	}
	ss, ok := s.session(c, EndPointRequestViewportFit, args.SessionID)
	if !ok {
		return
	}
	resp := api.FitResponse{Applied: ss.engine.RequestViewportFit()}
	if resp.Applied {
		resp.Fit = ss.engine.Render().Viewport.LastFit
	}
	c.IndentedJSON(http.StatusOK, resp) // 200
}

func (s *Service) RetryCollection(c *gin.Context) {
	var args api.RetryArgs

	if err := c.BindJSON(&args); err != nil {
		log.Errorf("Failed to get the argument in %s call: %v", EndPointRetryCollection, err)
		return
	}
	if !checkVersion(c, EndPointRetryCollection, args.Version) {
		return
	}
	ss, ok := s.session(c, EndPointRetryCollection, args.SessionID)
	if !ok {
		return
	}
	col, err := mapengine.ParseCollection(args.Collection)
	if err != nil {
		c.String(http.StatusBadRequest, err.Error()) // 400
		return
	}
	if err := ss.engine.Retry(col); err != nil {
		if errors.Is(err, mapengine.ErrNotFailed) {
			c.String(http.StatusConflict, err.Error()) // 409
			return
		}
		log.Errorf("Failed to retry %s: %v", col, err)
		c.Status(http.StatusInternalServerError) // 500
		return
	}
	c.Status(http.StatusOK) // 200
}

func (s *Service) ClickPrice(c *gin.Context) {
	var args api.ClickPriceArgs

	if err := c.BindJSON(&args); err != nil {
		log.Errorf("Failed to get the argument in %s call: %v", EndPointClickPrice, err)
		return
	}
	if !checkVersion(c, EndPointClickPrice, args.Version) {
		return
	}
	ss, ok := s.session(c, EndPointClickPrice, args.SessionID)
	if !ok {
		return
	}
	if !ss.engine.ClickPrice(args.ID) {
		c.String(http.StatusNotFound, "Unknown price.") // 404
		return
	}
	c.IndentedJSON(http.StatusOK, ss.selection()) // 200
}

func (s *Service) OpenPlace(c *gin.Context) {
	var args api.OpenPlaceArgs

	if err := c.BindJSON(&args); err != nil {
		log.Errorf("Failed to get the argument in %s call: %v", EndPointOpenPlace, err)
		return
	}
	if !checkVersion(c, EndPointOpenPlace, args.Version) {
		return
	}
	ss, ok := s.session(c, EndPointOpenPlace, args.SessionID)
	if !ok {
		return
	}
	kind, err := model.ParseKind(args.Kind)
	if err != nil || kind == model.KindPrice {
		c.String(http.StatusBadRequest, "Kind must be store or supplier.") // 400
		return
	}
	ref := model.EntityRef{Kind: kind, ID: args.ID}

	if args.Async {
		if err := ss.engine.OpenPlaceAsync(ref); err != nil {
			s.openPlaceError(c, ref, err)
			return
		}
		c.IndentedJSON(http.StatusOK, api.OpenPlaceResponse{Ref: ref, Loading: true}) // 200
		return
	}

	summary, err := ss.engine.OpenPlace(c.Request.Context(), ref)
	if err != nil {
		s.openPlaceError(c, ref, err)
		return
	}
	c.IndentedJSON(http.StatusOK, api.OpenPlaceResponse{
		Ref:          ref,
		Summary:      summary,
		AnyAvailable: summary.AnyAvailable(),
	}) // 200
}

func (s *Service) openPlaceError(c *gin.Context, ref model.EntityRef, err error) {
	switch {
	case errors.Is(err, mapengine.ErrUnknownPlace), errors.Is(err, db.ErrNotFound):
		c.String(http.StatusNotFound, "Unknown place.") // 404
	case errors.Is(err, mapengine.ErrRateLimited):
		c.String(http.StatusTooManyRequests, mapengine.ErrorRateLimited.Message()) // 429
	default:
		log.Errorf("Failed to open %s: %v", ref, err)
		c.String(http.StatusInternalServerError, mapengine.ClassifyError(err).Message()) // 500
	}
}

func (s *Service) GetNearbyPlaces(c *gin.Context) {
	var args api.NearbyArgs

	if err := c.BindJSON(&args); err != nil {
		log.Errorf("Failed to get the argument in %s call: %v", EndPointGetNearbyPlaces, err)
		return
	}
	if !checkVersion(c, EndPointGetNearbyPlaces, args.Version) {
		return
	}
	ss, ok := s.session(c, EndPointGetNearbyPlaces, args.SessionID)
	if !ok {
		return
	}
	if !model.ValidCoordinate(args.Latitude, args.Longitude) {
		c.String(http.StatusBadRequest, "Invalid coordinates.") // 400
		return
	}
	radius := args.RadiusKm
	if radius <= 0 {
		radius = defaultNearbyRadiusKm
	}
	places := ss.engine.Nearby(args.Latitude, args.Longitude, radius*1000)
	if places == nil {
		places = []mapengine.NearbyPlace{}
	}
	c.IndentedJSON(http.StatusOK, api.NearbyResponse{Places: places}) // 200
}

func (s *Service) CloseMapSession(c *gin.Context) {
	var args api.SessionArgs

	if err := c.BindJSON(&args); err != nil {
		log.Errorf("Failed to get the argument in %s call: %v", EndPointCloseMapSession, err)
		return
	}
	if !checkVersion(c, EndPointCloseMapSession, args.Version) {
		return
	}
	if err := s.sessions.remove(args.SessionID); err != nil {
		c.String(http.StatusNotFound, "Unknown map session.") // 404
		return
	}
	log.Infof("Closed map session %s", args.SessionID)
	c.Status(http.StatusOK) // 200
}

// session answers 404 when the id does not name an open session.
func (s *Service) session(c *gin.Context, endpoint, id string) (*session, bool) {
	ss, err := s.sessions.get(id)
	if err != nil {
		log.Warnf("Bad session in %s: %q", endpoint, id)
		c.String(http.StatusNotFound, "Unknown map session.") // 404
		return nil, false
	}
	return ss, true
}
