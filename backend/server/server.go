package server

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pricemap/backend/db"
	"pricemap/backend/mapengine"
	"pricemap/backend/metrics"
	"pricemap/backend/model"
	"pricemap/common"
)

const (
	EndPointHelp               = "/help"
	EndPointMetrics            = "/metrics"
	EndPointCreateMapSession   = "/create_map_session"
	EndPointUpdateMapFilters   = "/update_map_filters"
	EndPointGetMapView         = "/get_map_view"
	EndPointGetMapGeoJSON      = "/get_map_geojson"
	EndPointRequestViewportFit = "/request_viewport_fit"
	EndPointRetryCollection    = "/retry_collection"
	EndPointClickPrice         = "/click_price"
	EndPointOpenPlace          = "/open_place"
	EndPointGetNearbyPlaces    = "/get_nearby_places"
	EndPointCloseMapSession    = "/close_map_session"
	EndPointGetPriceChart      = "/get_price_chart"
)

var (
	serverPort   = flag.Int("port", 8080, "The port used by the service.")
	sessionTTL   = flag.Duration("session_ttl", 0, "Idle map sessions are closed after this long. Falls back to PRICEMAP_SESSION_TTL, then 30m.")
	debounce     = flag.Duration("filter_debounce", 300*time.Millisecond, "Filter changes within this window collapse into one reload.")
	fetchTimeout = flag.Duration("fetch_timeout", 30*time.Second, "Timeout of every database fetch made for a map session.")
)

// EvolutionSource supplies the daily price series behind the price chart.
type EvolutionSource interface {
	FetchEvolution(ctx context.Context, productID, localityID model.EntityID) ([]model.EvolutionPoint, error)
}

// Service hosts map engines, one per client session.
type Service struct {
	src       mapengine.Source
	evolution EvolutionSource
	cfg       mapengine.Config
	sessions  *sessions
	now       func() time.Time
}

func NewService(src mapengine.Source, evolution EvolutionSource, cfg mapengine.Config, ttl time.Duration) *Service {
	return &Service{
		src:       src,
		evolution: evolution,
		cfg:       cfg,
		sessions:  newSessions(ttl),
		now:       time.Now,
	}
}

// Router registers every endpoint of the service.
func (s *Service) Router() *gin.Engine {
	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type"},
		AllowOrigins:     []string{"*"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET(EndPointHelp, Help)
	router.GET(EndPointMetrics, gin.WrapH(promhttp.Handler()))
	router.POST(EndPointCreateMapSession, s.CreateMapSession)
	router.POST(EndPointUpdateMapFilters, s.UpdateMapFilters)
	router.POST(EndPointGetMapView, s.GetMapView)
	router.POST(EndPointGetMapGeoJSON, s.GetMapGeoJSON)
	router.POST(EndPointRequestViewportFit, s.RequestViewportFit)
	router.POST(EndPointRetryCollection, s.RetryCollection)
	router.POST(EndPointClickPrice, s.ClickPrice)
	router.POST(EndPointOpenPlace, s.OpenPlace)
	router.POST(EndPointGetNearbyPlaces, s.GetNearbyPlaces)
	router.POST(EndPointCloseMapSession, s.CloseMapSession)
	router.POST(EndPointGetPriceChart, s.GetPriceChart)
	return router
}

// Close closes every open session.
func (s *Service) Close() {
	s.sessions.closeAll()
}

func StartService() {
	log.Info("Starting the service...")
	metrics.Register()

	conn, err := common.DBConnect()
	if err != nil {
		log.Errorf("Failed to connect to the database: %v", err)
		return
	}
	defer conn.Close()

	cfg := mapengine.DefaultConfig()
	cfg.Debounce = *debounce
	cfg.FetchTimeout = *fetchTimeout

	ttl := *sessionTTL
	if ttl <= 0 {
		ttl = common.EnvDuration([]string{"PRICEMAP_SESSION_TTL"}, 30*time.Minute)
	}

	src := db.NewSource(conn)
	s := NewService(src, src, cfg, ttl)
	defer s.Close()

	if err := s.Router().Run(fmt.Sprintf(":%d", *serverPort)); err != nil {
		log.Errorf("Service stopped: %v", err)
	}
	log.Info("Finished the service. Should not ever being seen.")
}

// checkVersion answers 406 when the client speaks another API version.
func checkVersion(c *gin.Context, endpoint, version string) bool {
	if version != "2.0" {
		log.Errorf("Bad version in %s, expected: 2.0, got: %v", endpoint, version)
		c.String(http.StatusNotAcceptable, "Bad API version, expecting 2.0.") // 406
		return false
	}
	return true
}
