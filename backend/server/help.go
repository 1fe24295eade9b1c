package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func Help(c *gin.Context) {
	c.String(http.StatusOK, `
	Price map API, version 2.0.
	POST /create_map_session, /update_map_filters, /get_map_view, /get_map_geojson,
	/request_viewport_fit, /retry_collection, /click_price, /open_place,
	/get_nearby_places, /close_map_session, /get_price_chart.
	GET /metrics for Prometheus.
	`)
}
