package server

import (
	"net/http"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"pricemap/backend/chart"
	"pricemap/backend/server/api"
)

func (s *Service) GetPriceChart(c *gin.Context) {
	var args api.ChartArgs

	if err := c.BindJSON(&args); err != nil {
		log.Errorf("Failed to get the argument in %s call: %v", EndPointGetPriceChart, err)
		return
	}
	if !checkVersion(c, EndPointGetPriceChart, args.Version) {
		return
	}
	if args.ProductID == "" || args.LocalityID == "" {
		c.String(http.StatusBadRequest, "product_id and locality_id are required.") // 400
		return
	}
	days := args.PeriodDays
	if days == 0 {
		days = chart.DefaultPeriodDays
	}
	if !chart.ValidPeriod(days) {
		c.String(http.StatusBadRequest, "Unsupported period.") // 400
		return
	}

	series, err := s.evolution.FetchEvolution(c.Request.Context(), args.ProductID, args.LocalityID)
	if err != nil {
		log.Errorf("Failed to get the price evolution of %s at %s: %v", args.ProductID, args.LocalityID, err)
		c.Status(http.StatusInternalServerError) // 500
		return
	}

	ch := chart.New(chart.FilterPeriod(series, days, s.now()), chart.DefaultRect())
	if args.PointerX != nil {
		ch.PointerMove(ch.ViewBoxX(*args.PointerX, args.RenderedWidth))
	}

	m := ch.Model()
	resp := api.ChartResponse{
		Model:      m,
		PeriodDays: days,
		Periods:    chart.PeriodPresets,
	}
	if p, ok := ch.Focus(); ok {
		resp.Focus = &p
	}
	if m.Stats != nil {
		resp.DayOverDay = chart.FormatPercent(m.Stats.DayOverDay)
		resp.PeriodOverPeriod = chart.FormatPercent(m.Stats.PeriodOverPeriod)
	} else {
		resp.DayOverDay = chart.FormatPercent(nil)
		resp.PeriodOverPeriod = chart.FormatPercent(nil)
	}
	c.IndentedJSON(http.StatusOK, resp) // 200
}
