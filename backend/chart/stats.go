package chart

import (
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"pricemap/backend/model"
)

// Stats summarizes the series on display.
type Stats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	Count int     `json:"count"`
	// Variations are percentages, nil when undefined.
	DayOverDay       *float64 `json:"var_day"`
	PeriodOverPeriod *float64 `json:"var_period"`
}

// ComputeStats returns nil for an empty series.
func ComputeStats(series []model.EvolutionPoint) *Stats {
	if len(series) == 0 {
		return nil
	}
	ys := lo.Map(series, func(p model.EvolutionPoint, _ int) float64 { return p.AvgPrice })
	avg := decimal.NewFromFloat(lo.Sum(ys) / float64(len(ys))).Round(2)
	s := &Stats{
		Min:   lo.Min(ys),
		Max:   lo.Max(ys),
		Avg:   avg.InexactFloat64(),
		Count: lo.SumBy(series, func(p model.EvolutionPoint) int { return p.PriceCount }),
	}
	if n := len(series); n >= 2 {
		s.DayOverDay = variation(series[n-2].AvgPrice, series[n-1].AvgPrice)
		s.PeriodOverPeriod = variation(series[0].AvgPrice, series[n-1].AvgPrice)
	}
	return s
}

func variation(from, to float64) *float64 {
	if from == 0 {
		return nil
	}
	v := (to - from) / from * 100
	return &v
}

// FormatPercent renders a variation as "+1.5%", or "N/A" when undefined.
func FormatPercent(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%+.1f%%", *v)
}

var PeriodPresets = []int{7, 30, 90, 180}

const DefaultPeriodDays = 30

func ValidPeriod(days int) bool {
	return lo.Contains(PeriodPresets, days)
}

// FilterPeriod keeps the points dated on or after now minus days.
func FilterPeriod(series []model.EvolutionPoint, days int, now time.Time) []model.EvolutionPoint {
	cutoff := now.AddDate(0, 0, -days)
	return lo.Filter(series, func(p model.EvolutionPoint, _ int) bool {
		return !p.Date.Before(cutoff)
	})
}
