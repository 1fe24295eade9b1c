package chart

import (
	"math"
	"strings"
	"testing"
	"time"
	"unicode"

	"pricemap/backend/model"
)

func day(d int) time.Time {
	return time.Date(2024, time.March, d, 0, 0, 0, 0, time.UTC)
}

func series(prices ...float64) []model.EvolutionPoint {
	out := make([]model.EvolutionPoint, len(prices))
	for i, p := range prices {
		out[i] = model.EvolutionPoint{Date: day(i + 1), AvgPrice: p, PriceCount: i + 1, MinPrice: p - 10, MaxPrice: p + 10}
	}
	return out
}

func finite(p Point) bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

func TestScales(t *testing.T) {
	testCases := []struct {
		name   string
		series []model.EvolutionPoint
		want   []Point
	}{
		{"single point", series(500), []Point{{40, 250}}},
		{"flat", series(500, 500, 500), []Point{{40, 250}, {560, 250}, {1080, 250}}},
		{"rising", series(100, 200), []Point{{40, 250}, {1080, 20}}},
		{"middle", series(100, 150, 200), []Point{{40, 250}, {560, 135}, {1080, 20}}},
	}
	for _, tc := range testCases {
		c := New(tc.series, DefaultRect())
		got := c.Points()
		if len(got) != len(tc.want) {
			t.Errorf("%s: expected %d points, got %d", tc.name, len(tc.want), len(got))
			continue
		}
		for i := range got {
			if !finite(got[i]) {
				t.Errorf("%s: point %d is not finite: %+v", tc.name, i, got[i])
			}
			if math.Abs(got[i].X-tc.want[i].X) > 1e-9 || math.Abs(got[i].Y-tc.want[i].Y) > 1e-9 {
				t.Errorf("%s: point %d expected %+v, got %+v", tc.name, i, tc.want[i], got[i])
			}
		}
	}
}

func TestSameDayPoints(t *testing.T) {
	s := series(100, 200)
	s[1].Date = s[0].Date
	c := New(s, DefaultRect())
	for i, p := range c.Points() {
		if p.X != 40 {
			t.Errorf("point %d: expected x anchored at 40, got %v", i, p.X)
		}
	}
}

func TestPath(t *testing.T) {
	testCases := []struct {
		series []model.EvolutionPoint
		want   string
	}{
		{nil, ""},
		{series(500), "M 40,250"},
		{series(100, 200), "M 40,250 L 1080,20"},
	}
	for _, tc := range testCases {
		if got := New(tc.series, DefaultRect()).Path(); got != tc.want {
			t.Errorf("expected path %q, got %q", tc.want, got)
		}
	}
}

func TestMarkers(t *testing.T) {
	m := New(series(1, 2, 3), DefaultRect()).Markers()
	if len(m) != 3 {
		t.Fatalf("expected 3 markers, got %d", len(m))
	}
	if m[2].Index != 2 || m[2].Radius != 4 || m[2].X != 1080 {
		t.Errorf("unexpected marker %+v", m[2])
	}
}

func TestNearest(t *testing.T) {
	c := New(series(1, 2, 3), DefaultRect())
	testCases := []struct {
		x    float64
		want int
	}{
		{0, 0},
		{299, 0},
		{300, 0},
		{301, 1},
		{820, 1},
		{821, 2},
		{5000, 2},
	}
	for _, tc := range testCases {
		got, ok := c.Nearest(tc.x)
		if !ok || got != tc.want {
			t.Errorf("x=%v: expected %d, got %d (%v)", tc.x, tc.want, got, ok)
		}
	}

	if _, ok := New(nil, DefaultRect()).Nearest(100); ok {
		t.Errorf("expected no result on an empty series")
	}
}

func TestHover(t *testing.T) {
	c := New(series(100, 200), DefaultRect())
	var seen []*model.EvolutionPoint
	c.OnHoverChange(func(p *model.EvolutionPoint) { seen = append(seen, p) })

	if c.Hover().Index != nil {
		t.Fatalf("expected no hover initially")
	}
	if i, ok := c.PointerMove(c.ViewBoxX(500, 550)); !ok || i != 1 {
		t.Fatalf("expected index 1, got %d", i)
	}
	h := c.Hover()
	if h.Index == nil || *h.Index != 1 || h.Point.AvgPrice != 200 || h.Tooltip == nil {
		t.Errorf("unexpected hover %+v", h)
	}
	if p, _ := c.Focus(); p.AvgPrice != 200 {
		t.Errorf("expected focus on hovered point, got %v", p.AvgPrice)
	}

	c.PointerMove(40)
	c.PointerLeave()
	if c.Hover().Index != nil {
		t.Errorf("expected hover cleared")
	}
	if p, _ := c.Focus(); p.AvgPrice != 200 {
		t.Errorf("expected focus on latest point, got %v", p.AvgPrice)
	}
	if len(seen) != 3 || seen[0].AvgPrice != 200 || seen[1].AvgPrice != 100 || seen[2] != nil {
		t.Errorf("unexpected hover notifications %v", seen)
	}

	empty := New(nil, DefaultRect())
	if _, ok := empty.PointerMove(10); ok {
		t.Errorf("expected no hover on an empty series")
	}
	if _, ok := empty.Focus(); ok {
		t.Errorf("expected no focus on an empty series")
	}
}

func TestTooltipClamping(t *testing.T) {
	c := New(series(100, 200), DefaultRect())
	testCases := []struct {
		index int
		x, y  float64
	}{
		// Top right point: pushed left of the right margin and below the top.
		{1, 856, 24},
		// Bottom left point: placed up and right of the point.
		{0, 48, 138},
	}
	for _, tc := range testCases {
		tt, ok := c.Tooltip(tc.index)
		if !ok {
			t.Fatalf("%d: expected a tooltip", tc.index)
		}
		if tt.X != tc.x || tt.Y != tc.y {
			t.Errorf("%d: expected box at %v,%v, got %v,%v", tc.index, tc.x, tc.y, tt.X, tt.Y)
		}
		if tt.X+tt.Width > 1100-20 || tt.Y+tt.Height > 280-30 || tt.X < 40 || tt.Y < 20 {
			t.Errorf("%d: box escapes the plot: %+v", tc.index, tt)
		}
	}

	tt, _ := c.Tooltip(0)
	if len(tt.Lines) != 4 || !strings.HasSuffix(tt.Lines[0], "FCFA") || tt.Lines[1] != "01/03/2024" {
		t.Errorf("unexpected tooltip lines %q", tt.Lines)
	}
	if _, ok := c.Tooltip(2); ok {
		t.Errorf("expected no tooltip out of range")
	}
	if _, ok := c.Tooltip(-1); ok {
		t.Errorf("expected no tooltip for a negative index")
	}
}

func TestYTicks(t *testing.T) {
	ticks := New(series(100, 200), DefaultRect()).YTicks(DefaultTickCount)
	want := []float64{100, 125, 150, 175, 200}
	if len(ticks) != len(want) {
		t.Fatalf("expected %d ticks, got %d", len(want), len(ticks))
	}
	for i, v := range want {
		if ticks[i].Value != v {
			t.Errorf("tick %d: expected %v, got %v", i, v, ticks[i].Value)
		}
	}
	if ticks[4].Y != 20 || ticks[0].Y != 250 {
		t.Errorf("unexpected tick positions %v, %v", ticks[0].Y, ticks[4].Y)
	}

	flat := New(series(500, 500), DefaultRect()).YTicks(DefaultTickCount)
	if len(flat) != 1 || flat[0].Value != 500 || flat[0].Label != "500" {
		t.Errorf("expected a single 500 tick, got %+v", flat)
	}
	if empty := New(nil, DefaultRect()).YTicks(0); len(empty) != 1 {
		t.Errorf("expected a single tick on an empty series, got %d", len(empty))
	}
}

func TestXLabels(t *testing.T) {
	labels := New(series(1, 2, 3), DefaultRect()).XLabels()
	if len(labels) != 2 {
		t.Fatalf("expected 2 labels, got %d", len(labels))
	}
	if labels[0].Text != "01/03/2024" || labels[1].Text != "03/03/2024" {
		t.Errorf("unexpected labels %q, %q", labels[0].Text, labels[1].Text)
	}
	if labels[1].X != 1080 || labels[0].Y != 274 {
		t.Errorf("unexpected label placement %+v", labels)
	}
	if New(nil, DefaultRect()).XLabels() != nil {
		t.Errorf("expected no labels without data")
	}
}

func TestModelOnEmptySeries(t *testing.T) {
	m := New(nil, DefaultRect()).Model()
	if !m.Empty || m.Path != "" || m.Stats != nil || len(m.Markers) != 0 || m.Hover.Index != nil {
		t.Errorf("unexpected empty model %+v", m)
	}
}

func TestFormatNumber(t *testing.T) {
	digits := func(s string) string {
		return strings.Map(func(r rune) rune {
			if unicode.IsDigit(r) {
				return r
			}
			return -1
		}, s)
	}
	if got := FormatNumber(950); got != "950" {
		t.Errorf("expected 950, got %q", got)
	}
	got := FormatNumber(1234.5)
	if digits(got) != "12345" || !strings.HasSuffix(got, ",5") || !strings.HasPrefix(got, "1") {
		t.Errorf("expected grouped French formatting, got %q", got)
	}
}
