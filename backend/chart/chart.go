package chart

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"pricemap/backend/model"
)

const (
	TooltipWidth     = 220.0
	TooltipHeight    = 104.0
	tooltipOffset    = 8.0
	tooltipInset     = 4.0
	DefaultTickCount = 4
	markerRadius     = 4.0
	hoverRadius      = 5.0
	DefaultCurrency  = "FCFA"
)

type Margin struct {
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
}

// Rect is the plot area in view box units.
type Rect struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Margin Margin  `json:"margin"`
}

func DefaultRect() Rect {
	return Rect{
		Width:  1100,
		Height: 280,
		Margin: Margin{Top: 20, Right: 20, Bottom: 30, Left: 40},
	}
}

func (r Rect) InnerWidth() float64 {
	return r.Width - r.Margin.Left - r.Margin.Right
}

func (r Rect) InnerHeight() float64 {
	return r.Height - r.Margin.Top - r.Margin.Bottom
}

func (r Rect) bottom() float64 {
	return r.Height - r.Margin.Bottom
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Marker struct {
	Point
	Index  int     `json:"index"`
	Radius float64 `json:"radius"`
}

// Chart lays out one evolution series as a line chart. It keeps the hover
// state of a single pointer and is not safe for concurrent use.
type Chart struct {
	Currency string

	series []model.EvolutionPoint
	rect   Rect
	xMin   float64
	xMax   float64
	yMin   float64
	yMax   float64
	points []Point

	hover   *int
	onHover func(*model.EvolutionPoint)
}

// New builds the scales from the series domain. The series is expected in
// date order and already restricted to the period on display.
func New(series []model.EvolutionPoint, rect Rect) *Chart {
	c := &Chart{
		Currency: DefaultCurrency,
		series:   series,
		rect:     rect,
	}
	if len(series) > 0 {
		xs := lo.Map(series, func(p model.EvolutionPoint, _ int) float64 { return timeValue(p.Date) })
		ys := lo.Map(series, func(p model.EvolutionPoint, _ int) float64 { return p.AvgPrice })
		c.xMin, c.xMax = lo.Min(xs), lo.Max(xs)
		c.yMin, c.yMax = lo.Min(ys), lo.Max(ys)
	}
	c.points = make([]Point, len(series))
	for i, p := range series {
		c.points[i] = Point{X: c.ScaleX(p.Date), Y: c.ScaleY(p.AvgPrice)}
	}
	return c
}

func timeValue(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func (c *Chart) Rect() Rect {
	return c.rect
}

func (c *Chart) Len() int {
	return len(c.series)
}

// ScaleX maps a date onto the horizontal axis. A series spanning a single
// instant is drawn at the left edge.
func (c *Chart) ScaleX(t time.Time) float64 {
	if c.xMax == c.xMin {
		return c.rect.Margin.Left
	}
	return c.rect.Margin.Left + (timeValue(t)-c.xMin)/(c.xMax-c.xMin)*c.rect.InnerWidth()
}

// ScaleY maps a price onto the vertical axis. A flat series is drawn on
// the bottom axis.
func (c *Chart) ScaleY(v float64) float64 {
	if c.yMax == c.yMin {
		return c.rect.bottom()
	}
	return c.rect.Margin.Top + (1-(v-c.yMin)/(c.yMax-c.yMin))*c.rect.InnerHeight()
}

func (c *Chart) Points() []Point {
	out := make([]Point, len(c.points))
	copy(out, c.points)
	return out
}

// Path is the SVG path joining the points, empty without data.
func (c *Chart) Path() string {
	var sb strings.Builder
	for i, p := range c.points {
		if i == 0 {
			sb.WriteString("M ")
		} else {
			sb.WriteString(" L ")
		}
		sb.WriteString(formatCoord(p.X))
		sb.WriteByte(',')
		sb.WriteString(formatCoord(p.Y))
	}
	return sb.String()
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (c *Chart) Markers() []Marker {
	return lo.Map(c.points, func(p Point, i int) Marker {
		return Marker{Point: p, Index: i, Radius: markerRadius}
	})
}

// ViewBoxX converts a pointer offset within the rendered element to view
// box units.
func (c *Chart) ViewBoxX(offsetX, renderedWidth float64) float64 {
	if renderedWidth <= 0 {
		return offsetX
	}
	return offsetX / renderedWidth * c.rect.Width
}

// Nearest returns the index of the point horizontally closest to x. On a
// tie the earlier point wins.
func (c *Chart) Nearest(x float64) (int, bool) {
	if len(c.points) == 0 || math.IsNaN(x) {
		return 0, false
	}
	nearest := 0
	best := math.Inf(1)
	for i, p := range c.points {
		if d := math.Abs(p.X - x); d < best {
			best = d
			nearest = i
		}
	}
	return nearest, true
}

// OnHoverChange registers a function called with the hovered point, or nil
// when the pointer leaves.
func (c *Chart) OnHoverChange(fn func(*model.EvolutionPoint)) {
	c.onHover = fn
}

func (c *Chart) PointerMove(x float64) (int, bool) {
	i, ok := c.Nearest(x)
	if !ok {
		return 0, false
	}
	c.hover = &i
	if c.onHover != nil {
		p := c.series[i]
		c.onHover(&p)
	}
	return i, true
}

func (c *Chart) PointerLeave() {
	c.hover = nil
	if c.onHover != nil {
		c.onHover(nil)
	}
}

type HoverState struct {
	Index   *int                  `json:"index"`
	Point   *model.EvolutionPoint `json:"point,omitempty"`
	Tooltip *Tooltip              `json:"tooltip,omitempty"`
}

func (c *Chart) Hover() HoverState {
	if c.hover == nil {
		return HoverState{}
	}
	i := *c.hover
	p := c.series[i]
	tt, _ := c.Tooltip(i)
	return HoverState{Index: &i, Point: &p, Tooltip: &tt}
}

// Focus is the point the detail panel describes: the hovered one, else the
// latest.
func (c *Chart) Focus() (model.EvolutionPoint, bool) {
	if c.hover != nil {
		return c.series[*c.hover], true
	}
	if len(c.series) == 0 {
		return model.EvolutionPoint{}, false
	}
	return c.series[len(c.series)-1], true
}

type Tooltip struct {
	X      float64  `json:"x"`
	Y      float64  `json:"y"`
	Width  float64  `json:"width"`
	Height float64  `json:"height"`
	Anchor Point    `json:"anchor"`
	Lines  []string `json:"lines"`
	// Guide is the vertical line through the hovered point.
	GuideX      float64 `json:"guide_x"`
	GuideTop    float64 `json:"guide_top"`
	GuideBottom float64 `json:"guide_bottom"`
	HoverRadius float64 `json:"hover_radius"`
}

// Tooltip places the box up and right of point i, clamped into the plot.
func (c *Chart) Tooltip(i int) (Tooltip, bool) {
	if i < 0 || i >= len(c.points) {
		return Tooltip{}, false
	}
	p := c.points[i]
	m := c.rect.Margin
	x := math.Min(math.Max(p.X+tooltipOffset, m.Left+tooltipInset), c.rect.Width-m.Right-TooltipWidth-tooltipInset)
	y := math.Min(math.Max(p.Y-tooltipOffset-TooltipHeight, m.Top+tooltipInset), c.rect.Height-m.Bottom-TooltipHeight-tooltipInset)
	return Tooltip{
		X:           x,
		Y:           y,
		Width:       TooltipWidth,
		Height:      TooltipHeight,
		Anchor:      p,
		Lines:       c.tooltipLines(c.series[i]),
		GuideX:      p.X,
		GuideTop:    m.Top,
		GuideBottom: c.rect.bottom(),
		HoverRadius: hoverRadius,
	}, true
}

func (c *Chart) tooltipLines(p model.EvolutionPoint) []string {
	return []string{
		FormatNumber(p.AvgPrice) + " " + c.Currency,
		FormatDate(p.Date),
		"Observations (day): " + strconv.Itoa(p.PriceCount),
		"Day range: " + FormatNumber(p.MinPrice) + "–" + FormatNumber(p.MaxPrice) + " " + c.Currency,
	}
}

type Tick struct {
	Value float64 `json:"value"`
	Y     float64 `json:"y"`
	Label string  `json:"label"`
}

// YTicks returns n+1 evenly spaced values from the domain minimum to its
// maximum, or a single tick when the domain is flat.
func (c *Chart) YTicks(n int) []Tick {
	if n <= 0 {
		n = DefaultTickCount
	}
	if c.yMax == c.yMin {
		return []Tick{c.tick(c.yMin)}
	}
	ticks := make([]Tick, 0, n+1)
	for i := 0; i <= n; i++ {
		ticks = append(ticks, c.tick(c.yMin+float64(i)*(c.yMax-c.yMin)/float64(n)))
	}
	return ticks
}

func (c *Chart) tick(v float64) Tick {
	return Tick{Value: v, Y: c.ScaleY(v), Label: FormatNumber(math.Round(v))}
}

type AxisLabel struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Text   string  `json:"text"`
	Anchor string  `json:"anchor"`
}

// XLabels marks the first and last dates under the axis.
func (c *Chart) XLabels() []AxisLabel {
	if len(c.series) == 0 {
		return nil
	}
	y := c.rect.bottom() + 24
	return []AxisLabel{
		{X: c.rect.Margin.Left, Y: y, Text: FormatDate(time.UnixMilli(int64(c.xMin)).UTC()), Anchor: "start"},
		{X: c.rect.Width - c.rect.Margin.Right, Y: y, Text: FormatDate(time.UnixMilli(int64(c.xMax)).UTC()), Anchor: "end"},
	}
}

// Model is everything needed to draw the chart and its side panel.
type Model struct {
	Rect    Rect        `json:"rect"`
	Path    string      `json:"path"`
	Points  []Point     `json:"points"`
	Markers []Marker    `json:"markers"`
	YTicks  []Tick      `json:"y_ticks"`
	XLabels []AxisLabel `json:"x_labels"`
	Hover   HoverState  `json:"hover"`
	Stats   *Stats      `json:"stats"`
	Empty   bool        `json:"empty"`
}

func (c *Chart) Model() Model {
	return Model{
		Rect:    c.rect,
		Path:    c.Path(),
		Points:  c.Points(),
		Markers: c.Markers(),
		YTicks:  c.YTicks(DefaultTickCount),
		XLabels: c.XLabels(),
		Hover:   c.Hover(),
		Stats:   ComputeStats(c.series),
		Empty:   len(c.series) == 0,
	}
}
