// Package chart renders report sections as PNG images with gonum/plot.
package chart

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"autorkm/internal/aggregator"
	"autorkm/internal/core"
)

// ErrNoData is returned for a series without points.
var ErrNoData = errors.New("chart: no data")

// ErrNoChart is returned for sections that are shown as a table only.
var ErrNoChart = errors.New("chart: section has no chart")

// Default image size.
const (
	DefaultWidth  = 10 * vg.Inch
	DefaultHeight = 5 * vg.Inch
)

var (
	barColor  = color.RGBA{R: 70, G: 130, B: 180, A: 255}
	lineColor = color.RGBA{R: 0, G: 100, B: 0, A: 255}
)

// Series is one chart's worth of data.
type Series struct {
	Title  string
	Kind   aggregator.ChartKind
	YLabel string
	Labels []string
	Values []float64
}

// FromSection converts a derived section into a series.
func FromSection(s aggregator.Section) Series {
	y := core.HeaderCount
	if s.ID == aggregator.SectionCategories {
		y = core.HeaderPercentage + " (%)"
	}
	return Series{Title: s.Title, Kind: s.Chart, YLabel: y, Labels: s.Labels, Values: s.Values}
}

// Render draws s and writes it to w as PNG. Zero sizes use the defaults.
func Render(w io.Writer, s Series, width, height vg.Length) error {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	if len(s.Values) == 0 {
		return ErrNoData
	}
	if len(s.Labels) != len(s.Values) {
		return fmt.Errorf("chart: %d labels for %d values", len(s.Labels), len(s.Values))
	}

	var (
		p   *plot.Plot
		err error
	)
	switch s.Kind {
	case aggregator.ChartBar:
		p, err = barPlot(s)
	case aggregator.ChartLine:
		p, err = linePlot(s)
	default:
		return ErrNoChart
	}
	if err != nil {
		return err
	}

	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return fmt.Errorf("chart: encode: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("chart: write: %w", err)
	}
	return nil
}

func newPlot(s Series) *plot.Plot {
	p := plot.New()
	p.Title.Text = s.Title
	p.Title.TextStyle.Font.Size = vg.Points(14)
	p.Y.Label.Text = s.YLabel
	p.Y.Min = 0
	p.Add(plotter.NewGrid())
	return p
}

func barPlot(s Series) (*plot.Plot, error) {
	p := newPlot(s)

	bars, err := plotter.NewBarChart(plotter.Values(s.Values), vg.Points(20))
	if err != nil {
		return nil, fmt.Errorf("chart: bars: %w", err)
	}
	bars.Color = barColor
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)

	p.NominalX(s.Labels...)
	p.X.Tick.Label.Rotation = math.Pi / 6
	p.X.Tick.Label.YAlign = draw.YCenter
	p.X.Tick.Label.XAlign = draw.XRight

	p.Y.Max = maxOf(s.Values) * 1.15
	return p, nil
}

func linePlot(s Series) (*plot.Plot, error) {
	p := newPlot(s)
	p.X.Label.Text = core.HeaderDate

	points := make(plotter.XYs, len(s.Values))
	for i, v := range s.Values {
		points[i].X = float64(i)
		points[i].Y = v
	}
	line, dots, err := plotter.NewLinePoints(points)
	if err != nil {
		return nil, fmt.Errorf("chart: line: %w", err)
	}
	line.Color = lineColor
	line.Width = vg.Points(2)
	dots.GlyphStyle.Color = lineColor
	p.Add(line, dots)

	p.NominalX(s.Labels...)
	p.X.Tick.Label.Rotation = math.Pi / 6
	p.X.Tick.Label.YAlign = draw.YCenter
	p.X.Tick.Label.XAlign = draw.XRight

	p.Y.Max = maxOf(s.Values) * 1.15
	return p, nil
}

func maxOf(vs []float64) float64 {
	m := 0.0
	for _, v := range vs {
		m = math.Max(m, v)
	}
	if m == 0 {
		return 1
	}
	return m
}
