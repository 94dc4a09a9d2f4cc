package chart

import (
	"bytes"
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"ecom-agent/internal/apperr"
)

// Canvas size in pixels
const (
	Width  = 800
	Height = 480
)

// dpi makes one point one pixel
const dpi = 72

const (
	maxLineLabels = 10
	maxLabelRunes = 14
)

var (
	barColor   = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	lineColor  = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	pointColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	gridColor  = color.RGBA{R: 224, G: 224, B: 224, A: 255}
)

// Render draws spec as a PNG. Identical specs produce identical bytes.
func Render(spec Spec) ([]byte, error) {
	if spec.Kind != KindBar && spec.Kind != KindTimeSeries {
		return nil, apperr.Render(fmt.Errorf("chart kind %q has no image", spec.Kind))
	}
	if len(spec.Values) == 0 || len(spec.Values) != len(spec.Labels) {
		return nil, apperr.Render(fmt.Errorf("chart has %d labels and %d values", len(spec.Labels), len(spec.Values)))
	}

	labels, values := spec.Labels, spec.Values
	if spec.Kind == KindBar && len(values) > MaxBars {
		labels, values = labels[:MaxBars], values[:MaxBars]
	}

	p := plot.New()
	p.X.Label.Text = spec.XLabel
	p.Y.Label.Text = spec.YLabel

	grid := plotter.NewGrid()
	grid.Vertical.Color = gridColor
	grid.Horizontal.Color = gridColor
	p.Add(grid)

	var err error
	switch spec.Kind {
	case KindBar:
		err = addBars(p, labels, values)
	case KindTimeSeries:
		err = addLine(p, labels, values)
	}
	if err != nil {
		return nil, apperr.Render(err)
	}

	c := vgimg.NewWith(vgimg.UseWH(vg.Points(Width), vg.Points(Height)), vgimg.UseDPI(dpi))
	p.Draw(draw.New(c))

	var buf bytes.Buffer
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(&buf); err != nil {
		return nil, apperr.Render(fmt.Errorf("failed to encode png: %w", err))
	}
	return buf.Bytes(), nil
}

func addBars(p *plot.Plot, labels []string, values []float64) error {
	width := vg.Points(math.Min(40, 560/float64(len(values))))
	bars, err := plotter.NewBarChart(plotter.Values(values), width)
	if err != nil {
		return fmt.Errorf("failed to build bar chart: %w", err)
	}
	bars.Color = barColor
	bars.LineStyle.Width = 0

	p.Add(bars)
	p.NominalX(clipAll(labels)...)
	return nil
}

func addLine(p *plot.Plot, labels []string, values []float64) error {
	pts := make(plotter.XYs, len(values))
	for i, v := range values {
		pts[i].X = float64(i)
		pts[i].Y = v
	}

	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return fmt.Errorf("failed to build line chart: %w", err)
	}
	line.Color = lineColor
	line.Width = vg.Points(2)
	points.Color = pointColor
	points.Shape = draw.CircleGlyph{}
	points.Radius = vg.Points(3)

	p.Add(line, points)
	p.X.Tick.Marker = dateTicks(labels)
	return nil
}

// dateTicks labels at most maxLineLabels evenly spaced points
func dateTicks(labels []string) plot.ConstantTicks {
	step := 1
	if len(labels) > maxLineLabels {
		step = (len(labels) + maxLineLabels - 1) / maxLineLabels
	}
	ticks := make(plot.ConstantTicks, 0, len(labels))
	for i, l := range labels {
		t := plot.Tick{Value: float64(i)}
		if i%step == 0 {
			t.Label = clip(l)
		}
		ticks = append(ticks, t)
	}
	return ticks
}

func clipAll(labels []string) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = clip(l)
	}
	return out
}

func clip(label string) string {
	r := []rune(label)
	if len(r) <= maxLabelRunes {
		return label
	}
	return string(r[:maxLabelRunes-1]) + "…"
}
