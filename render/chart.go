package render

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/jakubguzek/euglenida/rarefy"
	"github.com/wcharczuk/go-chart/v2"
)

// ErrNothingToPlot is returned when no sample or taxon has any reads.
var ErrNothingToPlot = errors.New("nothing to plot")

// Format selects the raster or vector go-chart backend.
type Format int

const (
	PNG Format = iota
	SVG
)

func (f Format) provider() chart.RendererProvider {
	if f == SVG {
		return chart.SVG
	}
	return chart.PNG
}

func (f Format) ContentType() string {
	if f == SVG {
		return "image/svg+xml"
	}
	return "image/png"
}

func (o Options) pixels() (int, int) {
	const dpmm = 100 / 25.4
	return int(math.Round(o.WidthMM * dpmm)), int(math.Round(o.HeightMM * dpmm))
}

// RarefactionChart draws every curve on one set of axes, one colour per
// sample and no legend. Samples without reads are left out; if none remain
// ErrNothingToPlot is returned.
func RarefactionChart(curves []rarefy.Curve, opts Options) (chart.Chart, error) {
	colors := Colors(opts.Palette, len(curves))

	var series []chart.Series
	for i, c := range curves {
		if len(c.Points) < 2 {
			continue
		}

		xs := make([]float64, len(c.Points))
		ys := make([]float64, len(c.Points))
		for k, p := range c.Points {
			xs[k], ys[k] = float64(p.Depth), p.Richness
		}

		series = append(series, chart.ContinuousSeries{
			Name:    c.Sample,
			XValues: xs,
			YValues: ys,
			Style: chart.Style{
				StrokeColor: chartColor(colors[i]),
				StrokeWidth: 1.5,
			},
		})
	}
	if len(series) == 0 {
		return chart.Chart{}, ErrNothingToPlot
	}

	w, h := opts.pixels()
	return chart.Chart{
		Width:  w,
		Height: h,
		XAxis:  chart.XAxis{Name: opts.XLabel},
		YAxis:  chart.YAxis{Name: opts.YLabel},
		Series: series,
	}, nil
}

// HistogramChart draws the binned per-taxon totals as bars. Only every fifth
// bar is labelled with its lower bound.
func HistogramChart(h histogram.Histogram, opts Options) (chart.BarChart, error) {
	if h.Count == 0 || h.Max == 0 {
		return chart.BarChart{}, ErrNothingToPlot
	}

	fill := color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	if len(opts.Palette) > 0 {
		fill = opts.Palette[0]
	}

	w, ht := opts.pixels()
	barWidth := (w - 100) / (len(h.Buckets) + 1)
	if barWidth > 40 {
		barWidth = 40
	}
	if barWidth < 2 {
		barWidth = 2
	}

	bars := make([]chart.Value, len(h.Buckets))
	for i, b := range h.Buckets {
		label := ""
		if i%5 == 0 {
			label = fmt.Sprintf("%.0f", b.Min)
		}
		bars[i] = chart.Value{
			Label: label,
			Value: float64(b.Count),
			Style: chart.Style{FillColor: chartColor(fill), StrokeColor: chartColor(fill)},
		}
	}

	return chart.BarChart{
		Title:      "Reads per taxon",
		Width:      w,
		Height:     ht,
		BarWidth:   barWidth * 3 / 4,
		BarSpacing: barWidth / 4,
		YAxis:      chart.YAxis{Range: &chart.ContinuousRange{Min: 0, Max: float64(h.Max)}},
		Bars:       bars,
	}, nil
}

type renderable interface {
	Render(rp chart.RendererProvider, w io.Writer) error
}

// WriteChart renders a chart.Chart or chart.BarChart.
func WriteChart(w io.Writer, c renderable, f Format) error {
	if err := c.Render(f.provider(), w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}
