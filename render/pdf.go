package render

import (
	"fmt"
	"image/color"
	"math"
	"strconv"

	"github.com/jakubguzek/euglenida/rarefy"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers"
)

// Page margins in millimetres.
const (
	marginLeft   = 20.0
	marginRight  = 6.0
	marginBottom = 16.0
	marginTop    = 8.0
)

// fontNames are tried in order when looking for a system font for labels.
var fontNames = []string{"DejaVuSans", "LiberationSans", "Arial", "Helvetica", "FreeSans"}

// RarefactionFigure lays out the rarefaction curves of all samples on a
// single page of opts.WidthMM by opts.HeightMM. Axis labels and tick values
// are drawn only when a system font can be found.
func RarefactionFigure(curves []rarefy.Curve, opts Options) *canvas.Canvas {
	c := canvas.New(opts.WidthMM, opts.HeightMM)
	ctx := canvas.NewContext(c)

	ctx.SetFillColor(color.White)
	ctx.DrawPath(0, 0, canvas.Rectangle(opts.WidthMM, opts.HeightMM))
	ctx.SetFillColor(color.Transparent)

	pw := opts.WidthMM - marginLeft - marginRight
	ph := opts.HeightMM - marginBottom - marginTop

	var xmax, ymax float64
	for _, cv := range curves {
		xmax = math.Max(xmax, float64(cv.Total))
		ymax = math.Max(ymax, cv.MaxRichness())
	}
	xstep, ystep := niceStep(xmax, 8), niceStep(ymax, 5)
	xmax = math.Max(xstep, math.Ceil(xmax/xstep)*xstep)
	ymax = math.Max(ystep, math.Ceil(ymax/ystep)*ystep)

	px := func(v float64) float64 { return marginLeft + v/xmax*pw }
	py := func(v float64) float64 { return marginBottom + v/ymax*ph }

	face := loadFace(8)

	// Axes and ticks
	ctx.SetStrokeColor(color.Black)
	ctx.SetStrokeWidth(0.3)
	ctx.MoveTo(marginLeft, marginBottom+ph)
	ctx.LineTo(marginLeft, marginBottom)
	ctx.LineTo(marginLeft+pw, marginBottom)
	ctx.Stroke()

	for v := 0.0; v <= xmax+xstep/2; v += xstep {
		ctx.MoveTo(px(v), marginBottom)
		ctx.LineTo(px(v), marginBottom-1.5)
		ctx.Stroke()
		if face != nil {
			ctx.DrawText(px(v), marginBottom-5, canvas.NewTextLine(face, formatTick(v), canvas.Center))
		}
	}
	for v := 0.0; v <= ymax+ystep/2; v += ystep {
		ctx.MoveTo(marginLeft, py(v))
		ctx.LineTo(marginLeft-1.5, py(v))
		ctx.Stroke()
		if face != nil {
			ctx.DrawText(marginLeft-2.5, py(v)-1, canvas.NewTextLine(face, formatTick(v), canvas.Right))
		}
	}

	if face != nil {
		ctx.DrawText(marginLeft+pw/2, 3, canvas.NewTextLine(face, opts.XLabel, canvas.Center))
		ctx.DrawText(marginLeft, opts.HeightMM-marginTop+3, canvas.NewTextLine(face, opts.YLabel, canvas.Center))
	}

	// Curves
	colors := Colors(opts.Palette, len(curves))
	ctx.SetStrokeWidth(0.4)
	for i, cv := range curves {
		if len(cv.Points) < 2 {
			continue
		}

		ctx.SetStrokeColor(colors[i])
		ctx.MoveTo(px(float64(cv.Points[0].Depth)), py(cv.Points[0].Richness))
		for _, p := range cv.Points[1:] {
			ctx.LineTo(px(float64(p.Depth)), py(p.Richness))
		}
		ctx.Stroke()
	}

	return c
}

// RarefactionPDF writes the figure to path as a PDF.
func RarefactionPDF(path string, curves []rarefy.Curve, opts Options) error {
	c := RarefactionFigure(curves, opts)
	if err := c.WriteFile(path, renderers.PDF()); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func loadFace(sizePt float64) *canvas.FontFace {
	family := canvas.NewFontFamily("labels")
	for _, name := range fontNames {
		if err := family.LoadLocalFont(name, canvas.FontRegular); err == nil {
			return family.Face(sizePt, color.Black, canvas.FontRegular, canvas.FontNormal)
		}
	}
	return nil
}

// niceStep picks a tick spacing of 1, 2 or 5 times a power of ten giving
// roughly n intervals over [0, max].
func niceStep(max float64, n int) float64 {
	if max <= 0 || n <= 0 {
		return 1
	}

	raw := max / float64(n)
	mag := math.Pow(10, math.Floor(math.Log10(raw)))
	for _, m := range []float64{1, 2, 5, 10} {
		if raw <= m*mag {
			return math.Max(1, m*mag)
		}
	}
	return math.Max(1, 10*mag)
}

func formatTick(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
