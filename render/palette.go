package render

import (
	"fmt"
	"image/color"
	"math"

	"github.com/icza/gox/imagex/colorx"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// DefaultPalette is a ten colour qualitative palette.
var DefaultPalette = []string{
	"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728", "#9467bd",
	"#8c564b", "#e377c2", "#7f7f7f", "#bcbd22", "#17becf",
}

// ParsePalette parses #rgb or #rrggbb colours.
func ParsePalette(hex []string) ([]color.RGBA, error) {
	out := make([]color.RGBA, 0, len(hex))
	for _, h := range hex {
		c, err := colorx.ParseHexColor(h)
		if err != nil {
			return nil, fmt.Errorf("palette colour %q: %w", h, err)
		}
		out = append(out, c)
	}

	return out, nil
}

// Colors returns n distinct colours. The palette is used first; once it is
// exhausted the remaining colours are spread evenly around the hue wheel.
func Colors(palette []color.RGBA, n int) []color.RGBA {
	if n <= len(palette) {
		return append([]color.RGBA(nil), palette[:n]...)
	}

	out := append(make([]color.RGBA, 0, n), palette...)
	extra := n - len(palette)
	for i := 0; i < extra; i++ {
		// Alternate the value so neighbouring hues stay distinguishable.
		v := 0.85
		if i%2 == 1 {
			v = 0.6
		}
		out = append(out, hsv(float64(i)/float64(extra), 0.7, v))
	}

	return out
}

func hsv(h, s, v float64) color.RGBA {
	h = math.Mod(h, 1) * 6
	i := math.Floor(h)
	f := h - i
	p, q, t := v*(1-s), v*(1-s*f), v*(1-s*(1-f))

	var r, g, b float64
	switch int(i) {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	default:
		r, g, b = v, p, q
	}

	return color.RGBA{R: uint8(math.Round(r * 255)), G: uint8(math.Round(g * 255)), B: uint8(math.Round(b * 255)), A: 255}
}

func chartColor(c color.RGBA) drawing.Color {
	return drawing.Color{R: c.R, G: c.G, B: c.B, A: c.A}
}
