// Package render draws the diagnostic figures for a dataset: rarefaction
// curves as a fixed-size PDF and, in verbose mode, a histogram of per-taxon
// read totals. Optionally the figures are shown in a viewer window and the
// renderer blocks until the user closes it.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/jakubguzek/euglenida/phyloseq"
	"github.com/jakubguzek/euglenida/rarefy"
	"github.com/jakubguzek/euglenida/viewer"
	"go.uber.org/zap"
)

// Output file names under the output directory.
const (
	RarefactionFile = "rarecurve.pdf"
	HistogramFile   = "taxa_histogram.png"
)

// State is the renderer's position in its lifecycle.
type State int32

const (
	StateRendering State = iota
	StateAwaitingUserClose
)

func (s State) String() string {
	if s == StateAwaitingUserClose {
		return "awaiting-user-close"
	}
	return "rendering"
}

// Options controls figure geometry and styling.
type Options struct {
	WidthMM  float64
	HeightMM float64
	Palette  []color.RGBA
	XLabel   string
	YLabel   string
	Bins     int
}

// DefaultOptions is a 13 by 5 inch page with the default palette.
func DefaultOptions() Options {
	palette, err := ParsePalette(DefaultPalette)
	if err != nil {
		panic(err)
	}

	return Options{
		WidthMM:  13 * 25.4,
		HeightMM: 5 * 25.4,
		Palette:  palette,
		XLabel:   "Sample Size",
		YLabel:   "Species",
		Bins:     DefaultBins,
	}
}

// Renderer produces the diagnostics for one dataset.
type Renderer struct {
	Step    int64
	Options Options

	// Verbose adds the per-taxon histogram, printed to Out and saved as a
	// PNG.
	Verbose bool

	// Interactive opens a viewer window on Addr and makes Run wait for the
	// user to close it.
	Interactive bool
	Addr        string

	Out io.Writer
	Log *zap.Logger

	// OnState, if set, is called on every state change.
	OnState func(State)

	// Opened, if set, is called with the viewer URL once it is serving.
	Opened func(url string)

	// Browse, if set, shows the viewer URL to the user, typically
	// viewer.OpenBrowser. A failure is logged and the URL stays printed.
	Browse func(url string) error

	mu    sync.Mutex
	state State
}

// Result lists what Run produced.
type Result struct {
	Curves    []rarefy.Curve
	Histogram *histogram.Histogram
	Files     []string
}

func (r *Renderer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Renderer) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()

	r.log().Debug("renderer state", zap.Stringer("state", s))
	if r.OnState != nil {
		r.OnState(s)
	}
}

func (r *Renderer) log() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}

// Run renders the diagnostics of d into outdir, which must exist. When
// Interactive is set, Run enters StateAwaitingUserClose and returns only
// after the viewer is closed or ctx is cancelled.
func (r *Renderer) Run(ctx context.Context, d *phyloseq.Dataset, outdir string) (*Result, error) {
	r.setState(StateRendering)

	opts := r.Options
	if opts.WidthMM == 0 {
		opts = DefaultOptions()
	}
	out := r.Out
	if out == nil {
		out = os.Stderr
	}

	step := r.Step
	if step == 0 {
		step = rarefy.DefaultStep
	}

	curves, err := rarefy.Curves(d, step)
	if err != nil {
		return nil, fmt.Errorf("rarefaction: %w", err)
	}
	res := &Result{Curves: curves}

	pdfPath := filepath.Join(outdir, RarefactionFile)
	if err := RarefactionPDF(pdfPath, curves, opts); err != nil {
		return nil, err
	}
	res.Files = append(res.Files, pdfPath)
	r.log().Info("wrote rarefaction curves", zap.String("path", pdfPath), zap.Int("samples", len(curves)), zap.Int64("step", step))

	var figs []viewer.Figure
	if r.Interactive {
		fig, err := chartFigure("rarecurve", "Rarefaction curves", SVG, func() (renderable, error) {
			return RarefactionChart(curves, opts)
		})
		if err != nil && !errors.Is(err, ErrNothingToPlot) {
			return nil, err
		} else if err == nil {
			figs = append(figs, fig)
		}
	}

	if r.Verbose {
		h := TaxaHistogram(d, opts.Bins)
		res.Histogram = &h
		if err := PrintHistogram(out, h); err != nil {
			return nil, err
		}

		fig, err := chartFigure("histogram", "Reads per taxon", PNG, func() (renderable, error) {
			return HistogramChart(h, opts)
		})
		switch {
		case errors.Is(err, ErrNothingToPlot):
			r.log().Warn("no reads to draw a histogram of")
		case err != nil:
			return nil, err
		default:
			histPath := filepath.Join(outdir, HistogramFile)
			if err := os.WriteFile(histPath, fig.Data, 0o644); err != nil {
				return nil, fmt.Errorf("write %s: %w", histPath, err)
			}
			res.Files = append(res.Files, histPath)
			r.log().Info("wrote taxa histogram", zap.String("path", histPath))
			figs = append(figs, fig)
		}
	}

	if !r.Interactive {
		return res, nil
	}

	addr := r.Addr
	if addr == "" {
		addr = viewer.DefaultAddr
	}
	win, err := viewer.Open(addr, "euglenins diagnostics", figs, r.log())
	if err != nil {
		return nil, err
	}

	r.setState(StateAwaitingUserClose)
	fmt.Fprintf(out, "Diagnostics are shown at %s; close the page to continue.\n", win.URL())
	if r.Browse != nil {
		if err := r.Browse(win.URL()); err != nil {
			r.log().Warn("could not open a browser", zap.Error(err))
		}
	}
	if r.Opened != nil {
		r.Opened(win.URL())
	}

	if err := win.Wait(ctx); err != nil {
		return res, err
	}

	return res, nil
}

func chartFigure(name, title string, f Format, build func() (renderable, error)) (viewer.Figure, error) {
	c, err := build()
	if err != nil {
		return viewer.Figure{}, err
	}

	var buf bytes.Buffer
	if err := WriteChart(&buf, c, f); err != nil {
		return viewer.Figure{}, err
	}

	return viewer.Figure{Name: name, Title: title, ContentType: f.ContentType(), Data: buf.Bytes()}, nil
}
