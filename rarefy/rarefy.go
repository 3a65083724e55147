// Package rarefy computes rarefaction curves: the expected number of distinct
// taxa observed when a sample is subsampled without replacement to a given
// read depth.
package rarefy

import (
	"fmt"
	"math"

	"github.com/jakubguzek/euglenida/phyloseq"
	"github.com/montanaflynn/stats"
)

// DefaultStep is the depth increment used by the pipeline.
const DefaultStep = 50

// logFactorials holds log(k!) for k = 0..n. One table serves every depth
// and taxon of a sample.
type logFactorials []float64

func newLogFactorials(n int64) logFactorials {
	lf := make(logFactorials, n+1)
	for k := int64(2); k <= n; k++ {
		lf[k] = lf[k-1] + math.Log(float64(k))
	}
	return lf
}

// binom is log C(n, k) for 0 <= k <= n < len(lf).
func (lf logFactorials) binom(n, k int64) float64 {
	return lf[n] - lf[k] - lf[n-k]
}

// Point is one evaluation of a rarefaction curve.
type Point struct {
	Depth    int64
	Richness float64
}

// Curve is the rarefaction curve of one sample.
type Curve struct {
	Sample string
	Total  int64
	Points []Point
}

// MaxRichness is the richness at the deepest point.
func (c Curve) MaxRichness() float64 {
	if len(c.Points) == 0 {
		return 0
	}
	return c.Points[len(c.Points)-1].Richness
}

// Expected returns the expected number of taxa with at least one read after
// drawing depth reads without replacement from counts:
//
//	E[S_n] = sum_i 1 - C(N-N_i, n) / C(N, n)
//
// The binomials are evaluated in log space so large libraries do not
// overflow.
func Expected(counts []int64, depth int64) float64 {
	total, _ := sum(counts)
	if depth <= 0 || depth >= total {
		return expected(counts, depth, nil)
	}
	return expected(counts, depth, newLogFactorials(total))
}

func sum(counts []int64) (total int64, observed int) {
	for _, c := range counts {
		if c > 0 {
			total += c
			observed++
		}
	}
	return total, observed
}

// expected is Expected with a log-factorial table covering the sample total.
func expected(counts []int64, depth int64, lf logFactorials) float64 {
	total, observed := sum(counts)

	switch {
	case depth <= 0:
		return 0
	case depth >= total:
		return float64(observed)
	}

	denom := lf.binom(total, depth)

	var s float64
	for _, c := range counts {
		if c <= 0 {
			continue
		}
		if total-c < depth {
			// Every subsample of this size must include the taxon.
			s++
			continue
		}
		s += 1 - math.Exp(lf.binom(total-c, depth)-denom)
	}

	return s
}

// Points evaluates the curve at depths 0, step, 2*step, ... and at the
// sample's total read count, which is appended when it does not fall on the
// grid. Richness never decreases from one point to the next.
func Points(counts []int64, step int64) ([]Point, error) {
	if step <= 0 {
		return nil, fmt.Errorf("rarefaction step must be positive, got %d", step)
	}

	var total int64
	for _, c := range counts {
		if c < 0 {
			return nil, fmt.Errorf("negative count %d", c)
		}
		total += c
	}

	lf := newLogFactorials(total)
	out := make([]Point, 0, total/step+2)
	for depth := int64(0); depth <= total; depth += step {
		out = append(out, Point{Depth: depth, Richness: expected(counts, depth, lf)})
	}
	if last := out[len(out)-1]; last.Depth != total {
		out = append(out, Point{Depth: total, Richness: expected(counts, total, lf)})
	}

	// Rounding in the log-space sum can produce a last-digit wobble.
	for i := 1; i < len(out); i++ {
		if out[i].Richness < out[i-1].Richness {
			out[i].Richness = out[i-1].Richness
		}
	}

	return out, nil
}

// Curves computes one curve per sample of d, in sample order.
func Curves(d *phyloseq.Dataset, step int64) ([]Curve, error) {
	out := make([]Curve, 0, d.NSamples())
	totals := d.OTU.SampleSums()

	for j, sample := range d.OTU.SampleIDs {
		pts, err := Points(d.OTU.SampleCounts(j), step)
		if err != nil {
			return nil, fmt.Errorf("sample %s: %w", sample, err)
		}
		out = append(out, Curve{Sample: sample, Total: totals[j], Points: pts})
	}

	return out, nil
}

// Depths summarizes sequencing depth across samples.
type Depths struct {
	N      int
	Min    float64
	Median float64
	Mean   float64
	Max    float64
}

func (d Depths) String() string {
	return fmt.Sprintf("%d samples, depth min %.0f, median %.1f, mean %.1f, max %.0f", d.N, d.Min, d.Median, d.Mean, d.Max)
}

// DepthSummary describes the per-sample read totals of d.
func DepthSummary(d *phyloseq.Dataset) (Depths, error) {
	sums := d.OTU.SampleSums()
	data := make(stats.Float64Data, len(sums))
	for i, s := range sums {
		data[i] = float64(s)
	}

	out := Depths{N: len(data)}
	if len(data) == 0 {
		return out, fmt.Errorf("DepthSummary: dataset has no samples")
	}

	var err error
	if out.Min, err = data.Min(); err != nil {
		return out, err
	}
	if out.Median, err = data.Median(); err != nil {
		return out, err
	}
	if out.Mean, err = data.Mean(); err != nil {
		return out, err
	}
	if out.Max, err = data.Max(); err != nil {
		return out, err
	}

	return out, nil
}
