package rarefy

import (
	"math"
	"testing"
	"time"

	"github.com/jakubguzek/euglenida/phyloseq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat/combin"
	"gopkg.in/guregu/null.v3"
)

func depths(pts []Point) []int64 {
	out := make([]int64, len(pts))
	for i, p := range pts {
		out[i] = p.Depth
	}
	return out
}

func assertNonDecreasing(t *testing.T, pts []Point) {
	t.Helper()
	for i := 1; i < len(pts); i++ {
		assert.GreaterOrEqual(t, pts[i].Richness, pts[i-1].Richness, "depth %d", pts[i].Depth)
	}
}

func TestPointsOnGrid(t *testing.T) {
	counts := []int64{40, 30, 20, 9, 1}

	pts, err := Points(counts, 50)
	require.NoError(t, err)

	assert.Equal(t, []int64{0, 50, 100}, depths(pts))
	assertNonDecreasing(t, pts)
	assert.Equal(t, 0.0, pts[0].Richness)
	assert.Equal(t, 5.0, pts[2].Richness)
	assert.Greater(t, pts[1].Richness, 3.0)
	assert.Less(t, pts[1].Richness, 5.0)
}

func TestPointsAppendsTotal(t *testing.T) {
	pts, err := Points([]int64{100, 20}, 50)
	require.NoError(t, err)

	assert.Equal(t, []int64{0, 50, 100, 120}, depths(pts))
	assertNonDecreasing(t, pts)
	assert.Equal(t, 2.0, pts[3].Richness)
}

func TestPointsEmptySample(t *testing.T) {
	pts, err := Points([]int64{0, 0}, 50)
	require.NoError(t, err)
	assert.Equal(t, []Point{{Depth: 0, Richness: 0}}, pts)
}

func TestPointsRejectsBadInput(t *testing.T) {
	_, err := Points([]int64{1}, 0)
	assert.Error(t, err)

	_, err = Points([]int64{1}, -5)
	assert.Error(t, err)

	_, err = Points([]int64{-1}, 10)
	assert.Error(t, err)
}

func TestExpected(t *testing.T) {
	assert.InDelta(t, 1.0, Expected([]int64{1, 1}, 1), 1e-9)
	assert.InDelta(t, 2*(1-1.0/6), Expected([]int64{2, 2}, 2), 1e-9)
	assert.InDelta(t, 1.0, Expected([]int64{7}, 3), 1e-9)
	assert.Equal(t, 3.0, Expected([]int64{5, 0, 1, 2}, 1000))
	assert.Equal(t, 0.0, Expected([]int64{5, 1}, 0))

	// A taxon holding more than N-n reads is always observed.
	assert.InDelta(t, 1.2, Expected([]int64{9, 1}, 2), 1e-9)
}

func TestExpectedLargeLibrary(t *testing.T) {
	counts := make([]int64, 500)
	for i := range counts {
		counts[i] = int64(i%37 + 1)
	}

	pts, err := Points(counts, 1000)
	require.NoError(t, err)
	assertNonDecreasing(t, pts)
	assert.Equal(t, 500.0, pts[len(pts)-1].Richness)
}

func TestLogFactorialsMatchBinomial(t *testing.T) {
	lf := newLogFactorials(100000)
	for _, nk := range [][2]int64{{10, 3}, {5000, 50}, {100000, 99950}, {99000, 50000}} {
		want := combin.LogGeneralizedBinomial(float64(nk[0]), float64(nk[1]))
		assert.InEpsilon(t, want, lf.binom(nk[0], nk[1]), 1e-9, "C(%d, %d)", nk[0], nk[1])
	}
	assert.Equal(t, 0.0, lf.binom(7, 0))
}

// Amplicon samples routinely carry a few hundred thousand reads; a curve at
// the default step must stay cheap.
func TestPointsDeepSample(t *testing.T) {
	counts := make([]int64, 400)
	var total int64
	for i := range counts {
		counts[i] = int64(1 + (i*7919)%500)
		total += counts[i]
	}
	require.Greater(t, total, int64(90000))

	start := time.Now()
	pts, err := Points(counts, DefaultStep)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	assertNonDecreasing(t, pts)
	assert.Equal(t, 400.0, pts[len(pts)-1].Richness)

	// Spot check one point against the binomials evaluated directly.
	depth := pts[len(pts)/2].Depth
	denom := combin.LogGeneralizedBinomial(float64(total), float64(depth))
	var want float64
	for _, c := range counts {
		if total-c < depth {
			want++
			continue
		}
		want += 1 - math.Exp(combin.LogGeneralizedBinomial(float64(total-c), float64(depth))-denom)
	}
	assert.InDelta(t, want, pts[len(pts)/2].Richness, 1e-4)
}

func dataset(t *testing.T) *phyloseq.Dataset {
	otu := &phyloseq.OTUTable{
		TaxonIDs:  []string{"a", "b", "c"},
		SampleIDs: []string{"S1", "S2", "S3"},
		Counts:    [][]int64{{50, 0, 10}, {40, 0, 10}, {10, 0, 10}},
	}
	tax := &phyloseq.TaxonomyTable{Ranks: phyloseq.DefaultRanks, Lineages: map[string]phyloseq.Lineage{}}
	for _, id := range otu.TaxonIDs {
		l := make(phyloseq.Lineage, len(phyloseq.DefaultRanks))
		l[0] = null.StringFrom("Eukaryota")
		tax.Lineages[id] = l
	}
	sam := &phyloseq.SampleData{Rows: map[string][]string{"S1": nil, "S2": nil, "S3": nil}}

	d, err := phyloseq.New(otu, tax, sam, nil)
	require.NoError(t, err)
	return d
}

func TestCurves(t *testing.T) {
	curves, err := Curves(dataset(t), 50)
	require.NoError(t, err)
	require.Len(t, curves, 3)

	assert.Equal(t, "S1", curves[0].Sample)
	assert.EqualValues(t, 100, curves[0].Total)
	assert.Equal(t, []int64{0, 50, 100}, depths(curves[0].Points))
	assert.Equal(t, 3.0, curves[0].MaxRichness())

	assert.EqualValues(t, 0, curves[1].Total)
	assert.Len(t, curves[1].Points, 1)

	assert.Equal(t, []int64{0, 30}, depths(curves[2].Points))

	_, err = Curves(dataset(t), 0)
	assert.Error(t, err)
}

func TestDepthSummary(t *testing.T) {
	got, err := DepthSummary(dataset(t))
	require.NoError(t, err)

	assert.Equal(t, Depths{N: 3, Min: 0, Median: 30, Mean: 130.0 / 3, Max: 100}, got)
	assert.Contains(t, got.String(), "3 samples")
}
