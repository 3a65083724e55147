package render

import (
	"io"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/jakubguzek/euglenida/phyloseq"
)

// DefaultBins is the number of histogram bins used in verbose mode.
const DefaultBins = 50

// TaxaHistogram bins the total read count of every taxon.
func TaxaHistogram(d *phyloseq.Dataset, bins int) histogram.Histogram {
	sums := d.OTU.TaxaSums()
	data := make([]float64, len(sums))
	for i, s := range sums {
		data[i] = float64(s)
	}

	return histogram.Hist(bins, data)
}

// PrintHistogram draws h as text bars, 60 columns at the widest.
func PrintHistogram(w io.Writer, h histogram.Histogram) error {
	if h.Count == 0 {
		_, err := io.WriteString(w, "(no taxa)\n")
		return err
	}
	return histogram.Fprint(w, h, histogram.Linear(60))
}
