package readstats

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aybabtme/uniplot/histogram"
)

// WriteTSV writes one row per file: name, direction, read count, length
// summary and the primer start counts for offsets 0 through MaxOffset.
func WriteTSV(w io.Writer, files []*FileStats) error {
	header := []string{"file", "direction", "reads", "min_length", "median_length", "mean_length", "max_length"}
	for i := 0; i <= MaxOffset; i++ {
		header = append(header, "starts_"+strconv.Itoa(i))
	}
	if _, err := fmt.Fprintln(w, strings.Join(header, "\t")); err != nil {
		return err
	}

	for _, f := range files {
		shortest, median, mean, longest := f.Summary()
		row := []string{
			f.Name,
			string(f.Direction),
			strconv.Itoa(f.Reads),
			ftoa(shortest), ftoa(median), ftoa(mean), ftoa(longest),
		}
		for i := 0; i <= MaxOffset; i++ {
			if f.Starts == nil {
				row = append(row, "NA")
				continue
			}
			row = append(row, strconv.Itoa(f.Starts[i]))
		}
		if _, err := fmt.Fprintln(w, strings.Join(row, "\t")); err != nil {
			return err
		}
	}

	return nil
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// LengthHistogram bins the read lengths of every file in the given
// direction. Unpaired selects all files.
func LengthHistogram(files []*FileStats, dir Direction, bins int) histogram.Histogram {
	var data []float64
	for _, f := range files {
		if dir != Unpaired && f.Direction != dir {
			continue
		}
		data = append(data, f.Lengths...)
	}
	return histogram.Hist(bins, data)
}

// PrintHistograms draws the forward and reverse read-length histograms as
// text.
func PrintHistograms(w io.Writer, files []*FileStats, bins int) error {
	for _, dir := range []Direction{Forward, Reverse} {
		h := LengthHistogram(files, dir, bins)
		if _, err := fmt.Fprintf(w, "%s read lengths (%d reads)\n", dir, h.Count); err != nil {
			return err
		}
		if h.Count == 0 {
			continue
		}
		if err := histogram.Fprint(w, h, histogram.Linear(60)); err != nil {
			return err
		}
	}
	return nil
}
