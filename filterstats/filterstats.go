// Package filterstats compares the DADA2 denoising statistics of a parameter
// sweep: for every filtering_stats_<params>.qza it reports how much of the
// input survived filtering, merging and chimera removal.
package filterstats

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/jakubguzek/euglenida"
	"github.com/montanaflynn/stats"
)

// Prefix of the artifacts written by the preprocess sweep.
const Prefix = "filtering_stats_"

// Row is one sample of a stats.tsv payload.
type Row struct {
	SampleID     string  `csv:"sample-id"`
	Input        int64   `csv:"input"`
	PassedFilter float64 `csv:"percentage of input passed filter"`
	Merged       float64 `csv:"percentage of input merged"`
	NonChimeric  float64 `csv:"percentage of input non-chimeric"`
}

var requiredColumns = []string{
	"sample-id",
	"percentage of input passed filter",
	"percentage of input merged",
	"percentage of input non-chimeric",
}

// Run holds the statistics of one denoising run.
type Run struct {
	// Name is the parameter suffix, e.g. "200_200_10_10_15".
	Name string
	Path string
	Rows []Row
}

// NameOf strips the artifact prefix and extension from path.
func NameOf(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.TrimPrefix(base, Prefix)
}

// ReadStats decodes a tab-separated stats table. The #q2:types directive row
// is skipped.
func ReadStats(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var rows []Row
	if err := gocsv.UnmarshalCSV(&directiveSkipper{r: cr}, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ReadArtifact opens a filtering stats artifact (or a bare stats.tsv) and
// decodes its table.
func ReadArtifact(ctx context.Context, o *euglenida.Opener, path string) (*Run, error) {
	a, err := o.OpenArtifact(ctx, path, ".tsv")
	if err != nil {
		return nil, err
	}
	defer a.Close()

	rows, err := ReadStats(a)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &Run{Name: NameOf(path), Path: path, Rows: rows}, nil
}

// Collect reads every filtering stats artifact directly under dir, sorted by
// name.
func Collect(ctx context.Context, o *euglenida.Opener, dir string) ([]*Run, error) {
	paths, err := filepath.Glob(filepath.Join(dir, Prefix+"*.qza"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no %s*.qza artifacts in %s", Prefix, dir)
	}
	sort.Strings(paths)

	out := make([]*Run, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		run, err := ReadArtifact(ctx, o, p)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

// Summary is the per-run mean and median of each retained percentage.
type Summary struct {
	Name    string
	Samples int

	PassedMean, PassedMedian           float64
	MergedMean, MergedMedian           float64
	NonChimericMean, NonChimericMedian float64
}

func Summarize(r *Run) Summary {
	s := Summary{Name: r.Name, Samples: len(r.Rows)}
	if len(r.Rows) == 0 {
		return s
	}

	var passed, merged, nonChimeric stats.Float64Data
	for _, row := range r.Rows {
		passed = append(passed, row.PassedFilter)
		merged = append(merged, row.Merged)
		nonChimeric = append(nonChimeric, row.NonChimeric)
	}

	s.PassedMean, _ = passed.Mean()
	s.PassedMedian, _ = passed.Median()
	s.MergedMean, _ = merged.Mean()
	s.MergedMedian, _ = merged.Median()
	s.NonChimericMean, _ = nonChimeric.Mean()
	s.NonChimericMedian, _ = nonChimeric.Median()

	return s
}

// WriteTable prints the summaries as TSV.
func WriteTable(w io.Writer, sums []Summary) error {
	if _, err := fmt.Fprintln(w, "params\tsamples\tpassed_mean\tpassed_median\tmerged_mean\tmerged_median\tnonchimeric_mean\tnonchimeric_median"); err != nil {
		return err
	}
	for _, s := range sums {
		_, err := fmt.Fprintf(w, "%s\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\n",
			s.Name, s.Samples,
			s.PassedMean, s.PassedMedian,
			s.MergedMean, s.MergedMedian,
			s.NonChimericMean, s.NonChimericMedian)
		if err != nil {
			return err
		}
	}
	return nil
}

// directiveSkipper hands gocsv the header, checked for the columns Row
// needs, followed by the data rows without "#" directives.
type directiveSkipper struct {
	r      *csv.Reader
	header bool
}

func (d *directiveSkipper) Read() ([]string, error) {
	for {
		rec, err := d.r.Read()
		if err != nil {
			return nil, err
		}

		if !d.header {
			d.header = true
			if err := checkHeader(rec); err != nil {
				return nil, err
			}
			return rec, nil
		}

		if len(rec) > 0 && strings.HasPrefix(rec[0], "#") {
			continue
		}
		return rec, nil
	}
}

func (d *directiveSkipper) ReadAll() ([][]string, error) {
	var out [][]string
	for {
		rec, err := d.Read()
		if err == io.EOF {
			return out, nil
		} else if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}

func checkHeader(header []string) error {
	have := make(map[string]bool, len(header))
	for _, h := range header {
		have[strings.TrimSpace(h)] = true
	}
	for _, want := range requiredColumns {
		if !have[want] {
			return fmt.Errorf("stats table has no %q column", want)
		}
	}
	return nil
}
