package euglenida

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// BIOMHeaderComment is the first line `biom convert --to-tsv` writes.
const BIOMHeaderComment = "# Constructed from biom file"

// FeatureRow is one line of a feature (OTU/ASV) table.
type FeatureRow struct {
	FeatureID string
	Counts    []int64 // One per sample, in FeatureTable.Samples order
	Line      int     // 1-based line number in the input
}

// FeatureTable reads a delimited feature-by-sample count table one row at a
// time. Both `biom convert --to-tsv` output and plain tables whose first
// column is the feature ID are understood; a trailing taxonomy column, as
// written by `biom convert --header-key taxonomy`, is ignored.
type FeatureTable struct {
	Samples []string

	scanner    *bufio.Scanner
	delim      string
	line       int
	dropLast   bool
	err        error
	headerSeen bool
}

// NewFeatureTable consumes the header of r. The delimiter is detected from
// the first few kilobytes.
func NewFeatureTable(r io.Reader) (*FeatureTable, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	sample, err := br.Peek(16 * 1024)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, err
	}

	ft := &FeatureTable{
		scanner: bufio.NewScanner(br),
		delim:   string(DetermineDelimiter(stripComments(sample))),
	}
	ft.scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if err := ft.readHeader(); err != nil {
		return nil, err
	}

	return ft, nil
}

// stripComments removes the BIOM banner so it does not skew delimiter
// detection.
func stripComments(sample []byte) []byte {
	if bytes.HasPrefix(sample, []byte(BIOMHeaderComment)) {
		if i := bytes.IndexByte(sample, '\n'); i >= 0 {
			return sample[i+1:]
		}
	}

	return sample
}

func (f *FeatureTable) readHeader() error {
	for f.scanner.Scan() {
		f.line++
		text := strings.TrimRight(f.scanner.Text(), "\r")

		if strings.TrimSpace(text) == "" || strings.HasPrefix(text, BIOMHeaderComment) {
			continue
		}

		cols := strings.Split(text, f.delim)
		if len(cols) < 2 {
			return fmt.Errorf("line %d: header has no sample columns", f.line)
		}

		samples := cols[1:]
		if last := strings.ToLower(samples[len(samples)-1]); last == "taxonomy" {
			samples = samples[:len(samples)-1]
			f.dropLast = true
		}

		seen := make(map[string]struct{}, len(samples))
		for _, s := range samples {
			if _, dup := seen[s]; dup {
				return fmt.Errorf("line %d: sample %q appears twice in the header", f.line, s)
			}
			seen[s] = struct{}{}
		}

		f.Samples = samples
		f.headerSeen = true
		return nil
	}

	if err := f.scanner.Err(); err != nil {
		return err
	}

	return fmt.Errorf("line %d: no header found", f.line)
}

// Err reports the first error encountered by Read.
func (f *FeatureTable) Err() error {
	if f.err != nil {
		return f.err
	}

	return f.scanner.Err()
}

// Read returns the next row, or nil at the end of input or on error (see Err).
func (f *FeatureTable) Read() *FeatureRow {
	if f.err != nil {
		return nil
	}

	for f.scanner.Scan() {
		f.line++
		text := strings.TrimRight(f.scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" || strings.HasPrefix(text, "#") {
			continue
		}

		cols := strings.Split(text, f.delim)
		if f.dropLast && len(cols) == len(f.Samples)+2 {
			cols = cols[:len(cols)-1]
		}

		if len(cols) != len(f.Samples)+1 {
			f.err = fmt.Errorf("line %d: expected %d columns, found %d", f.line, len(f.Samples)+1, len(cols))
			return nil
		}

		row := &FeatureRow{
			FeatureID: cols[0],
			Counts:    make([]int64, len(f.Samples)),
			Line:      f.line,
		}

		for i, raw := range cols[1:] {
			count, err := ParseCount(raw)
			if err != nil {
				f.err = fmt.Errorf("line %d, sample %q: %w", f.line, f.Samples[i], err)
				return nil
			}
			row.Counts[i] = count
		}

		return row
	}

	return nil
}

// ParseCount parses a read count. BIOM exports write integers as floats
// ("12.0"), which is accepted as long as the value is a whole, non-negative
// number.
func ParseCount(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}

	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if v < 0 {
			return 0, fmt.Errorf("negative count %d", v)
		}
		return v, nil
	}

	fv, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("count %q is not a number", raw)
	}

	if fv < 0 || math.IsNaN(fv) || math.IsInf(fv, 0) || fv != math.Trunc(fv) || fv > math.MaxInt64 {
		return 0, fmt.Errorf("count %q is not a non-negative integer", raw)
	}

	return int64(fv), nil
}
