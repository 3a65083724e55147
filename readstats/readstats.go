// Package readstats summarizes raw paired-end FASTQ files: the distribution
// of read lengths and how many reads start with the amplification primer,
// or with the primer less its first few bases.
package readstats

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio"
	"github.com/biogo/biogo/io/seqio/fastq"
	"github.com/biogo/biogo/seq/linear"
	"github.com/carbocation/pfx"
	"github.com/jakubguzek/euglenida"
	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"
)

// Primers of the Euglenida 18S amplicon.
const (
	DefaultForwardPrimer = "CTGTGAATGGCTCCTTACATCAG"
	DefaultReversePrimer = "CTSCCTCTCCGGAATCRAAC"
)

// MaxOffset is the largest number of leading primer bases dropped when
// counting primer starts.
const MaxOffset = 13

// Direction of a read file, taken from the digit before the extension.
type Direction string

const (
	Forward  Direction = "Forward"
	Reverse  Direction = "Reverse"
	Unpaired Direction = ""
)

// FileStats describes one FASTQ file.
type FileStats struct {
	Name      string
	Direction Direction
	Reads     int

	// Lengths holds one entry per read.
	Lengths []float64

	// Starts[i] counts reads beginning with the primer minus its first i
	// bases. Nil for unpaired files.
	Starts []int
}

// Summary of the read lengths.
func (f *FileStats) Summary() (shortest, median, mean, longest float64) {
	if len(f.Lengths) == 0 {
		return 0, 0, 0, 0
	}
	data := stats.Float64Data(f.Lengths)
	shortest, _ = data.Min()
	median, _ = data.Median()
	mean, _ = data.Mean()
	longest, _ = data.Max()
	return shortest, median, mean, longest
}

var iupac = map[byte]string{
	'R': "[AG]", 'Y': "[CT]", 'S': "[CG]", 'W': "[AT]", 'K': "[GT]", 'M': "[AC]",
	'B': "[CGT]", 'D': "[AGT]", 'H': "[ACT]", 'V': "[ACG]", 'N': "[ACGT]",
}

// PrimerPattern matches sequences that start with primer[offset:], with
// IUPAC ambiguity codes expanded into character classes.
func PrimerPattern(primer string, offset int) (*regexp.Regexp, error) {
	if offset < 0 {
		return nil, fmt.Errorf("negative primer offset %d", offset)
	}
	if offset > len(primer) {
		offset = len(primer)
	}

	var b strings.Builder
	b.WriteByte('^')
	for _, c := range []byte(strings.ToUpper(primer[offset:])) {
		if class, ok := iupac[c]; ok {
			b.WriteString(class)
			continue
		}
		switch c {
		case 'A', 'C', 'G', 'T':
			b.WriteByte(c)
		default:
			return nil, fmt.Errorf("primer %q: unexpected base %q", primer, c)
		}
	}

	return regexp.Compile(b.String())
}

// DirectionOf classifies a file named like sample_R1.fastq or sample_2.fastq.gz.
func DirectionOf(path string) Direction {
	stem := filepath.Base(path)
	for _, ext := range []string{".gz", ".xz", ".bz2"} {
		stem = strings.TrimSuffix(stem, ext)
	}
	stem = strings.TrimSuffix(stem, filepath.Ext(stem))

	switch {
	case strings.HasSuffix(stem, "1"):
		return Forward
	case strings.HasSuffix(stem, "2"):
		return Reverse
	}
	return Unpaired
}

// Read computes the statistics of one FASTQ stream. When primer is empty no
// primer starts are counted.
func Read(r io.Reader, name, primer string) (*FileStats, error) {
	out := &FileStats{Name: name}

	var patterns []*regexp.Regexp
	if primer != "" {
		for i := 0; i <= MaxOffset; i++ {
			re, err := PrimerPattern(primer, i)
			if err != nil {
				return nil, err
			}
			patterns = append(patterns, re)
		}
		out.Starts = make([]int, len(patterns))
	}

	template := linear.NewQSeq("", nil, alphabet.DNAredundant, alphabet.Sanger)
	sc := seqio.NewScanner(fastq.NewReader(r, template))

	var buf []byte
	for sc.Next() {
		s := sc.Seq()
		out.Reads++
		out.Lengths = append(out.Lengths, float64(s.Len()))

		if patterns == nil {
			continue
		}

		buf = buf[:0]
		for i := 0; i < s.Len(); i++ {
			buf = append(buf, byte(s.At(i).L))
		}
		upper := []byte(strings.ToUpper(string(buf)))
		for i, re := range patterns {
			if re.Match(upper) {
				out.Starts[i]++
			}
		}
	}
	if err := sc.Error(); err != nil {
		return nil, pfx.Err(fmt.Errorf("%s: read %d: %w", name, out.Reads+1, err))
	}

	return out, nil
}

// ReadFile opens path, decompressing it if needed, and reads it with the
// primer matching its direction.
func ReadFile(path, forward, reverse string) (*FileStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, _, err := euglenida.MaybeDecompress(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	dir := DirectionOf(path)
	primer := ""
	switch dir {
	case Forward:
		primer = forward
	case Reverse:
		primer = reverse
	}

	out, err := Read(r, filepath.Base(path), primer)
	if err != nil {
		return nil, err
	}
	out.Direction = dir
	return out, nil
}

// Files lists the FASTQ files directly under dir, sorted by name.
func Files(dir string) ([]string, error) {
	var out []string
	for _, pattern := range []string{"*.fastq", "*.fq", "*.fastq.gz", "*.fq.gz"} {
		m, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		out = append(out, m...)
	}
	sort.Strings(out)
	return out, nil
}

// Scan reads every FASTQ file under dir, at most threads at a time. Results
// keep the order of Files.
func Scan(ctx context.Context, dir, forward, reverse string, threads int) ([]*FileStats, error) {
	files, err := Files(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no FASTQ files in %s", dir)
	}

	if threads < 1 {
		threads = 1
	}

	out := make([]*FileStats, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fs, err := ReadFile(path, forward, reverse)
			if err != nil {
				return err
			}
			out[i] = fs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}
