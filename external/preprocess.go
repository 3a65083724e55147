package external

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Sweep defaults.
var (
	DefaultTruncLen = []int{200}
	DefaultTrimLeft = []int{10}
	DefaultTruncQ   = []int{15}
)

const DefaultThreads = 2

// Preprocess imports paired-end reads and denoises them with DADA2 once for
// every combination of trimming tuple and quality threshold.
type Preprocess struct {
	QIIME    QIIME
	Manifest string
	Outdir   string

	// The i-th elements of the four slices form one trimming tuple.
	TruncLenF, TruncLenR []int
	TrimLeftF, TrimLeftR []int
	TruncQ               []int

	// Threads bounds the number of concurrent DADA2 runs.
	Threads int
	Verbose bool
}

// ReadsArtifact is the imported reads file under Outdir.
const ReadsArtifact = "reads.qza"

// Sweep expands the trimming tuples and quality thresholds into their
// cartesian product, tuples varying slowest.
func (p Preprocess) Sweep() ([]TrimParams, error) {
	n := len(p.TruncLenF)
	if len(p.TruncLenR) != n || len(p.TrimLeftF) != n || len(p.TrimLeftR) != n {
		return nil, fmt.Errorf("trimming parameters differ in length: trunc-len-f %d, trunc-len-r %d, trim-left-f %d, trim-left-r %d",
			len(p.TruncLenF), len(p.TruncLenR), len(p.TrimLeftF), len(p.TrimLeftR))
	}
	if n == 0 || len(p.TruncQ) == 0 {
		return nil, fmt.Errorf("empty parameter sweep")
	}

	out := make([]TrimParams, 0, n*len(p.TruncQ))
	for i := 0; i < n; i++ {
		for _, q := range p.TruncQ {
			out = append(out, TrimParams{
				TruncLenF: p.TruncLenF[i],
				TruncLenR: p.TruncLenR[i],
				TrimLeftF: p.TrimLeftF[i],
				TrimLeftR: p.TrimLeftR[i],
				TruncQ:    q,
			})
		}
	}
	return out, nil
}

// Run imports the manifest, summarizes the demultiplexed reads and then
// runs the sweep.
func (p Preprocess) Run(ctx context.Context, r *Runner) error {
	sweep, err := p.Sweep()
	if err != nil {
		return fmt.Errorf("preprocess: %w", err)
	}
	if err := requireFiles("manifest", p.Manifest); err != nil {
		return fmt.Errorf("preprocess: %w", err)
	}
	if _, err := LookPath(p.QIIME.cmd().Name); err != nil {
		return fmt.Errorf("preprocess: %w", err)
	}
	if err := os.MkdirAll(p.Outdir, 0o755); err != nil {
		return fmt.Errorf("preprocess: %w", err)
	}

	reads := filepath.Join(p.Outdir, ReadsArtifact)
	for _, c := range []Command{
		p.QIIME.ToolsImport(p.Manifest, reads),
		p.QIIME.DemuxSummarize(reads, withExt(reads, ".qzv")),
	} {
		if err := r.Run(ctx, c); err != nil {
			return fmt.Errorf("preprocess: %w", err)
		}
	}

	threads := p.Threads
	if threads < 1 {
		threads = 1
	}
	r.log().Info("starting DADA2 sweep", zap.Int("runs", len(sweep)), zap.Int("threads", threads))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)
	for _, params := range sweep {
		g.Go(func() error {
			if err := p.denoise(gctx, r, reads, params); err != nil {
				return fmt.Errorf("preprocess %s: %w", params.Suffix(), err)
			}
			return nil
		})
	}

	return g.Wait()
}

// Outputs names the artifacts of one sweep run.
func (p Preprocess) Outputs(params TrimParams) DenoiseOutputs {
	s := params.Suffix()
	return DenoiseOutputs{
		Stats:     filepath.Join(p.Outdir, "filtering_stats_"+s+".qza"),
		Sequences: filepath.Join(p.Outdir, "filtered_reads_"+s+".qza"),
		Table:     filepath.Join(p.Outdir, "filtering_table_"+s+".qza"),
	}
}

func (p Preprocess) denoise(ctx context.Context, r *Runner, reads string, params TrimParams) error {
	out := p.Outputs(params)
	tableDir := withExt(out.Table, "")
	seqDir := withExt(out.Sequences, "")

	steps := []Command{
		p.QIIME.DADA2DenoisePaired(reads, params, out, p.Verbose),
		p.QIIME.MetadataTabulate(out.Stats, withExt(out.Stats, ".qzv")),
		p.QIIME.FeatureTableSummarize(out.Table, withExt(out.Table, ".qzv")),
	}
	for _, c := range steps {
		if err := r.Run(ctx, c); err != nil {
			return err
		}
	}

	for _, dir := range []string{tableDir, seqDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	for _, c := range []Command{
		p.QIIME.ToolsExport(out.Table, tableDir),
		p.QIIME.ToolsExport(out.Sequences, seqDir),
	} {
		if err := r.Run(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// withExt swaps the extension of path; an empty ext strips it.
func withExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}
