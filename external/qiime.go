package external

import (
	"fmt"
	"strconv"
)

// DefaultQIIME is the QIIME 2 executable looked up on $PATH.
const DefaultQIIME = "qiime"

// QIIME builds qiime command lines for one executable.
type QIIME struct {
	Path string
}

func (q QIIME) cmd(args ...string) Command {
	name := q.Path
	if name == "" {
		name = DefaultQIIME
	}
	return Command{Name: name, Args: args}
}

// ToolsImport imports paired-end reads listed in a Phred33 manifest.
func (q QIIME) ToolsImport(manifest, out string) Command {
	return q.cmd("tools", "import",
		"--type", "SampleData[PairedEndSequencesWithQuality]",
		"--input-format", "PairedEndFastqManifestPhred33",
		"--input-path", manifest,
		"--output-path", out)
}

func (q QIIME) DemuxSummarize(reads, out string) Command {
	return q.cmd("demux", "summarize", "--i-data", reads, "--o-visualization", out)
}

// DenoiseOutputs are the three artifacts written by one DADA2 run.
type DenoiseOutputs struct {
	Stats     string
	Sequences string
	Table     string
}

func (q QIIME) DADA2DenoisePaired(reads string, p TrimParams, out DenoiseOutputs, verbose bool) Command {
	c := q.cmd("dada2", "denoise-paired",
		"--i-demultiplexed-seqs", reads,
		"--p-trunc-len-f", strconv.Itoa(p.TruncLenF),
		"--p-trunc-len-r", strconv.Itoa(p.TruncLenR),
		"--p-trim-left-f", strconv.Itoa(p.TrimLeftF),
		"--p-trim-left-r", strconv.Itoa(p.TrimLeftR),
		"--p-chimera-method", "consensus",
		"--p-trunc-q", strconv.Itoa(p.TruncQ),
		"--o-denoising-stats", out.Stats,
		"--o-representative-sequences", out.Sequences,
		"--o-table", out.Table)
	if verbose {
		c.Args = append(c.Args, "--verbose")
	}
	return c
}

func (q QIIME) MetadataTabulate(in, out string) Command {
	return q.cmd("metadata", "tabulate", "--m-input-file", in, "--o-visualization", out)
}

func (q QIIME) FeatureTableSummarize(table, out string) Command {
	return q.cmd("feature-table", "summarize", "--i-table", table, "--o-visualization", out)
}

func (q QIIME) ToolsExport(in, outdir string) Command {
	return q.cmd("tools", "export", "--input-path", in, "--output-path", outdir)
}

func (q QIIME) ClassifySklearn(classifier, reads, out string) Command {
	return q.cmd("feature-classifier", "classify-sklearn",
		"--i-classifier", classifier,
		"--i-reads", reads,
		"--o-classification", out)
}

// TaxaBarplot omits --m-metadata-file when metadata is empty.
func (q QIIME) TaxaBarplot(table, taxonomy, metadata, out string) Command {
	c := q.cmd("taxa", "barplot", "--i-table", table, "--i-taxonomy", taxonomy)
	if metadata != "" {
		c.Args = append(c.Args, "--m-metadata-file", metadata)
	}
	c.Args = append(c.Args, "--o-visualization", out)
	return c
}

func (q QIIME) AlignmentMafft(sequences, out string) Command {
	return q.cmd("alignment", "mafft", "--i-sequences", sequences, "--o-alignment", out)
}

func (q QIIME) AlignmentMask(alignment, out string) Command {
	return q.cmd("alignment", "mask", "--i-alignment", alignment, "--o-masked-alignment", out)
}

func (q QIIME) PhylogenyFastTree(alignment, out string) Command {
	return q.cmd("phylogeny", "fasttree", "--i-alignment", alignment, "--o-tree", out)
}

func (q QIIME) PhylogenyMidpointRoot(tree, out string) Command {
	return q.cmd("phylogeny", "midpoint-root", "--i-tree", tree, "--o-rooted-tree", out)
}

// TrimParams is one point of the DADA2 parameter sweep.
type TrimParams struct {
	TruncLenF, TruncLenR int
	TrimLeftF, TrimLeftR int
	TruncQ               int
}

// Suffix names the outputs of a run, e.g. "200_200_10_10_15".
func (p TrimParams) Suffix() string {
	return fmt.Sprintf("%d_%d_%d_%d_%d", p.TruncLenF, p.TruncLenR, p.TrimLeftF, p.TrimLeftR, p.TruncQ)
}
