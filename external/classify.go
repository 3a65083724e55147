package external

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Classify assigns taxonomy to representative sequences with a pre-trained
// classifier and renders the classification and a taxa barplot.
type Classify struct {
	QIIME      QIIME
	Classifier string
	Reads      string
	Table      string
	Metadata   string // optional
	Outdir     string
}

// Output files under Outdir.
const (
	ClassificationArtifact = "classification.qza"
	BarplotVisualization   = "barplot.qzv"
)

func (c Classify) Commands() []Command {
	classification := filepath.Join(c.Outdir, ClassificationArtifact)
	return []Command{
		c.QIIME.ClassifySklearn(c.Classifier, c.Reads, classification),
		c.QIIME.MetadataTabulate(classification, withExt(classification, ".qzv")),
		c.QIIME.TaxaBarplot(c.Table, classification, c.Metadata, filepath.Join(c.Outdir, BarplotVisualization)),
	}
}

func (c Classify) Run(ctx context.Context, r *Runner) error {
	inputs := []string{c.Classifier, c.Reads, c.Table}
	if c.Metadata != "" {
		inputs = append(inputs, c.Metadata)
	}
	return runSteps(ctx, r, "classify", c.QIIME, inputs, c.Outdir, c.Commands())
}

// Tree builds a midpoint-rooted phylogeny from representative sequences:
// align with MAFFT, mask the alignment, infer with FastTree, then root.
type Tree struct {
	QIIME  QIIME
	Reads  string
	Outdir string
}

// Output files under Outdir.
const (
	AlignmentArtifact       = "alignment.qza"
	MaskedAlignmentArtifact = "alignment_trimmed.qza"
	UnrootedTreeArtifact    = "tree.qza"
	RootedTreeArtifact      = "rooted_tree.qza"
)

func (t Tree) Commands() []Command {
	aln := filepath.Join(t.Outdir, AlignmentArtifact)
	masked := filepath.Join(t.Outdir, MaskedAlignmentArtifact)
	tree := filepath.Join(t.Outdir, UnrootedTreeArtifact)
	return []Command{
		t.QIIME.AlignmentMafft(t.Reads, aln),
		t.QIIME.AlignmentMask(aln, masked),
		t.QIIME.PhylogenyFastTree(masked, tree),
		t.QIIME.PhylogenyMidpointRoot(tree, filepath.Join(t.Outdir, RootedTreeArtifact)),
	}
}

func (t Tree) Run(ctx context.Context, r *Runner) error {
	return runSteps(ctx, r, "tree", t.QIIME, []string{t.Reads}, t.Outdir, t.Commands())
}

func runSteps(ctx context.Context, r *Runner, name string, q QIIME, inputs []string, outdir string, steps []Command) error {
	if _, err := LookPath(q.cmd().Name); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := requireFiles("input", inputs...); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := os.MkdirAll(outdir, 0o755); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	for _, c := range steps {
		if err := r.Run(ctx, c); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
