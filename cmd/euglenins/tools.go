package main

import (
	"github.com/jakubguzek/euglenida"
	"github.com/jakubguzek/euglenida/config"
	"github.com/jakubguzek/euglenida/external"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// toolFlags are shared by every subcommand that shells out.
type toolFlags struct {
	tmpDir    string
	qiimePath string
}

func (a *app) addToolFlags(f *pflag.FlagSet) *toolFlags {
	t := &toolFlags{tmpDir: a.cfg.TmpDir, qiimePath: a.cfg.QIIMEPath}
	f.StringVar(&t.tmpDir, "tmp-dir", t.tmpDir, "Scratch directory handed to the tools as TMPDIR")
	f.StringVar(&t.qiimePath, "qiime-path", t.qiimePath, "QIIME 2 executable (also $"+config.QIIMEPathEnv+")")
	return t
}

func (a *app) runner(t *toolFlags) *external.Runner {
	return &external.Runner{TmpDir: euglenida.ExpandHome(t.tmpDir), Log: a.log}
}

func (t *toolFlags) qiime() external.QIIME {
	return external.QIIME{Path: euglenida.ExpandHome(t.qiimePath)}
}

func (a *app) qcCmd() *cobra.Command {
	c := a.cfg.QC
	q := external.QC{
		Outdir:     c.Outdir,
		Threads:    a.cfg.Threads,
		FastQC:     c.FastQC,
		MultiQC:    c.MultiQC,
		FastQCDir:  c.FastQCDir,
		MultiQCDir: c.MultiQCDir,
	}
	var tools *toolFlags

	cmd := &cobra.Command{
		Use:   "qc FILES...",
		Short: "Run FastQC on raw reads and collect the reports with MultiQC",
		Args:  cobra.MinimumNArgs(1),
		RunE: silenceUsage(func(cmd *cobra.Command, args []string) error {
			q.Files = args
			q.Outdir = euglenida.ExpandHome(q.Outdir)
			return q.Run(cmd.Context(), a.runner(tools))
		}),
	}

	f := cmd.Flags()
	f.StringVarP(&q.Outdir, "outdir", "o", q.Outdir, "Output directory")
	f.IntVarP(&q.Threads, "threads", "t", q.Threads, "FastQC threads")
	f.StringVar(&q.FastQCDir, "fastqc-dirname", q.FastQCDir, "FastQC report directory inside --outdir")
	f.StringVar(&q.MultiQCDir, "multiqc-dirname", q.MultiQCDir, "MultiQC report directory inside --outdir")
	f.StringVar(&q.FastQC, "fastqc", q.FastQC, "FastQC executable")
	f.StringVar(&q.MultiQC, "multiqc", q.MultiQC, "MultiQC executable")
	tools = a.addToolFlags(f)

	return cmd
}

func (a *app) preprocessCmd() *cobra.Command {
	c := a.cfg.Preprocess
	p := external.Preprocess{
		Outdir:    c.Outdir,
		TruncLenF: c.TruncLenF,
		TruncLenR: c.TruncLenR,
		TrimLeftF: c.TrimLeftF,
		TrimLeftR: c.TrimLeftR,
		TruncQ:    c.TruncQ,
		Threads:   a.cfg.Threads,
	}
	var tools *toolFlags

	cmd := &cobra.Command{
		Use:     "preprocess MANIFEST",
		Aliases: []string{"pp"},
		Short:   "Import paired-end reads and denoise them with DADA2 over a grid of trimming settings",
		Args:    cobra.ExactArgs(1),
		RunE: silenceUsage(func(cmd *cobra.Command, args []string) error {
			p.Manifest = euglenida.ExpandHome(args[0])
			p.Outdir = euglenida.ExpandHome(p.Outdir)
			p.QIIME = tools.qiime()
			p.Verbose = a.verbose
			return p.Run(cmd.Context(), a.runner(tools))
		}),
	}

	f := cmd.Flags()
	f.StringVarP(&p.Outdir, "outdir", "o", p.Outdir, "Output directory")
	f.IntSliceVar(&p.TruncLenF, "trunc-len-f", p.TruncLenF, "Forward truncation lengths")
	f.IntSliceVar(&p.TruncLenR, "trunc-len-r", p.TruncLenR, "Reverse truncation lengths")
	f.IntSliceVar(&p.TrimLeftF, "trim-left-f", p.TrimLeftF, "Forward left trims")
	f.IntSliceVar(&p.TrimLeftR, "trim-left-r", p.TrimLeftR, "Reverse left trims")
	f.IntSliceVar(&p.TruncQ, "trunc-q", p.TruncQ, "Quality truncation thresholds")
	f.IntVarP(&p.Threads, "threads", "t", p.Threads, "DADA2 runs in parallel")
	tools = a.addToolFlags(f)

	return cmd
}

func (a *app) classifyCmd() *cobra.Command {
	c := external.Classify{Outdir: a.cfg.Classify.Outdir}
	var tools *toolFlags

	cmd := &cobra.Command{
		Use:     "taxonomy CLASSIFIER READS TABLE",
		Aliases: []string{"classify"},
		Short:   "Classify representative sequences and draw a taxa barplot",
		Args:    cobra.ExactArgs(3),
		RunE: silenceUsage(func(cmd *cobra.Command, args []string) error {
			c.Classifier = euglenida.ExpandHome(args[0])
			c.Reads = euglenida.ExpandHome(args[1])
			c.Table = euglenida.ExpandHome(args[2])
			c.Metadata = euglenida.ExpandHome(c.Metadata)
			c.Outdir = euglenida.ExpandHome(c.Outdir)
			c.QIIME = tools.qiime()
			return c.Run(cmd.Context(), a.runner(tools))
		}),
	}

	f := cmd.Flags()
	f.StringVarP(&c.Metadata, "metadata", "m", "", "Sample metadata for the barplot")
	f.StringVarP(&c.Outdir, "outdir", "o", c.Outdir, "Output directory")
	tools = a.addToolFlags(f)

	return cmd
}

func (a *app) treeCmd() *cobra.Command {
	t := external.Tree{Outdir: a.cfg.Tree.Outdir}
	var tools *toolFlags

	cmd := &cobra.Command{
		Use:   "tree READS",
		Short: "Align representative sequences and build a rooted tree",
		Args:  cobra.ExactArgs(1),
		RunE: silenceUsage(func(cmd *cobra.Command, args []string) error {
			t.Reads = euglenida.ExpandHome(args[0])
			t.Outdir = euglenida.ExpandHome(t.Outdir)
			t.QIIME = tools.qiime()
			return t.Run(cmd.Context(), a.runner(tools))
		}),
	}

	f := cmd.Flags()
	f.StringVarP(&t.Outdir, "outdir", "o", t.Outdir, "Output directory")
	tools = a.addToolFlags(f)

	return cmd
}
