package main

import (
	"fmt"

	"github.com/jakubguzek/euglenida"
	"github.com/jakubguzek/euglenida/phyloseq"
	"github.com/jakubguzek/euglenida/pipeline"
	"github.com/jakubguzek/euglenida/rarefy"
	"github.com/jakubguzek/euglenida/render"
	"github.com/jakubguzek/euglenida/snapshot"
	"github.com/jakubguzek/euglenida/viewer"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func (a *app) phyloseqCmd() *cobra.Command {
	c := a.cfg.Phyloseq

	var (
		paths       phyloseq.Paths
		outdir      = c.Outdir
		step        = c.Step
		glom        string
		interactive bool
		noBrowser   bool
		addr        = c.Addr
		filterRank  = c.FilterRank
		filterValue = c.FilterValue
		snapName    = c.SnapshotName
		ranks       = c.Ranks
		palette     = c.Palette
	)

	cmd := &cobra.Command{
		Use:   "phyloseq",
		Short: "Filter the QIIME 2 results to Euglenida, snapshot them and plot rarefaction curves",
		Long: "Loads the feature table, tree, taxonomy and sample metadata, keeps the taxa\n" +
			"whose --filter-rank equals --filter-value, optionally agglomerates them at\n" +
			"--glom and writes into --outdir:\n\n" +
			"  " + snapshot.DefaultName + "  the filtered dataset as a SQLite database. It takes\n" +
			"                        the place of R's filtered_phyloseq.rds; read it back\n" +
			"                        with the summary command or any SQLite client.\n" +
			"  " + render.RarefactionFile + "         rarefaction curves, 13 by 5 inches\n" +
			"  " + render.HistogramFile + "    reads per taxon (with --verbose)",
		Args: cobra.NoArgs,
		RunE: silenceUsage(func(cmd *cobra.Command, args []string) error {
			if step <= 0 {
				return fmt.Errorf("--step must be positive, got %d", step)
			}

			opts := render.DefaultOptions()
			if len(palette) > 0 {
				p, err := render.ParsePalette(palette)
				if err != nil {
					return err
				}
				opts.Palette = p
			}

			opener := &euglenida.Opener{}
			defer opener.Close()

			var browse func(string) error
			if !noBrowser {
				browse = viewer.OpenBrowser
			}

			p := &pipeline.Pipeline{
				Loader: &phyloseq.Loader{Opener: opener, Ranks: ranks, Log: a.log},
				Renderer: &render.Renderer{
					Step:        step,
					Options:     opts,
					Verbose:     a.verbose,
					Interactive: interactive,
					Addr:        addr,
					Out:         cmd.OutOrStdout(),
					Log:         a.log,
					Browse:      browse,
				},
				Log: a.log,
			}

			res, err := p.Run(cmd.Context(), pipeline.Options{
				Paths:        paths,
				Outdir:       outdir,
				SnapshotName: snapName,
				FilterRank:   filterRank,
				FilterValue:  filterValue,
				Glom:         glom,
			})
			if err != nil {
				return err
			}

			fields := []zap.Field{
				zap.String("snapshot", res.Snapshot),
				zap.Int("taxa", res.Final.NTaxa()),
				zap.Int("samples", res.Final.NSamples()),
			}
			if res.Render != nil {
				fields = append(fields, zap.Strings("files", res.Render.Files))
			}
			a.log.Info("done", fields...)
			return nil
		}),
	}

	f := cmd.Flags()
	f.StringVar(&paths.Features, "features", "", "Feature table (.qza, .biom or .tsv)")
	f.StringVar(&paths.Tree, "tree", "", "Rooted tree (.qza or .nwk)")
	f.StringVar(&paths.Metadata, "metadata", "", "Sample metadata TSV")
	f.StringVar(&paths.Taxonomy, "taxonomy", "", "Taxonomy (.qza or .tsv)")
	f.StringVarP(&outdir, "outdir", "o", outdir, "Output directory")
	f.Int64Var(&step, "step", step, "Rarefaction step")
	f.StringVar(&glom, "glom", "", "Agglomerate taxa at this rank")
	f.BoolVar(&interactive, "interactive", false, "Show the figures in a browser window and wait for it to be closed")
	f.BoolVar(&noBrowser, "no-browser", false, "With --interactive, only print the address of the figure page")
	f.StringVar(&addr, "addr", addr, "Listen address of the figure window")
	f.StringVar(&filterRank, "filter-rank", filterRank, "Rank to filter on")
	f.StringVar(&filterValue, "filter-value", filterValue, "Value the filter rank must have")
	f.StringVar(&snapName, "snapshot-name", snapName, "File name of the SQLite snapshot inside --outdir")
	f.StringSliceVar(&ranks, "ranks", ranks, "Names of the taxonomy levels")
	f.StringSliceVar(&palette, "palette", palette, "Curve colours as #rrggbb")

	for _, name := range []string{"features", "tree", "metadata", "taxonomy"} {
		cmd.MarkFlagRequired(name)
	}

	return cmd
}

func (a *app) summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary SNAPSHOT",
		Short: "Describe a snapshot written by the phyloseq command",
		Args:  cobra.ExactArgs(1),
		RunE: silenceUsage(func(cmd *cobra.Command, args []string) error {
			d, err := snapshot.Load(cmd.Context(), euglenida.ExpandHome(args[0]))
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "taxa\t%d\n", d.NTaxa())
			fmt.Fprintf(w, "samples\t%d\n", d.NSamples())
			fmt.Fprintf(w, "ranks\t%v\n", d.Ranks())
			if d.Tree != nil {
				fmt.Fprintf(w, "tree tips\t%d\n", len(d.Tree.Tips()))
			} else {
				fmt.Fprintln(w, "tree tips\tNA")
			}

			depths, err := rarefy.DepthSummary(d)
			if err != nil {
				a.log.Warn("no sequencing depth to report", zap.Error(err))
				return nil
			}
			fmt.Fprintf(w, "depth\t%s\n", depths)
			return nil
		}),
	}
}
