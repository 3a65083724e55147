package main

import (
	"fmt"

	"github.com/jakubguzek/euglenida"
	"github.com/jakubguzek/euglenida/filterstats"
	"github.com/jakubguzek/euglenida/readstats"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func (a *app) readstatsCmd() *cobra.Command {
	c := a.cfg.ReadStats
	var (
		forward = c.ForwardPrimer
		reverse = c.ReversePrimer
		bins    = c.Bins
		threads = a.cfg.Threads
	)

	cmd := &cobra.Command{
		Use:   "readstats DIR",
		Short: "Summarize read lengths and primer positions of the FASTQ files in DIR",
		Long: "Prints one TSV row per FASTQ file with its read count, length summary and\n" +
			"how many reads start with the primer after 0 to 13 leading bases.\n" +
			"Read-length histograms for forward and reverse files go to stderr.",
		Args: cobra.ExactArgs(1),
		RunE: silenceUsage(func(cmd *cobra.Command, args []string) error {
			if bins < 1 {
				return fmt.Errorf("--bins must be at least 1, got %d", bins)
			}
			dir := euglenida.ExpandHome(args[0])

			files, err := readstats.Scan(cmd.Context(), dir, forward, reverse, threads)
			if err != nil {
				return err
			}
			a.log.Info("scanned reads", zap.String("dir", dir), zap.Int("files", len(files)))

			if err := readstats.PrintHistograms(cmd.ErrOrStderr(), files, bins); err != nil {
				return err
			}
			return readstats.WriteTSV(cmd.OutOrStdout(), files)
		}),
	}

	f := cmd.Flags()
	f.StringVar(&forward, "forward-primer", forward, "Forward primer, IUPAC codes allowed")
	f.StringVar(&reverse, "reverse-primer", reverse, "Reverse primer, IUPAC codes allowed")
	f.IntVar(&bins, "bins", bins, "Histogram bins")
	f.IntVarP(&threads, "threads", "t", threads, "Files read in parallel")

	return cmd
}

func (a *app) filterstatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "filterstats DIR",
		Short: "Compare the DADA2 denoising statistics of a preprocess sweep",
		Args:  cobra.ExactArgs(1),
		RunE: silenceUsage(func(cmd *cobra.Command, args []string) error {
			opener := &euglenida.Opener{}
			defer opener.Close()

			runs, err := filterstats.Collect(cmd.Context(), opener, euglenida.ExpandHome(args[0]))
			if err != nil {
				return err
			}

			sums := make([]filterstats.Summary, 0, len(runs))
			for _, r := range runs {
				s := filterstats.Summarize(r)
				if s.Samples == 0 {
					a.log.Warn("no samples in denoising stats", zap.String("path", r.Path))
				}
				sums = append(sums, s)
			}
			return filterstats.WriteTable(cmd.OutOrStdout(), sums)
		}),
	}
}
