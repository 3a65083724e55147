// euglenins drives the Euglenida amplicon workflow: read QC, QIIME 2
// preprocessing, classification and tree building, and the phyloseq step
// that filters, agglomerates, snapshots and plots the result.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jakubguzek/euglenida/compileinfo"
	"github.com/jakubguzek/euglenida/config"
	"github.com/jakubguzek/euglenida/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const programName = "euglenins"

// exitInterrupted is the status after SIGINT or SIGTERM.
const exitInterrupted = 130

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	a := &app{stdout: os.Stdout, stderr: os.Stderr}
	code := a.run(ctx, os.Args[1:])

	stop()
	os.Exit(code)
}

type app struct {
	stdout, stderr io.Writer

	cfg        config.Config
	configPath string
	verbose    bool
	debug      bool
	logFile    string

	log      *zap.Logger
	closeLog func() error
}

// run executes one command line and returns the process exit status.
func (a *app) run(ctx context.Context, args []string) int {
	// The config file supplies the flag defaults, so it is read before
	// cobra parses anything.
	cfg, err := config.Load(configPathFromArgs(args))
	if err != nil {
		fmt.Fprintf(a.stderr, "%s: %v\n", programName, err)
		return 1
	}
	a.cfg = cfg

	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	err = root.ExecuteContext(ctx)
	defer a.close()

	switch {
	case ctx.Err() != nil:
		a.logger().Warn("interrupted")
		return exitInterrupted
	case err != nil:
		a.report(err)
		return 1
	}
	return 0
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           programName,
		Short:         "Euglenida amplicon workflow",
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log, closeFn, err := logging.New(logging.Options{
				Verbose: a.verbose,
				Debug:   a.debug,
				File:    a.logFile,
				Console: a.stderr,
			})
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			a.log, a.closeLog = log.With(zap.String("command", cmd.Name())), closeFn

			compileinfo.Log(a.log)
			if a.configPath != "" {
				a.log.Debug("loaded config", zap.String("path", a.configPath))
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Log progress and write extra diagnostics")
	flags.BoolVar(&a.debug, "debug", false, "Log debugging detail")
	flags.StringVar(&a.logFile, "log-file", "", "Also append the log to this file")
	flags.StringVar(&a.configPath, "config", "", "YAML file with default settings")

	root.AddCommand(
		a.phyloseqCmd(),
		a.qcCmd(),
		a.preprocessCmd(),
		a.classifyCmd(),
		a.treeCmd(),
		a.readstatsCmd(),
		a.filterstatsCmd(),
		a.summaryCmd(),
	)

	return root
}

func (a *app) logger() *zap.Logger {
	if a.log == nil {
		return zap.NewNop()
	}
	return a.log
}

func (a *app) close() {
	if a.closeLog != nil {
		a.closeLog()
		a.closeLog = nil
	}
}

// report logs a fatal error, with a stack trace in verbose mode. Errors
// raised before the logger exists (bad flags) go straight to stderr.
func (a *app) report(err error) {
	if a.log == nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return
	}

	if a.verbose || a.debug {
		a.log.Error("fatal", zap.Error(err), zap.Stack("stack"))
		return
	}
	a.log.Error("fatal", zap.Error(err))
}

// configPathFromArgs finds --config before cobra has parsed the flags.
func configPathFromArgs(args []string) string {
	for i, arg := range args {
		if arg == "--" {
			break
		}
		if v, ok := strings.CutPrefix(arg, "--config="); ok {
			return v
		}
		if arg == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// silenceUsage stops cobra printing usage for failures that happen after
// the command line was accepted.
func silenceUsage(run func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return run(cmd, args)
	}
}
