package external

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Default QC settings.
const (
	DefaultFastQC     = "fastqc"
	DefaultMultiQC    = "multiqc"
	DefaultFastQCDir  = "fastqc"
	DefaultMultiQCDir = "multiqc"
)

// QC runs FastQC over a set of read files and aggregates the reports with
// MultiQC.
type QC struct {
	Files   []string
	Outdir  string
	Threads int

	FastQC     string
	MultiQC    string
	FastQCDir  string // relative to Outdir
	MultiQCDir string // relative to Outdir
}

func (q QC) withDefaults() QC {
	if q.FastQC == "" {
		q.FastQC = DefaultFastQC
	}
	if q.MultiQC == "" {
		q.MultiQC = DefaultMultiQC
	}
	if q.FastQCDir == "" {
		q.FastQCDir = DefaultFastQCDir
	}
	if q.MultiQCDir == "" {
		q.MultiQCDir = DefaultMultiQCDir
	}
	if q.Threads < 1 {
		q.Threads = 1
	}
	return q
}

// Commands returns the fastqc and multiqc invocations.
func (q QC) Commands() []Command {
	q = q.withDefaults()
	fastqcDir := filepath.Join(q.Outdir, q.FastQCDir)
	multiqcDir := filepath.Join(q.Outdir, q.MultiQCDir)

	args := []string{"--nogroup", "--threads", strconv.Itoa(q.Threads)}
	args = append(args, q.Files...)
	args = append(args, "--outdir", fastqcDir)

	return []Command{
		{Name: q.FastQC, Args: args},
		{Name: q.MultiQC, Args: []string{"--interactive", "--export", fastqcDir, "--outdir", multiqcDir}},
	}
}

// Run checks the inputs, creates the report directories and runs both tools.
func (q QC) Run(ctx context.Context, r *Runner) error {
	q = q.withDefaults()
	if len(q.Files) == 0 {
		return fmt.Errorf("qc: no read files given")
	}
	if err := requireFiles("read file", q.Files...); err != nil {
		return fmt.Errorf("qc: %w", err)
	}

	for _, dir := range []string{q.Outdir, filepath.Join(q.Outdir, q.FastQCDir), filepath.Join(q.Outdir, q.MultiQCDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("qc: %w", err)
		}
	}

	for _, c := range q.Commands() {
		if err := r.Run(ctx, c); err != nil {
			return fmt.Errorf("qc: %w", err)
		}
	}
	return nil
}
