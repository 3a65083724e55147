// Package config holds the settings shared by the euglenins subcommands.
// Values start from Default, are overridden by an optional YAML file and
// then by the environment; command-line flags are bound on top of the
// result by the caller.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/carbocation/pfx"
	"github.com/jakubguzek/euglenida"
	"github.com/jakubguzek/euglenida/external"
	"github.com/jakubguzek/euglenida/phyloseq"
	"github.com/jakubguzek/euglenida/rarefy"
	"github.com/jakubguzek/euglenida/readstats"
	"github.com/jakubguzek/euglenida/snapshot"
	"github.com/jakubguzek/euglenida/viewer"
	"gopkg.in/yaml.v3"
)

// QIIMEPathEnv overrides the QIIME 2 executable.
const QIIMEPathEnv = "EUGLENIDA_QIIME_PATH"

type Config struct {
	ConfigPath string `yaml:"-"`

	Outdir    string `yaml:"outdir"`
	TmpDir    string `yaml:"tmp_dir"`
	QIIMEPath string `yaml:"qiime_path"`
	Threads   int    `yaml:"threads"`

	Phyloseq   Phyloseq   `yaml:"phyloseq"`
	QC         QC         `yaml:"qc"`
	Preprocess Preprocess `yaml:"preprocess"`
	Classify   Classify   `yaml:"classify"`
	Tree       Tree       `yaml:"tree"`
	ReadStats  ReadStats  `yaml:"readstats"`
}

type Phyloseq struct {
	Outdir       string   `yaml:"outdir"`
	Step         int64    `yaml:"step"`
	SnapshotName string   `yaml:"snapshot_name"`
	Ranks        []string `yaml:"ranks"`
	FilterRank   string   `yaml:"filter_rank"`
	FilterValue  string   `yaml:"filter_value"`
	Addr         string   `yaml:"addr"`
	Palette      []string `yaml:"palette"`
}

type QC struct {
	Outdir     string `yaml:"outdir"`
	FastQC     string `yaml:"fastqc"`
	MultiQC    string `yaml:"multiqc"`
	FastQCDir  string `yaml:"fastqc_dirname"`
	MultiQCDir string `yaml:"multiqc_dirname"`
}

type Preprocess struct {
	Outdir    string `yaml:"outdir"`
	TruncLenF []int  `yaml:"trunc_len_f"`
	TruncLenR []int  `yaml:"trunc_len_r"`
	TrimLeftF []int  `yaml:"trim_left_f"`
	TrimLeftR []int  `yaml:"trim_left_r"`
	TruncQ    []int  `yaml:"trunc_q"`
}

type Classify struct {
	Outdir string `yaml:"outdir"`
}

type Tree struct {
	Outdir string `yaml:"outdir"`
}

type ReadStats struct {
	ForwardPrimer string `yaml:"forward_primer"`
	ReversePrimer string `yaml:"reverse_primer"`
	Bins          int    `yaml:"bins"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Outdir:    "./results",
		TmpDir:    "./data/tmp",
		QIIMEPath: external.DefaultQIIME,
		Threads:   external.DefaultThreads,
		Phyloseq: Phyloseq{
			Outdir:       "./results/phyloseq",
			Step:         rarefy.DefaultStep,
			SnapshotName: snapshot.DefaultName,
			Ranks:        append([]string(nil), phyloseq.DefaultRanks...),
			FilterRank:   phyloseq.DefaultFilterRank,
			FilterValue:  phyloseq.DefaultFilterValue,
			Addr:         viewer.DefaultAddr,
		},
		QC: QC{
			Outdir:     "./results",
			FastQC:     external.DefaultFastQC,
			MultiQC:    external.DefaultMultiQC,
			FastQCDir:  external.DefaultFastQCDir,
			MultiQCDir: external.DefaultMultiQCDir,
		},
		Preprocess: Preprocess{
			Outdir:    "./results/qiime2",
			TruncLenF: append([]int(nil), external.DefaultTruncLen...),
			TruncLenR: append([]int(nil), external.DefaultTruncLen...),
			TrimLeftF: append([]int(nil), external.DefaultTrimLeft...),
			TrimLeftR: append([]int(nil), external.DefaultTrimLeft...),
			TruncQ:    append([]int(nil), external.DefaultTruncQ...),
		},
		Classify: Classify{Outdir: "./results/classification"},
		Tree:     Tree{Outdir: "./results/tree"},
		ReadStats: ReadStats{
			ForwardPrimer: readstats.DefaultForwardPrimer,
			ReversePrimer: readstats.DefaultReversePrimer,
			Bins:          100,
		},
	}
}

// Load returns Default overridden by the YAML file at path (if path is not
// empty) and then by the environment. Keys absent from the file keep their
// defaults.
func Load(path string) (Config, error) {
	out := Default()
	out.ConfigPath = path

	if path != "" {
		b, err := os.ReadFile(euglenida.ExpandHome(path))
		if err != nil {
			return out, fmt.Errorf("config: %w", err)
		}

		if err := yaml.Unmarshal(b, &out); err != nil {
			var te *yaml.TypeError
			if errors.As(err, &te) {
				return out, pfx.Err(fmt.Errorf("%s: %v", path, te))
			}
			return out, pfx.Err(fmt.Errorf("%s: %w", path, err))
		}
	}

	if v := os.Getenv(QIIMEPathEnv); v != "" {
		out.QIIMEPath = v
	}

	out.ExpandPaths()

	return out, out.Validate()
}

// ExpandPaths interprets a leading ~ in every path setting.
func (c *Config) ExpandPaths() {
	for _, p := range []*string{
		&c.Outdir,
		&c.TmpDir,
		&c.QIIMEPath,
		&c.Phyloseq.Outdir,
		&c.QC.Outdir,
		&c.Preprocess.Outdir,
		&c.Classify.Outdir,
		&c.Tree.Outdir,
	} {
		*p = euglenida.ExpandHome(*p)
	}
}

// Validate rejects settings no subcommand could run with.
func (c Config) Validate() error {
	switch {
	case c.Threads < 1:
		return fmt.Errorf("threads must be at least 1, got %d", c.Threads)
	case c.Phyloseq.Step <= 0:
		return fmt.Errorf("phyloseq.step must be positive, got %d", c.Phyloseq.Step)
	case c.Phyloseq.SnapshotName == "":
		return fmt.Errorf("phyloseq.snapshot_name is empty")
	case len(c.Phyloseq.Ranks) == 0:
		return fmt.Errorf("phyloseq.ranks is empty")
	case c.ReadStats.Bins < 1:
		return fmt.Errorf("readstats.bins must be at least 1, got %d", c.ReadStats.Bins)
	}

	n := len(c.Preprocess.TruncLenF)
	if len(c.Preprocess.TruncLenR) != n || len(c.Preprocess.TrimLeftF) != n || len(c.Preprocess.TrimLeftR) != n {
		return fmt.Errorf("preprocess: trunc_len_f, trunc_len_r, trim_left_f and trim_left_r must have the same length")
	}

	return nil
}
