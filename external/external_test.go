package external

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// fakeTool writes a shell script that records its arguments to $FAKE_LOG,
// echoes TMPDIR and exits 3 when an argument is "fail" or ends in "/fail".
func fakeTool(t *testing.T, name string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}

	script := `#!/bin/sh
echo "$(basename "$0") $*" >> "$FAKE_LOG"
echo "tmp=$TMPDIR"
echo "progress" 1>&2
for a in "$@"; do
  case "$a" in
    fail|*/fail) exit 3 ;;
  esac
done
exit 0
`
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func recordCalls(t *testing.T) string {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "calls.log")
	t.Setenv("FAKE_LOG", logPath)
	return logPath
}

func readCalls(t *testing.T, logPath string) []string {
	t.Helper()
	b, err := os.ReadFile(logPath)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(b)), "\n")
}

func TestRunForwardsOutputAndScopesTmpDir(t *testing.T) {
	tool := fakeTool(t, "tool")
	recordCalls(t)
	before, hadTmp := os.LookupEnv("TMPDIR")

	core, logs := observer.New(zap.InfoLevel)
	tmp := filepath.Join(t.TempDir(), "scratch")
	r := &Runner{TmpDir: tmp, Log: zap.New(core)}

	require.NoError(t, r.Run(context.Background(), Command{Name: tool, Args: []string{"a"}}))

	assert.DirExists(t, tmp)
	require.Equal(t, 1, logs.FilterMessage("tmp="+tmp).Len())
	assert.Equal(t, "stdout", logs.FilterMessage("tmp="+tmp).All()[0].ContextMap()["stream"])
	require.Equal(t, 1, logs.FilterMessage("progress").Len())
	assert.Equal(t, "stderr", logs.FilterMessage("progress").All()[0].ContextMap()["stream"])

	after, hasTmp := os.LookupEnv("TMPDIR")
	assert.Equal(t, hadTmp, hasTmp)
	assert.Equal(t, before, after)
}

func TestRunMissingTool(t *testing.T) {
	r := &Runner{Log: zaptest.NewLogger(t)}
	err := r.Run(context.Background(), Command{Name: "euglenida-no-such-tool"})
	assert.ErrorIs(t, err, ErrToolNotFound)

	_, err = LookPath("")
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestRunFailure(t *testing.T) {
	tool := fakeTool(t, "tool")
	recordCalls(t)

	r := &Runner{}
	err := r.Run(context.Background(), Command{Name: tool, Args: []string{"fail"}})
	require.Error(t, err)

	var te *ToolError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, tool, te.Command.Name)

	var exit *exec.ExitError
	require.True(t, errors.As(err, &exit))
	assert.Equal(t, 3, exit.ExitCode())
}

func TestRunCancelled(t *testing.T) {
	tool := fakeTool(t, "tool")
	recordCalls(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &Runner{}
	assert.Error(t, r.Run(ctx, Command{Name: tool}))
}

func TestQCCommands(t *testing.T) {
	q := QC{Files: []string{"a_1.fastq", "a_2.fastq"}, Outdir: "out", Threads: 4}
	cmds := q.Commands()
	require.Len(t, cmds, 2)

	assert.Equal(t, "fastqc --nogroup --threads 4 a_1.fastq a_2.fastq --outdir out/fastqc", cmds[0].String())
	assert.Equal(t, "multiqc --interactive --export out/fastqc --outdir out/multiqc", cmds[1].String())
}

func TestQCRun(t *testing.T) {
	logPath := recordCalls(t)
	fastqc := fakeTool(t, "fastqc")
	multiqc := fakeTool(t, "multiqc")

	dir := t.TempDir()
	reads := filepath.Join(dir, "s_1.fastq")
	require.NoError(t, os.WriteFile(reads, []byte("@r\nACGT\n+\nIIII\n"), 0o644))
	out := filepath.Join(dir, "results")

	q := QC{Files: []string{reads}, Outdir: out, FastQC: fastqc, MultiQC: multiqc}
	require.NoError(t, q.Run(context.Background(), &Runner{}))

	assert.DirExists(t, filepath.Join(out, DefaultFastQCDir))
	assert.DirExists(t, filepath.Join(out, DefaultMultiQCDir))

	calls := readCalls(t, logPath)
	require.Len(t, calls, 2)
	assert.True(t, strings.HasPrefix(calls[0], "fastqc --nogroup --threads 1 "+reads))
	assert.True(t, strings.HasPrefix(calls[1], "multiqc --interactive"))

	q.Files = append(q.Files, filepath.Join(dir, "missing.fastq"))
	err := q.Run(context.Background(), &Runner{})
	assert.ErrorIs(t, err, os.ErrNotExist)

	assert.Error(t, QC{Outdir: out}.Run(context.Background(), &Runner{}))
}

func TestSweep(t *testing.T) {
	p := Preprocess{
		TruncLenF: []int{200, 180},
		TruncLenR: []int{200, 170},
		TrimLeftF: []int{10, 5},
		TrimLeftR: []int{10, 5},
		TruncQ:    []int{15, 20},
	}

	sweep, err := p.Sweep()
	require.NoError(t, err)

	var got []string
	for _, s := range sweep {
		got = append(got, s.Suffix())
	}
	assert.Equal(t, []string{
		"200_200_10_10_15",
		"200_200_10_10_20",
		"180_170_5_5_15",
		"180_170_5_5_20",
	}, got)

	p.TrimLeftR = []int{10}
	_, err = p.Sweep()
	assert.ErrorContains(t, err, "differ in length")

	_, err = Preprocess{}.Sweep()
	assert.Error(t, err)
}

func TestDADA2Command(t *testing.T) {
	q := QIIME{}
	p := TrimParams{TruncLenF: 200, TruncLenR: 190, TrimLeftF: 10, TrimLeftR: 12, TruncQ: 15}
	c := q.DADA2DenoisePaired("reads.qza", p, DenoiseOutputs{Stats: "s.qza", Sequences: "r.qza", Table: "t.qza"}, true)

	assert.Equal(t, "qiime dada2 denoise-paired --i-demultiplexed-seqs reads.qza "+
		"--p-trunc-len-f 200 --p-trunc-len-r 190 --p-trim-left-f 10 --p-trim-left-r 12 "+
		"--p-chimera-method consensus --p-trunc-q 15 "+
		"--o-denoising-stats s.qza --o-representative-sequences r.qza --o-table t.qza --verbose", c.String())
}

func TestPreprocessRun(t *testing.T) {
	logPath := recordCalls(t)
	qiime := fakeTool(t, "qiime")

	dir := t.TempDir()
	manifest := filepath.Join(dir, "manifest.tsv")
	require.NoError(t, os.WriteFile(manifest, []byte("sample-id\tforward-absolute-filepath\treverse-absolute-filepath\n"), 0o644))
	out := filepath.Join(dir, "qiime2")

	p := Preprocess{
		QIIME:     QIIME{Path: qiime},
		Manifest:  manifest,
		Outdir:    out,
		TruncLenF: []int{200},
		TruncLenR: []int{200},
		TrimLeftF: []int{10},
		TrimLeftR: []int{10},
		TruncQ:    []int{15, 20, 25},
		Threads:   2,
	}
	require.NoError(t, p.Run(context.Background(), &Runner{Log: zaptest.NewLogger(t)}))

	calls := readCalls(t, logPath)
	require.Len(t, calls, 2+3*5)
	assert.True(t, strings.HasPrefix(calls[0], "qiime tools import"))
	assert.True(t, strings.HasPrefix(calls[1], "qiime demux summarize"))

	var denoise []string
	for _, c := range calls {
		if strings.HasPrefix(c, "qiime dada2") {
			denoise = append(denoise, c)
		}
	}
	sort.Strings(denoise)
	require.Len(t, denoise, 3)
	assert.Contains(t, denoise[0], "--p-trunc-q 15")

	for _, q := range []string{"15", "20", "25"} {
		assert.DirExists(t, filepath.Join(out, "filtering_table_200_200_10_10_"+q))
		assert.DirExists(t, filepath.Join(out, "filtered_reads_200_200_10_10_"+q))
	}
}

func TestPreprocessStopsOnFailure(t *testing.T) {
	recordCalls(t)
	qiime := fakeTool(t, "qiime")

	dir := t.TempDir()
	manifest := filepath.Join(dir, "fail")
	require.NoError(t, os.WriteFile(manifest, nil, 0o644))

	p := Preprocess{
		QIIME:     QIIME{Path: qiime},
		Manifest:  manifest,
		Outdir:    filepath.Join(dir, "out"),
		TruncLenF: DefaultTruncLen,
		TruncLenR: DefaultTruncLen,
		TrimLeftF: DefaultTrimLeft,
		TrimLeftR: DefaultTrimLeft,
		TruncQ:    DefaultTruncQ,
	}

	// The manifest path is passed through to the import, which fails.
	var te *ToolError
	assert.True(t, errors.As(p.Run(context.Background(), &Runner{}), &te))
}

func TestClassifyCommands(t *testing.T) {
	c := Classify{Classifier: "clf.qza", Reads: "reads.qza", Table: "table.qza", Outdir: "out"}
	cmds := c.Commands()
	require.Len(t, cmds, 3)
	assert.Equal(t, "qiime feature-classifier classify-sklearn --i-classifier clf.qza --i-reads reads.qza --o-classification out/classification.qza", cmds[0].String())
	assert.Equal(t, "qiime metadata tabulate --m-input-file out/classification.qza --o-visualization out/classification.qzv", cmds[1].String())
	assert.Equal(t, "qiime taxa barplot --i-table table.qza --i-taxonomy out/classification.qza --o-visualization out/barplot.qzv", cmds[2].String())

	c.Metadata = "meta.tsv"
	assert.Contains(t, c.Commands()[2].String(), "--m-metadata-file meta.tsv --o-visualization")
}

func TestTreeRun(t *testing.T) {
	logPath := recordCalls(t)
	qiime := fakeTool(t, "qiime")

	dir := t.TempDir()
	reads := filepath.Join(dir, "rep_seqs.qza")
	require.NoError(t, os.WriteFile(reads, nil, 0o644))

	tr := Tree{QIIME: QIIME{Path: qiime}, Reads: reads, Outdir: filepath.Join(dir, "tree")}
	require.NoError(t, tr.Run(context.Background(), &Runner{}))

	calls := readCalls(t, logPath)
	require.Len(t, calls, 4)
	for i, want := range []string{"alignment mafft", "alignment mask", "phylogeny fasttree", "phylogeny midpoint-root"} {
		assert.True(t, strings.HasPrefix(calls[i], "qiime "+want), calls[i])
	}

	tr.Reads = filepath.Join(dir, "missing.qza")
	assert.ErrorIs(t, tr.Run(context.Background(), &Runner{}), os.ErrNotExist)

	tr.QIIME.Path = filepath.Join(dir, "no-qiime")
	assert.ErrorIs(t, tr.Run(context.Background(), &Runner{}), ErrToolNotFound)
}
