package filterstats

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jakubguzek/euglenida"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const statsTSV = "sample-id\tinput\tfiltered\tpercentage of input passed filter\tdenoised\tmerged\tpercentage of input merged\tnon-chimeric\tpercentage of input non-chimeric\n" +
	"#q2:types\tnumeric\tnumeric\tnumeric\tnumeric\tnumeric\tnumeric\tnumeric\tnumeric\n" +
	"S1\t1000\t900\t90\t880\t800\t80\t700\t70\n" +
	"S2\t2000\t1000\t50\t950\t600\t30\t500\t25\n" +
	"S3\t500\t400\t80\t390\t300\t60\t290\t58\n"

func writeQZA(t *testing.T, dir, name, stats string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)

	zw := zip.NewWriter(f)
	for _, e := range []struct{ name, body string }{
		{"5e1f/metadata.yaml", "uuid: 5e1f\ntype: SampleData[DADA2Stats]\n"},
		{"5e1f/data/stats.tsv", stats},
	} {
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(e.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	return path
}

func TestReadStats(t *testing.T) {
	rows, err := ReadStats(strings.NewReader(statsTSV))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Row{SampleID: "S1", Input: 1000, PassedFilter: 90, Merged: 80, NonChimeric: 70}, rows[0])

	_, err = ReadStats(strings.NewReader("sample-id\tinput\nS1\t3\n"))
	assert.ErrorContains(t, err, "percentage of input passed filter")
}

func TestNameOf(t *testing.T) {
	assert.Equal(t, "200_200_10_10_15", NameOf("results/qiime2/filtering_stats_200_200_10_10_15.qza"))
	// A trailing 'a' in the parameters must survive.
	assert.Equal(t, "qza_a", NameOf("filtering_stats_qza_a.qza"))
}

func TestCollectAndSummarize(t *testing.T) {
	dir := t.TempDir()
	writeQZA(t, dir, "filtering_stats_200_200_10_10_20.qza", statsTSV)
	writeQZA(t, dir, "filtering_stats_180_170_5_5_15.qza", statsTSV)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reads.qza"), []byte("ignored"), 0o644))

	runs, err := Collect(context.Background(), &euglenida.Opener{}, dir)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "180_170_5_5_15", runs[0].Name)
	assert.Equal(t, "200_200_10_10_20", runs[1].Name)

	s := Summarize(runs[1])
	assert.Equal(t, 3, s.Samples)
	assert.InDelta(t, 220.0/3, s.PassedMean, 1e-9)
	assert.Equal(t, 80.0, s.PassedMedian)
	assert.InDelta(t, 170.0/3, s.MergedMean, 1e-9)
	assert.Equal(t, 60.0, s.MergedMedian)
	assert.InDelta(t, 51.0, s.NonChimericMean, 1e-9)
	assert.Equal(t, 58.0, s.NonChimericMedian)

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, []Summary{s}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "200_200_10_10_20\t3\t73.33\t80.00\t56.67\t60.00\t51.00\t58.00", lines[1])
}

func TestCollectErrors(t *testing.T) {
	_, err := Collect(context.Background(), &euglenida.Opener{}, t.TempDir())
	assert.ErrorContains(t, err, "no filtering_stats_")

	dir := t.TempDir()
	writeQZA(t, dir, "filtering_stats_bad.qza", "sample-id\tinput\nS1\t1\n")
	_, err = Collect(context.Background(), &euglenida.Opener{}, dir)
	assert.ErrorContains(t, err, "filtering_stats_bad.qza")
}

func TestSummarizeEmptyRun(t *testing.T) {
	s := Summarize(&Run{Name: "x"})
	assert.Equal(t, Summary{Name: "x"}, s)
}
