package euglenida

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const biomTSV = `# Constructed from biom file
#OTU ID	S1	S2	S3
t1	10.0	0.0	3.0
t2	5.0	1.0	0.0
`

func TestFeatureTableBIOM(t *testing.T) {
	ft, err := NewFeatureTable(strings.NewReader(biomTSV))
	require.NoError(t, err)
	assert.Equal(t, []string{"S1", "S2", "S3"}, ft.Samples)

	var rows []*FeatureRow
	for row := ft.Read(); row != nil; row = ft.Read() {
		rows = append(rows, row)
	}
	require.NoError(t, ft.Err())
	require.Len(t, rows, 2)

	assert.Equal(t, "t1", rows[0].FeatureID)
	assert.Equal(t, []int64{10, 0, 3}, rows[0].Counts)
	assert.Equal(t, 3, rows[0].Line)
	assert.Equal(t, []int64{5, 1, 0}, rows[1].Counts)
}

func TestFeatureTableCSVWithTaxonomyColumn(t *testing.T) {
	in := "id,A,B,taxonomy\nasv1,1,2,k__Eukaryota\nasv2,0,4,k__Eukaryota\nasv3,7,0,k__Eukaryota\n"
	ft, err := NewFeatureTable(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, ft.Samples)

	n := 0
	for row := ft.Read(); row != nil; row = ft.Read() {
		require.Len(t, row.Counts, 2)
		n++
	}
	require.NoError(t, ft.Err())
	assert.Equal(t, 3, n)
}

func TestFeatureTableErrors(t *testing.T) {
	for name, in := range map[string]string{
		"ragged":       "#OTU ID\tS1\tS2\nt1\t1\n",
		"negative":     "#OTU ID\tS1\nt1\t-3\n",
		"fractional":   "#OTU ID\tS1\nt1\t2.5\n",
		"not a number": "#OTU ID\tS1\nt1\tabc\n",
	} {
		t.Run(name, func(t *testing.T) {
			ft, err := NewFeatureTable(strings.NewReader(in))
			require.NoError(t, err)
			for row := ft.Read(); row != nil; row = ft.Read() {
			}
			err = ft.Err()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "line 2")
		})
	}

	_, err := NewFeatureTable(strings.NewReader(""))
	assert.Error(t, err)

	_, err = NewFeatureTable(strings.NewReader("#OTU ID\tS1\tS1\n"))
	assert.Error(t, err)
}

func TestParseCount(t *testing.T) {
	for raw, want := range map[string]int64{"0": 0, "12": 12, "12.0": 12, " 3 ": 3, "": 0, "1e3": 1000} {
		got, err := ParseCount(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
}

func TestDetermineDelimiter(t *testing.T) {
	assert.Equal(t, '\t', DetermineDelimiter([]byte("a\tb\tc\n1\t2\t3\n4\t5\t6\n")))
	assert.Equal(t, ',', DetermineDelimiter([]byte("a,b,c\n1,2,3\n4,5,6\n")))
	assert.Equal(t, '\t', DetermineDelimiter([]byte("a\tb")))
}

func TestMaybeDecompressGzip(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(biomTSV))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	r, dt, err := MaybeDecompress(&buf)
	require.NoError(t, err)
	assert.Equal(t, DataTypeGzip, dt)

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, biomTSV, string(out))

	r, dt, err = MaybeDecompress(strings.NewReader("ab"))
	require.NoError(t, err)
	assert.Equal(t, DataTypeNoCompression, dt)
	out, err = io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "ab", string(out))
}

func writeQZA(t *testing.T, path string, files map[string]string) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func TestOpenArtifactQZA(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.qza")
	writeQZA(t, path, map[string]string{
		"0b9c/metadata.yaml":   "uuid: 0b9c\n",
		"0b9c/provenance/x.md": "nothing",
		"0b9c/data/tree.nwk":   "(t1:1,t2:2);\n",
	})

	var o Opener
	defer o.Close()

	a, err := o.OpenArtifact(context.Background(), path, ".nwk")
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, DataTypeZip, a.Type)
	assert.Equal(t, "0b9c/data/tree.nwk", a.Entry)

	body, err := io.ReadAll(a)
	require.NoError(t, err)
	assert.Equal(t, "(t1:1,t2:2);\n", string(body))

	_, err = o.OpenArtifact(context.Background(), path, ".tsv")
	assert.ErrorIs(t, err, ErrNoArchiveEntry)
}

func TestOpenMissing(t *testing.T) {
	var o Opener
	_, err := o.OpenArtifact(context.Background(), filepath.Join(t.TempDir(), "nope.tsv"))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestSplitBucketPath(t *testing.T) {
	b, k, err := SplitBucketPath("gs://bucket/dir/file.tsv", "gs://")
	require.NoError(t, err)
	assert.Equal(t, "bucket", b)
	assert.Equal(t, "dir/file.tsv", k)

	_, _, err = SplitBucketPath("s3://bucket", "s3://")
	assert.Error(t, err)

	assert.True(t, IsRemote("s3://b/k"))
	assert.False(t, IsRemote("/tmp/k"))
}

func TestExpandHome(t *testing.T) {
	assert.Equal(t, "/abs/path", ExpandHome("/abs/path"))
	assert.Equal(t, "rel/~/path", ExpandHome("rel/~/path"))
	assert.False(t, strings.HasPrefix(ExpandHome("~/x"), "~"))
}
