package phyloseq

import (
	"archive/zip"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	featuresTSV = "# Constructed from biom file\n" +
		"#OTU ID\tS1\tS2\n" +
		"t1\t10\t0\n" +
		"t2\t5\t3\n" +
		"t3\t1\t1\n"

	taxonomyTSV = "Feature ID\tTaxon\tConfidence\n" +
		"t1\td__Eukaryota; p__Euglenozoa; c__Euglenida; o__Euglenida; f__Euglenaceae\t0.99\n" +
		"t2\td__Bacteria; p__Proteobacteria\t0.9\n"

	metadataTSV = "sample-id\tdepth\tsite\tcollected\n" +
		"#q2:types\tnumeric\tcategorical\t\n" +
		"S1\t1.5\tA\t2021-06-01\n" +
		"S2\t2\tB\t2021-06-02\n" +
		"S3\t3\tC\t2021-06-03\n"

	treeNewick = "((t1:1,t2:1):1,t3:1);"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func writeGzip(t *testing.T, dir, name, content string) string {
	t.Helper()

	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return p
}

// writeArtifact writes a minimal QIIME 2 style archive.
func writeArtifact(t *testing.T, dir, name, payload, content string) string {
	t.Helper()

	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for entry, body := range map[string]string{
		"0e2e5c0b/metadata.yaml":    "uuid: 0e2e5c0b\n",
		"0e2e5c0b/data/" + payload: content,
	} {
		w, err := zw.Create(entry)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return p
}

func fixturePaths(t *testing.T) Paths {
	dir := t.TempDir()
	return Paths{
		Features: writeFile(t, dir, "feature-table.tsv", featuresTSV),
		Tree:     writeFile(t, dir, "tree.nwk", treeNewick),
		Taxonomy: writeFile(t, dir, "taxonomy.tsv", taxonomyTSV),
		Metadata: writeFile(t, dir, "metadata.tsv", metadataTSV),
	}
}

func TestLoadIntersectsInputs(t *testing.T) {
	l := &Loader{Log: zaptest.NewLogger(t)}

	d, err := l.Load(context.Background(), fixturePaths(t))
	require.NoError(t, err)

	// t3 has no taxonomy.
	assert.Equal(t, []string{"t1", "t2"}, d.OTU.TaxonIDs)
	assert.Equal(t, []string{"S1", "S2"}, d.OTU.SampleIDs)
	assert.Equal(t, [][]int64{{10, 0}, {5, 3}}, d.OTU.Counts)
	assert.Equal(t, []string{"t1", "t2"}, d.Tree.Tips())

	assert.Equal(t, DefaultRanks, d.Ranks())
	assert.Equal(t, "Euglenida", d.Lineage("t1").Key(3))
	assert.Equal(t, UnsetKey, d.Lineage("t2").Key(3))
	assert.Len(t, d.Lineage("t2"), len(DefaultRanks))

	assert.Equal(t, []string{"depth", "site", "collected"}, d.Samples.Columns)
	assert.Equal(t, []ColumnType{Numeric, Categorical, Date}, d.Samples.Types)
	v, ok := d.Samples.Value("S2", "site")
	require.True(t, ok)
	assert.Equal(t, "B", v)
	assert.Len(t, d.Samples.Rows, 2)

	filtered, err := SubsetTaxa(d, DefaultFilterRank, DefaultFilterValue)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, filtered.OTU.TaxonIDs)
}

func TestLoadDropsSamplesWithoutMetadata(t *testing.T) {
	p := fixturePaths(t)
	p.Metadata = writeFile(t, filepath.Dir(p.Metadata), "only-s1.tsv", "#SampleID\tsite\nS1\tA\n")

	d, err := (&Loader{}).Load(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, []string{"S1"}, d.OTU.SampleIDs)
	assert.Equal(t, [][]int64{{10}, {5}}, d.OTU.Counts)
}

func TestLoadWithoutTree(t *testing.T) {
	p := fixturePaths(t)
	p.Tree = ""

	d, err := (&Loader{}).Load(context.Background(), p)
	require.NoError(t, err)
	assert.Nil(t, d.Tree)
	assert.Equal(t, 2, d.NTaxa())
}

func TestLoadCompressedAndArchived(t *testing.T) {
	p := fixturePaths(t)
	dir := filepath.Dir(p.Features)
	p.Taxonomy = writeGzip(t, dir, "taxonomy.tsv.gz", taxonomyTSV)
	p.Tree = writeArtifact(t, dir, "rooted-tree.qza", "tree.nwk", treeNewick)
	p.Features = writeArtifact(t, dir, "table.qza", "feature-table.tsv", featuresTSV)

	d, err := (&Loader{}).Load(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, d.OTU.TaxonIDs)
	assert.Equal(t, []string{"t1", "t2"}, d.Tree.Tips())
}

func TestLoadRejectsHDF5Biom(t *testing.T) {
	p := fixturePaths(t)
	p.Features = writeArtifact(t, filepath.Dir(p.Features), "table.qza", "feature-table.biom", "\x89HDF\r\n\x1a\n")

	_, err := (&Loader{}).Load(context.Background(), p)
	require.ErrorIs(t, err, ErrParse)
	assert.Contains(t, err.Error(), "qiime tools export")
}

func TestLoadMissingArtifact(t *testing.T) {
	p := fixturePaths(t)
	p.Taxonomy = filepath.Join(t.TempDir(), "nope.tsv")

	_, err := (&Loader{}).Load(context.Background(), p)
	require.ErrorIs(t, err, ErrMissingArtifact)
	assert.Contains(t, err.Error(), "nope.tsv")

	var mae *MissingArtifactError
	require.ErrorAs(t, err, &mae)
	assert.Equal(t, "taxonomy", mae.Kind)
}

func TestLoadArchiveWithoutPayload(t *testing.T) {
	p := fixturePaths(t)
	p.Tree = writeArtifact(t, filepath.Dir(p.Tree), "tree.qza", "notes.txt", "hi")

	_, err := (&Loader{}).Load(context.Background(), p)
	assert.ErrorIs(t, err, ErrParse)
}

func TestLoadParseErrors(t *testing.T) {
	cases := map[string]struct {
		mutate func(p *Paths, dir string)
		want   string
	}{
		"negative count": {
			func(p *Paths, dir string) {
				p.Features = writeFile(t, dir, "bad.tsv", "#OTU ID\tS1\nt1\t-1\n")
			},
			"line 2",
		},
		"duplicate feature": {
			func(p *Paths, dir string) {
				p.Features = writeFile(t, dir, "dup.tsv", "#OTU ID\tS1\nt1\t1\nt1\t2\n")
			},
			"appears twice",
		},
		"ragged metadata": {
			func(p *Paths, dir string) {
				p.Metadata = writeFile(t, dir, "meta.tsv", "sample-id\tsite\nS1\tA\textra\n")
			},
			"expected 2 columns",
		},
		"broken tree": {
			func(p *Paths, dir string) {
				p.Tree = writeFile(t, dir, "broken.nwk", "((t1,t2)")
			},
			"unbalanced",
		},
		"duplicate tip": {
			func(p *Paths, dir string) {
				p.Tree = writeFile(t, dir, "duptip.nwk", "(t1,t1);")
			},
			"appears twice",
		},
		"no shared taxa": {
			func(p *Paths, dir string) {
				p.Taxonomy = writeFile(t, dir, "other.tsv", "Feature ID\tTaxon\nzz\tk__Bacteria\n")
			},
			"no taxa are shared",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			p := fixturePaths(t)
			tc.mutate(&p, filepath.Dir(p.Features))

			_, err := (&Loader{}).Load(context.Background(), p)
			require.ErrorIs(t, err, ErrParse)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestReadTaxonomyWide(t *testing.T) {
	in := "id,Domain,Phylum,Order\n" +
		"t1,Eukaryota,Euglenozoa,Euglenida\n" +
		"t2,Eukaryota,,\n"

	tax, err := ReadTaxonomy(strings.NewReader(in), "wide.csv", DefaultRanks)
	require.NoError(t, err)

	assert.Equal(t, []string{"Domain", "Phylum", "Order"}, tax.Ranks)
	assert.Equal(t, "Euglenida", tax.Lineages["t1"].Key(2))
	assert.False(t, tax.Lineages["t2"][1].Valid)

	i, err := tax.RankIndex("Order")
	require.NoError(t, err)
	assert.Equal(t, 2, i)
}

func TestReadTaxonomyDeepLineages(t *testing.T) {
	in := "Feature ID\tTaxon\n" +
		"t1\tA;B;C;D;E;F;G;H;I\n" +
		"t2\tA;B\n"

	tax, err := ReadTaxonomy(strings.NewReader(in), "deep.tsv", DefaultRanks)
	require.NoError(t, err)

	assert.Equal(t, append(append([]string(nil), DefaultRanks...), "Rank8", "Rank9"), tax.Ranks)
	assert.Len(t, tax.Lineages["t2"], 9)
	assert.Equal(t, "I", tax.Lineages["t1"].Key(8))
}

func TestReadTaxonomyDuplicateLineAfterDirectives(t *testing.T) {
	for name, in := range map[string]string{
		"taxon column": "Feature ID\tTaxon\n" +
			"#q2:types\tcategorical\n" +
			"t1\tk__A\n" +
			"t1\tk__B\n",
		"wide": "id\tDomain\n" +
			"#q2:types\tcategorical\n" +
			"t1\tA\n" +
			"t1\tB\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ReadTaxonomy(strings.NewReader(in), "taxonomy.tsv", DefaultRanks)
			require.ErrorIs(t, err, ErrParse)

			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, 4, pe.Line)
			assert.Contains(t, err.Error(), "taxonomy.tsv:4:")
		})
	}
}

func TestInferColumnType(t *testing.T) {
	assert.Equal(t, Numeric, InferColumnType([]string{"1", "2.5", ""}))
	assert.Equal(t, Date, InferColumnType([]string{"2021-06-01", "2021-07-15"}))
	assert.Equal(t, Categorical, InferColumnType([]string{"lake", "2021-06-01"}))
	assert.Equal(t, Categorical, InferColumnType(nil))
}
