package phyloseq

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/jakubguzek/euglenida"
	"go.uber.org/zap"
)

// Paths names the four input artifacts. Tree may be empty.
type Paths struct {
	Features string
	Tree     string
	Taxonomy string
	Metadata string
}

// Loader builds a Dataset from files on disk or in cloud storage.
type Loader struct {
	Opener *euglenida.Opener

	// Ranks names the levels of semicolon-delimited taxonomy strings.
	// Defaults to DefaultRanks; deeper lineages get Rank8, Rank9, ...
	Ranks []string

	Log *zap.Logger
}

func (l *Loader) log() *zap.Logger {
	if l.Log == nil {
		return zap.NewNop()
	}
	return l.Log
}

// Load reads and cross-checks the inputs. Taxa missing from the taxonomy or
// the tree, and samples missing from the metadata, are dropped with a
// warning so that the returned dataset satisfies New's invariants.
func (l *Loader) Load(ctx context.Context, p Paths) (*Dataset, error) {
	if l.Opener == nil {
		l.Opener = &euglenida.Opener{}
	}

	otu, err := l.loadFeatures(ctx, p.Features)
	if err != nil {
		return nil, err
	}
	l.log().Info("loaded feature table", zap.String("path", p.Features), zap.Int("taxa", otu.NTaxa()), zap.Int("samples", otu.NSamples()))

	tax, err := l.loadTaxonomy(ctx, p.Taxonomy)
	if err != nil {
		return nil, err
	}
	l.log().Info("loaded taxonomy", zap.String("path", p.Taxonomy), zap.Int("taxa", len(tax.Lineages)), zap.Strings("ranks", tax.Ranks))

	sam, err := l.loadSampleData(ctx, p.Metadata)
	if err != nil {
		return nil, err
	}
	l.log().Info("loaded sample metadata", zap.String("path", p.Metadata), zap.Int("samples", len(sam.Rows)), zap.Int("columns", len(sam.Columns)))

	var tree *Tree
	if p.Tree != "" {
		tree, err = l.loadTree(ctx, p.Tree)
		if err != nil {
			return nil, err
		}
		l.log().Info("loaded tree", zap.String("path", p.Tree), zap.Int("tips", len(tree.Tips())))
	}

	return l.reconcile(otu, tax, sam, tree)
}

func (l *Loader) reconcile(otu *OTUTable, tax *TaxonomyTable, sam *SampleData, tree *Tree) (*Dataset, error) {
	var tips map[string]bool
	if tree != nil {
		tips = make(map[string]bool)
		for _, tip := range tree.Tips() {
			tips[tip] = true
		}
	}

	rows := make([]int, 0, otu.NTaxa())
	var noTaxonomy, noTip int
	for i, id := range otu.TaxonIDs {
		if _, ok := tax.Lineages[id]; !ok {
			noTaxonomy++
			continue
		}
		if tips != nil && !tips[id] {
			noTip++
			continue
		}
		rows = append(rows, i)
	}
	if noTaxonomy > 0 || noTip > 0 {
		l.log().Warn("dropping taxa missing from the taxonomy or tree",
			zap.Int("without_taxonomy", noTaxonomy), zap.Int("without_tip", noTip))
	}
	if len(rows) == 0 {
		return nil, &ParseError{Kind: "dataset", Err: errors.New("no taxa are shared by the feature table, taxonomy and tree")}
	}

	cols := make([]int, 0, otu.NSamples())
	var missing []string
	for j, id := range otu.SampleIDs {
		if _, ok := sam.Rows[id]; !ok {
			missing = append(missing, id)
			continue
		}
		cols = append(cols, j)
	}
	if len(missing) > 0 {
		l.log().Warn("dropping samples without metadata", zap.Strings("samples", missing))
	}

	trimmed := otu.selectRows(rows).selectColumns(cols)

	keep := make(map[string]bool, len(trimmed.TaxonIDs))
	for _, id := range trimmed.TaxonIDs {
		keep[id] = true
	}

	return New(trimmed, tax.Restrict(trimmed.TaxonIDs), sam.Restrict(trimmed.SampleIDs), tree.Prune(keep))
}

func (l *Loader) open(ctx context.Context, kind, path string, exts ...string) (*euglenida.Artifact, error) {
	if path == "" {
		return nil, &MissingArtifactError{Kind: kind, Path: path, Err: errors.New("no path given")}
	}

	a, err := l.Opener.OpenArtifact(ctx, euglenida.ExpandHome(path), exts...)
	if errors.Is(err, euglenida.ErrNoArchiveEntry) {
		return nil, &ParseError{Kind: kind, Path: path, Err: err}
	} else if err != nil {
		return nil, &MissingArtifactError{Kind: kind, Path: path, Err: err}
	}

	l.log().Debug("opened artifact", zap.String("kind", kind), zap.String("path", path), zap.Stringer("encoding", a.Type), zap.String("entry", a.Entry))

	return a, nil
}

var hdf5Magic = []byte("\x89HDF")

func (l *Loader) loadFeatures(ctx context.Context, path string) (*OTUTable, error) {
	const kind = "feature table"

	a, err := l.open(ctx, kind, path, ".tsv", ".txt", ".csv", ".biom")
	if err != nil {
		return nil, err
	}
	defer a.Close()

	br := bufio.NewReader(a)
	if head, _ := br.Peek(len(hdf5Magic)); bytes.Equal(head, hdf5Magic) {
		return nil, &ParseError{Kind: kind, Path: path, Err: errors.New("BIOM HDF5 tables are not supported; convert with `qiime tools export` and `biom convert --to-tsv`")}
	}

	return ReadFeatureTable(br, path)
}

// ReadFeatureTable parses a delimited feature table (see
// euglenida.FeatureTable).
func ReadFeatureTable(r io.Reader, path string) (*OTUTable, error) {
	const kind = "feature table"

	ft, err := euglenida.NewFeatureTable(r)
	if err != nil {
		return nil, &ParseError{Kind: kind, Path: path, Err: err}
	}

	otu := &OTUTable{SampleIDs: ft.Samples}
	seen := make(map[string]struct{})
	for row := ft.Read(); row != nil; row = ft.Read() {
		if _, dup := seen[row.FeatureID]; dup {
			return nil, &ParseError{Kind: kind, Path: path, Line: row.Line, Err: fmt.Errorf("feature %q appears twice", row.FeatureID)}
		}
		seen[row.FeatureID] = struct{}{}

		otu.TaxonIDs = append(otu.TaxonIDs, row.FeatureID)
		otu.Counts = append(otu.Counts, row.Counts)
	}
	if err := ft.Err(); err != nil {
		return nil, &ParseError{Kind: kind, Path: path, Err: err}
	}

	return otu, nil
}

func (l *Loader) loadTaxonomy(ctx context.Context, path string) (*TaxonomyTable, error) {
	a, err := l.open(ctx, "taxonomy", path, ".tsv", ".txt", ".csv")
	if err != nil {
		return nil, err
	}
	defer a.Close()

	ranks := l.Ranks
	if len(ranks) == 0 {
		ranks = DefaultRanks
	}

	return ReadTaxonomy(a, path, ranks)
}

// taxonomyRow is one line of a QIIME 2 taxonomy.tsv after header
// normalization.
type taxonomyRow struct {
	FeatureID  string `csv:"feature_id"`
	Taxon      string `csv:"taxon"`
	Confidence string `csv:"confidence"`
}

// ReadTaxonomy accepts two layouts: the QIIME 2 "Feature ID / Taxon /
// Confidence" table, where ranks are positional within the Taxon string and
// named by ranks, and a wide table with one column per rank, whose header
// defines the schema.
func ReadTaxonomy(r io.Reader, path string, ranks []string) (*TaxonomyTable, error) {
	const kind = "taxonomy"

	rows, err := readDelimited(r)
	if err != nil {
		return nil, &ParseError{Kind: kind, Path: path, Err: err}
	}
	if len(rows) == 0 {
		return nil, &ParseError{Kind: kind, Path: path, Err: errors.New("empty file")}
	}

	header := rows[0].fields
	taxonCol := -1
	for i, h := range header {
		if n := normalizeTaxonomyHeader(h, i); n == "taxon" {
			taxonCol = i
		}
	}

	out := &TaxonomyTable{Lineages: make(map[string]Lineage, len(rows)-1)}

	if taxonCol >= 0 {
		var parsed []taxonomyRow
		rr := &recordReader{rows: rows, normalize: normalizeTaxonomyHeader}
		if err := gocsv.UnmarshalCSV(rr, &parsed); err != nil {
			return nil, &ParseError{Kind: kind, Path: path, Err: err}
		}

		depth := 0
		lineages := make([]Lineage, len(parsed))
		for i, row := range parsed {
			lineages[i] = ParseTaxonString(row.Taxon)
			if len(lineages[i]) > depth {
				depth = len(lineages[i])
			}
		}

		out.Ranks = ExtendRanks(ranks, depth)
		for i, row := range parsed {
			if _, dup := out.Lineages[row.FeatureID]; dup {
				return nil, &ParseError{Kind: kind, Path: path, Line: rr.lines[i], Err: fmt.Errorf("feature %q appears twice", row.FeatureID)}
			}
			out.Lineages[row.FeatureID] = lineages[i].pad(len(out.Ranks))
		}

		return out, nil
	}

	if len(header) < 2 {
		return nil, &ParseError{Kind: kind, Path: path, Line: rows[0].line, Err: errors.New("expected a Taxon column or one column per rank")}
	}

	out.Ranks = make([]string, 0, len(header)-1)
	for _, h := range header[1:] {
		out.Ranks = append(out.Ranks, strings.TrimSpace(h))
	}

	for _, row := range rows[1:] {
		if strings.HasPrefix(row.fields[0], "#") {
			continue
		}
		if len(row.fields) != len(header) {
			return nil, &ParseError{Kind: kind, Path: path, Line: row.line, Err: fmt.Errorf("expected %d columns, found %d", len(header), len(row.fields))}
		}
		id := row.fields[0]
		if _, dup := out.Lineages[id]; dup {
			return nil, &ParseError{Kind: kind, Path: path, Line: row.line, Err: fmt.Errorf("feature %q appears twice", id)}
		}

		lineage := make(Lineage, len(out.Ranks))
		for k, v := range row.fields[1:] {
			lineage[k] = CleanRankValue(v)
		}
		out.Lineages[id] = lineage
	}

	return out, nil
}

// normalizeTaxonomyHeader maps the many spellings of the taxonomy header
// onto the gocsv tags of taxonomyRow. The first column is always the
// feature ID.
func normalizeTaxonomyHeader(h string, col int) string {
	if col == 0 {
		return "feature_id"
	}

	switch strings.ToLower(strings.TrimSpace(h)) {
	case "taxon", "taxonomy":
		return "taxon"
	case "confidence", "consensus":
		return "confidence"
	}

	return h
}

func (l *Loader) loadSampleData(ctx context.Context, path string) (*SampleData, error) {
	a, err := l.open(ctx, "metadata", path, ".tsv", ".txt", ".csv")
	if err != nil {
		return nil, err
	}
	defer a.Close()

	return ReadSampleData(a, path)
}

// ReadSampleData parses a QIIME 2 style metadata table: the first column is
// the sample ID, an optional "#q2:types" row declares column types, and
// other rows starting with # are comments.
func ReadSampleData(r io.Reader, path string) (*SampleData, error) {
	const kind = "metadata"

	rows, err := readDelimited(r)
	if err != nil {
		return nil, &ParseError{Kind: kind, Path: path, Err: err}
	}
	if len(rows) == 0 {
		return nil, &ParseError{Kind: kind, Path: path, Err: errors.New("empty file")}
	}

	header := rows[0].fields
	out := &SampleData{
		IDHeader: strings.TrimSpace(header[0]),
		Columns:  make([]string, 0, len(header)-1),
		Types:    make([]ColumnType, len(header)-1),
		Rows:     make(map[string][]string, len(rows)-1),
	}
	for _, h := range header[1:] {
		out.Columns = append(out.Columns, strings.TrimSpace(h))
	}

	declared := make([]bool, len(out.Columns))
	values := make([][]string, len(out.Columns))

	for _, row := range rows[1:] {
		if len(row.fields) != len(header) {
			return nil, &ParseError{Kind: kind, Path: path, Line: row.line, Err: fmt.Errorf("expected %d columns, found %d", len(header), len(row.fields))}
		}

		if strings.EqualFold(strings.TrimSpace(row.fields[0]), "#q2:types") {
			for k, v := range row.fields[1:] {
				if ct, ok := ParseColumnType(v); ok {
					out.Types[k], declared[k] = ct, true
				}
			}
			continue
		}

		id := strings.TrimSpace(row.fields[0])
		if id == "" {
			return nil, &ParseError{Kind: kind, Path: path, Line: row.line, Err: errors.New("empty sample ID")}
		}
		if _, dup := out.Rows[id]; dup {
			return nil, &ParseError{Kind: kind, Path: path, Line: row.line, Err: fmt.Errorf("sample %q appears twice", id)}
		}

		vals := make([]string, len(out.Columns))
		for k, v := range row.fields[1:] {
			vals[k] = strings.TrimSpace(v)
			values[k] = append(values[k], vals[k])
		}
		out.Rows[id] = vals
	}

	for k := range out.Columns {
		if !declared[k] {
			out.Types[k] = InferColumnType(values[k])
		}
	}

	return out, nil
}

func (l *Loader) loadTree(ctx context.Context, path string) (*Tree, error) {
	a, err := l.open(ctx, "tree", path, ".nwk", ".tre", ".tree", ".newick")
	if err != nil {
		return nil, err
	}
	defer a.Close()

	return ReadTree(a, path)
}

// ReadTree parses a Newick tree and rejects duplicate tip labels.
func ReadTree(r io.Reader, path string) (*Tree, error) {
	tree, err := ParseNewick(r)
	if err != nil {
		return nil, &ParseError{Kind: "tree", Path: path, Err: err}
	}

	seen := make(map[string]struct{})
	for _, tip := range tree.Tips() {
		if _, dup := seen[tip]; dup {
			return nil, &ParseError{Kind: "tree", Path: path, Err: fmt.Errorf("tip %q appears twice", tip)}
		}
		seen[tip] = struct{}{}
	}

	return tree, nil
}

type record struct {
	fields []string
	line   int
}

// readDelimited reads a whole delimited file, detecting the delimiter from
// its first 16KiB. Blank lines and "#" comment lines after the header are
// skipped, except for "#q2:" directives.
func readDelimited(r io.Reader) ([]record, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	sample, err := br.Peek(16 * 1024)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, err
	}

	cr := csv.NewReader(br)
	cr.Comma = euglenida.DetermineDelimiter(sample)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var out []record
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}

		line, _ := cr.FieldPos(0)
		if len(out) > 0 && strings.HasPrefix(fields[0], "#") && !strings.HasPrefix(strings.ToLower(fields[0]), "#q2:") {
			continue
		}

		out = append(out, record{fields: fields, line: line})
	}

	return out, nil
}

// recordReader feeds already-split records to gocsv, renaming the header
// and dropping "#" directive rows that gocsv would otherwise decode. lines
// holds the source line of each data row handed out, in order.
type recordReader struct {
	rows      []record
	i         int
	normalize func(h string, col int) string
	lines     []int
}

func (r *recordReader) Read() ([]string, error) {
	for r.i < len(r.rows) {
		rec := r.rows[r.i]
		r.i++

		if r.i == 1 {
			header := make([]string, len(rec.fields))
			for k, h := range rec.fields {
				header[k] = r.normalize(h, k)
			}
			return header, nil
		}

		if strings.HasPrefix(rec.fields[0], "#") {
			continue
		}

		r.lines = append(r.lines, rec.line)
		return rec.fields, nil
	}

	return nil, io.EOF
}

func (r *recordReader) ReadAll() ([][]string, error) {
	var out [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return out, nil
		} else if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}
