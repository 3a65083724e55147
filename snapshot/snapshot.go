// Package snapshot persists a phyloseq.Dataset as a single SQLite file.
package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jakubguzek/euglenida/phyloseq"
	"github.com/jmoiron/sqlx"
	"gopkg.in/guregu/null.v3"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultName is the file name the pipeline writes under its output
// directory.
const DefaultName = "filtered_phyloseq.db"

// FormatVersion is stored in the metadata table and checked by Load.
const FormatVersion = "1"

// IOError reports a failure to create or read a snapshot.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("snapshot %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

const schema = `
CREATE TABLE metadata (key TEXT PRIMARY KEY, value TEXT NOT NULL);
CREATE TABLE ranks (idx INTEGER PRIMARY KEY, name TEXT NOT NULL);
CREATE TABLE taxa (idx INTEGER PRIMARY KEY, taxon_id TEXT NOT NULL UNIQUE);
CREATE TABLE lineages (
	taxon_idx INTEGER NOT NULL REFERENCES taxa(idx),
	rank_idx INTEGER NOT NULL REFERENCES ranks(idx),
	value TEXT,
	PRIMARY KEY (taxon_idx, rank_idx)
);
CREATE TABLE samples (idx INTEGER PRIMARY KEY, sample_id TEXT NOT NULL UNIQUE);
CREATE TABLE counts (
	taxon_idx INTEGER NOT NULL REFERENCES taxa(idx),
	sample_idx INTEGER NOT NULL REFERENCES samples(idx),
	count INTEGER NOT NULL,
	PRIMARY KEY (taxon_idx, sample_idx)
);
CREATE TABLE sample_columns (idx INTEGER PRIMARY KEY, name TEXT NOT NULL, type TEXT NOT NULL);
CREATE TABLE sample_data (
	sample_idx INTEGER NOT NULL REFERENCES samples(idx),
	column_idx INTEGER NOT NULL REFERENCES sample_columns(idx),
	value TEXT NOT NULL,
	PRIMARY KEY (sample_idx, column_idx)
);
CREATE TABLE tree (newick TEXT NOT NULL);
`

// Save writes d to path, creating the parent directory if needed. The
// database is built in a temporary file next to path and renamed into place,
// so a failed run never leaves a half-written snapshot behind.
func Save(ctx context.Context, path string, d *phyloseq.Dataset) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &IOError{Op: "mkdir", Path: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &IOError{Op: "create", Path: path, Err: err}
	}
	tmpName := tmp.Name()
	tmp.Close()
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	db, err := sqlx.Connect("sqlite3", "file:"+tmpName)
	if err != nil {
		return &IOError{Op: "open", Path: tmpName, Err: err}
	}

	if err := write(ctx, db, d); err != nil {
		db.Close()
		return &IOError{Op: "write", Path: path, Err: err}
	}

	if err := db.Close(); err != nil {
		return &IOError{Op: "close", Path: tmpName, Err: err}
	}

	// CreateTemp makes the file 0600; a snapshot is shared like any output.
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return &IOError{Op: "chmod", Path: tmpName, Err: err}
	}

	if err := os.Rename(tmpName, path); err != nil {
		return &IOError{Op: "rename", Path: path, Err: err}
	}

	return nil
}

func write(ctx context.Context, db *sqlx.DB, d *phyloseq.Dataset) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("schema: %w", err)
	}

	meta := map[string]string{
		"format_version": FormatVersion,
		"created_at":     time.Now().UTC().Format(time.RFC3339),
		"id_header":      d.Samples.IDHeader,
		"has_tree":       fmt.Sprint(d.Tree != nil),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, "INSERT INTO metadata (key, value) VALUES (?, ?)", k, v); err != nil {
			return err
		}
	}

	for i, r := range d.Taxonomy.Ranks {
		if _, err := tx.ExecContext(ctx, "INSERT INTO ranks (idx, name) VALUES (?, ?)", i, r); err != nil {
			return err
		}
	}

	lineage, err := tx.PreparexContext(ctx, "INSERT INTO lineages (taxon_idx, rank_idx, value) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer lineage.Close()

	for i, id := range d.OTU.TaxonIDs {
		if _, err := tx.ExecContext(ctx, "INSERT INTO taxa (idx, taxon_id) VALUES (?, ?)", i, id); err != nil {
			return err
		}
		for k, v := range d.Lineage(id) {
			if _, err := lineage.ExecContext(ctx, i, k, v); err != nil {
				return fmt.Errorf("lineage of %s: %w", id, err)
			}
		}
	}

	for j, id := range d.OTU.SampleIDs {
		if _, err := tx.ExecContext(ctx, "INSERT INTO samples (idx, sample_id) VALUES (?, ?)", j, id); err != nil {
			return err
		}
	}

	// Count matrices are mostly zeros, so only non-zero cells are stored.
	count, err := tx.PreparexContext(ctx, "INSERT INTO counts (taxon_idx, sample_idx, count) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer count.Close()

	for i, row := range d.OTU.Counts {
		for j, v := range row {
			if v == 0 {
				continue
			}
			if _, err := count.ExecContext(ctx, i, j, v); err != nil {
				return err
			}
		}
	}

	for k, c := range d.Samples.Columns {
		if _, err := tx.ExecContext(ctx, "INSERT INTO sample_columns (idx, name, type) VALUES (?, ?, ?)", k, c, string(d.Samples.Types[k])); err != nil {
			return err
		}
	}

	value, err := tx.PreparexContext(ctx, "INSERT INTO sample_data (sample_idx, column_idx, value) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer value.Close()

	for j, id := range d.OTU.SampleIDs {
		for k, v := range d.Samples.Rows[id] {
			if _, err := value.ExecContext(ctx, j, k, v); err != nil {
				return err
			}
		}
	}

	if d.Tree != nil {
		if _, err := tx.ExecContext(ctx, "INSERT INTO tree (newick) VALUES (?)", d.Tree.Newick()); err != nil {
			return err
		}
	}

	return tx.Commit()
}

type indexedName struct {
	Idx  int    `db:"idx"`
	Name string `db:"name"`
}

type lineageCell struct {
	TaxonIdx int         `db:"taxon_idx"`
	RankIdx  int         `db:"rank_idx"`
	Value    null.String `db:"value"`
}

type countCell struct {
	TaxonIdx  int   `db:"taxon_idx"`
	SampleIdx int   `db:"sample_idx"`
	Count     int64 `db:"count"`
}

type sampleColumn struct {
	Idx  int    `db:"idx"`
	Name string `db:"name"`
	Type string `db:"type"`
}

type sampleCell struct {
	SampleIdx int    `db:"sample_idx"`
	ColumnIdx int    `db:"column_idx"`
	Value     string `db:"value"`
}

// Load reads a snapshot written by Save.
func Load(ctx context.Context, path string) (*phyloseq.Dataset, error) {
	// sqlite would happily create an empty database at a mistyped path.
	if _, err := os.Stat(path); err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}

	db, err := sqlx.Connect("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}
	defer db.Close()

	d, err := read(ctx, db)
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}

	return d, nil
}

func read(ctx context.Context, db *sqlx.DB) (*phyloseq.Dataset, error) {
	var version string
	if err := db.GetContext(ctx, &version, "SELECT value FROM metadata WHERE key = 'format_version'"); err != nil {
		return nil, fmt.Errorf("format version: %w", err)
	}
	if version != FormatVersion {
		return nil, fmt.Errorf("unsupported snapshot format %q (want %q)", version, FormatVersion)
	}

	var idHeader string
	if err := db.GetContext(ctx, &idHeader, "SELECT value FROM metadata WHERE key = 'id_header'"); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	var ranks, taxa, samples []indexedName
	if err := db.SelectContext(ctx, &ranks, "SELECT idx, name FROM ranks ORDER BY idx"); err != nil {
		return nil, err
	}
	if err := db.SelectContext(ctx, &taxa, "SELECT idx, taxon_id AS name FROM taxa ORDER BY idx"); err != nil {
		return nil, err
	}
	if err := db.SelectContext(ctx, &samples, "SELECT idx, sample_id AS name FROM samples ORDER BY idx"); err != nil {
		return nil, err
	}

	otu := &phyloseq.OTUTable{
		TaxonIDs:  names(taxa),
		SampleIDs: names(samples),
		Counts:    make([][]int64, len(taxa)),
	}
	for i := range otu.Counts {
		otu.Counts[i] = make([]int64, len(samples))
	}

	var counts []countCell
	if err := db.SelectContext(ctx, &counts, "SELECT taxon_idx, sample_idx, count FROM counts"); err != nil {
		return nil, err
	}
	for _, c := range counts {
		if c.TaxonIdx >= len(taxa) || c.SampleIdx >= len(samples) {
			return nil, fmt.Errorf("count cell (%d, %d) out of range", c.TaxonIdx, c.SampleIdx)
		}
		otu.Counts[c.TaxonIdx][c.SampleIdx] = c.Count
	}

	tax := &phyloseq.TaxonomyTable{Ranks: names(ranks), Lineages: make(map[string]phyloseq.Lineage, len(taxa))}
	for _, id := range otu.TaxonIDs {
		tax.Lineages[id] = make(phyloseq.Lineage, len(ranks))
	}

	var cells []lineageCell
	if err := db.SelectContext(ctx, &cells, "SELECT taxon_idx, rank_idx, value FROM lineages"); err != nil {
		return nil, err
	}
	for _, c := range cells {
		if c.TaxonIdx >= len(taxa) || c.RankIdx >= len(ranks) {
			return nil, fmt.Errorf("lineage cell (%d, %d) out of range", c.TaxonIdx, c.RankIdx)
		}
		tax.Lineages[otu.TaxonIDs[c.TaxonIdx]][c.RankIdx] = c.Value
	}

	var columns []sampleColumn
	if err := db.SelectContext(ctx, &columns, "SELECT idx, name, type FROM sample_columns ORDER BY idx"); err != nil {
		return nil, err
	}
	sam := &phyloseq.SampleData{
		IDHeader: idHeader,
		Columns:  make([]string, len(columns)),
		Types:    make([]phyloseq.ColumnType, len(columns)),
		Rows:     make(map[string][]string, len(samples)),
	}
	for k, c := range columns {
		sam.Columns[k] = c.Name
		sam.Types[k] = phyloseq.ColumnType(c.Type)
	}
	for _, id := range otu.SampleIDs {
		sam.Rows[id] = make([]string, len(columns))
	}

	var values []sampleCell
	if err := db.SelectContext(ctx, &values, "SELECT sample_idx, column_idx, value FROM sample_data"); err != nil {
		return nil, err
	}
	for _, v := range values {
		if v.SampleIdx >= len(samples) || v.ColumnIdx >= len(columns) {
			return nil, fmt.Errorf("sample cell (%d, %d) out of range", v.SampleIdx, v.ColumnIdx)
		}
		sam.Rows[otu.SampleIDs[v.SampleIdx]][v.ColumnIdx] = v.Value
	}

	var tree *phyloseq.Tree
	var newick string
	err := db.GetContext(ctx, &newick, "SELECT newick FROM tree LIMIT 1")
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, err
	default:
		if tree, err = phyloseq.ParseNewickString(newick); err != nil {
			return nil, fmt.Errorf("tree: %w", err)
		}
	}

	return phyloseq.New(otu, tax, sam, tree)
}

func names(rows []indexedName) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Name
	}
	return out
}
