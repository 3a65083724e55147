// Package phyloseq holds the annotated microbiome dataset (counts, taxonomy,
// sample metadata and tree) and the operations that reshape it: loading,
// taxonomic subsetting and agglomeration. Operations never modify their
// input; each returns a new Dataset.
package phyloseq

import (
	"fmt"
)

// Dataset is the unit passed between pipeline stages. Treat it as immutable.
type Dataset struct {
	OTU      *OTUTable
	Taxonomy *TaxonomyTable
	Samples  *SampleData
	Tree     *Tree // nil when no tree was supplied
}

// New assembles a dataset and checks that every taxon in otu has a lineage
// and, when tree is set, a matching tip, and that every sample has metadata.
func New(otu *OTUTable, tax *TaxonomyTable, samples *SampleData, tree *Tree) (*Dataset, error) {
	if otu == nil || tax == nil || samples == nil {
		return nil, fmt.Errorf("phyloseq.New: counts, taxonomy and sample data are all required")
	}

	if len(otu.Counts) != len(otu.TaxonIDs) {
		return nil, fmt.Errorf("phyloseq.New: %d count rows for %d taxa", len(otu.Counts), len(otu.TaxonIDs))
	}

	var tips map[string]bool
	if tree != nil {
		tips = make(map[string]bool)
		for _, tip := range tree.Tips() {
			tips[tip] = true
		}
	}

	seen := make(map[string]struct{}, len(otu.TaxonIDs))
	for i, id := range otu.TaxonIDs {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("phyloseq.New: taxon %q appears twice", id)
		}
		seen[id] = struct{}{}

		if len(otu.Counts[i]) != len(otu.SampleIDs) {
			return nil, fmt.Errorf("phyloseq.New: taxon %q has %d counts for %d samples", id, len(otu.Counts[i]), len(otu.SampleIDs))
		}
		l, ok := tax.Lineages[id]
		if !ok {
			return nil, fmt.Errorf("phyloseq.New: taxon %q has no taxonomy", id)
		}
		if len(l) != len(tax.Ranks) {
			return nil, fmt.Errorf("phyloseq.New: taxon %q has %d ranks, schema has %d", id, len(l), len(tax.Ranks))
		}
		if tips != nil && !tips[id] {
			return nil, fmt.Errorf("phyloseq.New: taxon %q is not a tip of the tree", id)
		}
	}

	for _, s := range otu.SampleIDs {
		if _, ok := samples.Rows[s]; !ok {
			return nil, fmt.Errorf("phyloseq.New: sample %q has no metadata", s)
		}
	}

	return &Dataset{OTU: otu, Taxonomy: tax, Samples: samples, Tree: tree}, nil
}

func (d *Dataset) NTaxa() int { return d.OTU.NTaxa() }

func (d *Dataset) NSamples() int { return d.OTU.NSamples() }

// Ranks returns the rank schema.
func (d *Dataset) Ranks() []string { return d.Taxonomy.Ranks }

// Lineage returns the taxonomy of one taxon.
func (d *Dataset) Lineage(taxon string) Lineage { return d.Taxonomy.Lineages[taxon] }

// ValidateRank returns ErrUnknownRank (wrapped) unless rank is in the schema.
func (d *Dataset) ValidateRank(rank string) error {
	_, err := d.Taxonomy.RankIndex(rank)
	return err
}

// keepTaxa builds a dataset from the taxa at rows idx, in that order, with
// every sample retained.
func (d *Dataset) keepTaxa(idx []int) *Dataset {
	otu := d.OTU.selectRows(idx)

	keep := make(map[string]bool, len(idx))
	for _, id := range otu.TaxonIDs {
		keep[id] = true
	}

	return &Dataset{
		OTU:      otu,
		Taxonomy: d.Taxonomy.Restrict(otu.TaxonIDs),
		Samples:  d.Samples.Restrict(otu.SampleIDs),
		Tree:     d.Tree.Prune(keep),
	}
}

// Equal reports whether a and b hold the same taxa, samples, counts,
// taxonomy, metadata and tree.
func Equal(a, b *Dataset) bool {
	if a == nil || b == nil {
		return a == b
	}

	if !equalStrings(a.OTU.TaxonIDs, b.OTU.TaxonIDs) || !equalStrings(a.OTU.SampleIDs, b.OTU.SampleIDs) {
		return false
	}
	for i := range a.OTU.Counts {
		for j := range a.OTU.Counts[i] {
			if a.OTU.Counts[i][j] != b.OTU.Counts[i][j] {
				return false
			}
		}
	}

	if !equalStrings(a.Taxonomy.Ranks, b.Taxonomy.Ranks) || len(a.Taxonomy.Lineages) != len(b.Taxonomy.Lineages) {
		return false
	}
	for id, l := range a.Taxonomy.Lineages {
		if !l.Equal(b.Taxonomy.Lineages[id]) {
			return false
		}
	}

	if !equalStrings(a.Samples.Columns, b.Samples.Columns) || len(a.Samples.Rows) != len(b.Samples.Rows) {
		return false
	}
	for id, row := range a.Samples.Rows {
		if !equalStrings(row, b.Samples.Rows[id]) {
			return false
		}
	}

	return a.Tree.Equal(b.Tree)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
