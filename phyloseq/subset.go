package phyloseq

// Default taxonomic filter applied by the pipeline.
const (
	DefaultFilterRank  = "Order"
	DefaultFilterValue = "Euglenida"
)

// SubsetTaxa keeps the taxa whose lineage at rank is set and equal to value.
// All samples are retained, including those left with zero reads, so the
// metadata stays aligned. The tree is pruned to the surviving tips.
func SubsetTaxa(d *Dataset, rank, value string) (*Dataset, error) {
	ri, err := d.Taxonomy.RankIndex(rank)
	if err != nil {
		return nil, err
	}

	return SubsetTaxaFunc(d, func(_ string, l Lineage) bool {
		v := l.At(ri)
		return v.Valid && v.String == value
	}), nil
}

// SubsetTaxaFunc keeps the taxa for which keep returns true, preserving
// their order.
func SubsetTaxaFunc(d *Dataset, keep func(taxon string, l Lineage) bool) *Dataset {
	idx := make([]int, 0, d.NTaxa())
	for i, id := range d.OTU.TaxonIDs {
		if keep(id, d.Taxonomy.Lineages[id]) {
			idx = append(idx, i)
		}
	}

	return d.keepTaxa(idx)
}

// PruneEmptyTaxa drops taxa with zero reads across all samples.
func PruneEmptyTaxa(d *Dataset) *Dataset {
	sums := d.OTU.TaxaSums()
	idx := make([]int, 0, len(sums))
	for i, s := range sums {
		if s > 0 {
			idx = append(idx, i)
		}
	}

	return d.keepTaxa(idx)
}
