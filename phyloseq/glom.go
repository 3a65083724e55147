package phyloseq

import (
	"strings"
)

// Glom agglomerates taxa that share the same lineage down to rank. Each
// group becomes one taxon named after its most abundant member (the first
// one on ties), with per-sample counts summed and ranks finer than rank
// unset. Taxa unset at rank are kept and grouped like the rest, by their
// lineage through rank, so unset taxa under different parents stay apart.
// Groups appear in the order their first member appears.
//
// An empty rank returns d unchanged. An unknown rank fails before any work
// is done.
func Glom(d *Dataset, rank string) (*Dataset, error) {
	if strings.TrimSpace(rank) == "" {
		return d, nil
	}

	ri, err := d.Taxonomy.RankIndex(rank)
	if err != nil {
		return nil, err
	}

	groups, order := groupByLineage(d, ri)
	sums := d.OTU.TaxaSums()

	otu := &OTUTable{
		TaxonIDs:  make([]string, 0, len(order)),
		SampleIDs: append([]string(nil), d.OTU.SampleIDs...),
		Counts:    make([][]int64, 0, len(order)),
	}
	tax := &TaxonomyTable{
		Ranks:    append([]string(nil), d.Taxonomy.Ranks...),
		Lineages: make(map[string]Lineage, len(order)),
	}
	keep := make(map[string]bool, len(order))

	for _, key := range order {
		members := groups[key]

		rep := members[0]
		for _, m := range members[1:] {
			if sums[m] > sums[rep] {
				rep = m
			}
		}

		row := make([]int64, d.NSamples())
		for _, m := range members {
			for j, v := range d.OTU.Counts[m] {
				row[j] += v
			}
		}

		id := d.OTU.TaxonIDs[rep]
		otu.TaxonIDs = append(otu.TaxonIDs, id)
		otu.Counts = append(otu.Counts, row)
		tax.Lineages[id] = d.Taxonomy.Lineages[id].Truncate(ri)
		keep[id] = true
	}

	return &Dataset{
		OTU:      otu,
		Taxonomy: tax,
		Samples:  d.Samples.Restrict(otu.SampleIDs),
		Tree:     d.Tree.Prune(keep),
	}, nil
}

// groupByLineage buckets taxon rows by their lineage prefix through rank ri.
func groupByLineage(d *Dataset, ri int) (map[string][]int, []string) {
	groups := make(map[string][]int)
	var order []string

	for i, id := range d.OTU.TaxonIDs {
		key := GroupKey(d.Taxonomy.Lineages[id], ri)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	return groups, order
}

// GroupKey identifies the lineage prefix through rank ri. Unset levels are
// spelled UnsetKey, so a set value that happens to read "unset" still
// differs from a missing one.
func GroupKey(l Lineage, ri int) string {
	var sb strings.Builder
	for k := 0; k <= ri; k++ {
		if k > 0 {
			sb.WriteByte(0x1f)
		}
		if v := l.At(k); v.Valid {
			sb.WriteString("=")
			sb.WriteString(v.String)
		} else {
			sb.WriteString(UnsetKey)
		}
	}
	return sb.String()
}
