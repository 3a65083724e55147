package phyloseq

// OTUTable is a dense taxa-by-samples count matrix.
type OTUTable struct {
	TaxonIDs  []string
	SampleIDs []string

	// Counts[i][j] is the number of reads of taxon i in sample j.
	Counts [][]int64
}

func (o *OTUTable) NTaxa() int { return len(o.TaxonIDs) }

func (o *OTUTable) NSamples() int { return len(o.SampleIDs) }

// SampleSums returns the total reads per sample.
func (o *OTUTable) SampleSums() []int64 {
	out := make([]int64, len(o.SampleIDs))
	for _, row := range o.Counts {
		for j, v := range row {
			out[j] += v
		}
	}
	return out
}

// TaxaSums returns the total reads per taxon across all samples.
func (o *OTUTable) TaxaSums() []int64 {
	out := make([]int64, len(o.TaxonIDs))
	for i, row := range o.Counts {
		for _, v := range row {
			out[i] += v
		}
	}
	return out
}

// SampleCounts returns column j: the per-taxon counts of one sample.
func (o *OTUTable) SampleCounts(j int) []int64 {
	out := make([]int64, len(o.TaxonIDs))
	for i, row := range o.Counts {
		out[i] = row[j]
	}
	return out
}

// TaxonIndex maps each taxon ID to its row.
func (o *OTUTable) TaxonIndex() map[string]int {
	out := make(map[string]int, len(o.TaxonIDs))
	for i, id := range o.TaxonIDs {
		out[id] = i
	}
	return out
}

// Count returns the count of taxon in sample, and false if either is absent.
func (o *OTUTable) Count(taxon, sample string) (int64, bool) {
	ti, si := -1, -1
	for i, id := range o.TaxonIDs {
		if id == taxon {
			ti = i
			break
		}
	}
	for j, id := range o.SampleIDs {
		if id == sample {
			si = j
			break
		}
	}
	if ti < 0 || si < 0 {
		return 0, false
	}
	return o.Counts[ti][si], true
}

// selectRows copies the rows at idx, in that order, keeping every sample.
func (o *OTUTable) selectRows(idx []int) *OTUTable {
	out := &OTUTable{
		TaxonIDs:  make([]string, len(idx)),
		SampleIDs: append([]string(nil), o.SampleIDs...),
		Counts:    make([][]int64, len(idx)),
	}

	for k, i := range idx {
		out.TaxonIDs[k] = o.TaxonIDs[i]
		out.Counts[k] = append([]int64(nil), o.Counts[i]...)
	}

	return out
}

// selectColumns copies the columns at idx, in that order, keeping every taxon.
func (o *OTUTable) selectColumns(idx []int) *OTUTable {
	out := &OTUTable{
		TaxonIDs:  append([]string(nil), o.TaxonIDs...),
		SampleIDs: make([]string, len(idx)),
		Counts:    make([][]int64, len(o.TaxonIDs)),
	}

	for k, j := range idx {
		out.SampleIDs[k] = o.SampleIDs[j]
	}
	for i, row := range o.Counts {
		out.Counts[i] = make([]int64, len(idx))
		for k, j := range idx {
			out.Counts[i][k] = row[j]
		}
	}

	return out
}
