package phyloseq

import (
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/guregu/null.v3"
)

// DefaultRanks is the rank schema applied to semicolon-delimited QIIME
// taxonomy strings.
var DefaultRanks = []string{"Kingdom", "Phylum", "Class", "Order", "Family", "Genus", "Species"}

// UnsetKey is the group key used for taxa whose value at a rank is unset.
const UnsetKey = "unset"

// Lineage holds one rank assignment per rank of the schema. Unset ranks are
// invalid null.Strings.
type Lineage []null.String

// At returns the value at rank index i, or an unset value if i is past the
// end of a ragged lineage.
func (l Lineage) At(i int) null.String {
	if i < 0 || i >= len(l) {
		return null.String{}
	}

	return l[i]
}

// Key returns the lineage value at i, or UnsetKey.
func (l Lineage) Key(i int) string {
	if v := l.At(i); v.Valid {
		return v.String
	}

	return UnsetKey
}

func (l Lineage) Clone() Lineage {
	out := make(Lineage, len(l))
	copy(out, l)
	return out
}

// Truncate keeps ranks 0..i inclusive and unsets the finer ones.
func (l Lineage) Truncate(i int) Lineage {
	out := make(Lineage, len(l))
	for k := 0; k <= i && k < len(l); k++ {
		out[k] = l[k]
	}
	return out
}

func (l Lineage) Equal(other Lineage) bool {
	if len(l) != len(other) {
		return false
	}

	for i := range l {
		if l[i].Valid != other[i].Valid {
			return false
		}
		if l[i].Valid && l[i].String != other[i].String {
			return false
		}
	}

	return true
}

// String renders the lineage QIIME-style, with unset ranks left empty.
func (l Lineage) String() string {
	parts := make([]string, len(l))
	for i, v := range l {
		parts[i] = v.String
	}
	return strings.Join(parts, "; ")
}

// TaxonomyTable maps taxon IDs to lineages under a shared rank schema.
type TaxonomyTable struct {
	Ranks    []string
	Lineages map[string]Lineage
}

// RankIndex resolves a rank name against the schema. Names are case
// sensitive, so "order" is unknown when the schema says "Order".
func (t *TaxonomyTable) RankIndex(rank string) (int, error) {
	for i, r := range t.Ranks {
		if r == rank {
			return i, nil
		}
	}

	return -1, unknownRank(rank, t.Ranks)
}

// Restrict returns a new table holding only ids.
func (t *TaxonomyTable) Restrict(ids []string) *TaxonomyTable {
	out := &TaxonomyTable{
		Ranks:    append([]string(nil), t.Ranks...),
		Lineages: make(map[string]Lineage, len(ids)),
	}

	for _, id := range ids {
		if l, ok := t.Lineages[id]; ok {
			out.Lineages[id] = l.Clone()
		}
	}

	return out
}

// Strips greengenes/SILVA style rank prefixes: k__, p__, d__, D_0__, D_11__.
var rankPrefix = regexp.MustCompile(`^(?:[A-Za-z]|D_\d+)__`)

// CleanRankValue strips a rank prefix and whitespace and maps the various
// spellings of "nothing here" to an unset value.
func CleanRankValue(raw string) null.String {
	v := strings.TrimSpace(raw)
	v = strings.TrimSpace(rankPrefix.ReplaceAllString(v, ""))

	switch strings.ToLower(v) {
	case "", "na", "nan", "none", "null":
		return null.String{}
	}

	return null.StringFrom(v)
}

// ParseTaxonString splits a semicolon-delimited taxonomy assignment into a
// lineage. Missing trailing ranks are simply absent; the caller pads.
func ParseTaxonString(taxon string) Lineage {
	if strings.TrimSpace(taxon) == "" {
		return Lineage{}
	}

	parts := strings.Split(taxon, ";")
	out := make(Lineage, len(parts))
	for i, p := range parts {
		out[i] = CleanRankValue(p)
	}

	// Drop trailing unset levels such as the "s__" that often ends SILVA
	// strings, so they do not inflate the schema.
	for len(out) > 0 && !out[len(out)-1].Valid {
		out = out[:len(out)-1]
	}

	return out
}

// ExtendRanks returns ranks padded with RankN names until it has at least n
// entries.
func ExtendRanks(ranks []string, n int) []string {
	out := append([]string(nil), ranks...)
	for len(out) < n {
		out = append(out, "Rank"+strconv.Itoa(len(out)+1))
	}
	return out
}

// pad returns l resized to exactly n ranks.
func (l Lineage) pad(n int) Lineage {
	out := make(Lineage, n)
	copy(out, l)
	return out
}
