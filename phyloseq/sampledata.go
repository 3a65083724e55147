package phyloseq

import (
	"strconv"
	"strings"

	"github.com/araddon/dateparse"
)

type ColumnType string

const (
	Categorical ColumnType = "categorical"
	Numeric     ColumnType = "numeric"
	Date        ColumnType = "date"
)

// SampleData holds per-sample metadata. Every row has one value per column,
// empty for missing values.
type SampleData struct {
	IDHeader string
	Columns  []string
	Types    []ColumnType
	Rows     map[string][]string
}

// Value returns the attribute of sample in column, and false if either is
// unknown.
func (s *SampleData) Value(sample, column string) (string, bool) {
	row, ok := s.Rows[sample]
	if !ok {
		return "", false
	}

	for i, c := range s.Columns {
		if c == column {
			return row[i], true
		}
	}

	return "", false
}

// Attributes returns the metadata of one sample as a map.
func (s *SampleData) Attributes(sample string) map[string]string {
	row, ok := s.Rows[sample]
	if !ok {
		return nil
	}

	out := make(map[string]string, len(s.Columns))
	for i, c := range s.Columns {
		out[c] = row[i]
	}
	return out
}

// Restrict returns a copy holding only the rows of ids.
func (s *SampleData) Restrict(ids []string) *SampleData {
	out := &SampleData{
		IDHeader: s.IDHeader,
		Columns:  append([]string(nil), s.Columns...),
		Types:    append([]ColumnType(nil), s.Types...),
		Rows:     make(map[string][]string, len(ids)),
	}

	for _, id := range ids {
		if row, ok := s.Rows[id]; ok {
			out.Rows[id] = append([]string(nil), row...)
		}
	}

	return out
}

// ParseColumnType maps the QIIME 2 "#q2:types" directive values.
func ParseColumnType(directive string) (ColumnType, bool) {
	switch strings.ToLower(strings.TrimSpace(directive)) {
	case "categorical":
		return Categorical, true
	case "numeric":
		return Numeric, true
	case "date", "datetime":
		return Date, true
	}

	return "", false
}

// InferColumnType looks at every non-empty value of a column. Numbers are
// checked before dates because dateparse happily reads "2021" as a year.
func InferColumnType(values []string) ColumnType {
	seen := 0
	numeric, date := true, true

	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		seen++

		if numeric {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				numeric = false
			}
		}

		if date {
			if _, err := dateparse.ParseStrict(v); err != nil {
				date = false
			}
		}

		if !numeric && !date {
			break
		}
	}

	switch {
	case seen == 0:
		return Categorical
	case numeric:
		return Numeric
	case date:
		return Date
	}

	return Categorical
}
