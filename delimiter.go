package euglenida

import (
	"bytes"

	"github.com/csimplestring/go-csv/detector"
)

// DetermineDelimiter returns the single most likely rune that would delimit
// the values in sample, assuming a CSV-like file. QIIME and BIOM exports are
// tab separated, so a tab wins whenever the detector proposes it.
func DetermineDelimiter(sample []byte) rune {
	d := detector.New()
	delimiters := d.DetectDelimiter(bytes.NewReader(sample), '"')

	for _, v := range delimiters {
		if v == "\t" {
			return '\t'
		}
	}

	if len(delimiters) > 0 && len(delimiters[0]) > 0 {
		return rune(delimiters[0][0])
	}

	// The detector needs several lines to vote; a single-line sample falls
	// through to a direct check.
	if bytes.ContainsRune(sample, '\t') {
		return '\t'
	}

	return ','
}
