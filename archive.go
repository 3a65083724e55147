package euglenida

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/krolaw/zipstream"
)

// ErrNoArchiveEntry is returned when a zip archive holds no entry matching
// the requested filter.
var ErrNoArchiveEntry = fmt.Errorf("no matching entry in archive")

// FindArchiveEntry streams through a zip archive (for example a QIIME 2 .qza
// artifact) and positions the returned reader at the first entry for which
// match returns true. The archive is never fully buffered, so r may be a
// network stream.
func FindArchiveEntry(r io.Reader, match func(name string) bool) (io.Reader, string, error) {
	zr := zipstream.NewReader(r)
	for {
		hdr, err := zr.Next()
		if err == io.EOF {
			return nil, "", ErrNoArchiveEntry
		} else if err != nil {
			return nil, "", fmt.Errorf("FindArchiveEntry: %w", err)
		}

		if hdr.FileInfo().IsDir() {
			continue
		}

		if match(hdr.Name) {
			return zr, hdr.Name, nil
		}
	}
}

// QIIMEPayload matches files stored in the data/ directory of a QIIME 2
// artifact whose extension is one of exts. With no exts, any payload file
// matches.
func QIIMEPayload(exts ...string) func(string) bool {
	return func(name string) bool {
		// Artifacts are laid out as <uuid>/data/<file>
		parts := strings.Split(name, "/")
		if len(parts) < 3 || parts[len(parts)-2] != "data" {
			return false
		}

		if len(exts) == 0 {
			return true
		}

		ext := path.Ext(name)
		for _, want := range exts {
			if strings.EqualFold(ext, want) {
				return true
			}
		}

		return false
	}
}

// BaseNameIs matches archive entries by file name, ignoring directories.
func BaseNameIs(base string) func(string) bool {
	return func(name string) bool {
		return path.Base(name) == base
	}
}
