package euglenida

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Artifact is an opened input: the decompressed byte stream of a plain file,
// or of the matching payload when the file is a zip archive such as a QIIME 2
// .qza.
type Artifact struct {
	io.Reader

	Path string
	Type DataType

	// Entry is the archive member being read; empty unless Type is
	// DataTypeZip.
	Entry string

	closer io.Closer
}

func (a *Artifact) Close() error {
	if a.closer == nil {
		return nil
	}

	return a.closer.Close()
}

// OpenArtifact opens path (local, gs:// or s3://), transparently decompresses
// it, and, when it turns out to be a zip archive, selects the first payload
// file under data/ whose extension is one of exts.
func (o *Opener) OpenArtifact(ctx context.Context, path string, exts ...string) (*Artifact, error) {
	rc, err := o.Open(ctx, path)
	if err != nil {
		return nil, err
	}

	r, dt, err := MaybeDecompress(rc)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	out := &Artifact{Reader: r, Path: path, Type: dt, closer: rc}
	if dt != DataTypeZip {
		return out, nil
	}

	entry, name, err := FindArchiveEntry(r, QIIMEPayload(exts...))
	if errors.Is(err, ErrNoArchiveEntry) {
		rc.Close()
		return nil, fmt.Errorf("%s: no data/ payload with extension %v: %w", path, exts, err)
	} else if err != nil {
		rc.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	out.Reader = entry
	out.Entry = name

	return out, nil
}
