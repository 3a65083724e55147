package phyloseq

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingArtifact marks an input file that is absent or cannot be
	// opened.
	ErrMissingArtifact = errors.New("missing artifact")

	// ErrParse marks an input file that was opened but is malformed.
	ErrParse = errors.New("parse error")

	// ErrUnknownRank is returned when a rank name is not part of a dataset's
	// rank schema.
	ErrUnknownRank = errors.New("unknown rank")
)

// MissingArtifactError reports which input could not be opened. It matches
// ErrMissingArtifact with errors.Is and unwraps to the underlying cause.
type MissingArtifactError struct {
	Kind string // "feature table", "taxonomy", ...
	Path string
	Err  error
}

func (e *MissingArtifactError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Path, e.Err)
}

func (e *MissingArtifactError) Is(target error) bool { return target == ErrMissingArtifact }

func (e *MissingArtifactError) Unwrap() error { return e.Err }

// ParseError reports a malformed input. Line is 1-based and zero when the
// problem is not tied to a particular line.
type ParseError struct {
	Kind string
	Path string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s %s:%d: %v", e.Kind, e.Path, e.Line, e.Err)
	}
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Path, e.Err)
}

func (e *ParseError) Is(target error) bool { return target == ErrParse }

func (e *ParseError) Unwrap() error { return e.Err }

func unknownRank(rank string, schema []string) error {
	return fmt.Errorf("%w %q (known ranks: %s)", ErrUnknownRank, rank, strings.Join(schema, ", "))
}
