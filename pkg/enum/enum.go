// Package enum discovers the byte sources a scan reads: files and
// directory trees, standard input, archive members, git blobs and remote
// blobs.
package enum

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"github.com/praetorian-inc/bgrep/pkg/types"
)

// Source is one byte stream to scan. Open may be called from any goroutine,
// at most once per Source.
type Source struct {
	// Label names the source in output.
	Label string

	// Provenance describes where the bytes came from.
	Provenance types.Provenance

	// Size is the length in bytes, or -1 when unknown.
	Size int64

	// Open returns the stream. Readers that also implement io.Seeker give
	// seekable cursors (context output, fast skips).
	Open func(ctx context.Context) (io.ReadCloser, error)
}

// YieldFunc receives each discovered source in discovery order. Returning
// an error stops enumeration with that error.
type YieldFunc func(Source) error

// ErrorFunc is told about entries that could not be enumerated, such as an
// unreadable directory. Enumeration continues afterwards.
type ErrorFunc func(label string, err error)

// Enumerator discovers sources.
type Enumerator interface {
	Enumerate(ctx context.Context, yield YieldFunc) error
}

// Config for enumeration.
type Config struct {
	// IncludeHidden includes hidden files/directories (starting with .)
	// found while walking. Explicitly named paths are always included.
	IncludeHidden bool

	// Gitignore skips walked entries matched by the root's .gitignore.
	Gitignore bool

	// MaxFileSize skips walked files larger than this (0 = no limit).
	MaxFileSize int64

	// FollowSymlinks scans symlinked files found while walking. Symlinked
	// directories are never descended into.
	FollowSymlinks bool

	// OnError receives per-entry failures. Nil discards them.
	OnError ErrorFunc

	// Logger receives skip decisions at debug level.
	Logger zerolog.Logger
}

func (c Config) report(label string, err error) {
	if c.OnError != nil {
		c.OnError(label, err)
	}
}

// Multi runs enumerators one after another.
type Multi []Enumerator

// Enumerate yields every source of every enumerator in order.
func (m Multi) Enumerate(ctx context.Context, yield YieldFunc) error {
	for _, e := range m {
		if err := e.Enumerate(ctx, yield); err != nil {
			return err
		}
	}
	return nil
}

// failedSource is a source whose Open reports err, so that a problem found
// during discovery surfaces in discovery order like any other open failure.
func failedSource(label string, prov types.Provenance, err error) Source {
	return Source{
		Label:      label,
		Provenance: prov,
		Size:       -1,
		Open: func(context.Context) (io.ReadCloser, error) {
			return nil, err
		},
	}
}
