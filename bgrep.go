// Package bgrep finds byte patterns in binary data.
//
// A pattern mixes hex bytes, "??" wildcards and quoted text. Every
// occurrence is reported, overlapping ones included, with its offset from
// the start of the input.
//
// # Basic Usage
//
//	scanner, err := bgrep.NewScanner(`"PK"0304`)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	matches, err := scanner.ScanFile(ctx, "/path/to/disk.img")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, match := range matches {
//	    fmt.Println(match.Line())
//	}
//
// # With Context
//
// Context bytes around each match are read back from seekable inputs:
//
//	scanner, err := bgrep.NewScanner("ffd8ffe0", bgrep.WithContext(4, 16))
//	matches, err := scanner.ScanBytes(data)
//	for _, match := range matches {
//	    fmt.Println(match.Context.Render())
//	}
package bgrep

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/praetorian-inc/bgrep/pkg/matcher"
	"github.com/praetorian-inc/bgrep/pkg/pattern"
	"github.com/praetorian-inc/bgrep/pkg/types"
)

// Re-export commonly used types for convenience.
// Users can import just "github.com/praetorian-inc/bgrep" without subpackages.
type (
	// Match is a single pattern occurrence.
	Match = types.Match

	// Snippet contains the context bytes around a match.
	Snippet = types.Snippet

	// Pattern is a compiled search expression.
	Pattern = pattern.Pattern
)

// ErrInvalidPattern is wrapped by every pattern compilation failure.
var ErrInvalidPattern = pattern.ErrInvalidPattern

// Compile parses a search expression.
func Compile(expr string) (*Pattern, error) {
	return pattern.Compile(expr)
}

// Scanner searches inputs for one pattern. It is safe for concurrent use.
type Scanner struct {
	matcher *matcher.Matcher
}

// Option configures a Scanner.
type Option func(*matcher.Options)

// WithContext reads before bytes ahead of each match and after bytes from
// the match on. Context is only available for seekable inputs, and a
// returned snippet keeps at most one read buffer of it (Truncated marks
// the rest).
func WithContext(before, after uint64) Option {
	return func(o *matcher.Options) {
		o.Before = before
		o.After = after
	}
}

// WithFirstOnly stops each scan at its first match.
func WithFirstOnly() Option {
	return func(o *matcher.Options) {
		o.FirstOnly = true
	}
}

// WithSkip starts matching n bytes into the input. Offsets still count
// from the start of the input.
func WithSkip(n uint64) Option {
	return func(o *matcher.Options) {
		o.Skip = n
	}
}

// WithBufferSize sets the read buffer size (default 64 KiB).
func WithBufferSize(n int) Option {
	return func(o *matcher.Options) {
		o.BufferSize = n
	}
}

// NewScanner compiles expr and creates a Scanner.
//
// Example:
//
//	// NUL-separated "foo" and "bar" with any byte between
//	scanner, err := bgrep.NewScanner(`"foo"00??"bar"`)
func NewScanner(expr string, opts ...Option) (*Scanner, error) {
	p, err := pattern.Compile(expr)
	if err != nil {
		return nil, err
	}
	return NewScannerForPattern(p, opts...)
}

// NewScannerForPattern creates a Scanner for an already compiled pattern.
func NewScannerForPattern(p *Pattern, opts ...Option) (*Scanner, error) {
	o := matcher.DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	m, err := matcher.New(p, o)
	if err != nil {
		return nil, fmt.Errorf("creating matcher: %w", err)
	}
	return &Scanner{matcher: m}, nil
}

// Pattern returns the compiled pattern.
func (s *Scanner) Pattern() *Pattern {
	return s.matcher.Pattern()
}

// ScanReader scans r from its current position to the end. name labels
// the matches.
func (s *Scanner) ScanReader(ctx context.Context, name string, r io.Reader) ([]*Match, error) {
	var matches []*Match
	_, err := s.matcher.ScanReader(ctx, name, r, func(m *types.Match) error {
		matches = append(matches, m)
		return nil
	})
	if err != nil {
		return matches, err
	}
	return matches, nil
}

// ScanBytes scans data and returns all matches.
func (s *Scanner) ScanBytes(data []byte) ([]*Match, error) {
	return s.ScanReader(context.Background(), "", bytes.NewReader(data))
}

// ScanString scans a string and returns all matches.
func (s *Scanner) ScanString(content string) ([]*Match, error) {
	return s.ScanBytes([]byte(content))
}

// ScanFile opens and scans a file. Matches are labelled with path.
//
// Example:
//
//	matches, err := scanner.ScanFile(ctx, "/path/to/firmware.bin")
func (s *Scanner) ScanFile(ctx context.Context, path string) ([]*Match, error) {
	//nolint:gosec // G304: path is chosen by the caller
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()
	return s.ScanReader(ctx, path, f)
}

// Count returns the number of matches in r without collecting them.
func (s *Scanner) Count(ctx context.Context, r io.Reader) (int, error) {
	o := s.matcher.Options()
	o.CountOnly = true
	o.Before, o.After = 0, 0
	m, err := matcher.New(s.matcher.Pattern(), o)
	if err != nil {
		return 0, err
	}
	return m.ScanReader(ctx, "", r, nil)
}
