// Package matcher scans byte streams for a compiled pattern using a bounded
// sliding window.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/praetorian-inc/bgrep/pkg/cursor"
	"github.com/praetorian-inc/bgrep/pkg/pattern"
	"github.com/praetorian-inc/bgrep/pkg/types"
)

// maxEmptyReads bounds consecutive (0, nil) reads before giving up.
const maxEmptyReads = 100

// EmitFunc receives each match as it is found. Returning an error aborts
// the scan with that error.
type EmitFunc func(m *types.Match) error

// Matcher finds every byte-aligned occurrence of a pattern in a stream.
// A Matcher holds no per-scan state and may be used by concurrent scans.
type Matcher struct {
	pattern *pattern.Pattern
	opts    Options
}

// New creates a Matcher.
func New(p *pattern.Pattern, opts Options) (*Matcher, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil pattern", pattern.ErrInvalidPattern)
	}
	if opts.BufferSize == 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.BufferSize < p.Len() {
		return nil, fmt.Errorf("%w: %d < %d", ErrBufferTooSmall, opts.BufferSize, p.Len())
	}
	if opts.Skip > math.MaxInt64 {
		return nil, fmt.Errorf("%w: offset 0x%x out of range", ErrSkipFailed, opts.Skip)
	}
	return &Matcher{pattern: p, opts: opts}, nil
}

// Pattern returns the compiled pattern.
func (m *Matcher) Pattern() *pattern.Pattern {
	return m.pattern
}

// Options returns the scan options.
func (m *Matcher) Options() Options {
	return m.opts
}

// Scan reads c to the end and returns the number of matches.
//
// Matches are reported through emit unless CountOnly is set. Offsets are
// relative to the cursor's start and include the skip. Overlapping
// occurrences are all reported. A source shorter than the pattern yields
// zero matches and no error.
//
// The returned error is ErrSkipFailed, ErrContextRestore, a *ReadError, the
// context's error, or whatever emit returned. ErrContextSeek is not fatal;
// it is attached to the match as ContextErr.
func (m *Matcher) Scan(ctx context.Context, source string, c cursor.Cursor, emit EmitFunc) (int, error) {
	if m.opts.Skip > 0 {
		reached, err := cursor.Skip(c, int64(m.opts.Skip))
		if err != nil {
			return 0, fmt.Errorf("%w to offset 0x%x: %w", ErrSkipFailed, m.opts.Skip, err)
		}
		if uint64(reached) != m.opts.Skip {
			return 0, fmt.Errorf("%w to offset 0x%x: source ends at 0x%x", ErrSkipFailed, m.opts.Skip, reached)
		}
	}

	n := m.pattern.Len()
	w := newWindow(m.opts.BufferSize, n)
	anchorIdx, anchorByte, anchored := m.pattern.Anchor()

	count := 0
	empty := 0
	for {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		read, rerr := w.fill(c)
		if read == 0 && rerr == nil {
			empty++
			if empty >= maxEmptyReads {
				rerr = io.ErrNoProgress
			} else {
				continue
			}
		} else {
			empty = 0
		}

		for w.ready() {
			if anchored && !w.seek(anchorIdx, anchorByte) {
				break
			}
			if m.pattern.Matches(w.current()) {
				count++
				if !m.opts.CountOnly {
					if err := m.report(source, c, w.pos, emit); err != nil {
						return count, err
					}
				}
				if m.opts.FirstOnly {
					return count, nil
				}
			}
			w.advance(1)
		}

		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return count, nil
			}
			return count, &ReadError{
				Source: source,
				Offset: m.opts.Skip + w.streamOffset(),
				Err:    rerr,
			}
		}
	}
}

// report builds the match at window position pos and hands it to emit.
//
// A snippet holds at most one buffer of context. When more is available
// the match also carries WriteContext, which re-reads the span through a
// single buffer for as long as emit runs.
func (m *Matcher) report(source string, c cursor.Cursor, pos uint64, emit EmitFunc) error {
	match := &types.Match{
		Source: source,
		Offset: m.opts.Skip + pos,
		Length: m.pattern.Len(),
	}

	// streamErr records a failure while WriteContext read the source. The
	// sink only sees a shortened stream; the scan reports the failure.
	var streamErr error
	if m.opts.WantContext() {
		snippet, err := ExtractContext(c, match.Offset, m.opts.Before, m.opts.After, m.opts.BufferSize)
		switch {
		case errors.Is(err, ErrContextRestore):
			return err
		case err != nil:
			match.ContextErr = err
		}
		match.Context = snippet
		if snippet != nil && snippet.Truncated {
			match.WriteContext = func(fn func([]byte) error) error {
				var fnErr error
				err := StreamContext(c, match.Offset, m.opts.Before, m.opts.After, m.opts.BufferSize, func(p []byte) error {
					fnErr = fn(p)
					return fnErr
				})
				if err != nil && err != fnErr && streamErr == nil {
					streamErr = err
				}
				return fnErr
			}
		}
	}

	if emit == nil {
		return nil
	}
	err := emit(match)
	if match.WriteContext != nil {
		match.WriteContext = nil
	}
	switch {
	case errors.Is(streamErr, ErrContextRestore):
		return streamErr
	case streamErr != nil:
		return &ReadError{Source: source, Offset: match.Offset, Err: streamErr}
	}
	return err
}

// ScanReader is a convenience wrapper that scans r from its current position.
func (m *Matcher) ScanReader(ctx context.Context, source string, r io.Reader, emit EmitFunc) (int, error) {
	return m.Scan(ctx, source, cursor.New(r), emit)
}
