// Package cursor tracks a read position within a byte source.
//
// A Cursor is either seekable (regular files) or sequential (pipes, standard
// input, archive members, remote blobs). Offsets are logical: zero is the
// position of the underlying reader when the cursor was created.
package cursor

import (
	"errors"
	"fmt"
	"io"
)

// ErrSeekUnsupported is returned by Seek on sequential cursors and by
// backward skips.
var ErrSeekUnsupported = errors.New("source does not support seeking")

// Cursor is a positioned byte source.
type Cursor interface {
	io.Reader

	// Seek moves to an absolute logical offset and returns it.
	// Sequential cursors return ErrSeekUnsupported.
	Seek(offset int64) (int64, error)

	// Offset returns the current logical offset.
	Offset() int64

	// Seekable reports whether Seek is supported.
	Seekable() bool
}

// New wraps r. Readers that also implement io.Seeker and answer a
// Seek(0, io.SeekCurrent) probe are seekable; everything else, including
// *os.File pipes, is sequential.
func New(r io.Reader) Cursor {
	if s, ok := r.(io.ReadSeeker); ok {
		if base, err := s.Seek(0, io.SeekCurrent); err == nil {
			return &seekCursor{rs: s, base: base}
		}
	}
	return &streamCursor{r: r}
}

// seekCursor wraps an io.ReadSeeker.
type seekCursor struct {
	rs   io.ReadSeeker
	base int64
	pos  int64
}

func (c *seekCursor) Read(p []byte) (int, error) {
	n, err := c.rs.Read(p)
	c.pos += int64(n)
	return n, err
}

func (c *seekCursor) Seek(offset int64) (int64, error) {
	if offset < 0 {
		return c.pos, fmt.Errorf("seek to negative offset %d: %w", offset, ErrSeekUnsupported)
	}
	abs, err := c.rs.Seek(c.base+offset, io.SeekStart)
	if err != nil {
		return c.pos, err
	}
	c.pos = abs - c.base
	return c.pos, nil
}

func (c *seekCursor) Offset() int64 {
	return c.pos
}

func (c *seekCursor) Seekable() bool {
	return true
}

// size returns the logical length of the source, leaving the position
// unchanged.
func (c *seekCursor) size() (int64, error) {
	end, err := c.rs.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := c.rs.Seek(c.base+c.pos, io.SeekStart); err != nil {
		return 0, err
	}
	return end - c.base, nil
}

// streamCursor is forward-only.
type streamCursor struct {
	r   io.Reader
	pos int64
}

func (c *streamCursor) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.pos += int64(n)
	return n, err
}

func (c *streamCursor) Seek(offset int64) (int64, error) {
	return c.pos, ErrSeekUnsupported
}

func (c *streamCursor) Offset() int64 {
	return c.pos
}

func (c *streamCursor) Seekable() bool {
	return false
}

// Skip advances c by n bytes and returns the offset reached.
//
// Seekable cursors seek, stopping at end of source. Sequential cursors
// discard-read. The returned offset is short of Offset()+n when the source
// ends first; the error is non-nil only for I/O failures.
func Skip(c Cursor, n int64) (int64, error) {
	if n < 0 {
		return c.Offset(), ErrSeekUnsupported
	}
	if n == 0 {
		return c.Offset(), nil
	}

	target := c.Offset() + n
	if sc, ok := c.(*seekCursor); ok {
		size, err := sc.size()
		if err != nil {
			return sc.pos, fmt.Errorf("determining source size: %w", err)
		}
		if target > size {
			target = size
		}
		return sc.Seek(target)
	}
	if c.Seekable() {
		return c.Seek(target)
	}

	if _, err := io.CopyN(io.Discard, c, n); err != nil && !errors.Is(err, io.EOF) {
		return c.Offset(), err
	}
	return c.Offset(), nil
}
