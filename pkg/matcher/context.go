package matcher

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/praetorian-inc/bgrep/pkg/cursor"
	"github.com/praetorian-inc/bgrep/pkg/types"
)

// errSnippetFull stops StreamContext once a snippet holds its limit.
var errSnippetFull = errors.New("snippet full")

// contextSpan returns where the context around offset starts and how many
// bytes it covers. The length saturates instead of wrapping.
func contextSpan(offset, before, after uint64) (start, total uint64, err error) {
	if before > offset {
		return 0, 0, fmt.Errorf("%w: 0x%x bytes before offset 0x%x precede the start of the stream", ErrContextSeek, before, offset)
	}
	start = offset - before
	if start > math.MaxInt64 {
		return 0, 0, fmt.Errorf("%w: offset 0x%x out of range", ErrContextSeek, start)
	}
	total = before + after
	if total < before {
		total = math.MaxUint64
	}
	return start, total, nil
}

// StreamContext passes the before+after bytes starting at offset-before to
// fn, at most chunk bytes at a time, and returns the cursor to where it
// was. Only one chunk is held in memory. A source that ends early ends the
// stream early.
//
// Failing to reach or read the context (sequential source, or a start
// before the beginning of the stream) returns ErrContextSeek; failing to
// return afterwards returns ErrContextRestore. Errors from fn are returned
// unchanged.
func StreamContext(c cursor.Cursor, offset, before, after uint64, chunk int, fn func(chunk []byte) error) error {
	if !c.Seekable() {
		return fmt.Errorf("%w: %w", ErrContextSeek, cursor.ErrSeekUnsupported)
	}
	start, total, err := contextSpan(offset, before, after)
	if err != nil {
		return err
	}
	if chunk <= 0 {
		chunk = DefaultBufferSize
	}

	saved := c.Offset()
	if _, err := c.Seek(int64(start)); err != nil {
		return fmt.Errorf("%w: %w", ErrContextSeek, err)
	}

	streamErr := copyChunks(c, total, chunk, fn)

	if _, err := c.Seek(saved); err != nil {
		return fmt.Errorf("%w: %w", ErrContextRestore, err)
	}
	return streamErr
}

// copyChunks reads at most total bytes from r into a chunk-sized buffer
// and hands each filled piece to fn. End of stream stops it quietly.
func copyChunks(r io.Reader, total uint64, chunk int, fn func([]byte) error) error {
	size := uint64(chunk)
	if total < size {
		size = total
	}
	buf := make([]byte, size)

	for remaining := total; remaining > 0; {
		k := uint64(len(buf))
		if remaining < k {
			k = remaining
		}
		n, err := io.ReadFull(r, buf[:k])
		if n > 0 {
			if ferr := fn(buf[:n]); ferr != nil {
				return ferr
			}
		}
		remaining -= uint64(n)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: reading context: %w", ErrContextSeek, err)
		}
	}
	return nil
}

// ExtractContext reads the context around offset into a snippet holding at
// most chunk bytes. When the source has more, the snippet is marked
// Truncated; StreamContext delivers the whole span.
func ExtractContext(c cursor.Cursor, offset, before, after uint64, chunk int) (*types.Snippet, error) {
	if chunk <= 0 {
		chunk = DefaultBufferSize
	}

	var data []byte
	truncated := false
	err := StreamContext(c, offset, before, after, chunk, func(p []byte) error {
		room := chunk - len(data)
		if len(p) > room {
			data = append(data, p[:room]...)
			truncated = true
			return errSnippetFull
		}
		if data == nil {
			data = make([]byte, 0, chunk)
		}
		data = append(data, p...)
		return nil
	})
	if err != nil && !errors.Is(err, errSnippetFull) {
		return nil, err
	}

	start := offset - before
	snippet := &types.Snippet{Start: start, Truncated: truncated}
	split := before
	if split > uint64(len(data)) {
		split = uint64(len(data))
	}
	if split > 0 {
		snippet.Before = data[:split]
	}
	if uint64(len(data)) > split {
		snippet.After = data[split:]
	}
	return snippet, nil
}
