package matcher

import (
	"errors"
	"fmt"
)

var (
	// ErrSkipFailed is returned when the skip offset cannot be reached.
	ErrSkipFailed = errors.New("failed to skip ahead")

	// ErrContextSeek is returned when the cursor cannot be positioned at the
	// start of a match's context. Scanning can continue.
	ErrContextSeek = errors.New("unable to seek to context")

	// ErrContextRestore is returned when the cursor cannot be returned to its
	// scan position after reading context. Further offsets would be wrong,
	// so the scan of that source stops.
	ErrContextRestore = errors.New("could not restore the scan offset after printing context")

	// ErrBufferTooSmall is returned by New when the buffer cannot hold a
	// full window.
	ErrBufferTooSmall = errors.New("buffer size smaller than pattern length")
)

// ReadError is an I/O failure in the middle of a scan, as opposed to a clean
// end of source.
type ReadError struct {
	Source string
	Offset uint64 // stream offset the failed read started at
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("reading %s at offset 0x%x: %v", e.Source, e.Offset, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}
