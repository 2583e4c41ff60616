package enum

import (
	"context"
	"io"

	"github.com/praetorian-inc/bgrep/pkg/types"
)

// StdinLabel labels standard input in output.
const StdinLabel = "stdin"

// StdinEnumerator yields a single source reading r.
type StdinEnumerator struct {
	r io.Reader
}

// NewStdinEnumerator creates an enumerator for r, normally os.Stdin.
func NewStdinEnumerator(r io.Reader) *StdinEnumerator {
	return &StdinEnumerator{r: r}
}

// Enumerate yields the stdin source. Closing it leaves r open. When r is
// seekable (stdin redirected from a file) the source stays seekable.
func (e *StdinEnumerator) Enumerate(ctx context.Context, yield YieldFunc) error {
	return yield(Source{
		Label:      StdinLabel,
		Provenance: types.StdinProvenance{},
		Size:       -1,
		Open: func(context.Context) (io.ReadCloser, error) {
			if rs, ok := e.r.(io.ReadSeeker); ok {
				return nopSeekCloser{rs}, nil
			}
			return io.NopCloser(e.r), nil
		},
	})
}

type nopSeekCloser struct {
	io.ReadSeeker
}

func (nopSeekCloser) Close() error { return nil }
