package matcher

import (
	"bytes"
	"io"
)

// window is a fixed-capacity buffer over a stream, viewed through an n-byte
// window that slides one byte at a time.
//
// buf[start:end] holds bytes read but not yet slid past; a full window is
// available while end-start >= n. Bytes before start are consumed. When the
// buffer tail is full, compact moves the unconsumed bytes (always fewer than
// n once every ready window has been evaluated) to the front, so a read
// always has at least len(buf)-(n-1) >= 1 bytes of room.
type window struct {
	buf   []byte
	start int
	end   int
	n     int
	pos   uint64 // stream offset of buf[start], relative to the scan start
}

func newWindow(capacity, n int) *window {
	return &window{
		buf: make([]byte, capacity),
		n:   n,
	}
}

// fill reads once into the free tail of the buffer.
func (w *window) fill(r io.Reader) (int, error) {
	if w.end == len(w.buf) {
		w.compact()
	}
	n, err := r.Read(w.buf[w.end:])
	w.end += n
	return n, err
}

func (w *window) compact() {
	copy(w.buf, w.buf[w.start:w.end])
	w.end -= w.start
	w.start = 0
}

// ready reports whether a full window is buffered.
func (w *window) ready() bool {
	return w.end-w.start >= w.n
}

// current returns the bytes under the window. Only valid when ready.
func (w *window) current() []byte {
	return w.buf[w.start : w.start+w.n]
}

// advance slides the window k bytes forward.
func (w *window) advance(k int) {
	w.start += k
	w.pos += uint64(k)
}

// seek slides the window to the next buffered position whose byte at idx
// equals b. It returns false, having slid past every ready window, when no
// such position is buffered.
func (w *window) seek(idx int, b byte) bool {
	region := w.buf[w.start+idx : w.end-w.n+idx+1]
	i := bytes.IndexByte(region, b)
	if i < 0 {
		w.advance(len(region))
		return false
	}
	w.advance(i)
	return true
}

// streamOffset returns the stream offset just past the buffered bytes.
func (w *window) streamOffset() uint64 {
	return w.pos + uint64(w.end-w.start)
}
