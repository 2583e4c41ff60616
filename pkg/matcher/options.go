package matcher

// DefaultBufferSize is the default window buffer capacity.
const DefaultBufferSize = 64 * 1024

// Options configures a scan. It is built once per invocation and shared by
// every source.
type Options struct {
	// FirstOnly stops the scan after the first match.
	FirstOnly bool

	// CountOnly suppresses match events; Scan still returns the count.
	CountOnly bool

	// Skip is the number of bytes to pass over before matching.
	Skip uint64

	// Before and After are the context widths around each match.
	Before uint64
	After  uint64

	// BufferSize is the window buffer capacity (0 = DefaultBufferSize).
	// It must be at least the pattern length.
	BufferSize int
}

// DefaultOptions returns options that report every match without context.
func DefaultOptions() Options {
	return Options{
		BufferSize: DefaultBufferSize,
	}
}

// WantContext reports whether context bytes are requested.
func (o Options) WantContext() bool {
	return o.Before > 0 || o.After > 0
}
