// Package pattern compiles hybrid hex/text search expressions into
// fixed-length value/mask byte patterns.
//
// An expression mixes hex byte pairs, "??" wildcards and quoted text:
//
//	ffeedd??cc        bytes 0xff 0xee 0xdd <any> 0xcc
//	"foo"             bytes 0x66 0x6f 0x6f
//	"foo"00"bar"      "foo", a NUL byte, then "bar"
//	"a\"b"            a, a literal quote, b
//
// Spaces between hex pairs are ignored.
package pattern

import (
	"errors"
	"fmt"
	"strings"
)

// MaxPattern is the maximum number of cells in a compiled pattern.
const MaxPattern = 512

// Cell masks produced by the compiler.
const (
	MaskExact    byte = 0xFF
	MaskWildcard byte = 0x00
)

// ErrInvalidPattern is returned for malformed, empty or oversized expressions.
var ErrInvalidPattern = errors.New("invalid pattern")

// Pattern is a sequence of (value, mask) byte cells.
// A byte b matches cell i iff b&mask[i] == value[i].
//
// Storage is fixed at MaxPattern cells; Len is always in [1, MaxPattern].
// A Pattern is immutable once built and safe for concurrent readers.
type Pattern struct {
	value [MaxPattern]byte
	mask  [MaxPattern]byte
	len   int
}

// New builds a pattern from explicit value and mask slices. Masks may take
// any value; value bytes are normalized to value&mask so that a cell can
// always be satisfied.
func New(value, mask []byte) (*Pattern, error) {
	if len(value) != len(mask) {
		return nil, fmt.Errorf("%w: value and mask lengths differ (%d != %d)", ErrInvalidPattern, len(value), len(mask))
	}
	if len(value) == 0 {
		return nil, fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
	}
	if len(value) > MaxPattern {
		return nil, fmt.Errorf("%w: pattern longer than %d bytes", ErrInvalidPattern, MaxPattern)
	}

	p := &Pattern{len: len(value)}
	for i := range value {
		p.mask[i] = mask[i]
		p.value[i] = value[i] & mask[i]
	}
	return p, nil
}

// Literal builds an exact-match pattern for b.
func Literal(b []byte) (*Pattern, error) {
	mask := make([]byte, len(b))
	for i := range mask {
		mask[i] = MaskExact
	}
	return New(b, mask)
}

// Len returns the number of cells.
func (p *Pattern) Len() int {
	return p.len
}

// Value returns the expected value of cell i.
func (p *Pattern) Value(i int) byte {
	return p.value[i]
}

// Mask returns the mask of cell i.
func (p *Pattern) Mask(i int) byte {
	return p.mask[i]
}

// Matches reports whether window[:Len()] satisfies every cell.
// It returns false when window is shorter than the pattern.
func (p *Pattern) Matches(window []byte) bool {
	if len(window) < p.len {
		return false
	}
	w := window[:p.len]
	for i := range w {
		if w[i]&p.mask[i] != p.value[i] {
			return false
		}
	}
	return true
}

// Anchor returns the index and value of the first exact cell, which a
// scanner can use to jump between candidate windows. ok is false when the
// pattern has no exact cell.
func (p *Pattern) Anchor() (idx int, b byte, ok bool) {
	for i := 0; i < p.len; i++ {
		if p.mask[i] == MaskExact {
			return i, p.value[i], true
		}
	}
	return 0, 0, false
}

// Bytes returns copies of the value and mask cells.
func (p *Pattern) Bytes() (value, mask []byte) {
	value = append([]byte(nil), p.value[:p.len]...)
	mask = append([]byte(nil), p.mask[:p.len]...)
	return value, mask
}

// String returns the canonical hex form, "??" for wildcards.
// Cells with partial masks are written as value/mask.
func (p *Pattern) String() string {
	var sb strings.Builder
	for i := 0; i < p.len; i++ {
		if i > 0 {
			sb.WriteByte(' ')
		}
		switch p.mask[i] {
		case MaskWildcard:
			sb.WriteString("??")
		case MaskExact:
			fmt.Fprintf(&sb, "%02x", p.value[i])
		default:
			fmt.Fprintf(&sb, "%02x/%02x", p.value[i], p.mask[i])
		}
	}
	return sb.String()
}
