// Package bytesize parses byte counts written the way dd(1) accepts them.
//
// A count is a decimal integer optionally followed by a multiplicative
// suffix:
//
//	c=1  w=2  b=512
//	kB=1000  K=1024  KiB=1024
//	MB=1000^2  M=1024^2  and so on for G, T, P, E, Z, Y
//
// Counts may be multiplied together with 'x' (for example "2x4K"). Forms
// that dd does not know, such as "1.5 MiB", are handed to go-humanize.
package bytesize

import (
	"errors"
	"fmt"
	"math/bits"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalid is returned for strings that are not byte counts.
	ErrInvalid = errors.New("invalid byte count")

	// ErrOverflow is returned when a count does not fit in 64 bits.
	ErrOverflow = errors.New("byte count out of range")
)

// powers maps a power suffix letter to its exponent.
var powers = map[byte]int{
	'k': 1, 'K': 1,
	'M': 2,
	'G': 3,
	'T': 4,
	'P': 5,
	'E': 6,
	'Z': 7,
	'Y': 8,
}

// Parse returns the number of bytes s denotes.
func Parse(s string) (uint64, error) {
	n, err := parseProduct(s)
	if err == nil {
		return n, nil
	}
	if errors.Is(err, ErrOverflow) {
		return 0, fmt.Errorf("%q: %w", s, err)
	}
	if h, herr := humanize.ParseBytes(s); herr == nil && !strings.HasPrefix(strings.TrimSpace(s), "-") {
		return h, nil
	}
	return 0, fmt.Errorf("%q: %w", s, err)
}

// parseProduct parses N[suffix] optionally followed by "x" and another
// product.
func parseProduct(s string) (uint64, error) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, ErrInvalid
	}
	n, err := strconv.ParseUint(s[:i], 10, 64)
	if err != nil {
		return 0, ErrOverflow
	}

	mult, used, err := suffix(s[i:])
	if err != nil {
		return 0, err
	}
	if n, err = mul(n, mult); err != nil {
		return 0, err
	}

	rest := s[i+used:]
	switch {
	case rest == "":
		return n, nil
	case rest[0] == 'x':
		m, err := parseProduct(rest[1:])
		if err != nil {
			return 0, err
		}
		return mul(n, m)
	default:
		return 0, ErrInvalid
	}
}

// suffix returns the multiplier for the suffix at the start of s and how
// many bytes it occupies.
func suffix(s string) (uint64, int, error) {
	if s == "" {
		return 1, 0, nil
	}
	switch s[0] {
	case 'c':
		return 1, 1, nil
	case 'w':
		return 2, 1, nil
	case 'b':
		return 512, 1, nil
	}

	exp, ok := powers[s[0]]
	if !ok {
		return 1, 0, nil
	}
	base, used := uint64(1024), 1
	switch {
	case strings.HasPrefix(s[1:], "iB"):
		used = 3
	case strings.HasPrefix(s[1:], "B"), strings.HasPrefix(s[1:], "D"):
		base, used = 1000, 2
	}

	mult := uint64(1)
	for range exp {
		var err error
		if mult, err = mul(mult, base); err != nil {
			return 0, 0, err
		}
	}
	return mult, used, nil
}

func mul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrOverflow
	}
	return lo, nil
}

// Value is a byte count usable as a command-line flag and in YAML.
type Value uint64

// Set parses s into v.
func (v *Value) Set(s string) error {
	n, err := Parse(s)
	if err != nil {
		return err
	}
	*v = Value(n)
	return nil
}

func (v *Value) String() string {
	if v == nil {
		return "0"
	}
	return strconv.FormatUint(uint64(*v), 10)
}

// Type names the flag value in help output.
func (v *Value) Type() string {
	return "bytes"
}

// UnmarshalYAML accepts plain integers as well as suffixed strings.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: %w: expected a scalar", node.Line, ErrInvalid)
	}
	if err := v.Set(node.Value); err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	return nil
}

// Uint64 returns the count.
func (v Value) Uint64() uint64 {
	return uint64(v)
}
