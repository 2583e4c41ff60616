package pattern

import "fmt"

// parseState is the compiler mode.
type parseState int

const (
	stateHex parseState = iota
	stateText
	stateTextEscaped
)

func (s parseState) String() string {
	switch s {
	case stateHex:
		return "hex"
	case stateText:
		return "text"
	case stateTextEscaped:
		return "text-escaped"
	default:
		return "unknown"
	}
}

// Compile parses a search expression.
//
// Transitions:
//
//	hex:          '"' -> text, "??" -> wildcard cell, ' ' -> skip, XX -> exact cell
//	text:         '"' -> hex, '\' -> text-escaped, c -> exact cell
//	text-escaped: c -> exact cell, back to text
//
// The expression is consumed byte by byte. An expression that would emit
// more than MaxPattern cells is rejected.
//
// Spaces are skipped wherever a hex pair may start, including at the very
// end, so "41 " compiles to one cell. Any other lone trailing character,
// as in "41 4", is an odd nibble and rejected.
func Compile(expr string) (*Pattern, error) {
	p := &Pattern{}
	state := stateHex
	i := 0

	for i < len(expr) {
		c := expr[i]
		if p.len == MaxPattern && emits(expr[i:], state) {
			return nil, fmt.Errorf("%w: pattern longer than %d bytes", ErrInvalidPattern, MaxPattern)
		}

		switch state {
		case stateText:
			switch c {
			case '"':
				state = stateHex
			case '\\':
				state = stateTextEscaped
			default:
				p.emit(c, MaskExact)
			}
			i++
			continue

		case stateTextEscaped:
			p.emit(c, MaskExact)
			state = stateText
			i++
			continue
		}

		switch {
		case c == '"':
			state = stateText
			i++
		case c == ' ':
			i++
		case i+1 >= len(expr):
			return nil, fmt.Errorf("%w: invalid/empty search string: odd number of hex digits", ErrInvalidPattern)
		case c == '?' && expr[i+1] == '?':
			p.emit(0, MaskWildcard)
			i += 2
		default:
			hi, okHi := unhex(c)
			lo, okLo := unhex(expr[i+1])
			if !okHi || !okLo {
				return nil, fmt.Errorf("%w: invalid hex string %q at position %d", ErrInvalidPattern, expr[i:i+2], i)
			}
			p.emit(hi<<4|lo, MaskExact)
			i += 2
		}
	}

	if state != stateHex {
		return nil, fmt.Errorf("%w: unterminated text (ended in %s mode)", ErrInvalidPattern, state)
	}
	if p.len == 0 {
		return nil, fmt.Errorf("%w: invalid/empty search string", ErrInvalidPattern)
	}
	return p, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(expr string) *Pattern {
	p, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Pattern) emit(value, mask byte) {
	p.value[p.len] = value & mask
	p.mask[p.len] = mask
	p.len++
}

// emits reports whether the next step over rest produces a cell.
func emits(rest string, state parseState) bool {
	switch state {
	case stateText:
		return rest[0] != '"' && rest[0] != '\\'
	case stateTextEscaped:
		return true
	}
	return rest[0] != '"' && rest[0] != ' '
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
