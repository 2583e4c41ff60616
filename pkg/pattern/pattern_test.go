package pattern

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cells(t *testing.T, p *Pattern) (value, mask []byte) {
	t.Helper()
	require.NotNil(t, p)
	return p.Bytes()
}

func TestCompile(t *testing.T) {
	tests := []struct {
		name  string
		expr  string
		value []byte
		mask  []byte
	}{
		{
			name:  "hex with wildcard",
			expr:  "ffee??cc",
			value: []byte{0xff, 0xee, 0x00, 0xcc},
			mask:  []byte{0xff, 0xff, 0x00, 0xff},
		},
		{
			name:  "uppercase and spaces",
			expr:  "DE AD  be EF",
			value: []byte{0xde, 0xad, 0xbe, 0xef},
			mask:  []byte{0xff, 0xff, 0xff, 0xff},
		},
		{
			name:  "quoted text",
			expr:  `"foo"`,
			value: []byte("foo"),
			mask:  []byte{0xff, 0xff, 0xff},
		},
		{
			name:  "text hex text",
			expr:  `"foo"00"bar"`,
			value: []byte("foo\x00bar"),
			mask:  []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		},
		{
			name:  "text wildcard text",
			expr:  `"foo"??"bar"`,
			value: []byte("foo\x00bar"),
			mask:  []byte{0xff, 0xff, 0xff, 0x00, 0xff, 0xff, 0xff},
		},
		{
			name:  "escaped quote and backslash",
			expr:  `"a\"b\\"`,
			value: []byte(`a"b\`),
			mask:  []byte{0xff, 0xff, 0xff, 0xff},
		},
		{
			name:  "spaces inside text are literal",
			expr:  `"a b"`,
			value: []byte("a b"),
			mask:  []byte{0xff, 0xff, 0xff},
		},
		{
			name:  "wildcards only",
			expr:  "????",
			value: []byte{0, 0},
			mask:  []byte{0, 0},
		},
		{
			name:  "trailing spaces are skipped",
			expr:  "41  ",
			value: []byte{0x41},
			mask:  []byte{0xff},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Compile(tt.expr)
			require.NoError(t, err)
			value, mask := cells(t, p)
			assert.Equal(t, tt.value, value)
			assert.Equal(t, tt.mask, mask)
			assert.Equal(t, len(tt.value), p.Len())
		})
	}
}

func TestCompile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"empty", ""},
		{"only spaces", "   "},
		{"lone nibble", "f"},
		{"odd nibble after byte", "fff"},
		{"odd nibble after space", "41 4"},
		{"bad hex digit", "fg"},
		{"single question mark", "?f"},
		{"unterminated quote", `"ab`},
		{"dangling escape", `"ab\`},
		{"empty text", `""`},
		{"quote after nibble", `f"a"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.expr)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidPattern)
		})
	}
}

func TestCompile_MaxPattern(t *testing.T) {
	t.Run("exactly max hex", func(t *testing.T) {
		p, err := Compile(strings.Repeat("ab", MaxPattern))
		require.NoError(t, err)
		assert.Equal(t, MaxPattern, p.Len())
	})

	t.Run("exactly max text with closing quote", func(t *testing.T) {
		p, err := Compile(`"` + strings.Repeat("a", MaxPattern) + `"`)
		require.NoError(t, err)
		assert.Equal(t, MaxPattern, p.Len())
	})

	t.Run("one over max", func(t *testing.T) {
		_, err := Compile(strings.Repeat("ab", MaxPattern+1))
		assert.ErrorIs(t, err, ErrInvalidPattern)
	})

	t.Run("text over max", func(t *testing.T) {
		_, err := Compile(`"` + strings.Repeat("a", MaxPattern+1) + `"`)
		assert.ErrorIs(t, err, ErrInvalidPattern)
	})
}

func TestPattern_Matches(t *testing.T) {
	p := MustCompile("ffee??cc")

	assert.True(t, p.Matches([]byte{0xff, 0xee, 0x11, 0xcc}))
	assert.True(t, p.Matches([]byte{0xff, 0xee, 0x00, 0xcc, 0x99}))
	assert.False(t, p.Matches([]byte{0xff, 0xee, 0x11, 0xcd}))
	assert.False(t, p.Matches([]byte{0xff, 0xee, 0x11}))
}

func TestNew_PartialMask(t *testing.T) {
	// high nibble 0x4_, any low nibble
	p, err := New([]byte{0x4f}, []byte{0xf0})
	require.NoError(t, err)

	assert.Equal(t, byte(0x40), p.Value(0))
	assert.True(t, p.Matches([]byte{0x41}))
	assert.True(t, p.Matches([]byte{0x4e}))
	assert.False(t, p.Matches([]byte{0x51}))
	assert.Equal(t, "40/f0", p.String())
}

func TestNew_Invalid(t *testing.T) {
	_, err := New([]byte{1, 2}, []byte{0xff})
	assert.ErrorIs(t, err, ErrInvalidPattern)

	_, err = New(nil, nil)
	assert.ErrorIs(t, err, ErrInvalidPattern)

	_, err = Literal(make([]byte, MaxPattern+1))
	assert.ErrorIs(t, err, ErrInvalidPattern)
}

func TestPattern_String(t *testing.T) {
	assert.Equal(t, "66 6f 6f ?? 00", MustCompile(`"foo"??00`).String())
}

func TestPattern_Anchor(t *testing.T) {
	idx, b, ok := MustCompile("????41").Anchor()
	require.True(t, ok)
	assert.Equal(t, 2, idx)
	assert.Equal(t, byte(0x41), b)

	_, _, ok = MustCompile("??").Anchor()
	assert.False(t, ok)
}

func TestMustCompile_Panics(t *testing.T) {
	assert.Panics(t, func() { MustCompile("zz") })
}
