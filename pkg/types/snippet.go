package types

import (
	"fmt"
	"strings"
)

// Snippet holds the context bytes read around a match.
// Before ends at the match offset; After starts there, so the matched
// bytes are the first Match.Length bytes of After.
//
// A snippet keeps at most one scan buffer of bytes. Truncated is set when
// the source had more context than that.
type Snippet struct {
	Start     uint64   `json:"start"` // offset of Before[0]
	Before    HexBytes `json:"before,omitempty"`
	After     HexBytes `json:"after,omitempty"`
	Truncated bool     `json:"truncated,omitempty"`
}

// Bytes returns Before followed by After.
func (s *Snippet) Bytes() []byte {
	out := make([]byte, 0, len(s.Before)+len(s.After))
	out = append(out, s.Before...)
	return append(out, s.After...)
}

// Render returns the context as a single line: printable ASCII as is,
// everything else as \xNN.
func (s *Snippet) Render() string {
	var sb strings.Builder
	RenderTo(&sb, s.Before, nil)
	RenderTo(&sb, s.After, nil)
	return sb.String()
}

// RenderTo appends the escaped form of b to sb. style, when not nil,
// decorates each \xNN escape (colour, for instance).
func RenderTo(sb *strings.Builder, b []byte, style func(escape string) string) {
	for _, c := range b {
		if IsPrintable(c) {
			sb.WriteByte(c)
			continue
		}
		escape := fmt.Sprintf("\\x%02x", c)
		if style != nil {
			escape = style(escape)
		}
		sb.WriteString(escape)
	}
}

// IsPrintable reports whether c is printable ASCII (space through tilde).
func IsPrintable(c byte) bool {
	return c >= 0x20 && c <= 0x7e
}
