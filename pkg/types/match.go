package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Match is a single pattern occurrence within a source.
type Match struct {
	Source  string   `json:"source"`
	Offset  uint64   `json:"offset"` // from the start of the stream, skip included
	Length  int      `json:"length"`
	Context *Snippet `json:"context,omitempty"`

	// ContextErr is set when context was requested but could not be read.
	ContextErr error `json:"-"`

	// WriteContext streams the whole context span to fn in buffer-sized
	// pieces. It is set only when Context was cut short, and only until the
	// emit call that delivered the match returns.
	WriteContext func(fn func(chunk []byte) error) error `json:"-"`
}

// End returns the offset one past the last matched byte.
func (m *Match) End() uint64 {
	return m.Offset + uint64(m.Length)
}

// Line formats the match as "<source>: <offset>" with the offset in
// lowercase hex, zero-padded to at least eight digits.
func (m *Match) Line() string {
	return fmt.Sprintf("%s: %s", m.Source, FormatOffset(m.Offset))
}

// FormatOffset renders an offset the way match lines do.
func FormatOffset(off uint64) string {
	return fmt.Sprintf("%08x", off)
}

// CountLine formats a per-source count line.
func CountLine(source string, count int) string {
	return fmt.Sprintf("%s count: %d", source, count)
}

// HexBytes is a byte slice that marshals to a hex string.
type HexBytes []byte

// MarshalJSON implements json.Marshaler.
func (b HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(b))
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *HexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid hex string: %w", err)
	}
	*b = decoded
	return nil
}
