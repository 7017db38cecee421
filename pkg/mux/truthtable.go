package mux

import (
	"fmt"
	"math/bits"
	"strings"
)

// Channel is a 1-based switch channel number.
type Channel int

// LinePattern is the level of each parallel digital line.
type LinePattern []bool

func (p LinePattern) String() string {
	var b strings.Builder
	for _, on := range p {
		if on {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

func (p LinePattern) equal(o LinePattern) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// TruthTable maps channels to line patterns. Tables are validated once at
// construction and read-only afterwards.
type TruthTable struct {
	lines int
	off   LinePattern
	rows  []LinePattern // rows[ch-1]
}

// NewTruthTable validates rows and builds a table. Channels must be
// contiguous from 1, every pattern must have the table's width, patterns must
// be distinct and none may equal the off pattern.
func NewTruthTable(off LinePattern, rows map[Channel]LinePattern) (*TruthTable, error) {
	if len(off) == 0 {
		return nil, fmt.Errorf("mux: truth table needs at least one line")
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("mux: truth table has no channels")
	}
	t := &TruthTable{
		lines: len(off),
		off:   append(LinePattern(nil), off...),
		rows:  make([]LinePattern, len(rows)),
	}
	seen := make(map[string]Channel, len(rows))
	for ch := Channel(1); int(ch) <= len(rows); ch++ {
		row, ok := rows[ch]
		if !ok {
			return nil, fmt.Errorf("mux: truth table missing channel %d", ch)
		}
		if len(row) != t.lines {
			return nil, fmt.Errorf("mux: channel %d has %d lines, want %d", ch, len(row), t.lines)
		}
		if row.equal(off) {
			return nil, fmt.Errorf("mux: channel %d uses the off pattern %s", ch, off)
		}
		key := row.String()
		if prev, dup := seen[key]; dup {
			return nil, fmt.Errorf("mux: channels %d and %d share pattern %s", prev, ch, key)
		}
		seen[key] = ch
		t.rows[ch-1] = append(LinePattern(nil), row...)
	}
	return t, nil
}

// BinaryTruthTable encodes channel n as its binary value, least significant
// line first, with all lines low as the off state.
func BinaryTruthTable(channels int) (*TruthTable, error) {
	if channels < 1 {
		return nil, fmt.Errorf("mux: channel count must be positive, got %d", channels)
	}
	lines := bits.Len(uint(channels))
	rows := make(map[Channel]LinePattern, channels)
	for ch := 1; ch <= channels; ch++ {
		p := make(LinePattern, lines)
		for i := 0; i < lines; i++ {
			p[i] = ch&(1<<i) != 0
		}
		rows[Channel(ch)] = p
	}
	return NewTruthTable(make(LinePattern, lines), rows)
}

// Channels returns the number of supported channels.
func (t *TruthTable) Channels() int { return len(t.rows) }

// Lines returns the number of digital lines.
func (t *TruthTable) Lines() int { return t.lines }

// Off returns the all-disconnected pattern.
func (t *TruthTable) Off() LinePattern {
	return append(LinePattern(nil), t.off...)
}

// Pattern returns the line pattern for ch.
func (t *TruthTable) Pattern(ch Channel) (LinePattern, error) {
	if ch < 1 || int(ch) > len(t.rows) {
		return nil, &ChannelRangeError{Channel: ch, Count: len(t.rows)}
	}
	return append(LinePattern(nil), t.rows[ch-1]...), nil
}
