package mux

import (
	"errors"
	"testing"
)

func TestBinaryTruthTable(t *testing.T) {
	table, err := BinaryTruthTable(8)
	if err != nil {
		t.Fatalf("BinaryTruthTable: %v", err)
	}
	if table.Channels() != 8 || table.Lines() != 4 {
		t.Fatalf("channels=%d lines=%d, want 8/4", table.Channels(), table.Lines())
	}
	p, err := table.Pattern(5)
	if err != nil {
		t.Fatalf("Pattern(5): %v", err)
	}
	if p.String() != "1010" {
		t.Fatalf("Pattern(5) = %s, want 1010", p)
	}
	if table.Off().String() != "0000" {
		t.Fatalf("Off = %s, want 0000", table.Off())
	}
}

func TestTruthTablePatternRange(t *testing.T) {
	table, err := BinaryTruthTable(4)
	if err != nil {
		t.Fatalf("BinaryTruthTable: %v", err)
	}
	for _, ch := range []Channel{0, -1, 5} {
		_, err := table.Pattern(ch)
		var rangeErr *ChannelRangeError
		if !errors.As(err, &rangeErr) {
			t.Fatalf("Pattern(%d) error = %v, want ChannelRangeError", ch, err)
		}
		if rangeErr.Count != 4 {
			t.Fatalf("Count = %d, want 4", rangeErr.Count)
		}
	}
}

func TestNewTruthTableValidation(t *testing.T) {
	off := LinePattern{false, false}
	tests := []struct {
		name string
		rows map[Channel]LinePattern
	}{
		{"gap", map[Channel]LinePattern{1: {true, false}, 3: {false, true}}},
		{"width", map[Channel]LinePattern{1: {true}}},
		{"duplicate", map[Channel]LinePattern{1: {true, false}, 2: {true, false}}},
		{"off pattern", map[Channel]LinePattern{1: {false, false}}},
		{"empty", map[Channel]LinePattern{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewTruthTable(off, tt.rows); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
