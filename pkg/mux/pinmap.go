package mux

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/OpenTraceLab/OpenTraceScan/pkg/device"
)

// pinMapLexer tokenizes pin map files:
//
//	# comment
//	device "A1" label "Row A / 1" pins 1, 9
var pinMapLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `#[^\n]*`},
	{Name: "Whitespace", Pattern: `[\s]+`},
	{Name: "String", Pattern: `"(?:[^"\\]|\\.)*"`},
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Punct", Pattern: `,`},
})

type pinMapFile struct {
	Entries []*pinMapEntry `@@*`
}

type pinMapEntry struct {
	Pos   lexer.Position
	Key   string  `"device" @String`
	Label *string `( "label" @String )?`
	Pins  []int   `"pins" @Int ( "," @Int )*`
}

var pinMapParser = participle.MustBuild[pinMapFile](
	participle.Lexer(pinMapLexer),
	participle.Elide("Comment", "Whitespace"),
	participle.Unquote("String"),
)

// PinMap is the static device-key to relay-pin table of a sample. It is
// loaded once at configuration time and never modified.
type PinMap struct {
	order  []string
	labels map[string]string
	pins   map[string][]int
	all    []int
}

// PinMapEntry is one row of a pin map.
type PinMapEntry struct {
	Key   string
	Label string
	Pins  []int
}

// NewPinMap validates entries and builds the table.
func NewPinMap(entries []PinMapEntry) (*PinMap, error) {
	m := &PinMap{
		labels: make(map[string]string, len(entries)),
		pins:   make(map[string][]int, len(entries)),
	}
	union := make(map[int]struct{})
	for _, e := range entries {
		if e.Key == "" {
			return nil, fmt.Errorf("mux: pin map entry with empty key")
		}
		if _, dup := m.pins[e.Key]; dup {
			return nil, fmt.Errorf("mux: duplicate pin map key %q", e.Key)
		}
		if len(e.Pins) == 0 {
			return nil, fmt.Errorf("mux: pin map key %q has no pins", e.Key)
		}
		set := normalizePins(e.Pins)
		for _, p := range set {
			if p < 0 {
				return nil, fmt.Errorf("mux: pin map key %q has negative pin %d", e.Key, p)
			}
			union[p] = struct{}{}
		}
		m.order = append(m.order, e.Key)
		m.labels[e.Key] = e.Label
		m.pins[e.Key] = set
	}
	for p := range union {
		m.all = append(m.all, p)
	}
	sort.Ints(m.all)
	return m, nil
}

// ParsePinMap parses a pin map document.
func ParsePinMap(name string, r io.Reader) (*PinMap, error) {
	file, err := pinMapParser.Parse(name, r)
	if err != nil {
		return nil, fmt.Errorf("mux: parse pin map: %w", err)
	}
	entries := make([]PinMapEntry, 0, len(file.Entries))
	for _, e := range file.Entries {
		entry := PinMapEntry{Key: e.Key, Pins: e.Pins}
		if e.Label != nil {
			entry.Label = *e.Label
		}
		entries = append(entries, entry)
	}
	m, err := NewPinMap(entries)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return m, nil
}

// LoadPinMap reads and parses a pin map file.
func LoadPinMap(path string) (*PinMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mux: open pin map: %w", err)
	}
	defer f.Close()
	return ParsePinMap(path, f)
}

// Pins returns the pin set for key, sorted.
func (m *PinMap) Pins(key string) ([]int, bool) {
	p, ok := m.pins[key]
	if !ok {
		return nil, false
	}
	return append([]int(nil), p...), true
}

// AllPins returns every pin referenced by the map, sorted.
func (m *PinMap) AllPins() []int {
	return append([]int(nil), m.all...)
}

// Len returns the number of devices in the map.
func (m *PinMap) Len() int {
	return len(m.order)
}

// Devices returns the mapped devices in file order.
func (m *PinMap) Devices() device.List {
	l := make(device.List, len(m.order))
	for i, key := range m.order {
		label := m.labels[key]
		if label == "" {
			label = key
		}
		l[i] = device.Device{Key: key, Index: i, Label: label}
	}
	return l
}

func normalizePins(pins []int) []int {
	seen := make(map[int]struct{}, len(pins))
	out := make([]int, 0, len(pins))
	for _, p := range pins {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}
