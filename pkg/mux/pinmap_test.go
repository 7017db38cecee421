package mux

import (
	"strings"
	"testing"
)

const samplePinMap = `
# 2x2 sample, shared return on pin 9
device "A1" label "Row A / 1" pins 1, 9
device "A2" pins 2, 9
device "B1" pins 3, 10
device "B2" pins 4, 10, 4
`

func TestParsePinMap(t *testing.T) {
	m, err := ParsePinMap("sample.pins", strings.NewReader(samplePinMap))
	if err != nil {
		t.Fatalf("ParsePinMap: %v", err)
	}
	if m.Len() != 4 {
		t.Fatalf("Len = %d, want 4", m.Len())
	}
	pins, ok := m.Pins("B2")
	if !ok || len(pins) != 2 || pins[0] != 4 || pins[1] != 10 {
		t.Fatalf("Pins(B2) = %v, %v; want [4 10]", pins, ok)
	}
	all := m.AllPins()
	want := []int{1, 2, 3, 4, 9, 10}
	if len(all) != len(want) {
		t.Fatalf("AllPins = %v, want %v", all, want)
	}
	for i := range want {
		if all[i] != want[i] {
			t.Fatalf("AllPins = %v, want %v", all, want)
		}
	}

	devs := m.Devices()
	if devs[0].Key != "A1" || devs[0].Label != "Row A / 1" || devs[1].Label != "A2" {
		t.Fatalf("unexpected devices: %+v", devs)
	}
	if err := devs.Validate(); err != nil {
		t.Fatalf("device list invalid: %v", err)
	}
}

func TestParsePinMapErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"duplicate key", `device "A" pins 1 device "A" pins 2`},
		{"missing pins", `device "A" pins`},
		{"bad keyword", `dev "A" pins 1`},
		{"empty key", `device "" pins 1`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParsePinMap("bad.pins", strings.NewReader(tt.src)); err == nil {
				t.Fatalf("expected error for %q", tt.src)
			}
		})
	}
}
