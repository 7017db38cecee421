package mux

import (
	"fmt"

	"go.uber.org/zap"
)

// RelayBackend energizes relay pins. SetPins must activate exactly active and
// release every other pin in all, as one write.
type RelayBackend interface {
	SetPins(active, all []int) error
}

// PinRelayAdapter routes by closing the relay pins listed for a device in a
// static pin map.
type PinRelayAdapter struct {
	pins    *PinMap
	backend RelayBackend
	log     *zap.Logger

	last []int // pin set of the last successful write, nil when unknown
}

// NewPinRelayAdapter builds a pin relay adapter. A nil backend selects the
// logging simulation, which always succeeds.
func NewPinRelayAdapter(pins *PinMap, backend RelayBackend, log *zap.Logger) *PinRelayAdapter {
	if log == nil {
		log = zap.NewNop()
	}
	return &PinRelayAdapter{pins: pins, backend: backend, log: log}
}

func (a *PinRelayAdapter) Kind() Kind { return KindPinRelay }

// Simulated reports whether the adapter runs without a relay backend.
func (a *PinRelayAdapter) Simulated() bool { return a.backend == nil }

// RouteToDevice closes the pins mapped to key and opens all others.
func (a *PinRelayAdapter) RouteToDevice(key string, index int) error {
	active, ok := a.pins.Pins(key)
	if !ok {
		a.log.Warn("no pin mapping for device", zap.String("device", key), zap.Int("index", index))
		return fmt.Errorf("%w: %q", ErrUnmappedDevice, key)
	}
	if a.last != nil && samePins(a.last, active) {
		return nil
	}
	if a.backend == nil {
		a.log.Info("simulated relay route", zap.String("device", key), zap.Ints("pins", active))
		a.last = active
		return nil
	}
	if err := a.backend.SetPins(active, a.pins.AllPins()); err != nil {
		a.last = nil
		return fmt.Errorf("mux: route %q: %w", key, err)
	}
	a.last = active
	return nil
}

// DisconnectAll releases every mapped pin.
func (a *PinRelayAdapter) DisconnectAll() error {
	a.last = nil
	if a.backend == nil {
		a.log.Info("simulated relay disconnect")
		return nil
	}
	if err := a.backend.SetPins(nil, a.pins.AllPins()); err != nil {
		return fmt.Errorf("mux: disconnect: %w", err)
	}
	return nil
}

func samePins(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
