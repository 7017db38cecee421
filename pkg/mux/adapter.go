package mux

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Kind names a multiplexer technology.
type Kind string

const (
	KindPinRelay      Kind = "pin-relay"
	KindChannelSwitch Kind = "channel-switch"
	KindManual        Kind = "manual"
)

// Adapter routes the shared instrument to one device at a time.
//
// Routing a device implicitly de-routes the previous one. DisconnectAll must
// clear every line no matter what the adapter believes is currently routed.
type Adapter interface {
	Kind() Kind
	RouteToDevice(key string, index int) error
	DisconnectAll() error
}

var (
	// ErrUnmappedDevice is returned when a device key has no entry in the
	// pin map. It is recoverable: the scan skips the device.
	ErrUnmappedDevice = errors.New("mux: device not in pin map")

	// ErrUnknownKind is returned by New for an unrecognized multiplexer
	// type. It is a configuration error.
	ErrUnknownKind = errors.New("mux: unknown multiplexer type")
)

// ChannelRangeError reports a channel outside the switch's supported range.
type ChannelRangeError struct {
	Channel Channel
	Count   int
}

func (e *ChannelRangeError) Error() string {
	return fmt.Sprintf("mux: channel %d outside [1, %d]", e.Channel, e.Count)
}

// ParseKind normalizes a multiplexer type name.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pin-relay", "pinrelay", "relay", "pins":
		return KindPinRelay, nil
	case "channel-switch", "channelswitch", "channel", "switch":
		return KindChannelSwitch, nil
	case "manual", "none":
		return KindManual, nil
	default:
		return "", fmt.Errorf("%w: %q (supported: pin-relay, channel-switch, manual)", ErrUnknownKind, s)
	}
}

// Config carries everything needed to build an adapter. Hardware handles are
// created by the caller and passed in; nil handles select the simulated
// backends.
type Config struct {
	Kind Kind

	// Pin relay
	PinMap *PinMap
	Relay  RelayBackend

	// Channel switch
	Table *TruthTable
	Lines LineWriter

	Logger *zap.Logger
}

// New builds the adapter named by cfg.Kind. Unknown kinds and incomplete
// configurations fail here, never at scan time.
func New(cfg Config) (Adapter, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	switch cfg.Kind {
	case KindPinRelay:
		if cfg.PinMap == nil {
			return nil, fmt.Errorf("mux: pin-relay adapter requires a pin map")
		}
		return NewPinRelayAdapter(cfg.PinMap, cfg.Relay, log), nil
	case KindChannelSwitch:
		if cfg.Table == nil {
			return nil, fmt.Errorf("mux: channel-switch adapter requires a truth table")
		}
		return NewChannelSwitchAdapter(cfg.Table, cfg.Lines, log), nil
	case KindManual:
		return NewManualAdapter(log), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}
