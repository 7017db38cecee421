// Package instrument defines the source/measure contract the scanner drives
// and provides a deterministic simulator and an SCPI source-meter gateway.
package instrument

// Gateway is a voltage source with a current reader.
type Gateway interface {
	SetVoltage(volts float64) error
	MeasureCurrent() (float64, error)
	EnableOutput(on bool) error
}

// DeviceFocuser is implemented by gateways that want to know which device is
// routed before a measurement. The scanner calls Focus after every successful
// route.
type DeviceFocuser interface {
	Focus(key string)
}

// Closer is implemented by gateways holding an open port.
type Closer interface {
	Close() error
}
