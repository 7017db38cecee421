package instrument

import (
	"fmt"
	"sync"
)

// Call is one recorded gateway invocation.
type Call struct {
	Op    string // "voltage", "output", "measure", "focus"
	Volts float64
	On    bool
	Key   string
}

func (c Call) String() string {
	switch c.Op {
	case "voltage":
		return fmt.Sprintf("voltage(%g)", c.Volts)
	case "output":
		return fmt.Sprintf("output(%t)", c.On)
	case "focus":
		return fmt.Sprintf("focus(%s)", c.Key)
	default:
		return c.Op
	}
}

// Recorder wraps a gateway and records every call made through it.
type Recorder struct {
	inner Gateway

	mu    sync.Mutex
	calls []Call
}

// NewRecorder wraps inner.
func NewRecorder(inner Gateway) *Recorder {
	return &Recorder{inner: inner}
}

func (r *Recorder) record(c Call) {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	r.mu.Unlock()
}

func (r *Recorder) SetVoltage(volts float64) error {
	r.record(Call{Op: "voltage", Volts: volts})
	return r.inner.SetVoltage(volts)
}

func (r *Recorder) EnableOutput(on bool) error {
	r.record(Call{Op: "output", On: on})
	return r.inner.EnableOutput(on)
}

func (r *Recorder) MeasureCurrent() (float64, error) {
	r.record(Call{Op: "measure"})
	return r.inner.MeasureCurrent()
}

// Focus records the call and forwards it when the wrapped gateway cares.
func (r *Recorder) Focus(key string) {
	r.record(Call{Op: "focus", Key: key})
	if f, ok := r.inner.(DeviceFocuser); ok {
		f.Focus(key)
	}
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}
