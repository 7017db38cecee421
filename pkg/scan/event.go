package scan

import "github.com/OpenTraceLab/OpenTraceScan/pkg/device"

// State is the scanner lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// EventKind classifies scan events.
type EventKind int

const (
	EventReading  EventKind = iota // a device was measured (Value may be nil)
	EventSkipped                   // routing failed, device not measured
	EventFinished                  // the run ended; last event on the channel
)

// Event is an immutable snapshot sent from the worker.
type Event struct {
	Kind   EventKind
	Device device.Device
	Value  *float64 // reading; nil when the measurement failed
	Err    error    // routing or measurement error, if any
	Index  int      // position of Device in the run
	Total  int      // devices in the run

	// Set on EventFinished only.
	State  State
	Result device.Result
}

// Current returns the reading and whether one exists.
func (e Event) Current() (float64, bool) {
	if e.Value == nil {
		return 0, false
	}
	return *e.Value, true
}
