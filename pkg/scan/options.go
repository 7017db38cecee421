package scan

import (
	"fmt"
	"math"
	"time"

	"github.com/OpenTraceLab/OpenTraceScan/pkg/device"
)

// Options controls one scan run.
type Options struct {
	VoltageV   float64       // drive voltage (V)
	SettleTime time.Duration // wait between routing and measuring

	// Baseline seeds the in-progress result. Devices the run does not reach
	// keep their baseline entry.
	Baseline device.Result
}

// DefaultOptions returns the bench defaults.
func DefaultOptions() Options {
	return Options{
		VoltageV:   0.1,
		SettleTime: 50 * time.Millisecond,
	}
}

// Validate checks the options.
func (o Options) Validate() error {
	if math.IsNaN(o.VoltageV) || math.IsInf(o.VoltageV, 0) {
		return fmt.Errorf("scan: invalid voltage %v", o.VoltageV)
	}
	if o.SettleTime < 0 {
		return fmt.Errorf("scan: negative settle time %s", o.SettleTime)
	}
	return nil
}
