// Package classify turns quick scan readings into pass/fail classifications
// and keeps the per-device status book, in which an operator's manual
// verdict always outranks the automatic one.
package classify

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
)

// Classification is the automatic verdict for a device.
type Classification string

const (
	Working    Classification = "working"
	NotWorking Classification = "not-working"
	Unknown    Classification = "unknown"
)

// ManualStatus is the operator's verdict for a device.
type ManualStatus string

const (
	ManualWorking   ManualStatus = "working"
	ManualBroken    ManualStatus = "broken"
	ManualUndefined ManualStatus = "undefined"
)

// ParseManualStatus accepts the three manual status names.
func ParseManualStatus(s string) (ManualStatus, error) {
	switch ManualStatus(strings.ToLower(strings.TrimSpace(s))) {
	case ManualWorking:
		return ManualWorking, nil
	case ManualBroken:
		return ManualBroken, nil
	case ManualUndefined, "":
		return ManualUndefined, nil
	default:
		return "", fmt.Errorf("classify: unknown manual status %q (working, broken, undefined)", s)
	}
}

// DefaultThreshold is the working/not-working boundary in amps.
const DefaultThreshold = 1e-7

// ErrInvalidThreshold is returned for a threshold that is not a finite
// positive number.
var ErrInvalidThreshold = errors.New("classify: threshold must be a finite positive number")

// Classify returns Working when current reaches threshold.
func Classify(current, threshold float64) Classification {
	if current >= threshold {
		return Working
	}
	return NotWorking
}

// ValidThreshold reports whether v can be used as a threshold.
func ValidThreshold(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

// ParseThreshold parses operator input such as "1e-7".
func ParseThreshold(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidThreshold, s)
	}
	if !ValidThreshold(v) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidThreshold, s)
	}
	return v, nil
}

// Threshold holds the active threshold. An invalid Set leaves the previous
// value in place.
type Threshold struct {
	mu    sync.RWMutex
	value float64
}

// NewThreshold returns a holder starting at v, or DefaultThreshold when v is
// invalid.
func NewThreshold(v float64) *Threshold {
	if !ValidThreshold(v) {
		v = DefaultThreshold
	}
	return &Threshold{value: v}
}

// Value returns the current threshold.
func (t *Threshold) Value() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.value
}

// Set replaces the threshold if v is valid.
func (t *Threshold) Set(v float64) error {
	if !ValidThreshold(v) {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, v)
	}
	t.mu.Lock()
	t.value = v
	t.mu.Unlock()
	return nil
}

// SetString parses s and sets it.
func (t *Threshold) SetString(s string) error {
	v, err := ParseThreshold(s)
	if err != nil {
		return err
	}
	return t.Set(v)
}
