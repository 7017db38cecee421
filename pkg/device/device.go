package device

import (
	"fmt"
	"strings"
)

// Device identifies one device under test on a sample.
type Device struct {
	Key   string // stable key, used for pin maps and persistence
	Index int    // position in the active device list
	Label string // display name
}

// Name returns the label, falling back to the key.
func (d Device) Name() string {
	if d.Label != "" {
		return d.Label
	}
	return d.Key
}

// List is the ordered device list of a sample. It is treated as immutable for
// the lifetime of a session.
type List []Device

// Keys returns the device keys in list order.
func (l List) Keys() []string {
	keys := make([]string, len(l))
	for i, d := range l {
		keys[i] = d.Key
	}
	return keys
}

// Lookup finds a device by key.
func (l List) Lookup(key string) (Device, bool) {
	for _, d := range l {
		if d.Key == key {
			return d, true
		}
	}
	return Device{}, false
}

// Validate checks that keys are non-empty and unique and that indices match
// list positions.
func (l List) Validate() error {
	seen := make(map[string]struct{}, len(l))
	for i, d := range l {
		if strings.TrimSpace(d.Key) == "" {
			return fmt.Errorf("device: entry %d has an empty key", i)
		}
		if _, dup := seen[d.Key]; dup {
			return fmt.Errorf("device: duplicate key %q", d.Key)
		}
		if d.Index != i {
			return fmt.Errorf("device: %q has index %d, want %d", d.Key, d.Index, i)
		}
		seen[d.Key] = struct{}{}
	}
	return nil
}

// FromKeys builds a list from keys, using each key as its label.
func FromKeys(keys ...string) List {
	l := make(List, len(keys))
	for i, k := range keys {
		l[i] = Device{Key: k, Index: i, Label: k}
	}
	return l
}

// Sequence builds n devices named prefix1..prefixN.
func Sequence(prefix string, n int) List {
	l := make(List, 0, n)
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("%s%d", prefix, i+1)
		l = append(l, Device{Key: key, Index: i, Label: key})
	}
	return l
}
