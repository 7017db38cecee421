package device

import "sort"

// Result maps a device key to its measured current in amperes.
//
// A key present with a nil value means the device was attempted but produced
// no reading. An absent key means the device was never measured. Zero is a
// legitimate reading.
type Result map[string]*float64

// Set records a reading.
func (r Result) Set(key string, amps float64) {
	v := amps
	r[key] = &v
}

// SetMissing records that key produced no reading.
func (r Result) SetMissing(key string) {
	r[key] = nil
}

// Value returns the reading for key and whether one exists.
func (r Result) Value(key string) (float64, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return 0, false
	}
	return *v, true
}

// Has reports whether key has an entry, null or not.
func (r Result) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// Measured counts entries holding a reading.
func (r Result) Measured() int {
	n := 0
	for _, v := range r {
		if v != nil {
			n++
		}
	}
	return n
}

// Clone returns a deep copy. Clones never share value pointers with r.
func (r Result) Clone() Result {
	out := make(Result, len(r))
	for k, v := range r {
		if v == nil {
			out[k] = nil
			continue
		}
		out.Set(k, *v)
	}
	return out
}

// SortedKeys returns the keys in lexical order.
func (r Result) SortedKeys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
