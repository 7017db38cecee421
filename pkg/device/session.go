package device

import "time"

// Session is one quick scan of a sample.
type Session struct {
	ID         string
	Sample     string
	VoltageV   float64
	SettleTime time.Duration
	Timestamp  time.Time
	Devices    List
	Result     Result
}

// OrderedKeys returns the session's device keys in list order followed by any
// result keys not present in the list, sorted.
func (s *Session) OrderedKeys() []string {
	keys := s.Devices.Keys()
	known := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		known[k] = struct{}{}
	}
	for _, k := range s.Result.SortedKeys() {
		if _, ok := known[k]; !ok {
			keys = append(keys, k)
		}
	}
	return keys
}

// Label returns the display label for key.
func (s *Session) Label(key string) string {
	if d, ok := s.Devices.Lookup(key); ok {
		return d.Name()
	}
	return key
}
