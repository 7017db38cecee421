package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/OpenTraceLab/OpenTraceScan/pkg/device"
)

// BookFile is the status document name inside a sample directory.
const BookFile = "device_status.json"

// HistoryEntry is one classification event.
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	CurrentA  *float64  `json:"current_a"`
	VoltageV  *float64  `json:"voltage_v"`
}

// Status is the durable record of one device.
type Status struct {
	AutoClassification Classification `json:"auto_classification"`
	ManualStatus       ManualStatus   `json:"manual_status"`
	LastCurrentA       *float64       `json:"last_current_a"`
	TestVoltageV       *float64       `json:"test_voltage_v"`
	LastTested         time.Time      `json:"last_tested"`
	Notes              string         `json:"notes"`
	MeasurementCount   int            `json:"measurement_count"`
	History            []HistoryEntry `json:"history"`
}

// Effective resolves the manual verdict over the automatic one.
func (s *Status) Effective() Classification {
	switch s.ManualStatus {
	case ManualWorking:
		return Working
	case ManualBroken:
		return NotWorking
	}
	if s.AutoClassification == "" {
		return Unknown
	}
	return s.AutoClassification
}

func (s *Status) clone() Status {
	c := *s
	c.LastCurrentA = copyFloat(s.LastCurrentA)
	c.TestVoltageV = copyFloat(s.TestVoltageV)
	c.History = make([]HistoryEntry, len(s.History))
	for i, h := range s.History {
		c.History[i] = HistoryEntry{Timestamp: h.Timestamp, CurrentA: copyFloat(h.CurrentA), VoltageV: copyFloat(h.VoltageV)}
	}
	return c
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Report summarizes one ApplyToUndefined call.
type Report struct {
	Classified map[string]Classification
	Manual     []string // measured but held by a manual status
	NoReading  []string // null readings, left unchanged
}

// Book is the status document of a sample. Entries are created on the first
// classification event and never removed.
type Book struct {
	mu      sync.RWMutex
	devices map[string]*Status

	// Now stamps events. Tests replace it.
	Now func() time.Time
}

// NewBook returns an empty book.
func NewBook() *Book {
	return &Book{devices: make(map[string]*Status), Now: time.Now}
}

func (b *Book) entry(key string) *Status {
	s, ok := b.devices[key]
	if !ok {
		s = &Status{AutoClassification: Unknown, ManualStatus: ManualUndefined}
		b.devices[key] = s
	}
	return s
}

// ApplyToUndefined classifies every device in result that has a reading and
// whose manual status is undefined. Devices with a manual verdict are left
// untouched.
func (b *Book) ApplyToUndefined(result device.Result, voltage, threshold float64) (Report, error) {
	if !ValidThreshold(threshold) {
		return Report{}, fmt.Errorf("%w: %v", ErrInvalidThreshold, threshold)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	rep := Report{Classified: make(map[string]Classification)}
	now := b.Now()
	for _, key := range result.SortedKeys() {
		amps, ok := result.Value(key)
		if !ok {
			rep.NoReading = append(rep.NoReading, key)
			continue
		}
		if s, exists := b.devices[key]; exists && s.ManualStatus != ManualUndefined && s.ManualStatus != "" {
			rep.Manual = append(rep.Manual, key)
			continue
		}
		s := b.entry(key)
		s.AutoClassification = Classify(amps, threshold)
		s.LastCurrentA = copyFloat(&amps)
		s.TestVoltageV = copyFloat(&voltage)
		s.LastTested = now
		s.MeasurementCount++
		s.History = append(s.History, HistoryEntry{Timestamp: now, CurrentA: copyFloat(&amps), VoltageV: copyFloat(&voltage)})
		rep.Classified[key] = s.AutoClassification
	}
	return rep, nil
}

// MarkManual records an operator verdict. It always takes effect and is
// appended to the device history with the last known reading.
func (b *Book) MarkManual(key string, status ManualStatus) error {
	status, err := ParseManualStatus(string(status))
	if err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("classify: empty device key")
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.Now()
	s := b.entry(key)
	s.ManualStatus = status
	s.LastTested = now
	s.History = append(s.History, HistoryEntry{
		Timestamp: now,
		CurrentA:  copyFloat(s.LastCurrentA),
		VoltageV:  copyFloat(s.TestVoltageV),
	})
	return nil
}

// SetNotes replaces the free-text notes of key.
func (b *Book) SetNotes(key, notes string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entry(key).Notes = notes
}

// Effective returns the resolved classification of key; Unknown for devices
// never classified.
func (b *Book) Effective(key string) Classification {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.devices[key]
	if !ok {
		return Unknown
	}
	return s.Effective()
}

// Status returns a copy of the record for key.
func (b *Book) Status(key string) (Status, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.devices[key]
	if !ok {
		return Status{}, false
	}
	return s.clone(), true
}

// Keys returns every recorded device key, sorted.
func (b *Book) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, 0, len(b.devices))
	for k := range b.devices {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Counts tallies effective classifications.
func (b *Book) Counts() map[Classification]int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[Classification]int)
	for _, s := range b.devices {
		out[s.Effective()]++
	}
	return out
}

// LoadBook reads a status document. A missing file yields an empty book.
func LoadBook(path string) (*Book, error) {
	b := NewBook()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return b, nil
	}
	if err != nil {
		return nil, fmt.Errorf("classify: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &b.devices); err != nil {
		return nil, fmt.Errorf("classify: decode %s: %w", path, err)
	}
	if b.devices == nil {
		b.devices = make(map[string]*Status)
	}
	for key, s := range b.devices {
		if s == nil {
			delete(b.devices, key)
			continue
		}
		if s.ManualStatus == "" {
			s.ManualStatus = ManualUndefined
		}
		if s.AutoClassification == "" {
			s.AutoClassification = Unknown
		}
	}
	return b, nil
}

// Save writes the book to path through a temporary file.
func (b *Book) Save(path string) error {
	b.mu.RLock()
	data, err := json.MarshalIndent(b.devices, "", "  ")
	b.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("classify: encode %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("classify: write %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("classify: write %s: %w", path, err)
	}
	tmpName := tmp.Name()
	_, err = tmp.Write(append(data, '\n'))
	if err == nil {
		err = tmp.Chmod(0o644)
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmpName, path)
	}
	if err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("classify: write %s: %w", path, err)
	}
	return nil
}
