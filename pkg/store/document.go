package store

import (
	"fmt"
	"math"
	"time"

	"github.com/OpenTraceLab/OpenTraceScan/pkg/device"
)

// document is the canonical quick_scan JSON file.
type document struct {
	SessionID   string     `json:"session_id,omitempty"`
	Sample      string     `json:"sample"`
	VoltageV    float64    `json:"voltage_v"`
	SettleTimeS *float64   `json:"settle_time_s,omitempty"`
	Timestamp   string     `json:"timestamp"`
	DeviceCount int        `json:"device_count"`
	Results     []docEntry `json:"results"`
}

type docEntry struct {
	DeviceKey   string   `json:"device_key"`
	DeviceLabel string   `json:"device_label"`
	CurrentA    *float64 `json:"current_a"`
	// Skipped marks a device the run never reached. Such entries load with
	// no result key, unlike a null current_a alone, which loads as an
	// attempted reading.
	Skipped bool `json:"skipped,omitempty"`
}

func toDocument(s *device.Session) document {
	doc := document{
		SessionID: s.ID,
		Sample:    s.Sample,
		VoltageV:  s.VoltageV,
		Timestamp: s.Timestamp.Format(time.RFC3339Nano),
	}
	if s.SettleTime > 0 {
		secs := s.SettleTime.Seconds()
		doc.SettleTimeS = &secs
	}
	for _, key := range s.OrderedKeys() {
		e := docEntry{DeviceKey: key, DeviceLabel: s.Label(key)}
		if !s.Result.Has(key) {
			e.Skipped = true
		} else if v, ok := s.Result.Value(key); ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
			e.CurrentA = &v
		}
		doc.Results = append(doc.Results, e)
	}
	doc.DeviceCount = len(doc.Results)
	return doc
}

func (d document) session() (*device.Session, error) {
	ts, err := time.Parse(time.RFC3339Nano, d.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("bad timestamp %q: %w", d.Timestamp, err)
	}
	s := &device.Session{
		ID:        d.SessionID,
		Sample:    d.Sample,
		VoltageV:  d.VoltageV,
		Timestamp: ts,
		Devices:   make(device.List, 0, len(d.Results)),
		Result:    make(device.Result, len(d.Results)),
	}
	if d.SettleTimeS != nil {
		s.SettleTime = time.Duration(math.Round(*d.SettleTimeS * float64(time.Second)))
	}
	for i, e := range d.Results {
		if e.DeviceKey == "" {
			return nil, fmt.Errorf("result %d has no device key", i)
		}
		label := e.DeviceLabel
		if label == "" {
			label = e.DeviceKey
		}
		s.Devices = append(s.Devices, device.Device{Key: e.DeviceKey, Index: i, Label: label})
		switch {
		case e.Skipped && e.CurrentA == nil:
		case e.CurrentA == nil:
			s.Result.SetMissing(e.DeviceKey)
		default:
			s.Result.Set(e.DeviceKey, *e.CurrentA)
		}
	}
	return s, nil
}
