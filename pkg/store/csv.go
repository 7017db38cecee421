package store

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/OpenTraceLab/OpenTraceScan/pkg/device"
)

var csvHeader = []string{"device_key", "device_label", "current_a", "voltage_v", "timestamp"}

// writeCSV writes the tabular view of s. Null and non-finite readings are
// empty fields.
func writeCSV(w io.Writer, s *device.Session) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	volts := strconv.FormatFloat(s.VoltageV, 'g', -1, 64)
	ts := s.Timestamp.Format(time.RFC3339Nano)
	for _, key := range s.OrderedKeys() {
		current := ""
		if v, ok := s.Result.Value(key); ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
			current = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write([]string{key, s.Label(key), current, volts, ts}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
