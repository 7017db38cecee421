package store

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/OpenTraceLab/OpenTraceScan/pkg/device"
)

func newSession(volts float64, ts time.Time) *device.Session {
	s := &device.Session{
		ID:         NewSessionID(),
		Sample:     "wafer-7",
		VoltageV:   volts,
		SettleTime: 50 * time.Millisecond,
		Timestamp:  ts,
		Devices:    device.List{{Key: "A1", Index: 0, Label: "Row A / 1"}, {Key: "A2", Index: 1, Label: "A2"}, {Key: "B1", Index: 2, Label: "B1"}},
		Result:     device.Result{},
	}
	s.Result.Set("A1", 1.5e-9)
	s.Result.Set("A2", 0)
	s.Result.SetMissing("B1")
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ts := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)
	s := newSession(0.2, ts)

	paths, err := Save(dir, s)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Base(paths.JSON) != "quick_scan_20240305-140709_0.2V.json" {
		t.Fatalf("json name = %s", filepath.Base(paths.JSON))
	}

	got, found, err := Load(dir)
	if err != nil || !found {
		t.Fatalf("Load = %v, %v", found, err)
	}
	if diff := cmp.Diff(s.Result, got.Result); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(s.Devices, got.Devices); diff != "" {
		t.Fatalf("devices mismatch (-want +got):\n%s", diff)
	}
	if got.ID != s.ID || got.Sample != s.Sample || got.VoltageV != 0.2 || !got.Timestamp.Equal(ts) || got.SettleTime != s.SettleTime {
		t.Fatalf("session header mismatch: %+v", got)
	}
	if _, ok := got.Result.Value("B1"); ok || !got.Result.Has("B1") {
		t.Fatalf("null reading not preserved")
	}
	if v, ok := got.Result.Value("A2"); !ok || v != 0 {
		t.Fatalf("zero reading not preserved")
	}
}

func TestSaveWritesCSV(t *testing.T) {
	dir := t.TempDir()
	s := newSession(0.5, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	paths, err := Save(dir, s)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	f, err := os.Open(paths.CSV)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	want := [][]string{
		{"device_key", "device_label", "current_a", "voltage_v", "timestamp"},
		{"A1", "Row A / 1", "1.5e-09", "0.5", "2024-01-02T03:04:05Z"},
		{"A2", "A2", "0", "0.5", "2024-01-02T03:04:05Z"},
		{"B1", "B1", "", "0.5", "2024-01-02T03:04:05Z"},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Fatalf("csv mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadMissing(t *testing.T) {
	s, found, err := Load(filepath.Join(t.TempDir(), "nope"))
	if err != nil || found || s != nil {
		t.Fatalf("Load missing dir = %v, %v, %v", s, found, err)
	}
	s, found, err = Load(t.TempDir())
	if err != nil || found || s != nil {
		t.Fatalf("Load empty dir = %v, %v, %v", s, found, err)
	}
}

func TestLoadCorruptSurfacesPath(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "quick_scan_20240101-000000_1V.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, _, err := Load(dir)
	if err == nil || !strings.Contains(err.Error(), bad) {
		t.Fatalf("error = %v, want mention of %s", err, bad)
	}
}

func TestSaveFailureSurfaces(t *testing.T) {
	file := filepath.Join(t.TempDir(), "occupied")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Save(file, newSession(0.1, time.Now())); err == nil {
		t.Fatalf("expected error saving into a regular file")
	}
}

func TestTwoVoltagesTwoSessions(t *testing.T) {
	dir := t.TempDir()
	t1 := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(90 * time.Second)

	low := newSession(0.2, t1)
	high := newSession(1.0, t2)
	high.Result.Set("B1", 4e-6)

	if _, err := Save(dir, low); err != nil {
		t.Fatalf("Save low: %v", err)
	}
	got, _, err := Load(dir)
	if err != nil || got.VoltageV != 0.2 {
		t.Fatalf("first Load = %+v, %v", got, err)
	}
	if _, err := Save(dir, high); err != nil {
		t.Fatalf("Save high: %v", err)
	}
	got, _, err = Load(dir)
	if err != nil || got.VoltageV != 1.0 {
		t.Fatalf("second Load = %+v, %v", got, err)
	}

	entries, err := List(dir)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	older, err := LoadFile(entries[1].Path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if diff := cmp.Diff(low.Result, older.Result); diff != "" {
		t.Fatalf("first session disturbed (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(high.Result, got.Result); diff != "" {
		t.Fatalf("second session mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadToleratesMissingOptionalFields(t *testing.T) {
	dir := t.TempDir()
	doc := `{"sample":"s","voltage_v":0.3,"timestamp":"2024-02-02T08:00:00+01:00","device_count":2,
"results":[{"device_key":"x","device_label":"X","current_a":null},{"device_key":"y","device_label":"","current_a":2e-8}]}`
	path := filepath.Join(dir, "quick_scan_20240202-080000_0.3V.json")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if s.ID != "" || s.SettleTime != 0 {
		t.Fatalf("unexpected optional values: %+v", s)
	}
	if s.Devices[1].Label != "y" {
		t.Fatalf("empty label not defaulted: %+v", s.Devices[1])
	}
	if !s.Result.Has("x") || s.Result.Measured() != 1 {
		t.Fatalf("results = %v", s.Result)
	}
}

func TestRoundTripKeepsUnreachedDevicesAbsent(t *testing.T) {
	dir := t.TempDir()
	s := newSession(0.4, time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	s.Devices = append(s.Devices, device.Device{Key: "B2", Index: 3, Label: "B2"})

	if _, err := Save(dir, s); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, found, err := Load(dir)
	if err != nil || !found {
		t.Fatalf("Load = %v, %v", found, err)
	}
	if got.Result.Has("B2") {
		t.Fatalf("unreached device loaded as attempted: %v", got.Result)
	}
	if !got.Result.Has("B1") {
		t.Fatalf("null reading lost")
	}
	if len(got.Devices) != 4 || got.Devices[3].Key != "B2" {
		t.Fatalf("devices = %+v", got.Devices)
	}
	if diff := cmp.Diff(s.Result, got.Result); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveWritesNonFiniteAsNull(t *testing.T) {
	dir := t.TempDir()
	s := newSession(0.2, time.Date(2024, 6, 2, 9, 0, 0, 0, time.UTC))
	s.Result.Set("A2", math.NaN())
	s.Result.Set("B1", math.Inf(1))

	paths, err := Save(dir, s)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := LoadFile(paths.JSON)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	for _, key := range []string{"A2", "B1"} {
		if _, ok := got.Result.Value(key); ok || !got.Result.Has(key) {
			t.Fatalf("%s not loaded as null: %v", key, got.Result)
		}
	}
	if v, ok := got.Result.Value("A1"); !ok || v != 1.5e-9 {
		t.Fatalf("A1 = %v, %v", v, ok)
	}
	data, err := os.ReadFile(paths.CSV)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if strings.Contains(string(data), "NaN") || strings.Contains(string(data), "Inf") {
		t.Fatalf("csv carries non-finite value:\n%s", data)
	}
}
