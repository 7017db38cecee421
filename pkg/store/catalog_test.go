package store

import (
	"path/filepath"
	"testing"
	"time"
)

func TestCatalogRecordAndList(t *testing.T) {
	dir := t.TempDir()
	cat, err := OpenCatalog(filepath.Join(dir, CatalogFile))
	if err != nil {
		t.Fatalf("OpenCatalog: %v", err)
	}
	defer cat.Close()

	t0 := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	a := newSession(0.2, t0)
	b := newSession(0.4, t0.Add(time.Minute))
	other := newSession(0.2, t0.Add(2*time.Minute))
	other.Sample = "wafer-8"

	sampleDir := filepath.Join(dir, "wafer-7")
	pa, err := Save(sampleDir, a)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	pb, err := Save(sampleDir, b)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	po, err := Save(filepath.Join(dir, "wafer-8"), other)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := cat.Record(a, pa); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := cat.Record(b, pb); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := cat.Record(other, po); err != nil {
		t.Fatalf("Record: %v", err)
	}
	// Recording again replaces the row.
	if err := cat.Record(b, pb); err != nil {
		t.Fatalf("Record again: %v", err)
	}

	got, err := cat.Sessions("wafer-7")
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(got) != 2 || got[0].ID != b.ID || got[1].ID != a.ID {
		t.Fatalf("sessions = %+v", got)
	}
	if got[0].Measured != 2 || got[0].Devices != 3 || got[0].Path != pb.JSON {
		t.Fatalf("entry = %+v", got[0])
	}
	if !got[1].Timestamp.Equal(t0) {
		t.Fatalf("timestamp = %v, want %v", got[1].Timestamp, t0)
	}

	all, err := cat.Sessions("")
	if err != nil || len(all) != 3 {
		t.Fatalf("all sessions = %d, %v", len(all), err)
	}
}

func TestCatalogReindex(t *testing.T) {
	dir := t.TempDir()
	sampleDir := filepath.Join(dir, "wafer-7")
	s := newSession(0.2, time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
	s.ID = ""
	if _, err := Save(sampleDir, s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	cat, err := OpenCatalog(filepath.Join(dir, CatalogFile))
	if err != nil {
		t.Fatalf("OpenCatalog: %v", err)
	}
	defer cat.Close()

	n, err := cat.Reindex(sampleDir, filepath.Join(dir, "missing"))
	if err != nil || n != 1 {
		t.Fatalf("Reindex = %d, %v", n, err)
	}
	// Reindexing twice is idempotent for sessions without an ID.
	if _, err := cat.Reindex(sampleDir); err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	got, err := cat.Sessions("wafer-7")
	if err != nil || len(got) != 1 || got[0].ID == "" {
		t.Fatalf("sessions = %+v, %v", got, err)
	}
}
