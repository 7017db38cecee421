// Package store persists quick scan sessions as a canonical JSON document
// plus a derived CSV table, one pair of files per session.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/OpenTraceLab/OpenTraceScan/pkg/device"
)

const (
	filePrefix      = "quick_scan_"
	timestampLayout = "20060102-150405"
)

// Paths are the files written for one session.
type Paths struct {
	JSON string
	CSV  string
}

// Entry describes a stored session without its readings.
type Entry struct {
	Path      string
	ID        string
	Sample    string
	VoltageV  float64
	Timestamp time.Time
	Devices   int
	Measured  int
}

// FileStem returns the base name shared by a session's files.
func FileStem(s *device.Session) string {
	return fmt.Sprintf("%s%s_%sV", filePrefix,
		s.Timestamp.Format(timestampLayout),
		strconv.FormatFloat(s.VoltageV, 'g', -1, 64))
}

// Save writes s to dir, creating dir if needed. Each file is written to a
// temporary name and renamed into place.
func Save(dir string, s *device.Session) (Paths, error) {
	if s == nil {
		return Paths{}, fmt.Errorf("store: nil session")
	}
	if s.Timestamp.IsZero() {
		return Paths{}, fmt.Errorf("store: session has no timestamp")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("store: create %s: %w", dir, err)
	}

	stem := filepath.Join(dir, FileStem(s))
	paths := Paths{JSON: stem + ".json", CSV: stem + ".csv"}

	data, err := json.MarshalIndent(toDocument(s), "", "  ")
	if err != nil {
		return Paths{}, fmt.Errorf("store: encode %s: %w", paths.JSON, err)
	}
	if err := writeAtomic(paths.JSON, append(data, '\n')); err != nil {
		return Paths{}, err
	}

	var buf bytes.Buffer
	if err := writeCSV(&buf, s); err != nil {
		return Paths{}, fmt.Errorf("store: encode %s: %w", paths.CSV, err)
	}
	if err := writeAtomic(paths.CSV, buf.Bytes()); err != nil {
		return Paths{}, err
	}
	return paths, nil
}

// Load returns the newest session in dir. A missing directory or a directory
// without sessions is reported as found=false with a nil error.
func Load(dir string) (*device.Session, bool, error) {
	entries, err := List(dir)
	if err != nil {
		return nil, false, err
	}
	if len(entries) == 0 {
		return nil, false, nil
	}
	s, err := LoadFile(entries[0].Path)
	if err != nil {
		return nil, false, err
	}
	return s, true, nil
}

// LoadFile reads one session document.
func LoadFile(path string) (*device.Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("store: decode %s: %w", path, err)
	}
	s, err := doc.session()
	if err != nil {
		return nil, fmt.Errorf("store: %s: %w", path, err)
	}
	return s, nil
}

// List returns the sessions stored in dir, newest first. Files that fail to
// decode are reported as an error.
func List(dir string) ([]Entry, error) {
	names, err := filepath.Glob(filepath.Join(dir, filePrefix+"*.json"))
	if err != nil {
		return nil, fmt.Errorf("store: list %s: %w", dir, err)
	}
	if len(names) == 0 {
		if _, statErr := os.Stat(dir); statErr != nil && !errors.Is(statErr, fs.ErrNotExist) {
			return nil, fmt.Errorf("store: list %s: %w", dir, statErr)
		}
		return nil, nil
	}

	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		s, err := LoadFile(name)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{
			Path:      name,
			ID:        s.ID,
			Sample:    s.Sample,
			VoltageV:  s.VoltageV,
			Timestamp: s.Timestamp,
			Devices:   len(s.Result),
			Measured:  s.Result.Measured(),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.After(entries[j].Timestamp)
		}
		return entries[i].Path > entries[j].Path
	})
	return entries, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+"-*.tmp")
	if err != nil {
		return fmt.Errorf("store: write %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("store: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: write %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: write %s: %w", path, err)
	}
	return nil
}
