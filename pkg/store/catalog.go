package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/OpenTraceLab/OpenTraceScan/pkg/device"
)

// CatalogFile is the default catalog name inside the data directory.
const CatalogFile = "sessions.db"

// NewSessionID returns a fresh session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// Catalog indexes every saved session across samples in a SQLite database.
// The JSON documents stay the source of truth; the catalog can be rebuilt
// from them with Reindex.
type Catalog struct {
	db   *sqlx.DB
	mu   sync.Mutex
	path string
}

type catalogRow struct {
	ID          string  `db:"id"`
	Sample      string  `db:"sample"`
	VoltageV    float64 `db:"voltage_v"`
	TimestampNS int64   `db:"timestamp_ns"`
	JSONPath    string  `db:"json_path"`
	Devices     int     `db:"devices"`
	Measured    int     `db:"measured"`
}

// OpenCatalog opens or creates the catalog at path.
func OpenCatalog(path string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: create catalog directory: %w", err)
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open catalog %s: %w", path, err)
	}
	c := &Catalog{db: db, path: path}
	if err := c.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Catalog) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		sample TEXT NOT NULL,
		voltage_v REAL NOT NULL,
		timestamp_ns INTEGER NOT NULL,
		json_path TEXT NOT NULL UNIQUE,
		devices INTEGER NOT NULL,
		measured INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_sample ON sessions(sample, timestamp_ns);`
	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("store: create catalog schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Record adds or replaces the catalog row for s. Sessions without an ID get
// one derived from their JSON path.
func (c *Catalog) Record(s *device.Session, paths Paths) error {
	id := s.ID
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceURL, []byte(paths.JSON)).String()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	devices := len(s.Devices)
	if devices == 0 {
		devices = len(s.Result)
	}
	_, err := c.db.NamedExec(`
		INSERT OR REPLACE INTO sessions (id, sample, voltage_v, timestamp_ns, json_path, devices, measured)
		VALUES (:id, :sample, :voltage_v, :timestamp_ns, :json_path, :devices, :measured)`,
		catalogRow{
			ID:          id,
			Sample:      s.Sample,
			VoltageV:    s.VoltageV,
			TimestampNS: s.Timestamp.UnixNano(),
			JSONPath:    paths.JSON,
			Devices:     devices,
			Measured:    s.Result.Measured(),
		})
	if err != nil {
		return fmt.Errorf("store: record session %s: %w", id, err)
	}
	return nil
}

// Sessions lists catalogued sessions, newest first. An empty sample lists
// every sample.
func (c *Catalog) Sessions(sample string) ([]Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	query := `SELECT id, sample, voltage_v, timestamp_ns, json_path, devices, measured FROM sessions`
	var args []any
	if sample != "" {
		query += ` WHERE sample = ?`
		args = append(args, sample)
	}
	query += ` ORDER BY timestamp_ns DESC, json_path DESC`

	var rows []catalogRow
	if err := c.db.Select(&rows, query, args...); err != nil {
		return nil, fmt.Errorf("store: query catalog: %w", err)
	}
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, Entry{
			Path:      r.JSONPath,
			ID:        r.ID,
			Sample:    r.Sample,
			VoltageV:  r.VoltageV,
			Timestamp: time.Unix(0, r.TimestampNS),
			Devices:   r.Devices,
			Measured:  r.Measured,
		})
	}
	return out, nil
}

// Reindex records every session found in dirs.
func (c *Catalog) Reindex(dirs ...string) (int, error) {
	n := 0
	for _, dir := range dirs {
		entries, err := List(dir)
		if err != nil {
			return n, err
		}
		for _, e := range entries {
			s, err := LoadFile(e.Path)
			if err != nil {
				return n, err
			}
			stem := e.Path[:len(e.Path)-len(filepath.Ext(e.Path))]
			if err := c.Record(s, Paths{JSON: e.Path, CSV: stem + ".csv"}); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}
