// Package config loads the quick scan bench configuration from YAML with
// QUICKSCAN_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/OpenTraceLab/OpenTraceScan/pkg/classify"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/device"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/heatmap"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/instrument"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/mux"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "quickscan.yaml"

// Config is the bench configuration.
type Config struct {
	DataDir    string                  `yaml:"data_dir"`
	Sample     string                  `yaml:"sample"`
	Logging    LoggingConfig           `yaml:"logging"`
	Scan       ScanConfig              `yaml:"scan"`
	Heatmap    HeatmapConfig           `yaml:"heatmap"`
	Mux        MuxConfig               `yaml:"mux"`
	Instrument InstrumentConfig        `yaml:"instrument"`
	Samples    map[string]SampleConfig `yaml:"samples"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	JSON  bool   `yaml:"json"`
	File  string `yaml:"file"` // additional output path
}

// ScanConfig holds scan defaults.
type ScanConfig struct {
	VoltageV   float64 `yaml:"voltage_v"`
	SettleTime string  `yaml:"settle_time"` // Go duration, e.g. "50ms"
	Threshold  float64 `yaml:"threshold_a"`
}

// HeatmapConfig is the colour scale.
type HeatmapConfig struct {
	MinA    float64 `yaml:"min_a"`
	MaxA    float64 `yaml:"max_a"`
	Columns int     `yaml:"columns"` // 0 picks a near-square grid
}

// MuxConfig selects the multiplexer.
type MuxConfig struct {
	Type string `yaml:"type"` // pin-relay, channel-switch, manual

	// pin-relay
	PinMap    string `yaml:"pin_map"`
	RelayPort string `yaml:"relay_port"` // empty: logging simulation
	RelayBaud int    `yaml:"relay_baud"`

	// channel-switch
	Channels  int    `yaml:"channels"`
	USBLines  bool   `yaml:"usb_lines"` // false: simulated lines
	VendorID  uint16 `yaml:"vendor_id"`
	ProductID uint16 `yaml:"product_id"`
}

// InstrumentConfig selects the source-meter.
type InstrumentConfig struct {
	Type        string          `yaml:"type"` // simulator, scpi
	Port        string          `yaml:"port"`
	Baud        int             `yaml:"baud"`
	ComplianceA float64         `yaml:"compliance_a"`
	Reset       bool            `yaml:"reset"`
	Simulator   SimulatorConfig `yaml:"simulator"`
}

// SimulatorConfig shapes the simulated readings.
type SimulatorConfig struct {
	FloorA      float64 `yaml:"floor_a"`
	MinA        float64 `yaml:"min_a"`
	MaxA        float64 `yaml:"max_a"`
	FailureRate float64 `yaml:"failure_rate"`
}

// SampleConfig describes the device array of one sample. A pin map takes
// precedence over explicit keys, which take precedence over a count.
type SampleConfig struct {
	PinMap string   `yaml:"pin_map"`
	Keys   []string `yaml:"keys"`
	Count  int      `yaml:"count"`
	Prefix string   `yaml:"prefix"`
}

const (
	InstrumentSimulator = "simulator"
	InstrumentSCPI      = "scpi"
)

// Default returns the built-in configuration: manual routing, simulated
// instrument.
func Default() *Config {
	sim := instrument.DefaultSimParams()
	return &Config{
		DataDir: "data",
		Logging: LoggingConfig{Level: "info"},
		Scan: ScanConfig{
			VoltageV:   0.1,
			SettleTime: "50ms",
			Threshold:  classify.DefaultThreshold,
		},
		Heatmap: HeatmapConfig{MinA: heatmap.DefaultRange.Min, MaxA: heatmap.DefaultRange.Max},
		Mux: MuxConfig{
			Type:      string(mux.KindManual),
			RelayBaud: mux.DefaultRelayBaud,
			Channels:  16,
			VendorID:  mux.DefaultLinesVendorID,
			ProductID: mux.DefaultLinesProductID,
		},
		Instrument: InstrumentConfig{
			Type:        InstrumentSimulator,
			Baud:        instrument.DefaultSCPIBaud,
			ComplianceA: instrument.DefaultComplianceAmps,
			Simulator: SimulatorConfig{
				FloorA:      sim.Floor,
				MinA:        sim.Min,
				MaxA:        sim.Max,
				FailureRate: sim.FailureRate,
			},
		},
		Samples: map[string]SampleConfig{},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.resolvePaths(filepath.Dir(path))
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// resolvePaths expands ~ and makes relative file references relative to
// the config file.
func (c *Config) resolvePaths(base string) {
	rel := func(p string) string {
		if p == "" {
			return p
		}
		if expanded, err := homedir.Expand(p); err == nil {
			p = expanded
		}
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.DataDir = rel(c.DataDir)
	c.Mux.PinMap = rel(c.Mux.PinMap)
	for name, s := range c.Samples {
		s.PinMap = rel(s.PinMap)
		c.Samples[name] = s
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("QUICKSCAN_DATA_DIR"); v != "" {
		if expanded, err := homedir.Expand(v); err == nil {
			v = expanded
		}
		c.DataDir = v
	}
	if v := os.Getenv("QUICKSCAN_SAMPLE"); v != "" {
		c.Sample = v
	}
	if v := os.Getenv("QUICKSCAN_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("QUICKSCAN_MUX_TYPE"); v != "" {
		c.Mux.Type = v
	}
	if v := os.Getenv("QUICKSCAN_RELAY_PORT"); v != "" {
		c.Mux.RelayPort = v
	}
	if v := os.Getenv("QUICKSCAN_INSTRUMENT_PORT"); v != "" {
		c.Instrument.Port = v
		if c.Instrument.Type == "" || c.Instrument.Type == InstrumentSimulator {
			c.Instrument.Type = InstrumentSCPI
		}
	}
	if v := os.Getenv("QUICKSCAN_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Scan.Threshold = f
		}
	}
}

// SettleDuration returns the parsed settle time, 50ms when unparseable.
func (c *Config) SettleDuration() time.Duration {
	d, err := time.ParseDuration(c.Scan.SettleTime)
	if err != nil {
		return 50 * time.Millisecond
	}
	return d
}

// MuxKind returns the parsed multiplexer type.
func (c *Config) MuxKind() (mux.Kind, error) {
	return mux.ParseKind(c.Mux.Type)
}

// HeatmapRange returns the colour scale.
func (c *Config) HeatmapRange() heatmap.Range {
	return heatmap.Range{Min: c.Heatmap.MinA, Max: c.Heatmap.MaxA}
}

// SimParams returns the simulator distribution.
func (c *Config) SimParams() instrument.SimParams {
	s := c.Instrument.Simulator
	return instrument.SimParams{Floor: s.FloorA, Min: s.MinA, Max: s.MaxA, FailureRate: s.FailureRate}
}

// SampleDir returns the data directory of sample.
func (c *Config) SampleDir(sample string) string {
	return filepath.Join(c.DataDir, sample)
}

// CatalogPath returns the session catalog path.
func (c *Config) CatalogPath() string {
	return filepath.Join(c.DataDir, "sessions.db")
}

// SampleNames returns the configured sample names, sorted.
func (c *Config) SampleNames() []string {
	names := make([]string, 0, len(c.Samples))
	for n := range c.Samples {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Devices resolves the device list of sample.
func (c *Config) Devices(sample string) (device.List, error) {
	s, ok := c.Samples[sample]
	if !ok {
		if c.Mux.PinMap != "" {
			s = SampleConfig{PinMap: c.Mux.PinMap}
		} else {
			return nil, fmt.Errorf("config: unknown sample %q", sample)
		}
	}
	switch {
	case s.PinMap != "":
		m, err := mux.LoadPinMap(s.PinMap)
		if err != nil {
			return nil, err
		}
		return m.Devices(), nil
	case len(s.Keys) > 0:
		l := device.FromKeys(s.Keys...)
		if err := l.Validate(); err != nil {
			return nil, fmt.Errorf("config: sample %q: %w", sample, err)
		}
		return l, nil
	case s.Count > 0:
		prefix := s.Prefix
		if prefix == "" {
			prefix = "d"
		}
		return device.Sequence(prefix, s.Count), nil
	default:
		return nil, fmt.Errorf("config: sample %q lists no devices", sample)
	}
}

// Validate checks the configuration. Unknown multiplexer or instrument
// types are configuration errors.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: data_dir is empty")
	}
	if _, err := c.MuxKind(); err != nil {
		return err
	}
	switch c.Instrument.Type {
	case InstrumentSimulator:
		if err := c.SimParams().Validate(); err != nil {
			return err
		}
	case InstrumentSCPI:
		if c.Instrument.Port == "" {
			return fmt.Errorf("config: instrument type scpi needs a port")
		}
	default:
		return fmt.Errorf("config: unknown instrument type %q (simulator, scpi)", c.Instrument.Type)
	}
	if _, err := time.ParseDuration(c.Scan.SettleTime); err != nil {
		return fmt.Errorf("config: settle_time: %w", err)
	}
	if c.SettleDuration() < 0 {
		return fmt.Errorf("config: settle_time is negative")
	}
	if !classify.ValidThreshold(c.Scan.Threshold) {
		return fmt.Errorf("config: %w: %v", classify.ErrInvalidThreshold, c.Scan.Threshold)
	}
	if !c.HeatmapRange().Valid() {
		return fmt.Errorf("config: heatmap range [%g, %g] is not a positive increasing span", c.Heatmap.MinA, c.Heatmap.MaxA)
	}
	if c.Mux.Channels < 1 {
		return fmt.Errorf("config: mux channels must be positive")
	}
	return nil
}
