// Package bench wires configuration, multiplexer, instrument, scanner,
// store and classifier into the operations the CLI and UIs expose.
package bench

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceScan/pkg/classify"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/config"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/device"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/instrument"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/mux"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/scan"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/store"
)

// ErrNoSample is returned by operations that need a selected sample.
var ErrNoSample = errors.New("bench: no sample selected")

// Option customizes Open.
type Option func(*Bench)

// WithGateway replaces the configured instrument.
func WithGateway(g instrument.Gateway) Option {
	return func(b *Bench) { b.gateway = g }
}

// WithAdapter replaces the configured multiplexer.
func WithAdapter(a mux.Adapter) Option {
	return func(b *Bench) { b.adapterOverride = a }
}

// Offline replaces the instrument with the simulator and the multiplexer
// with manual routing, so stored data can be worked on without touching
// hardware.
func Offline() Option {
	return func(b *Bench) {
		b.gateway = instrument.NewSimulator(b.cfg.SimParams())
		b.adapterOverride = mux.NewManualAdapter(b.log)
	}
}

// WithoutCatalog skips the session catalog.
func WithoutCatalog() Option {
	return func(b *Bench) { b.noCatalog = true }
}

// Bench is one configured measurement station.
type Bench struct {
	cfg *config.Config
	log *zap.Logger

	gateway         instrument.Gateway
	adapterOverride mux.Adapter
	noCatalog       bool
	catalog         *store.Catalog
	closers         []io.Closer
	sampleClosers   []io.Closer

	sample    string
	devices   device.List
	router    *mux.Router
	scanner   *scan.Scanner
	last      *device.Session
	book      *classify.Book
	threshold *classify.Threshold
}

// Open validates cfg and connects the instrument and catalog.
func Open(cfg *config.Config, log *zap.Logger, opts ...Option) (*Bench, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Bench{
		cfg:       cfg,
		log:       log,
		threshold: classify.NewThreshold(cfg.Scan.Threshold),
	}
	for _, o := range opts {
		o(b)
	}

	if b.gateway == nil {
		g, closer, err := BuildGateway(cfg, log)
		if err != nil {
			return nil, err
		}
		b.gateway = g
		if closer != nil {
			b.closers = append(b.closers, closer)
		}
	}

	if !b.noCatalog {
		cat, err := store.OpenCatalog(cfg.CatalogPath())
		if err != nil {
			b.Close()
			return nil, err
		}
		b.catalog = cat
		b.closers = append(b.closers, cat)
	}
	return b, nil
}

// Close releases hardware handles and the catalog.
func (b *Bench) Close() error {
	var errs []error
	for _, c := range append(b.sampleClosers, b.closers...) {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	b.sampleClosers, b.closers = nil, nil
	return errors.Join(errs...)
}

// Config returns the configuration in use.
func (b *Bench) Config() *config.Config { return b.cfg }

// Catalog returns the session catalog, or nil.
func (b *Bench) Catalog() *store.Catalog { return b.catalog }

// Sample returns the selected sample name.
func (b *Bench) Sample() string { return b.sample }

// Devices returns the device list of the selected sample.
func (b *Bench) Devices() device.List { return b.devices }

// LastSession returns the newest stored session, or nil.
func (b *Bench) LastSession() *device.Session { return b.last }

// Book returns the status book of the selected sample.
func (b *Bench) Book() *classify.Book { return b.book }

// Threshold returns the active classification threshold.
func (b *Bench) Threshold() *classify.Threshold { return b.threshold }

// Scanner returns the scanner of the selected sample.
func (b *Bench) Scanner() *scan.Scanner { return b.scanner }

// SampleDir returns the data directory of the selected sample.
func (b *Bench) SampleDir() string { return b.cfg.SampleDir(b.sample) }

// SelectSample loads the device list, the newest stored session and the
// status book of name, and builds the multiplexer for it.
func (b *Bench) SelectSample(name string) error {
	if b.scanner != nil && b.scanner.Running() {
		return scan.ErrAlreadyRunning
	}
	devices, err := b.cfg.Devices(name)
	if err != nil {
		return err
	}
	dir := b.cfg.SampleDir(name)
	last, found, err := store.Load(dir)
	if err != nil {
		return err
	}
	if !found {
		last = nil
	}
	book, err := classify.LoadBook(b.bookPath(name))
	if err != nil {
		return err
	}

	adapter := b.adapterOverride
	var closers []io.Closer
	if adapter == nil {
		adapter, closers, err = BuildAdapter(b.cfg, name, b.log)
		if err != nil {
			return err
		}
	}

	for _, c := range b.sampleClosers {
		c.Close()
	}
	b.sampleClosers = closers
	b.sample = name
	b.devices = devices
	b.last = last
	b.book = book
	b.router = mux.NewRouter(adapter, b.log)
	b.scanner = scan.NewScanner(b.router, b.gateway, b.log)

	fields := []zap.Field{
		zap.String("sample", name),
		zap.Int("devices", len(devices)),
		zap.String("mux", string(adapter.Kind())),
	}
	if last != nil {
		fields = append(fields, zap.Time("last_session", last.Timestamp), zap.Float64("last_voltage_v", last.VoltageV))
	}
	b.log.Info("sample selected", fields...)
	return nil
}

func (b *Bench) bookPath(sample string) string {
	return filepath.Join(b.cfg.SampleDir(sample), classify.BookFile)
}

// ScanOptions returns the configured scan options, seeded with the last
// session's readings when it was taken at the same voltage.
func (b *Bench) ScanOptions(voltage float64) scan.Options {
	opts := scan.Options{VoltageV: voltage, SettleTime: b.cfg.SettleDuration()}
	if b.last != nil && b.last.VoltageV == voltage {
		opts.Baseline = b.last.Result.Clone()
	}
	return opts
}

// StartScan begins a scan of the selected sample.
func (b *Bench) StartScan(ctx context.Context, opts scan.Options) (<-chan scan.Event, error) {
	if b.scanner == nil {
		return nil, ErrNoSample
	}
	return b.scanner.Start(ctx, b.devices, opts)
}

// Outcome is the persisted result of one scan.
type Outcome struct {
	Session *device.Session
	Paths   store.Paths
	State   scan.State
	Report  classify.Report
}

// Complete saves the finished scan, records it in the catalog and
// auto-classifies the fresh readings.
func (b *Bench) Complete(tally *Tally, voltage float64) (*Outcome, error) {
	if b.sample == "" {
		return nil, ErrNoSample
	}
	final, ok := tally.Final()
	if !ok {
		return nil, fmt.Errorf("bench: scan has not finished")
	}
	// File names have one-second resolution; never reuse the previous
	// session's second.
	ts := time.Now()
	if b.last != nil {
		prev := b.last.Timestamp.Truncate(time.Second)
		if !ts.Truncate(time.Second).After(prev) {
			ts = prev.Add(time.Second)
		}
	}
	s := &device.Session{
		ID:         store.NewSessionID(),
		Sample:     b.sample,
		VoltageV:   voltage,
		SettleTime: b.cfg.SettleDuration(),
		Timestamp:  ts,
		Devices:    b.devices,
		Result:     final.Result.Clone(),
	}
	paths, err := store.Save(b.SampleDir(), s)
	if err != nil {
		return nil, err
	}
	if b.catalog != nil {
		if err := b.catalog.Record(s, paths); err != nil {
			b.log.Warn("catalog update failed", zap.Error(err))
		}
	}
	b.last = s

	report, err := b.book.ApplyToUndefined(tally.Fresh(), voltage, b.threshold.Value())
	if err != nil {
		return nil, err
	}
	if err := b.book.Save(b.bookPath(b.sample)); err != nil {
		return nil, err
	}
	b.log.Info("scan saved",
		zap.String("json", paths.JSON),
		zap.Stringer("state", final.State),
		zap.Int("classified", len(report.Classified)))
	return &Outcome{Session: s, Paths: paths, State: final.State, Report: report}, nil
}

// Reclassify applies threshold to the last session's readings for every
// device without a manual verdict.
func (b *Bench) Reclassify(threshold float64) (classify.Report, error) {
	if b.sample == "" {
		return classify.Report{}, ErrNoSample
	}
	if err := b.threshold.Set(threshold); err != nil {
		return classify.Report{}, err
	}
	if b.last == nil {
		return classify.Report{}, fmt.Errorf("bench: sample %q has no stored session", b.sample)
	}
	report, err := b.book.ApplyToUndefined(b.last.Result, b.last.VoltageV, threshold)
	if err != nil {
		return report, err
	}
	return report, b.book.Save(b.bookPath(b.sample))
}

// Mark records a manual verdict and saves the book.
func (b *Bench) Mark(key string, status classify.ManualStatus, notes string) error {
	if b.sample == "" {
		return ErrNoSample
	}
	if _, ok := b.devices.Lookup(key); !ok {
		return fmt.Errorf("bench: sample %q has no device %q", b.sample, key)
	}
	if err := b.book.MarkManual(key, status); err != nil {
		return err
	}
	if notes != "" {
		b.book.SetNotes(key, notes)
	}
	return b.book.Save(b.bookPath(b.sample))
}

// Disconnect opens every multiplexer line.
func (b *Bench) Disconnect() error {
	if b.router == nil {
		return ErrNoSample
	}
	return b.router.DisconnectAll()
}
