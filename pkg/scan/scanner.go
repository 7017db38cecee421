package scan

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceScan/pkg/device"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/instrument"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/mux"
)

// ErrAlreadyRunning is returned by Start while a run is in progress. The
// running scan is not affected.
var ErrAlreadyRunning = errors.New("scan: already running")

// ErrNonFinite marks a NaN or infinite reading. The device is recorded as
// attempted with no reading.
var ErrNonFinite = errors.New("scan: non-finite reading")

// Scanner sequences quick scans. At most one run is active at a time.
type Scanner struct {
	router  *mux.Router
	gateway instrument.Gateway
	log     *zap.Logger

	mu     sync.Mutex
	state  State
	stop   chan struct{}
	once   *sync.Once
	done   chan struct{}
	result device.Result
}

// NewScanner builds a scanner. A nil gateway selects the deterministic
// simulator.
func NewScanner(router *mux.Router, gateway instrument.Gateway, log *zap.Logger) *Scanner {
	if log == nil {
		log = zap.NewNop()
	}
	if gateway == nil {
		log.Info("no instrument configured, using simulator")
		gateway = instrument.NewSimulator(instrument.DefaultSimParams())
	}
	return &Scanner{router: router, gateway: gateway, log: log}
}

// Gateway returns the instrument in use.
func (s *Scanner) Gateway() instrument.Gateway { return s.gateway }

// State returns the current lifecycle state.
func (s *Scanner) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Running reports whether a run is in progress.
func (s *Scanner) Running() bool { return s.State() == StateRunning }

// Start launches a run over devices. The returned channel receives one event
// per visited device and a final EventFinished, then is closed.
func (s *Scanner) Start(ctx context.Context, devices device.List, opts Options) (<-chan Event, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := devices.Validate(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRunning {
		return nil, ErrAlreadyRunning
	}

	result := opts.Baseline.Clone()
	if result == nil {
		result = device.Result{}
	}
	s.state = StateRunning
	s.stop = make(chan struct{})
	s.once = new(sync.Once)
	s.done = make(chan struct{})
	s.result = nil

	events := make(chan Event, len(devices)+2)
	w := &worker{
		s:       s,
		devices: append(device.List(nil), devices...),
		opts:    opts,
		result:  result,
		stop:    s.stop,
		events:  events,
		log:     s.log.With(zap.Float64("voltage_v", opts.VoltageV)),
	}
	go w.run(ctx)
	return events, nil
}

// Stop requests a cooperative abort. The worker observes it at the next
// device boundary; an in-flight measurement always completes. Stop while idle
// is a no-op.
func (s *Scanner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return
	}
	s.once.Do(func() { close(s.stop) })
}

// Wait blocks until the current or last run has finalized and returns its
// result and final state. Without any run it returns nil and StateIdle.
func (s *Scanner) Wait() (device.Result, State) {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil, StateIdle
	}
	<-done

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result.Clone(), s.state
}

func (s *Scanner) finish(state State, result device.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.result = result
	close(s.done)
}

type worker struct {
	s       *Scanner
	devices device.List
	opts    Options
	result  device.Result
	stop    <-chan struct{}
	events  chan<- Event
	log     *zap.Logger
}

func (w *worker) aborted(ctx context.Context) bool {
	select {
	case <-w.stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// settle waits d and reports false if an abort arrived first.
func (w *worker) settle(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return !w.aborted(ctx)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return !w.aborted(ctx)
	case <-w.stop:
		return false
	case <-ctx.Done():
		return false
	}
}

func (w *worker) run(ctx context.Context) {
	total := len(w.devices)
	w.log.Info("quick scan started", zap.Int("devices", total), zap.Duration("settle", w.opts.SettleTime))

	w.prepare()

	state := StateCompleted
	measured := 0
	for i, dev := range w.devices {
		if w.aborted(ctx) {
			state = StateAborted
			break
		}

		if err := w.s.router.Route(dev); err != nil {
			w.log.Warn("routing failed, skipping device", zap.String("device", dev.Key), zap.Error(err))
			w.events <- Event{Kind: EventSkipped, Device: dev, Err: err, Index: i, Total: total}
			continue
		}
		if f, ok := w.s.gateway.(instrument.DeviceFocuser); ok {
			f.Focus(dev.Key)
		}

		if !w.settle(ctx, w.opts.SettleTime) {
			state = StateAborted
			break
		}

		ev := Event{Kind: EventReading, Device: dev, Index: i, Total: total}
		amps, err := w.s.gateway.MeasureCurrent()
		if err == nil && (math.IsNaN(amps) || math.IsInf(amps, 0)) {
			err = fmt.Errorf("%w: %v", ErrNonFinite, amps)
		}
		if err != nil {
			w.log.Warn("measurement failed", zap.String("device", dev.Key), zap.Error(err))
			w.result.SetMissing(dev.Key)
			ev.Err = err
		} else {
			w.result.Set(dev.Key, amps)
			v := amps
			ev.Value = &v
			measured++
		}
		w.events <- ev
	}

	w.safeState()

	final := w.result.Clone()
	w.log.Info("quick scan finished",
		zap.Stringer("state", state),
		zap.Int("measured", measured),
		zap.Int("devices", total))
	w.s.finish(state, w.result)
	w.events <- Event{Kind: EventFinished, State: state, Result: final, Total: total, Index: total}
	close(w.events)
}

// prepare brackets the instrument before the first device. Failures are
// logged; the readings will surface any real problem.
func (w *worker) prepare() {
	g := w.s.gateway
	if err := g.SetVoltage(0); err != nil {
		w.log.Warn("zeroing voltage failed", zap.Error(err))
	}
	if err := g.EnableOutput(true); err != nil {
		w.log.Warn("enabling output failed", zap.Error(err))
	}
	if err := g.SetVoltage(w.opts.VoltageV); err != nil {
		w.log.Warn("setting drive voltage failed", zap.Error(err))
	}
}

func (w *worker) safeState() {
	g := w.s.gateway
	if err := g.SetVoltage(0); err != nil {
		w.log.Warn("safe state: zeroing voltage failed", zap.Error(err))
	}
	if err := g.EnableOutput(false); err != nil {
		w.log.Warn("safe state: disabling output failed", zap.Error(err))
	}
}
