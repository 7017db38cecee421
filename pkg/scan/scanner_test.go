package scan

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/OpenTraceLab/OpenTraceScan/pkg/device"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/instrument"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/mux"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestScanner(t *testing.T, gw instrument.Gateway) (*Scanner, *mux.SimLines) {
	t.Helper()
	table, err := mux.BinaryTruthTable(16)
	if err != nil {
		t.Fatalf("BinaryTruthTable: %v", err)
	}
	lines := mux.NewSimLines(nil)
	router := mux.NewRouter(mux.NewChannelSwitchAdapter(table, lines, nil), nil)
	return NewScanner(router, gw, zaptest.NewLogger(t)), lines
}

func fastOptions(volts float64) Options {
	return Options{VoltageV: volts}
}

func drain(events <-chan Event) []Event {
	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func TestScanCompletes(t *testing.T) {
	sim := instrument.NewSimulator(instrument.DefaultSimParams())
	sc, lines := newTestScanner(t, sim)
	devs := device.Sequence("d", 5)

	events, err := sc.Start(context.Background(), devs, fastOptions(0.2))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	got := drain(events)
	if len(got) != 6 {
		t.Fatalf("events = %d, want 6", len(got))
	}
	last := got[len(got)-1]
	if last.Kind != EventFinished || last.State != StateCompleted {
		t.Fatalf("final event = %+v", last)
	}
	for i, ev := range got[:5] {
		if ev.Kind != EventReading || ev.Index != i || ev.Total != 5 {
			t.Fatalf("event %d = %+v", i, ev)
		}
		want := instrument.SimulatedCurrent(sim.Params(), devs[i].Key, 0.2)
		if v, ok := ev.Current(); !ok || v != want {
			t.Fatalf("event %d current = %g, %v; want %g", i, v, ok, want)
		}
	}

	result, state := sc.Wait()
	if state != StateCompleted || result.Measured() != 5 {
		t.Fatalf("Wait = %d readings, %s", result.Measured(), state)
	}
	if len(lines.Writes()) != 5 {
		t.Fatalf("line writes = %d, want 5", len(lines.Writes()))
	}
}

func TestScanInstrumentBracket(t *testing.T) {
	rec := instrument.NewRecorder(instrument.NewSimulator(instrument.DefaultSimParams()))
	sc, _ := newTestScanner(t, rec)

	events, err := sc.Start(context.Background(), device.FromKeys("a", "b"), fastOptions(0.5))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	drain(events)

	got := fmt.Sprint(rec.Calls())
	want := "[voltage(0) output(true) voltage(0.5) focus(a) measure focus(b) measure voltage(0) output(false)]"
	if got != want {
		t.Fatalf("calls:\n got %s\nwant %s", got, want)
	}
}

func TestStopAfterDeviceK(t *testing.T) {
	const n, k = 6, 3
	for _, abortAt := range []int{1, k, n - 1} {
		t.Run(fmt.Sprintf("k=%d", abortAt), func(t *testing.T) {
			sim := instrument.NewSimulator(instrument.DefaultSimParams())
			sc, _ := newTestScanner(t, sim)
			devs := device.Sequence("d", n)

			count := 0
			sim.OnMeasure = func(key string, volts float64) (float64, error) {
				count++
				if count == abortAt {
					sc.Stop()
				}
				return float64(count) * 1e-9, nil
			}

			events, err := sc.Start(context.Background(), devs, fastOptions(0.1))
			if err != nil {
				t.Fatalf("Start: %v", err)
			}
			got := drain(events)
			final := got[len(got)-1]
			if final.State != StateAborted {
				t.Fatalf("state = %s, want aborted", final.State)
			}
			for i, d := range devs {
				v, ok := final.Result.Value(d.Key)
				if i < abortAt {
					if !ok || v != float64(i+1)*1e-9 {
						t.Fatalf("%s = %g, %v; want measured", d.Key, v, ok)
					}
				} else if final.Result.Has(d.Key) {
					t.Fatalf("%s measured after abort", d.Key)
				}
			}
			if sc.State() != StateAborted {
				t.Fatalf("scanner state = %s", sc.State())
			}
		})
	}
}

func TestStartWhileRunning(t *testing.T) {
	sim := instrument.NewSimulator(instrument.DefaultSimParams())
	sc, _ := newTestScanner(t, sim)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	sim.OnMeasure = func(key string, volts float64) (float64, error) {
		once.Do(func() { close(entered) })
		<-release
		return 1e-8, nil
	}

	events, err := sc.Start(context.Background(), device.Sequence("d", 3), fastOptions(0.1))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-entered

	if _, err := sc.Start(context.Background(), device.Sequence("x", 2), fastOptions(0.9)); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start error = %v, want ErrAlreadyRunning", err)
	}
	if sc.State() != StateRunning {
		t.Fatalf("state = %s, want running", sc.State())
	}

	close(release)
	got := drain(events)
	final := got[len(got)-1]
	if final.State != StateCompleted || len(final.Result) != 3 {
		t.Fatalf("final = %s with %d results", final.State, len(final.Result))
	}
	for key := range final.Result {
		if !strings.HasPrefix(key, "d") {
			t.Fatalf("result contains %q from rejected start", key)
		}
	}
}

func TestRestartAfterCompletion(t *testing.T) {
	sc, _ := newTestScanner(t, nil)
	for i := 0; i < 2; i++ {
		events, err := sc.Start(context.Background(), device.Sequence("d", 2), fastOptions(0.1))
		if err != nil {
			t.Fatalf("Start %d: %v", i, err)
		}
		drain(events)
	}
	if sc.State() != StateCompleted {
		t.Fatalf("state = %s", sc.State())
	}
}

func TestRoutingFailureSkipsDevice(t *testing.T) {
	pins, err := mux.NewPinMap([]mux.PinMapEntry{
		{Key: "a", Pins: []int{1}},
		{Key: "c", Pins: []int{3}},
	})
	if err != nil {
		t.Fatalf("NewPinMap: %v", err)
	}
	relay := &mux.SimRelay{}
	router := mux.NewRouter(mux.NewPinRelayAdapter(pins, relay, nil), nil)
	sc := NewScanner(router, nil, zaptest.NewLogger(t))

	events, err := sc.Start(context.Background(), device.FromKeys("a", "b", "c"), fastOptions(0.1))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	got := drain(events)
	if len(got) != 4 {
		t.Fatalf("events = %d, want 4", len(got))
	}
	if got[1].Kind != EventSkipped || !errors.Is(got[1].Err, mux.ErrUnmappedDevice) {
		t.Fatalf("event for b = %+v, want skipped", got[1])
	}
	final := got[3]
	if final.State != StateCompleted {
		t.Fatalf("state = %s", final.State)
	}
	if final.Result.Has("b") {
		t.Fatalf("skipped device has an entry")
	}
	if !final.Result.Has("a") || !final.Result.Has("c") {
		t.Fatalf("routed devices missing: %v", final.Result.SortedKeys())
	}
}

func TestMeasurementFailureRecordsNull(t *testing.T) {
	sim := instrument.NewSimulator(instrument.DefaultSimParams())
	sim.OnMeasure = func(key string, volts float64) (float64, error) {
		if key == "d2" {
			return 0, errors.New("compliance")
		}
		return 0, nil
	}
	sc, _ := newTestScanner(t, sim)
	events, err := sc.Start(context.Background(), device.Sequence("d", 3), fastOptions(0.1))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	drain(events)

	result, state := sc.Wait()
	if state != StateCompleted {
		t.Fatalf("state = %s", state)
	}
	if _, ok := result.Value("d2"); ok || !result.Has("d2") {
		t.Fatalf("d2 should be null")
	}
	if v, ok := result.Value("d1"); !ok || v != 0 {
		t.Fatalf("zero reading lost: %g, %v", v, ok)
	}
}

func TestNonFiniteReadingRecordsNull(t *testing.T) {
	sim := instrument.NewSimulator(instrument.DefaultSimParams())
	sim.OnMeasure = func(key string, volts float64) (float64, error) {
		switch key {
		case "d1":
			return math.NaN(), nil
		case "d2":
			return math.Inf(-1), nil
		}
		return 2e-9, nil
	}
	sc, _ := newTestScanner(t, sim)
	devs := device.Sequence("d", 4)
	events, err := sc.Start(context.Background(), devs, fastOptions(0.3))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	for _, ev := range drain(events) {
		if ev.Kind != EventReading {
			continue
		}
		bad := ev.Device.Key == "d1" || ev.Device.Key == "d2"
		if bad && (!errors.Is(ev.Err, ErrNonFinite) || ev.Value != nil) {
			t.Fatalf("event for %s = %+v, want non-finite error", ev.Device.Key, ev)
		}
		if !bad && ev.Err != nil {
			t.Fatalf("event for %s: %v", ev.Device.Key, ev.Err)
		}
	}

	result, state := sc.Wait()
	if state != StateCompleted || result.Measured() != 2 {
		t.Fatalf("Wait = %d readings, %s", result.Measured(), state)
	}
	for _, key := range []string{"d1", "d2"} {
		if _, ok := result.Value(key); ok || !result.Has(key) {
			t.Fatalf("%s should be null: %v", key, result)
		}
	}

	sess := &device.Session{Sample: "s", VoltageV: 0.3, Timestamp: time.Now(), Devices: devs, Result: result}
	paths, err := store.Save(t.TempDir(), sess)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := store.LoadFile(paths.JSON)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if loaded.Result.Measured() != 2 || !loaded.Result.Has("d1") {
		t.Fatalf("loaded result = %v", loaded.Result)
	}
}

func TestBaselineKeptForUnreachedDevices(t *testing.T) {
	sim := instrument.NewSimulator(instrument.DefaultSimParams())
	sc, _ := newTestScanner(t, sim)
	sim.OnMeasure = func(key string, volts float64) (float64, error) {
		sc.Stop()
		return 2e-6, nil
	}

	baseline := device.Result{}
	baseline.Set("d1", 1e-9)
	baseline.Set("d3", 3e-9)
	baseline.SetMissing("d2")

	opts := fastOptions(0.1)
	opts.Baseline = baseline
	events, err := sc.Start(context.Background(), device.Sequence("d", 3), opts)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	drain(events)

	result, state := sc.Wait()
	if state != StateAborted {
		t.Fatalf("state = %s", state)
	}
	if v, _ := result.Value("d1"); v != 2e-6 {
		t.Fatalf("d1 = %g, want new reading", v)
	}
	if v, _ := result.Value("d3"); v != 3e-9 {
		t.Fatalf("d3 = %g, want baseline", v)
	}
	if _, ok := result.Value("d2"); ok || !result.Has("d2") {
		t.Fatalf("d2 baseline null not kept")
	}
	if v, _ := baseline.Value("d1"); v != 1e-9 {
		t.Fatalf("baseline mutated")
	}
}

func TestStopDuringSettle(t *testing.T) {
	rec := instrument.NewRecorder(instrument.NewSimulator(instrument.DefaultSimParams()))
	sc, _ := newTestScanner(t, rec)

	opts := fastOptions(0.1)
	opts.SettleTime = time.Hour
	events, err := sc.Start(context.Background(), device.Sequence("d", 2), opts)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	sc.Stop()
	got := drain(events)
	if len(got) != 1 || got[0].State != StateAborted {
		t.Fatalf("events = %+v", got)
	}
	for _, c := range rec.Calls() {
		if c.Op == "measure" {
			t.Fatalf("measured after abort during settle")
		}
	}
}

func TestContextCancelAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sc, _ := newTestScanner(t, nil)

	opts := fastOptions(0.1)
	opts.SettleTime = time.Hour
	events, err := sc.Start(ctx, device.Sequence("d", 4), opts)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
	drain(events)
	if _, state := sc.Wait(); state != StateAborted {
		t.Fatalf("state = %s, want aborted", state)
	}
}

func TestStopWhileIdle(t *testing.T) {
	sc, _ := newTestScanner(t, nil)
	sc.Stop()
	if sc.State() != StateIdle {
		t.Fatalf("state = %s", sc.State())
	}
	if r, state := sc.Wait(); r != nil || state != StateIdle {
		t.Fatalf("Wait without run = %v, %s", r, state)
	}
}

func TestOptionsValidate(t *testing.T) {
	sc, _ := newTestScanner(t, nil)
	if _, err := sc.Start(context.Background(), device.Sequence("d", 1), Options{SettleTime: -time.Second}); err == nil {
		t.Fatalf("expected error for negative settle time")
	}
	bad := device.List{{Key: "a", Index: 0}, {Key: "a", Index: 1}}
	if _, err := sc.Start(context.Background(), bad, fastOptions(0.1)); err == nil {
		t.Fatalf("expected error for duplicate device keys")
	}
	if sc.State() != StateIdle {
		t.Fatalf("rejected start changed state to %s", sc.State())
	}
}
