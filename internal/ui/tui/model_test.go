package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/OpenTraceLab/OpenTraceScan/internal/bench"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/device"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/scan"
)

type stopCounter struct{ n int }

func (s *stopCounter) Stop() { s.n++ }

func value(v float64) *float64 { return &v }

func TestModelFollowsEvents(t *testing.T) {
	devs := device.Sequence("d", 3)
	baseline := device.Result{}
	baseline.Set("d3", 4e-9)

	var completed *bench.Tally
	m := New(Params{
		Sample:   "wafer",
		VoltageV: 0.2,
		Devices:  devs,
		Baseline: baseline,
		Columns:  3,
		Complete: func(t *bench.Tally) (*bench.Outcome, error) {
			completed = t
			return &bench.Outcome{}, nil
		},
	})

	next, cmd := m.Update(eventMsg{ok: true, ev: scan.Event{Kind: scan.EventReading, Device: devs[0], Value: value(1e-6), Index: 0, Total: 3}})
	m = next.(Model)
	if cmd == nil {
		t.Fatalf("expected a wait command after a reading")
	}
	if v, _ := m.result.Value("d1"); v != 1e-6 || m.current != "d1" {
		t.Fatalf("reading not applied: %v current=%s", m.result, m.current)
	}

	next, _ = m.Update(eventMsg{ok: true, ev: scan.Event{Kind: scan.EventSkipped, Device: devs[1], Index: 1, Total: 3}})
	m = next.(Model)
	if !strings.Contains(m.View(), "skipped 1: d2") {
		t.Fatalf("view missing skipped device:\n%s", m.View())
	}
	if v, _ := m.result.Value("d3"); v != 4e-9 {
		t.Fatalf("baseline lost before finish")
	}

	final := device.Result{}
	final.Set("d1", 1e-6)
	final.Set("d3", 4e-9)
	next, cmd = m.Update(eventMsg{ok: true, ev: scan.Event{Kind: scan.EventFinished, State: scan.StateCompleted, Result: final, Index: 3, Total: 3}})
	m = next.(Model)
	if !m.finished || !m.saving || cmd == nil {
		t.Fatalf("finish not handled: finished=%v saving=%v", m.finished, m.saving)
	}

	msg := cmd()
	next, _ = m.Update(msg)
	m = next.(Model)
	if completed == nil {
		t.Fatalf("complete callback not called")
	}
	if v, _ := completed.Fresh().Value("d1"); v != 1e-6 || completed.Fresh().Has("d3") {
		t.Fatalf("tally fresh readings wrong: %v", completed.Fresh())
	}
	if out, err := m.Outcome(); out == nil || err != nil {
		t.Fatalf("outcome = %v, %v", out, err)
	}
	if !strings.Contains(m.View(), "completed") {
		t.Fatalf("view should report completed:\n%s", m.View())
	}
}

func TestStopKey(t *testing.T) {
	stopper := &stopCounter{}
	m := New(Params{Devices: device.Sequence("d", 2), Scanner: stopper})

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	m = next.(Model)
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	m = next.(Model)
	if stopper.n != 1 {
		t.Fatalf("Stop called %d times, want 1", stopper.n)
	}
	if !strings.Contains(m.View(), "stopping") {
		t.Fatalf("view should report stopping:\n%s", m.View())
	}
}

func TestQuitWaitsForSave(t *testing.T) {
	stopper := &stopCounter{}
	m := New(Params{Devices: device.Sequence("d", 1), Scanner: stopper})

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	m = next.(Model)
	if cmd != nil {
		t.Fatalf("quit while running should wait for the scan to end")
	}
	if stopper.n != 1 || !m.quitting {
		t.Fatalf("quit should request a stop")
	}
	_, cmd = m.Update(completeMsg{})
	if cmd == nil {
		t.Fatalf("expected quit after save")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
}
