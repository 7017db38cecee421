// Package tui is the live terminal view of a running quick scan.
package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/OpenTraceLab/OpenTraceScan/internal/bench"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/device"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/heatmap"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/scan"
)

// Stopper requests a cooperative scan abort.
type Stopper interface {
	Stop()
}

// Params configures the model.
type Params struct {
	Sample   string
	VoltageV float64
	Devices  device.List
	Baseline device.Result
	Range    heatmap.Range
	Columns  int

	Events  <-chan scan.Event
	Scanner Stopper

	// Complete persists the finished scan. It runs off the UI loop.
	Complete func(*bench.Tally) (*bench.Outcome, error)
}

type eventMsg struct {
	ev scan.Event
	ok bool
}

type completeMsg struct {
	outcome *bench.Outcome
	err     error
}

// Model is the bubbletea model of a live scan.
type Model struct {
	p      Params
	tally  *bench.Tally
	result device.Result

	current  string
	lastLine string
	stopping bool
	quitting bool
	finished bool
	saving   bool

	outcome *bench.Outcome
	err     error
	width   int
}

// New builds the model.
func New(p Params) Model {
	result := p.Baseline.Clone()
	if result == nil {
		result = device.Result{}
	}
	if !p.Range.Valid() {
		p.Range = heatmap.DefaultRange
	}
	return Model{p: p, tally: bench.NewTally(), result: result}
}

// Outcome returns the saved outcome and any error once the program exits.
func (m Model) Outcome() (*bench.Outcome, error) { return m.outcome, m.err }

func waitForEvent(events <-chan scan.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		return eventMsg{ev: ev, ok: ok}
	}
}

func complete(fn func(*bench.Tally) (*bench.Outcome, error), t *bench.Tally) tea.Cmd {
	return func() tea.Msg {
		if fn == nil {
			return completeMsg{}
		}
		out, err := fn(t)
		return completeMsg{outcome: out, err: err}
	}
}

func (m Model) Init() tea.Cmd {
	return waitForEvent(m.p.Events)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "s":
			m.stop()
		case "q", "ctrl+c", "esc":
			if m.finished && !m.saving {
				return m, tea.Quit
			}
			m.quitting = true
			m.stop()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case eventMsg:
		if !msg.ok {
			return m, nil
		}
		m.tally.Observe(msg.ev)
		switch msg.ev.Kind {
		case scan.EventReading:
			d := msg.ev.Device
			m.current = d.Key
			if v, ok := msg.ev.Current(); ok {
				m.result.Set(d.Key, v)
				m.lastLine = fmt.Sprintf("%s  %.3e A", d.Name(), v)
			} else {
				m.result.SetMissing(d.Key)
				m.lastLine = fmt.Sprintf("%s  no reading", d.Name())
			}
		case scan.EventSkipped:
			m.lastLine = fmt.Sprintf("%s  skipped: %v", msg.ev.Device.Name(), msg.ev.Err)
		case scan.EventFinished:
			m.finished = true
			m.saving = true
			m.current = ""
			m.result = msg.ev.Result.Clone()
			return m, complete(m.p.Complete, m.tally)
		}
		return m, waitForEvent(m.p.Events)

	case completeMsg:
		m.saving = false
		m.outcome, m.err = msg.outcome, msg.err
		if m.quitting {
			return m, tea.Quit
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) stop() {
	if m.finished || m.stopping {
		return
	}
	m.stopping = true
	if m.p.Scanner != nil {
		m.p.Scanner.Stop()
	}
}

func (m Model) View() string {
	var b strings.Builder

	title := fmt.Sprintf("Quick scan  %s  @ %g V", m.p.Sample, m.p.VoltageV)
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")

	seen, total := m.tally.Progress()
	if total == 0 {
		total = len(m.p.Devices)
	}
	status := "running"
	switch {
	case m.saving:
		status = "saving"
	case m.finished:
		if final, ok := m.tally.Final(); ok {
			status = final.State.String()
		}
	case m.stopping:
		status = "stopping"
	}
	b.WriteString(labelStyle.Render("progress "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d/%d", seen, total)))
	b.WriteString(labelStyle.Render("  state "))
	b.WriteString(valueStyle.Render(status))
	b.WriteString("\n")

	marks := map[string]string{}
	if m.current != "" {
		marks[m.current] = "▶▶"
	}
	grid := heatmap.RenderTerminal(m.p.Devices, m.result, heatmap.TermOptions{
		Columns: m.p.Columns,
		Range:   m.p.Range,
		Marks:   marks,
	})
	b.WriteString(panelStyle.Render(grid))
	b.WriteString("\n")
	b.WriteString(heatmap.RenderLegend(heatmap.Legend(12, m.p.Range)))
	b.WriteString("\n\n")

	if m.lastLine != "" {
		b.WriteString(labelStyle.Render("last "))
		b.WriteString(valueStyle.Render(m.lastLine))
		b.WriteString("\n")
	}
	if skipped := m.tally.Skipped(); len(skipped) > 0 {
		b.WriteString(critStyle.Render(fmt.Sprintf("skipped %d: %s", len(skipped), strings.Join(skipped, ", "))))
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString(critStyle.Render("save failed: " + m.err.Error()))
		b.WriteString("\n")
	} else if m.outcome != nil {
		b.WriteString(okStyle.Render(fmt.Sprintf("saved %s (%d classified)", m.outcome.Paths.JSON, len(m.outcome.Report.Classified))))
		b.WriteString("\n")
	}

	help := "s stop  q quit"
	if m.finished {
		help = "q quit"
	}
	b.WriteString(helpStyle.Render(help))
	return b.String()
}

// Run shows the model full screen until the user quits, returning the
// final model state.
func Run(p Params) (Model, error) {
	final, err := tea.NewProgram(New(p), tea.WithAltScreen()).Run()
	if err != nil {
		return Model{}, err
	}
	return final.(Model), nil
}
