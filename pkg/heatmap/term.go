package heatmap

import (
	"fmt"
	"image/color"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/OpenTraceLab/OpenTraceScan/pkg/device"
)

// TermOptions controls RenderTerminal.
type TermOptions struct {
	Columns int
	Range   Range

	// Marks overrides the cell glyph per device key, e.g. to flag manual
	// verdicts or the device being measured.
	Marks map[string]string
}

const (
	cellGlyph  = "██"
	emptyGlyph = "··"
)

var emptyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#555555"))

// Hex formats c as #rrggbb.
func Hex(c color.NRGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// RenderTerminal draws the grid with true-colour cells. Devices without a
// reading are drawn as dim dots so the grid shape stays visible; they never
// receive a heat colour.
func RenderTerminal(devices device.List, result device.Result, opts TermOptions) string {
	r := opts.Range
	if !r.Valid() {
		r = DefaultRange
	}
	g := Grid{Columns: opts.Columns}
	if g.Columns < 1 {
		g = DefaultGrid(len(devices))
	}

	var b strings.Builder
	for i, d := range devices {
		col, row := g.Slot(i)
		if col == 0 && row > 0 {
			b.WriteByte('\n')
		}
		glyph := cellGlyph
		if m, ok := opts.Marks[d.Key]; ok && m != "" {
			glyph = m
		}
		v, ok := result.Value(d.Key)
		if !ok {
			if glyph == cellGlyph {
				glyph = emptyGlyph
			}
			b.WriteString(emptyStyle.Render(glyph))
		} else {
			style := lipgloss.NewStyle().Foreground(lipgloss.Color(Hex(r.Color(v))))
			b.WriteString(style.Render(glyph))
		}
		if col < g.columns()-1 && i < len(devices)-1 {
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// RenderLegend draws stops as a colour bar with the end values labelled.
func RenderLegend(stops []Stop) string {
	if len(stops) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%.0e A ", stops[0].Current))
	for _, s := range stops {
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(Hex(s.Color))).Render("█"))
	}
	b.WriteString(fmt.Sprintf(" %.0e A", stops[len(stops)-1].Current))
	return b.String()
}
