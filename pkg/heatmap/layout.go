package heatmap

import (
	"image"
	"image/color"
	"math"

	"github.com/OpenTraceLab/OpenTraceScan/pkg/device"
)

// Grid places devices row-major by list index.
type Grid struct {
	Columns  int
	CellSize int // pixels (or terminal cells) per side
	Gap      int
}

// DefaultGrid picks a near-square layout for n devices.
func DefaultGrid(n int) Grid {
	cols := int(math.Ceil(math.Sqrt(float64(n))))
	if cols < 1 {
		cols = 1
	}
	return Grid{Columns: cols, CellSize: 32, Gap: 4}
}

// Rows returns the number of rows needed for n devices.
func (g Grid) Rows(n int) int {
	cols := g.columns()
	return (n + cols - 1) / cols
}

// Size returns the pixel size of a grid holding n devices.
func (g Grid) Size(n int) image.Point {
	cols := g.columns()
	if n < cols {
		cols = n
	}
	rows := g.Rows(n)
	step := g.CellSize + g.Gap
	if cols == 0 || rows == 0 {
		return image.Point{}
	}
	return image.Pt(cols*step-g.Gap, rows*step-g.Gap)
}

func (g Grid) columns() int {
	if g.Columns < 1 {
		return 1
	}
	return g.Columns
}

// Slot returns the grid position of list index i.
func (g Grid) Slot(i int) (col, row int) {
	cols := g.columns()
	return i % cols, i / cols
}

// Rect returns the cell rectangle for list index i.
func (g Grid) Rect(i int) image.Rectangle {
	col, row := g.Slot(i)
	step := g.CellSize + g.Gap
	min := image.Pt(col*step, row*step)
	return image.Rectangle{Min: min, Max: min.Add(image.Pt(g.CellSize, g.CellSize))}
}

// Cell is one drawable device square.
type Cell struct {
	Device  device.Device
	Rect    image.Rectangle
	Current float64
	Color   color.NRGBA
}

// Cells builds the cells of every device holding a reading. Devices with a
// null or absent entry produce no cell.
func (g Grid) Cells(devices device.List, result device.Result, r Range) []Cell {
	cells := make([]Cell, 0, len(devices))
	for i, d := range devices {
		v, ok := result.Value(d.Key)
		if !ok {
			continue
		}
		cells = append(cells, Cell{
			Device:  d,
			Rect:    g.Rect(i),
			Current: v,
			Color:   r.Color(v),
		})
	}
	return cells
}

// Hit returns the device index under p, or -1.
func (g Grid) Hit(p image.Point, n int) int {
	if p.X < 0 || p.Y < 0 {
		return -1
	}
	step := g.CellSize + g.Gap
	col, row := p.X/step, p.Y/step
	if col >= g.columns() || p.X%step >= g.CellSize || p.Y%step >= g.CellSize {
		return -1
	}
	i := row*g.columns() + col
	if i >= n {
		return -1
	}
	return i
}

// Stop is one legend entry.
type Stop struct {
	Current float64
	Ratio   float64
	Color   color.NRGBA
}

// Legend returns steps log-spaced stops from r.Min to r.Max, coloured by
// the same function as the cells.
func Legend(steps int, r Range) []Stop {
	if steps < 2 {
		steps = 2
	}
	if !r.Valid() {
		r = DefaultRange
	}
	lo, hi := math.Log10(r.Min), math.Log10(r.Max)
	stops := make([]Stop, steps)
	for i := range stops {
		t := float64(i) / float64(steps-1)
		current := math.Pow(10, lo+t*(hi-lo))
		stops[i] = Stop{Current: current, Ratio: Ratio(current, r.Min, r.Max), Color: r.Color(current)}
	}
	return stops
}
