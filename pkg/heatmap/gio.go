package heatmap

import (
	"image"
	"image/color"

	"gioui.org/op"
	"gioui.org/op/clip"
	"gioui.org/op/paint"
)

// PaintCells fills each cell, offset by origin.
func PaintCells(ops *op.Ops, origin image.Point, cells []Cell) {
	stack := op.Offset(origin).Push(ops)
	defer stack.Pop()
	for _, c := range cells {
		paint.FillShape(ops, c.Color, clip.Rect(c.Rect).Op())
	}
}

// PaintOutline strokes a thin frame around rect, used for the selected cell.
func PaintOutline(ops *op.Ops, origin image.Point, rect image.Rectangle, width int, col color.NRGBA) {
	stack := op.Offset(origin).Push(ops)
	defer stack.Pop()
	r := rect.Inset(-width)
	edges := []image.Rectangle{
		{Min: r.Min, Max: image.Pt(r.Max.X, r.Min.Y+width)},
		{Min: image.Pt(r.Min.X, r.Max.Y-width), Max: r.Max},
		{Min: r.Min, Max: image.Pt(r.Min.X+width, r.Max.Y)},
		{Min: image.Pt(r.Max.X-width, r.Min.Y), Max: r.Max},
	}
	for _, e := range edges {
		paint.FillShape(ops, col, clip.Rect(e).Op())
	}
}

// PaintLegend draws stops as a horizontal strip filling bounds.
func PaintLegend(ops *op.Ops, bounds image.Rectangle, stops []Stop) {
	if len(stops) == 0 || bounds.Empty() {
		return
	}
	w := bounds.Dx()
	for i, s := range stops {
		x0 := bounds.Min.X + i*w/len(stops)
		x1 := bounds.Min.X + (i+1)*w/len(stops)
		rect := image.Rect(x0, bounds.Min.Y, x1, bounds.Max.Y)
		paint.FillShape(ops, s.Color, clip.Rect(rect).Op())
	}
}
