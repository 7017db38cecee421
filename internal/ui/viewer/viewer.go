// Package viewer is the desktop heat map of a sample's newest quick scan.
// It redraws whenever a scan or a classification change lands on disk.
package viewer

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"time"

	"gioui.org/app"
	"gioui.org/gesture"
	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/op/clip"
	"gioui.org/op/paint"
	"gioui.org/unit"
	"gioui.org/widget"
	"gioui.org/widget/material"
	"go.uber.org/zap"
	"golang.org/x/exp/shiny/materialdesign/icons"

	"github.com/OpenTraceLab/OpenTraceScan/pkg/classify"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/heatmap"
)

const reloadDebounce = 150 * time.Millisecond

var (
	colorBackground = color.NRGBA{R: 238, G: 241, B: 251, A: 255}
	colorEmptyCell  = color.NRGBA{R: 210, G: 214, B: 226, A: 255}
	colorSelection  = color.NRGBA{R: 34, G: 37, B: 49, A: 255}
)

// Params configures a viewer window.
type Params struct {
	Sample   string
	Dir      string
	BookPath string
	Range    heatmap.Range
	Columns  int
	Log      *zap.Logger
}

// Viewer draws the heat map of the state's session.
type Viewer struct {
	Window *app.Window
	Theme  *material.Theme
	State  *State

	params Params
	log    *zap.Logger
	ops    op.Ops

	reloadBtn   widget.Clickable
	clearBtn    widget.Clickable
	reloadIcon  *widget.Icon
	clearIcon   *widget.Icon
	cellClick   gesture.Click
	detailsList layout.List
}

// New binds a viewer to window.
func New(window *app.Window, p Params) *Viewer {
	if p.Log == nil {
		p.Log = zap.NewNop()
	}
	if !p.Range.Valid() {
		p.Range = heatmap.DefaultRange
	}
	theme := material.NewTheme()
	theme.Palette = material.Palette{
		Bg:         color.NRGBA{R: 245, G: 246, B: 252, A: 255},
		Fg:         color.NRGBA{R: 34, G: 37, B: 49, A: 255},
		ContrastBg: color.NRGBA{R: 80, G: 120, B: 255, A: 255},
		ContrastFg: color.NRGBA{R: 255, G: 255, B: 255, A: 255},
	}
	v := &Viewer{
		Window:      window,
		Theme:       theme,
		State:       NewState(p.Dir, p.BookPath),
		params:      p,
		log:         p.Log,
		detailsList: layout.List{Axis: layout.Vertical},
	}
	v.reloadIcon = v.makeIcon(icons.NavigationRefresh, "reload")
	v.clearIcon = v.makeIcon(icons.ContentClear, "clear")
	return v
}

func (v *Viewer) makeIcon(data []byte, name string) *widget.Icon {
	icon, err := widget.NewIcon(data)
	if err != nil {
		v.log.Warn("failed to load icon", zap.String("icon", name), zap.Error(err))
		return nil
	}
	return icon
}

// Run processes window events until the window is closed. The sample
// directory is watched for the lifetime of ctx.
func (v *Viewer) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	v.reload()
	go func() {
		err := Watch(ctx, v.params.Dir, reloadDebounce, v.log, func() {
			v.reload()
			v.Window.Invalidate()
		})
		if err != nil {
			v.log.Error("sample watcher stopped", zap.Error(err))
		}
	}()

	for {
		e := v.Window.Event()
		switch ev := e.(type) {
		case app.DestroyEvent:
			return ev.Err
		case app.FrameEvent:
			gtx := app.NewContext(&v.ops, ev)
			v.layout(gtx)
			ev.Frame(gtx.Ops)
		}
	}
}

func (v *Viewer) reload() {
	if err := v.State.Reload(); err != nil {
		v.log.Warn("reload failed", zap.String("dir", v.params.Dir), zap.Error(err))
	}
}

func (v *Viewer) layout(gtx layout.Context) layout.Dimensions {
	for v.reloadBtn.Clicked(gtx) {
		v.reload()
	}
	for v.clearBtn.Clicked(gtx) {
		v.State.Select(-1)
	}
	snap := v.State.Snapshot()

	paint.FillShape(gtx.Ops, colorBackground, clip.Rect{Max: gtx.Constraints.Max}.Op())

	return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			return v.layoutTopBar(gtx, snap)
		}),
		layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
			return layout.Flex{Axis: layout.Horizontal}.Layout(gtx,
				layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
					return layout.UniformInset(unit.Dp(16)).Layout(gtx, func(gtx layout.Context) layout.Dimensions {
						return v.layoutGrid(gtx, snap)
					})
				}),
				layout.Rigid(func(gtx layout.Context) layout.Dimensions {
					width := gtx.Dp(unit.Dp(280))
					gtx.Constraints.Min.X = width
					gtx.Constraints.Max.X = width
					return v.layoutDetails(gtx, snap)
				}),
			)
		}),
		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			return v.layoutLegend(gtx)
		}),
	)
}

func (v *Viewer) layoutTopBar(gtx layout.Context, snap Snapshot) layout.Dimensions {
	title := fmt.Sprintf("Quick scan: %s", v.params.Sample)
	if snap.Session != nil {
		title = fmt.Sprintf("Quick scan: %s  %s @ %gV", v.params.Sample, snap.Session.Timestamp.Format("2006-01-02 15:04:05"), snap.Session.VoltageV)
	}
	return layout.Inset{
		Top: unit.Dp(12), Bottom: unit.Dp(4), Left: unit.Dp(16), Right: unit.Dp(16),
	}.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		return layout.Flex{Axis: layout.Horizontal, Alignment: layout.Middle}.Layout(gtx,
			layout.Rigid(material.H6(v.Theme, title).Layout),
			layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
				return layout.Dimensions{}
			}),
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				return v.iconButton(gtx, &v.clearBtn, v.clearIcon, "Clear selection")
			}),
			layout.Rigid(layout.Spacer{Width: unit.Dp(8)}.Layout),
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				return v.iconButton(gtx, &v.reloadBtn, v.reloadIcon, "Reload")
			}),
		)
	})
}

func (v *Viewer) iconButton(gtx layout.Context, btn *widget.Clickable, icon *widget.Icon, label string) layout.Dimensions {
	if icon == nil {
		b := material.Button(v.Theme, btn, label)
		b.Inset = layout.UniformInset(unit.Dp(6))
		return b.Layout(gtx)
	}
	b := material.IconButton(v.Theme, btn, icon, label)
	b.Size = unit.Dp(20)
	b.Inset = layout.UniformInset(unit.Dp(6))
	return b.Layout(gtx)
}

func (v *Viewer) grid(gtx layout.Context, n int) heatmap.Grid {
	g := heatmap.DefaultGrid(n)
	if v.params.Columns > 0 {
		g.Columns = v.params.Columns
	}
	g.CellSize = gtx.Dp(unit.Dp(32))
	g.Gap = gtx.Dp(unit.Dp(4))
	return g
}

func (v *Viewer) layoutGrid(gtx layout.Context, snap Snapshot) layout.Dimensions {
	if snap.Session == nil {
		msg := "No quick scan stored for this sample yet."
		if snap.Err != nil {
			msg = snap.Err.Error()
		}
		return material.Body1(v.Theme, msg).Layout(gtx)
	}
	devices := snap.Session.Devices
	g := v.grid(gtx, len(devices))
	size := g.Size(len(devices))

	for {
		ev, ok := v.cellClick.Update(gtx.Source)
		if !ok {
			break
		}
		if ev.Kind == gesture.KindClick {
			v.State.Select(g.Hit(ev.Position, len(devices)))
			snap = v.State.Snapshot()
		}
	}

	for i := range devices {
		paint.FillShape(gtx.Ops, colorEmptyCell, clip.Rect(g.Rect(i)).Op())
	}
	heatmap.PaintCells(gtx.Ops, image.Point{}, g.Cells(devices, snap.Session.Result, v.params.Range))
	if snap.Selected >= 0 {
		heatmap.PaintOutline(gtx.Ops, image.Point{}, g.Rect(snap.Selected), gtx.Dp(unit.Dp(2)), colorSelection)
	}

	area := clip.Rect{Max: size}.Push(gtx.Ops)
	v.cellClick.Add(gtx.Ops)
	area.Pop()

	return layout.Dimensions{Size: size}
}

func (v *Viewer) layoutDetails(gtx layout.Context, snap Snapshot) layout.Dimensions {
	lines := detailLines(snap)
	return layout.UniformInset(unit.Dp(16)).Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		return v.detailsList.Layout(gtx, len(lines), func(gtx layout.Context, i int) layout.Dimensions {
			if i == 0 {
				return material.Body1(v.Theme, lines[i]).Layout(gtx)
			}
			return material.Body2(v.Theme, lines[i]).Layout(gtx)
		})
	})
}

func (v *Viewer) layoutLegend(gtx layout.Context) layout.Dimensions {
	stops := heatmap.Legend(32, v.params.Range)
	return layout.Inset{Left: unit.Dp(16), Right: unit.Dp(16), Bottom: unit.Dp(12)}.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		return layout.Flex{Axis: layout.Horizontal, Alignment: layout.Middle}.Layout(gtx,
			layout.Rigid(material.Body2(v.Theme, fmt.Sprintf("%.0e A", v.params.Range.Min)).Layout),
			layout.Rigid(layout.Spacer{Width: unit.Dp(8)}.Layout),
			layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
				size := image.Pt(gtx.Constraints.Max.X, gtx.Dp(unit.Dp(12)))
				heatmap.PaintLegend(gtx.Ops, image.Rectangle{Max: size}, stops)
				return layout.Dimensions{Size: size}
			}),
			layout.Rigid(layout.Spacer{Width: unit.Dp(8)}.Layout),
			layout.Rigid(material.Body2(v.Theme, fmt.Sprintf("%.0e A", v.params.Range.Max)).Layout),
		)
	})
}

// detailLines describes the selected device, or the sample's counts when
// nothing is selected.
func detailLines(snap Snapshot) []string {
	if snap.Session == nil {
		return []string{"No data"}
	}
	if snap.Selected < 0 || snap.Selected >= len(snap.Session.Devices) {
		lines := []string{fmt.Sprintf("%d devices", len(snap.Session.Devices))}
		lines = append(lines, fmt.Sprintf("%d measured", snap.Session.Result.Measured()))
		if snap.Book != nil {
			counts := snap.Book.Counts()
			for _, c := range []classify.Classification{classify.Working, classify.NotWorking, classify.Unknown} {
				lines = append(lines, fmt.Sprintf("%s: %d", c, counts[c]))
			}
		}
		return lines
	}

	d := snap.Session.Devices[snap.Selected]
	lines := []string{d.Name()}
	if cur, ok := snap.Session.Result.Value(d.Key); ok {
		lines = append(lines, fmt.Sprintf("Current: %.3e A", cur))
	} else {
		lines = append(lines, "Current: no reading")
	}
	if snap.Book == nil {
		return lines
	}
	st, ok := snap.Book.Status(d.Key)
	if !ok {
		return append(lines, "Status: "+string(classify.Unknown))
	}
	lines = append(lines,
		"Status: "+string(st.Effective()),
		"Automatic: "+string(st.AutoClassification),
		"Manual: "+string(st.ManualStatus),
		fmt.Sprintf("Measurements: %d", st.MeasurementCount),
	)
	if !st.LastTested.IsZero() {
		lines = append(lines, "Last tested: "+st.LastTested.Format(time.RFC3339))
	}
	if st.Notes != "" {
		lines = append(lines, "Notes: "+st.Notes)
	}
	return lines
}

// Show opens the viewer window and blocks until it is closed.
func Show(ctx context.Context, p Params) error {
	go func() {
		w := new(app.Window)
		w.Option(app.Title("Quick Scan Viewer"), app.Size(unit.Dp(1024), unit.Dp(720)))
		v := New(w, p)
		if err := v.Run(ctx); err != nil {
			v.log.Error("viewer closed with error", zap.Error(err))
		}
		os.Exit(0)
	}()

	app.Main()
	return nil
}
