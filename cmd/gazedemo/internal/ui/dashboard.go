package ui

import (
	"fmt"
	"image"

	"gioui.org/layout"
	"gioui.org/op/clip"
	"gioui.org/op/paint"
	"gioui.org/unit"
	"gioui.org/widget"
	"gioui.org/widget/material"

	"gazeinput/cmd/gazedemo/internal/theme"
	"gazeinput/internal/gaze"
)

// legend lists the states shown in the sidebar key.
var legend = []gaze.PointerState{gaze.Enter, gaze.Fixation, gaze.Dwell}

// Dashboard is the main window: a sidebar with the state key and recent
// activity next to the board.
type Dashboard struct {
	theme  *theme.Theme
	board  *Board
	states *States
	stats  func() (frames, samples uint64)

	activity widget.List
}

// NewDashboard creates a dashboard around board. stats reports the
// frames and samples delivered so far.
func NewDashboard(t *theme.Theme, board *Board, states *States, stats func() (frames, samples uint64)) *Dashboard {
	return &Dashboard{
		theme:  t,
		board:  board,
		states: states,
		stats:  stats,
		activity: widget.List{
			List: layout.List{
				Axis:        layout.Vertical,
				ScrollToEnd: true,
			},
		},
	}
}

// Layout renders the dashboard.
func (d *Dashboard) Layout(gtx layout.Context) layout.Dimensions {
	paint.Fill(gtx.Ops, d.theme.Palette.Background)

	return layout.Flex{
		Axis: layout.Horizontal,
	}.Layout(gtx,
		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			w := gtx.Dp(d.theme.Config.SidebarWidth)
			gtx.Constraints.Min.X = w
			gtx.Constraints.Max.X = w
			return d.layoutSidebar(gtx)
		}),

		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			size := image.Pt(gtx.Dp(1), gtx.Constraints.Max.Y)
			paint.FillShape(gtx.Ops, d.theme.Palette.Border, clip.Rect{Max: size}.Op())
			return layout.Dimensions{Size: size}
		}),

		layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
			return layout.UniformInset(d.theme.Config.Padding).Layout(gtx, d.board.Layout)
		}),
	)
}

func (d *Dashboard) layoutSidebar(gtx layout.Context) layout.Dimensions {
	frames, samples := d.stats()
	recent := d.states.Recent()

	return layout.UniformInset(unit.Dp(16)).Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		children := []layout.FlexChild{
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				title := material.H6(d.theme.Theme, "GAZE DEMO")
				title.Color = d.theme.Palette.Primary
				title.TextSize = d.theme.Config.FontTitle
				return title.Layout(gtx)
			}),
			layout.Rigid(layout.Spacer{Height: unit.Dp(8)}.Layout),
			layout.Rigid(d.caption("Rest the mouse on an element to dwell on it.")),
			layout.Rigid(layout.Spacer{Height: unit.Dp(24)}.Layout),
		}
		for _, s := range legend {
			children = append(children, layout.Rigid(d.swatch(s)))
		}
		children = append(children,
			layout.Rigid(layout.Spacer{Height: unit.Dp(24)}.Layout),
			layout.Rigid(d.body(fmt.Sprintf("Frames %d  Samples %d", frames, samples))),
			layout.Rigid(d.body(fmt.Sprintf("Eyes off %d", d.states.EyesOff()))),
			layout.Rigid(layout.Spacer{Height: unit.Dp(24)}.Layout),
			layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
				return material.List(d.theme.Theme, &d.activity).Layout(gtx, len(recent), func(gtx layout.Context, i int) layout.Dimensions {
					return d.caption(recent[i])(gtx)
				})
			}),
		)
		return layout.Flex{Axis: layout.Vertical}.Layout(gtx, children...)
	})
}

func (d *Dashboard) swatch(s gaze.PointerState) layout.Widget {
	return func(gtx layout.Context) layout.Dimensions {
		return layout.Flex{Alignment: layout.Middle}.Layout(gtx,
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				size := image.Pt(gtx.Dp(14), gtx.Dp(14))
				rr := clip.UniformRRect(image.Rectangle{Max: size}, gtx.Dp(3))
				paint.FillShape(gtx.Ops, d.theme.StateColor(s), rr.Op(gtx.Ops))
				return layout.Dimensions{Size: size}
			}),
			layout.Rigid(layout.Spacer{Width: d.theme.Config.Spacing}.Layout),
			layout.Rigid(d.body(s.String())),
		)
	}
}

func (d *Dashboard) body(text string) layout.Widget {
	return func(gtx layout.Context) layout.Dimensions {
		l := material.Body2(d.theme.Theme, text)
		l.Color = d.theme.Palette.Text
		l.TextSize = d.theme.Config.FontBody
		return l.Layout(gtx)
	}
}

func (d *Dashboard) caption(text string) layout.Widget {
	return func(gtx layout.Context) layout.Dimensions {
		l := material.Caption(d.theme.Theme, text)
		l.Color = d.theme.Palette.TextMuted
		l.TextSize = d.theme.Config.FontCaption
		return l.Layout(gtx)
	}
}
