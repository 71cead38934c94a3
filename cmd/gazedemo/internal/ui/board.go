package ui

import (
	"image"
	"math"
	"strconv"
	"time"

	"gioui.org/f32"
	"gioui.org/io/event"
	"gioui.org/io/pointer"
	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/op/clip"
	"gioui.org/op/paint"
	"gioui.org/widget/material"

	"gazeinput/cmd/gazedemo/internal/theme"
	"gazeinput/internal/gaze"
	"gazeinput/internal/uitree"
)

// invokeFlash is how long an invoked element stays highlighted.
const invokeFlash = 250 * time.Millisecond

// Board draws a layout scaled into the available space and reports the
// mouse to a MouseTracker in layout coordinates.
type Board struct {
	theme  *theme.Theme
	root   *uitree.Node
	states *States
	mouse  *MouseTracker

	scale  float64
	origin gaze.Point
}

// NewBoard creates a board for root.
func NewBoard(t *theme.Theme, root *uitree.Node, states *States, mouse *MouseTracker) *Board {
	return &Board{theme: t, root: root, states: states, mouse: mouse, scale: 1}
}

// toLayout converts a window position to layout coordinates.
func (b *Board) toLayout(p f32.Point) gaze.Point {
	return gaze.Point{
		X: float64(p.X)/b.scale + b.origin.X,
		Y: float64(p.Y)/b.scale + b.origin.Y,
	}
}

// toWindow converts a layout rectangle to window pixels.
func (b *Board) toWindow(r uitree.Rect) image.Rectangle {
	px := func(v, o float64) int { return int(math.Round((v - o) * b.scale)) }
	return image.Rect(
		px(r.Min.X, b.origin.X), px(r.Min.Y, b.origin.Y),
		px(r.Max.X, b.origin.X), px(r.Max.Y, b.origin.Y),
	)
}

// Layout handles pointer input and draws the element tree.
func (b *Board) Layout(gtx layout.Context) layout.Dimensions {
	size := gtx.Constraints.Max
	bounds := b.root.Bounds
	if w, h := bounds.Max.X-bounds.Min.X, bounds.Max.Y-bounds.Min.Y; w > 0 && h > 0 {
		b.scale = math.Min(float64(size.X)/w, float64(size.Y)/h)
	}
	b.origin = bounds.Min

	for {
		ev, ok := gtx.Event(pointer.Filter{
			Target: b,
			Kinds:  pointer.Enter | pointer.Move | pointer.Drag | pointer.Leave | pointer.Cancel,
		})
		if !ok {
			break
		}
		e, ok := ev.(pointer.Event)
		if !ok {
			continue
		}
		switch e.Kind {
		case pointer.Enter:
			b.mouse.Enter(b.toLayout(e.Position))
		case pointer.Move, pointer.Drag:
			b.mouse.Move(b.toLayout(e.Position))
		case pointer.Leave, pointer.Cancel:
			b.mouse.Leave()
		}
	}

	area := clip.Rect(image.Rectangle{Max: size}).Push(gtx.Ops)
	event.Op(gtx.Ops, b)
	area.Pop()

	flashing := false
	b.root.Walk(func(n *uitree.Node) bool {
		if b.drawNode(gtx, n) {
			flashing = true
		}
		return true
	})
	if flashing {
		gtx.Execute(op.InvalidateCmd{At: gtx.Now.Add(invokeFlash)})
	}

	if pos, inside := b.mouse.Position(); inside {
		b.drawCursor(gtx, pos)
	}
	return layout.Dimensions{Size: size}
}

// drawNode paints one node and reports whether it is flashing.
func (b *Board) drawNode(gtx layout.Context, n *uitree.Node) bool {
	r := b.toWindow(n.Bounds)
	if r.Empty() {
		return false
	}
	radius := gtx.Dp(b.theme.Config.CornerRadius)
	if n == b.root {
		paint.FillShape(gtx.Ops, b.theme.Palette.Background, clip.Rect(r).Op())
		return false
	}

	paint.FillShape(gtx.Ops, b.theme.Palette.Border, clip.UniformRRect(r, radius).Op(gtx.Ops))
	fill := b.theme.StateColor(b.states.State(n))
	flashing := b.states.InvokedWithin(n, invokeFlash)
	if flashing {
		fill = b.theme.Palette.Primary
	}
	border := gtx.Dp(1)
	inner := image.Rect(r.Min.X+border, r.Min.Y+border, r.Max.X-border, r.Max.Y-border)
	paint.FillShape(gtx.Ops, fill, clip.UniformRRect(inner, radius).Op(gtx.Ops))

	label := n.Name
	if n.CanInvoke() {
		if count := b.states.Invocations(n); count > 0 {
			label = n.Name + " ×" + strconv.Itoa(count)
		}
	}
	off := op.Offset(inner.Min.Add(image.Pt(gtx.Dp(6), gtx.Dp(4)))).Push(gtx.Ops)
	lgtx := gtx
	lgtx.Constraints = layout.Exact(inner.Size())
	lgtx.Constraints.Min = image.Point{}
	l := material.Caption(b.theme.Theme, label)
	l.Color = b.theme.Palette.Text
	l.TextSize = b.theme.Config.FontCaption
	l.MaxLines = 1
	l.Layout(lgtx)
	off.Pop()
	return flashing
}

func (b *Board) drawCursor(gtx layout.Context, pos gaze.Point) {
	p := image.Pt(
		int(math.Round((pos.X-b.origin.X)*b.scale)),
		int(math.Round((pos.Y-b.origin.Y)*b.scale)),
	)
	r := gtx.Dp(8)
	circle := clip.Ellipse(image.Rect(p.X-r, p.Y-r, p.X+r, p.Y+r)).Op(gtx.Ops)
	paint.FillShape(gtx.Ops, b.theme.Palette.Cursor, circle)
}
