// Package theme holds the colors and metrics of the demo window.
package theme

import (
	"image/color"
	"runtime"

	"gioui.org/unit"
	"gioui.org/widget/material"

	"gazeinput/internal/gaze"
)

// Palette defines the window colors.
type Palette struct {
	Background color.NRGBA
	Surface    color.NRGBA
	Panel      color.NRGBA
	Primary    color.NRGBA
	Text       color.NRGBA
	TextMuted  color.NRGBA
	Border     color.NRGBA
	Cursor     color.NRGBA

	// States colors an element by its gaze state, indexed by
	// gaze.PointerState.
	States [gaze.DwellRepeat + 1]color.NRGBA
}

// Config defines the window metrics.
type Config struct {
	CornerRadius unit.Dp
	Spacing      unit.Dp
	Padding      unit.Dp
	SidebarWidth unit.Dp
	FontTitle    unit.Sp
	FontBody     unit.Sp
	FontCaption  unit.Sp
}

// Theme wraps the material theme with the demo styling.
type Theme struct {
	*material.Theme
	Palette Palette
	Config  Config
}

// NewTheme creates a theme for the current OS.
func NewTheme(mtheme *material.Theme) *Theme {
	t := &Theme{Theme: mtheme}
	t.Palette = darkPalette()
	t.Config = Config{
		CornerRadius: unit.Dp(4),
		Spacing:      unit.Dp(8),
		Padding:      unit.Dp(16),
		SidebarWidth: unit.Dp(280),
		FontTitle:    unit.Sp(20),
		FontBody:     unit.Sp(14),
		FontCaption:  unit.Sp(12),
	}
	if runtime.GOOS == "darwin" {
		t.Palette.Primary = color.NRGBA{R: 0x0A, G: 0x84, B: 0xFF, A: 0xFF}
		t.Config.CornerRadius = unit.Dp(10)
		t.Config.Padding = unit.Dp(20)
		t.Config.FontBody = unit.Sp(13)
		t.Config.FontCaption = unit.Sp(11)
	}
	t.Theme.Palette.Bg = t.Palette.Background
	t.Theme.Palette.Fg = t.Palette.Text
	t.Theme.Palette.ContrastBg = t.Palette.Primary
	return t
}

// StateColor returns the fill for an element in state s.
func (t *Theme) StateColor(s gaze.PointerState) color.NRGBA {
	if s < 0 || int(s) >= len(t.Palette.States) {
		return t.Palette.Surface
	}
	return t.Palette.States[s]
}

func darkPalette() Palette {
	p := Palette{
		Background: color.NRGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xFF},
		Surface:    color.NRGBA{R: 0x2C, G: 0x2C, B: 0x2C, A: 0xFF},
		Panel:      color.NRGBA{R: 0x32, G: 0x32, B: 0x32, A: 0xFF},
		Primary:    color.NRGBA{R: 0x00, G: 0x78, B: 0xD4, A: 0xFF},
		Text:       color.NRGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF},
		TextMuted:  color.NRGBA{R: 0xA0, G: 0xA0, B: 0xA0, A: 0xFF},
		Border:     color.NRGBA{R: 0x40, G: 0x40, B: 0x40, A: 0xFF},
		Cursor:     color.NRGBA{R: 0xFF, G: 0xB9, B: 0x00, A: 0xC0},
	}
	p.States[gaze.Exit] = p.Surface
	p.States[gaze.PreEnter] = p.Surface
	p.States[gaze.Enter] = color.NRGBA{R: 0x3A, G: 0x4A, B: 0x5C, A: 0xFF}
	p.States[gaze.Fixation] = color.NRGBA{R: 0x00, G: 0x5A, B: 0x9E, A: 0xFF}
	p.States[gaze.Dwell] = color.NRGBA{R: 0x6B, G: 0xBC, B: 0x0F, A: 0xFF}
	p.States[gaze.DwellRepeat] = color.NRGBA{R: 0x9B, G: 0xD8, B: 0x4F, A: 0xFF}
	return p
}
