package main

import (
	"fmt"

	"gazeinput/internal/uitree"
)

// keypadLayout is the built-in layout: a toolbar, a keypad, a repeating
// scroll button and a panel with gaze disabled.
func keypadLayout() *uitree.NodeSpec {
	const (
		width  = 1200
		height = 800
		key    = 140
		gap    = 16
	)

	toolbar := uitree.NodeSpec{
		Name:   "toolbar",
		Bounds: []float64{0, 0, width, 96},
	}
	for i, name := range []string{"back", "home", "menu"} {
		toolbar.Children = append(toolbar.Children, uitree.NodeSpec{
			Name:   name,
			Bounds: []float64{gap + float64(i)*(key+gap), gap, key, 64},
			Action: name,
		})
	}

	keypad := uitree.NodeSpec{
		Name:   "keypad",
		Bounds: []float64{gap, 128, 3*key + 4*gap, 4*key + 5*gap},
	}
	labels := []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "clear", "0", "enter"}
	for i, label := range labels {
		row, col := i/3, i%3
		x := 2*gap + float64(col)*(key+gap)
		y := 128 + gap + float64(row)*(key+gap)
		keypad.Children = append(keypad.Children, uitree.NodeSpec{
			Name:   "key-" + label,
			Bounds: []float64{x, y, key, key},
			Action: fmt.Sprintf("type %s", label),
		})
	}

	repeat := 5
	scroll := uitree.NodeSpec{
		Name:      "scroll",
		Bounds:    []float64{640, 128, 240, 240},
		Action:    "scroll",
		Delays:    map[string]int64{"dwell": 600, "dwell_repeat": 400},
		MaxRepeat: &repeat,
	}

	notes := uitree.NodeSpec{
		Name:   "notes",
		Bounds: []float64{640, 400, 520, 360},
		Gaze:   "disabled",
		Children: []uitree.NodeSpec{{
			Name:   "notes-save",
			Bounds: []float64{660, 680, 200, 60},
			Action: "save",
		}},
	}

	return &uitree.NodeSpec{
		Name:     "screen",
		Bounds:   []float64{0, 0, width, height},
		Gaze:     "enabled",
		Children: []uitree.NodeSpec{toolbar, keypad, scroll, notes},
	}
}
