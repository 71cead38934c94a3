// gazedemo is a window that drives a gaze pointer with the mouse. Resting
// the mouse on an element walks it through the gaze states and invokes it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"gioui.org/app"
	"gioui.org/op"
	"gioui.org/unit"
	"gioui.org/widget/material"

	"gazeinput/cmd/gazedemo/internal/theme"
	"gazeinput/cmd/gazedemo/internal/ui"
	"gazeinput/internal/config"
	"gazeinput/internal/dispatch"
	"gazeinput/internal/gaze"
	"gazeinput/internal/logging"
	"gazeinput/internal/source"
	"gazeinput/internal/uitree"
)

var (
	configPath = flag.String("config", "", "path to config file")
	layoutPath = flag.String("layout", "", "element layout file (default: built-in keypad)")
	interval   = flag.Duration("interval", ui.DefaultSampleInterval, "mouse sampling interval")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	lc := logging.DefaultConfig()
	lc.Output = "stderr"
	if level, err := logging.ParseLevel(cfg.Logging.Level); err == nil {
		lc.Level = level
	}
	logger, err := logging.New(lc)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}

	var l *uitree.Layout
	if *layoutPath != "" {
		l, err = uitree.LoadLayoutFile(*layoutPath)
	} else {
		l, err = uitree.BuildLayout(keypadLayout())
	}
	if err != nil {
		log.Fatalf("layout: %v", err)
	}

	go func() {
		w := new(app.Window)
		w.Option(app.Title("Gaze Demo"))
		w.Option(app.Size(unit.Dp(1280), unit.Dp(800)))

		if err := run(w, cfg, l, logger.Logger); err != nil {
			log.Fatal(err)
		}
		os.Exit(0)
	}()
	app.Main()
}

func run(w *app.Window, cfg *config.Config, l *uitree.Layout, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop := dispatch.New(dispatch.DefaultQueueSize, logger)
	hub := source.NewHub(loop, logger)
	p, err := gaze.New(gaze.Options{
		HitTester:         uitree.HitTester{},
		Scheduler:         loop,
		Source:            hub,
		Logger:            logger.With("component", "pointer"),
		MaxSampleDuration: cfg.MaxSampleDuration(),
	})
	if err != nil {
		return err
	}
	go loop.Run(ctx)

	states := ui.NewStates(w.Invalidate)
	err = loop.Do(ctx, func() {
		p.LoadSettings(cfg.Settings())
		l.Apply(p)
		if n := cfg.Pointer.MaxRepeatCount; n > 0 {
			l.DefaultMaxRepeat(p, n)
		}
		l.OnInvoke(states.Invoked)
		states.Attach(p)
		p.AddRoot(l.Root)
	})
	if err != nil {
		return fmt.Errorf("start pointer: %w", err)
	}

	mouse := ui.NewMouseTracker(hub, logger)
	go mouse.Run(ctx, *interval)

	t := theme.NewTheme(material.NewTheme())
	board := ui.NewBoard(t, l.Root, states, mouse)
	dashboard := ui.NewDashboard(t, board, states, hub.Stats)

	var ops op.Ops
	for {
		switch e := w.Event().(type) {
		case app.DestroyEvent:
			return e.Err
		case app.FrameEvent:
			gtx := app.NewContext(&ops, e)
			dashboard.Layout(gtx)
			e.Frame(gtx.Ops)
		}
	}
}
