package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"gazeinput/internal/config"
	"gazeinput/internal/dispatch"
	"gazeinput/internal/gaze"
	"gazeinput/internal/health"
	"gazeinput/internal/journal"
	"gazeinput/internal/metrics"
	"gazeinput/internal/source"
	"gazeinput/internal/source/wssrc"
	"gazeinput/internal/uitree"
)

// daemon owns the pointer and everything feeding or observing it. The
// pointer, the layout and the subscriptions are only touched on loop.
type daemon struct {
	cfg *config.Config
	log *slog.Logger

	loop     *dispatch.Loop
	hub      *source.Hub
	pointer  *gaze.Pointer
	layout   *uitree.Layout
	registry *metrics.Registry
	metrics  *metrics.GazeMetrics
	journal  *journal.Journal
	ws       *wssrc.Handler
	health   *health.Checker

	observer *sampleClock
	subs     []gaze.Subscription
}

// sampleClock remembers when the last sample was processed for the
// tracker freshness check.
type sampleClock struct {
	gaze.Observer
	last atomic.Int64
}

func (c *sampleClock) SampleProcessed(interval time.Duration, active, historyLen int) {
	c.last.Store(time.Now().UnixNano())
	c.Observer.SampleProcessed(interval, active, historyLen)
}

func (c *sampleClock) Last() time.Time {
	ns := c.last.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func newDaemon(cfg *config.Config, layout *uitree.Layout, log *slog.Logger) (*daemon, error) {
	d := &daemon{
		cfg:      cfg,
		log:      log,
		layout:   layout,
		loop:     dispatch.New(dispatch.DefaultQueueSize, log.With("component", "dispatch")),
		registry: metrics.NewRegistry("gaze", ""),
		health:   health.NewChecker(),
	}
	d.metrics = metrics.NewGazeMetrics(d.registry)
	d.observer = &sampleClock{Observer: d.metrics}
	d.hub = source.NewHub(d.loop, log)
	d.ws = wssrc.NewHandler(d.hub, cfg.Server.AllowedOrigins, log)

	p, err := gaze.New(gaze.Options{
		HitTester:         uitree.HitTester{},
		Scheduler:         d.loop,
		Source:            d.hub,
		Logger:            log.With("component", "pointer"),
		Observer:          d.observer,
		MaxSampleDuration: cfg.MaxSampleDuration(),
	})
	if err != nil {
		return nil, err
	}
	d.pointer = p

	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Path, journal.Options{
			BusyTimeout: time.Duration(cfg.Journal.BusyTimeoutMs) * time.Millisecond,
			Retention:   time.Duration(cfg.Journal.RetentionDays) * 24 * time.Hour,
			Logger:      log,
		})
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		host, _ := os.Hostname()
		if _, err := j.BeginSession(host); err != nil {
			j.Close()
			return nil, fmt.Errorf("begin journal session: %w", err)
		}
		d.journal = j
	}

	d.registerChecks()
	return d, nil
}

func (d *daemon) registerChecks() {
	d.health.RegisterFunc("dispatch", true, health.LatencyCheck(func(ctx context.Context) error {
		return d.loop.Do(ctx, func() {})
	}, 100*time.Millisecond))
	if d.journal != nil {
		d.health.RegisterFunc("journal", true, health.PingCheck("journal", d.journal.Ping))
	}
	d.health.RegisterFunc("tracker", false, health.FreshnessCheck("samples", d.observer.Last, time.Minute))
}

// start wires the pointer on the loop: settings, layout attributes,
// observers and finally the root, which subscribes to the hub.
func (d *daemon) start(ctx context.Context) error {
	return d.loop.Do(ctx, func() {
		p := d.pointer
		p.LoadSettings(d.cfg.Settings())
		d.layout.Apply(p)
		if n := d.cfg.Pointer.MaxRepeatCount; n > 0 {
			d.layout.DefaultMaxRepeat(p, n)
		}
		d.layout.OnInvoke(func(n *uitree.Node) {
			d.log.Info("element invoked", "element", n.Path(), "action", n.Action)
		})

		d.subs = append(d.subs, d.metrics.Attach(p)...)
		if d.journal != nil {
			d.subs = append(d.subs, d.journal.Attach(p)...)
		}
		p.AddRoot(d.layout.Root)
	})
}

// reload applies a changed configuration. Only the pointer settings can
// change at runtime; other sections need a restart.
func (d *daemon) reload(old, new *config.Config) {
	posted := d.loop.Post(func() {
		d.pointer.LoadSettings(new.Settings())
	})
	if !posted {
		return
	}
	d.log.Info("configuration reloaded",
		"dwell_us", new.Pointer.DwellDelayUs,
		"fixation_us", new.Pointer.FixationDelayUs,
	)
	if old.Layout != new.Layout || old.Server.Listen != new.Server.Listen ||
		old.Journal != new.Journal || old.DBus != new.DBus ||
		old.Pointer.MaxSampleMs != new.Pointer.MaxSampleMs {
		d.log.Warn("some configuration changes take effect after a restart")
	}
}

// close unregisters the root and closes the journal. The loop may
// already be stopped, in which case the pointer is left as is.
func (d *daemon) close() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := d.loop.Do(ctx, func() {
		d.pointer.RemoveRoot(d.layout.Root)
		for _, s := range d.subs {
			s.Cancel()
		}
		d.subs = nil
	})
	if err != nil && !errors.Is(err, dispatch.ErrStopped) {
		d.log.Warn("pointer shutdown", "error", err)
	}
	if d.journal != nil {
		if err := d.journal.Close(); err != nil {
			d.log.Warn("close journal", "error", err)
		}
	}
}
