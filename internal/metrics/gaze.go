package metrics

import (
	"time"

	"gazeinput/internal/gaze"
)

// GazeMetrics is the metric set of a gaze pointer. It implements
// gaze.Observer and follows the pointer's events once attached.
type GazeMetrics struct {
	registry *Registry

	SamplesTotal     *Counter
	InvocationsTotal *Counter
	HandledTotal     *Counter
	EyesOffTotal     *Counter

	ActiveTargets *Gauge
	HistoryLength *Gauge
	UptimeSeconds *Gauge

	SampleInterval *Histogram
	TimeToExit     *Histogram

	started time.Time
}

// NewGazeMetrics registers the gaze metric set.
func NewGazeMetrics(registry *Registry) *GazeMetrics {
	if registry == nil {
		registry = Default()
	}
	m := &GazeMetrics{
		registry: registry,

		SamplesTotal: registry.RegisterCounter(
			"samples_total",
			"Total number of gaze samples processed",
			nil,
		),
		InvocationsTotal: registry.RegisterCounter(
			"invocations_total",
			"Total number of elements invoked by dwelling",
			nil,
		),
		HandledTotal: registry.RegisterCounter(
			"invocations_handled_total",
			"Invocations suppressed by a listener",
			nil,
		),
		EyesOffTotal: registry.RegisterCounter(
			"eyes_off_total",
			"Times the eyes-off delay elapsed without samples",
			nil,
		),
		ActiveTargets: registry.RegisterGauge(
			"active_targets",
			"Targets currently tracked",
			nil,
		),
		HistoryLength: registry.RegisterGauge(
			"history_entries",
			"Entries in the gaze history window",
			nil,
		),
		UptimeSeconds: registry.RegisterGauge(
			"uptime_seconds",
			"Seconds since the metric set was created",
			nil,
		),
		SampleInterval: registry.RegisterHistogram(
			"sample_interval_seconds",
			"Time between consecutive processed samples",
			nil,
			SampleIntervalBuckets,
		),
		TimeToExit: registry.RegisterHistogram(
			"exit_elapsed_seconds",
			"Gaze time accumulated by a target when it exited",
			nil,
			DurationBuckets,
		),
		started: time.Now(),
	}

	// pre-register every state so scrapes show zeroes
	for s := gaze.Exit; s <= gaze.DwellRepeat; s++ {
		if s != gaze.PreEnter {
			m.stateChanges(s)
		}
	}
	return m
}

func (m *GazeMetrics) stateChanges(s gaze.PointerState) *Counter {
	return m.registry.RegisterCounter(
		"state_changes_total",
		"State changes reported, by state",
		Labels{"state": s.String()},
	)
}

func (m *GazeMetrics) dropped(reason string) *Counter {
	return m.registry.RegisterCounter(
		"samples_dropped_total",
		"Gaze samples dropped before processing, by reason",
		Labels{"reason": reason},
	)
}

// SampleProcessed implements gaze.Observer.
func (m *GazeMetrics) SampleProcessed(interval time.Duration, activeTargets, historyLen int) {
	m.SamplesTotal.Inc()
	m.SampleInterval.ObserveDuration(interval)
	m.ActiveTargets.Set(int64(activeTargets))
	m.HistoryLength.Set(int64(historyLen))
}

// SampleDropped implements gaze.Observer.
func (m *GazeMetrics) SampleDropped(reason string) {
	m.dropped(reason).Inc()
}

// EyesOff implements gaze.Observer.
func (m *GazeMetrics) EyesOff() {
	m.EyesOffTotal.Inc()
}

// Attach follows the state changes and settled invocations of p.
func (m *GazeMetrics) Attach(p *gaze.Pointer) []gaze.Subscription {
	return []gaze.Subscription{
		p.OnStateChanged(m.StateChanged),
		p.OnInvokeDone(m.Invoked),
	}
}

// StateChanged records a state change event.
func (m *GazeMetrics) StateChanged(ev gaze.StateChangedEvent) {
	if ev.Element == nil {
		// the eyes-off signal is counted by EyesOff
		return
	}
	m.stateChanges(ev.State).Inc()
	if ev.State == gaze.Exit {
		m.TimeToExit.ObserveDuration(ev.Elapsed)
	}
}

// Invoked records an invocation event.
func (m *GazeMetrics) Invoked(ev gaze.InvokedEvent) {
	if ev.Handled {
		m.HandledTotal.Inc()
		return
	}
	m.InvocationsTotal.Inc()
}

// UpdateUptime refreshes the uptime gauge.
func (m *GazeMetrics) UpdateUptime() {
	m.UptimeSeconds.Set(int64(time.Since(m.started).Seconds()))
}

var _ gaze.Observer = (*GazeMetrics)(nil)
