package gaze

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresHitTester(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, ErrNoHitTester)
}

func TestNewDefaults(t *testing.T) {
	p, err := New(Options{HitTester: testHitTester{}, Logger: discardLogger()})
	require.NoError(t, err)

	assert.Equal(t, DefaultDelays(), p.Defaults())
	assert.Equal(t, DefaultEyesOffDelay, p.EyesOffDelay())
	assert.IsType(t, NullFilter{}, p.Filter())
	assert.True(t, p.Cursor().IsVisible)
	assert.Equal(t, DefaultCursorRadius, p.Cursor().Radius)

	// off-screen delays are seeded, which widens the window past the default
	off := p.OffScreenElement()
	assert.Equal(t, DefaultFixationDelay, p.ElementStateDelay(off, Fixation))
	assert.Equal(t, 2*DefaultRepeatDelay, p.MaxHistoryTime())
}

func TestDwellScenario(t *testing.T) {
	f := newFixture(t)

	for _, at := range []int{0, 400, 900, 1100} {
		f.sample(t, at, buttonPt)
	}

	got := f.eventsFor(f.button)
	require.Equal(t, []PointerState{Enter, Fixation, Dwell}, states(got))
	assert.Equal(t, ms(400), got[0].Elapsed)
	assert.Equal(t, ms(900), got[1].Elapsed)
	assert.Equal(t, ms(1100), got[2].Elapsed)
	assert.Equal(t, 1, f.button.invokes)
	assert.Equal(t, 0, f.other.invokes)
}

func TestDwellRequiresStrictlyExceeding(t *testing.T) {
	f := newFixture(t)

	for _, at := range []int{0, 10, 20, 1000} {
		f.sample(t, at, buttonPt)
	}
	item, ok := f.p.Target(f.button)
	require.True(t, ok)
	assert.Equal(t, Fixation, item.State)
	assert.Equal(t, time.Second, item.ElapsedTime())
	assert.Zero(t, f.button.invokes)

	f.sample(t, 1001, buttonPt)
	assert.Equal(t, Dwell, item.State)
	assert.Equal(t, 1, f.button.invokes)
}

func TestDwellRepeatIsBounded(t *testing.T) {
	f := newFixture(t)
	f.p.SetElementStateDelay(f.button, Fixation, ms(200))
	SetMaxRepeatCount(f.p.Store(), f.button, 2)

	for at := 0; at <= 5000; at += 100 {
		f.sample(t, at, buttonPt)
	}

	got := f.eventsFor(f.button)
	require.Equal(t, []PointerState{Enter, Fixation, Dwell, DwellRepeat, DwellRepeat}, states(got))
	assert.Equal(t, ms(100), got[0].Elapsed)
	assert.Equal(t, ms(300), got[1].Elapsed)
	assert.Equal(t, ms(1100), got[2].Elapsed)
	assert.Equal(t, ms(2100), got[3].Elapsed)
	// repeats follow at Dwell minus Fixation
	assert.Equal(t, ms(2900), got[4].Elapsed)
	assert.Equal(t, 3, f.button.invokes)

	item, ok := f.p.Target(f.button)
	require.True(t, ok)
	assert.Equal(t, Dwell, item.State)
	assert.Equal(t, Never, item.NextStateTime)
	assert.Equal(t, ms(5000), item.ElapsedTime())
}

func TestExitAfterIdleOnOtherTarget(t *testing.T) {
	f := newFixture(t)

	for at := 0; at <= 600; at += 100 {
		f.sample(t, at, buttonPt)
	}
	for at := 700; at <= 1300; at += 100 {
		f.sample(t, at, otherPt)
	}

	exits := 0
	for _, ev := range f.eventsFor(f.button) {
		if ev.State == Exit {
			exits++
			assert.Equal(t, ms(600), ev.Elapsed)
		}
	}
	assert.Equal(t, 1, exits)

	_, tracked := f.p.Target(f.button)
	assert.False(t, tracked)
	for _, e := range f.p.History() {
		assert.NotSame(t, f.button, e.Target.Element)
	}
}

func TestExitIsReportedBeforeEnter(t *testing.T) {
	f := newFixture(t)

	f.sample(t, 0, buttonPt)
	f.sample(t, 100, buttonPt)
	f.sample(t, 200, buttonPt)
	f.sample(t, 800, otherPt)

	require.GreaterOrEqual(t, len(f.events), 2)
	last := f.events[len(f.events)-2:]
	assert.Equal(t, f.button, last[0].Element)
	assert.Equal(t, Exit, last[0].State)
	assert.Equal(t, f.other, last[1].Element)
	assert.Equal(t, Enter, last[1].State)
}

func TestOnlyOneExitPerCheck(t *testing.T) {
	f := newFixture(t)

	f.sample(t, 0, buttonPt)
	f.sample(t, 100, buttonPt)
	f.sample(t, 200, otherPt)
	f.sample(t, 300, otherPt)

	f.p.CheckIfExiting(ms(5000))
	assert.Len(t, f.p.ActiveTargets(), 1)
	f.p.CheckIfExiting(ms(5000))
	assert.Empty(t, f.p.ActiveTargets())
}

func TestReenteringAfterExitStartsOver(t *testing.T) {
	f := newFixture(t)

	f.sample(t, 0, buttonPt)
	f.sample(t, 100, buttonPt)
	f.p.CheckIfExiting(ms(1000))
	_, tracked := f.p.Target(f.button)
	require.False(t, tracked)

	f.sample(t, 1000, buttonPt)
	item, ok := f.p.Target(f.button)
	require.True(t, ok)
	assert.Equal(t, Enter, item.State)
	assert.Equal(t, ms(900), item.ElapsedTime())
}

func TestEyesOffExitsAndSignals(t *testing.T) {
	f := newFixture(t)
	f.p.SetEyesOffDelay(time.Second)

	f.sample(t, 0, buttonPt)
	f.sample(t, 100, buttonPt)
	f.sample(t, 200, buttonPt)
	f.events = nil

	require.True(t, f.sched.fire())

	require.Len(t, f.events, 2)
	assert.Equal(t, StateChangedEvent{Element: f.button, State: Exit, Elapsed: ms(200)}, f.events[0])
	assert.Equal(t, StateChangedEvent{Element: nil, State: Enter, Elapsed: time.Second}, f.events[1])

	// the timer stopped itself
	assert.False(t, f.sched.fire())
}

func TestStaleEyesOffTimerIsIgnored(t *testing.T) {
	f := newFixture(t)

	f.sample(t, 0, buttonPt)
	f.sample(t, 100, buttonPt)
	first := f.sched.timers[0]
	f.events = nil

	first.f()
	assert.Empty(t, f.events)
}

func TestEyesOffTimerUsesDelay(t *testing.T) {
	f := newFixture(t)
	f.p.SetEyesOffDelay(ms(750))

	f.sample(t, 0, buttonPt)
	require.NotEmpty(t, f.sched.timers)
	assert.Equal(t, ms(750), f.sched.timers[len(f.sched.timers)-1].d)
}

func TestTimeAccounting(t *testing.T) {
	f := newFixture(t)
	f.p.SetElementStateDelay(f.root, Exit, time.Hour)
	off := f.p.OffScreenElement()
	f.p.SetElementStateDelay(off, Enter, 0)
	f.p.SetElementStateDelay(off, Exit, time.Hour)

	points := []Point{buttonPt, otherPt, emptyPt, buttonPt, buttonPt, otherPt, emptyPt}
	gaps := []int{30, 1500, 250, 10, 700, 0, 90, 2000, 40}

	var want time.Duration
	at := 0
	for i := 0; i < 300; i++ {
		if i > 0 {
			gap := gaps[i%len(gaps)]
			at += gap
			want += min(ms(gap), time.Second)
		}
		f.sample(t, at, points[i%len(points)])

		var got time.Duration
		for _, item := range f.p.ActiveTargets() {
			got += item.ElapsedTime()

			var inWindow time.Duration
			for _, e := range f.p.History() {
				if e.Target == item {
					inWindow += e.Duration
				}
			}
			require.Equal(t, item.DetailedTime, inWindow, "sample %d", i)
		}
		require.Equal(t, want, got, "sample %d", i)
	}
}

func TestHistoryWindowHoldsTimestamps(t *testing.T) {
	f := newFixture(t)
	window := f.p.MaxHistoryTime()

	for at := 0; at <= 10000; at += 100 {
		f.sample(t, at, buttonPt)
		entries := f.p.History()
		for i, e := range entries {
			assert.LessOrEqual(t, ms(at)-e.Timestamp, window)
			if i > 0 {
				assert.GreaterOrEqual(t, e.Timestamp, entries[i-1].Timestamp)
			}
		}
	}
}

func TestOutOfOrderSampleRejected(t *testing.T) {
	f := newFixture(t)

	f.sample(t, 100, buttonPt)
	err := f.p.ProcessGazePoint(ms(50), buttonPt)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOutOfOrder))
	assert.Equal(t, ms(100), f.p.LastTimestamp())

	// equal timestamps are allowed
	assert.NoError(t, f.p.ProcessGazePoint(ms(100), buttonPt))
}

func TestResetClearsLastTimestamp(t *testing.T) {
	f := newFixture(t)

	for at := 0; at <= 5000; at += 100 {
		f.sample(t, at, buttonPt)
	}
	f.p.RemoveRoot(f.root)
	assert.Zero(t, f.p.LastTimestamp())
	f.p.AddRoot(f.root)
	f.events = nil

	// the tracker clock starts over after the restart
	for at := 0; at <= 3000; at += 100 {
		f.sample(t, at, buttonPt)
	}
	got := states(f.eventsFor(f.button))
	require.GreaterOrEqual(t, len(got), 3)
	assert.Equal(t, []PointerState{Enter, Fixation, Dwell}, got[:3])
	assert.Equal(t, ms(3000), f.p.LastTimestamp())
}

func TestGazeEnteredAfterExitRestartsClock(t *testing.T) {
	f := newFixture(t)
	h := f.source.handler
	require.NotNil(t, h)

	h.GazeEntered(0)
	for _, at := range []uint64{0, 400_000, 900_000, 1_100_000} {
		h.GazeMoved([]GazePoint{{Timestamp: at, Position: &buttonPt}})
	}
	h.GazeExited(1_100_000)
	h.GazeEntered(50_000)

	assert.Equal(t, []PointerState{Enter, Fixation, Dwell, Exit}, states(f.eventsFor(f.button)))
	assert.Equal(t, ms(50), f.p.LastTimestamp())
	assert.Empty(t, f.p.ActiveTargets())

	h.GazeMoved([]GazePoint{{Timestamp: 100_000, Position: &otherPt}})
	assert.Equal(t, ms(100), f.p.LastTimestamp())
	_, ok := f.p.Target(f.other)
	assert.True(t, ok)
}

func TestGazeEnteredWithoutExitKeepsClock(t *testing.T) {
	f := newFixture(t)
	h := f.source.handler

	h.GazeEntered(0)
	h.GazeMoved([]GazePoint{{Timestamp: 900_000, Position: &buttonPt}})
	h.GazeEntered(50_000)

	assert.Equal(t, ms(900), f.p.LastTimestamp())
	assert.NotContains(t, states(f.eventsFor(f.button)), Exit)
}

func TestBackwardJumpPastHistoryRestartsClock(t *testing.T) {
	f := newFixture(t)

	for _, at := range []int{0, 400, 900, 1100, 6000} {
		f.sample(t, at, buttonPt)
	}
	require.NoError(t, f.p.ProcessGazePoint(ms(100), otherPt))

	got := states(f.eventsFor(f.button))
	require.NotEmpty(t, got)
	assert.Equal(t, Exit, got[len(got)-1])
	assert.Equal(t, ms(100), f.p.LastTimestamp())
	_, ok := f.p.Target(f.button)
	assert.False(t, ok)

	// small jumps within the window are still rejected
	err := f.p.ProcessGazePoint(ms(50), otherPt)
	assert.ErrorIs(t, err, ErrOutOfOrder)
	assert.Equal(t, ms(100), f.p.LastTimestamp())
}

type dropCounter struct {
	nopObserver
	dropped map[string]int
}

func (d *dropCounter) SampleDropped(reason string) { d.dropped[reason]++ }

func TestRejectedSampleIsCountedNotWarned(t *testing.T) {
	var buf bytes.Buffer
	obs := &dropCounter{dropped: map[string]int{}}
	root := newTestNode("root", 0, 0, 1000, 1000)
	p, err := New(Options{
		HitTester: testHitTester{},
		Scheduler: &manualScheduler{},
		Logger:    slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})),
		Observer:  obs,
	})
	require.NoError(t, err)
	SetGazeEnabled(p.Store(), root, Enabled)
	p.AddRoot(root)

	h := p.InputHandler()
	pt := Point{X: 10, Y: 10}
	h.GazeMoved([]GazePoint{{Timestamp: 200_000, Position: &pt}})
	for n := 0; n < 5; n++ {
		h.GazeMoved([]GazePoint{{Timestamp: 100_000, Position: &pt}})
	}

	assert.Equal(t, 5, obs.dropped["out_of_order"])
	assert.Equal(t, ms(200), p.LastTimestamp())
	assert.Empty(t, buf.String())
}

func TestSampleDurationIsClamped(t *testing.T) {
	f := newFixture(t)

	f.sample(t, 0, buttonPt)
	f.sample(t, 60000, buttonPt)

	item, ok := f.p.Target(f.button)
	require.True(t, ok)
	assert.Equal(t, time.Second, item.ElapsedTime())
}

func TestInvokedHandledSuppressesInvoke(t *testing.T) {
	f := newFixture(t)

	var seen []Element
	sub := f.p.OnInvoked(func(ev *InvokedEvent) {
		seen = append(seen, ev.Element)
		ev.Handled = true
	})

	for _, at := range []int{0, 400, 900, 1100} {
		f.sample(t, at, buttonPt)
	}
	assert.Equal(t, []Element{f.button}, seen)
	assert.Zero(t, f.button.invokes)

	sub.Cancel()
	sub.Cancel()
	f.p.Reset()
	for _, at := range []int{1200, 1300, 1400, 2500} {
		f.sample(t, at, buttonPt)
	}
	assert.Len(t, seen, 1)
	assert.Equal(t, 1, f.button.invokes)
}

func TestInvokeDoneSeesFinalHandled(t *testing.T) {
	f := newFixture(t)
	f.p.SetElementStateDelay(f.button, Fixation, ms(200))
	SetMaxRepeatCount(f.p.Store(), f.button, 1)

	var done []InvokedEvent
	f.p.OnInvokeDone(func(ev InvokedEvent) { done = append(done, ev) })
	// registered after the done listener, still runs before it
	f.p.OnInvoked(func(ev *InvokedEvent) {
		if ev.State == DwellRepeat {
			ev.Handled = true
		}
	})

	for at := 0; at <= 2500; at += 100 {
		f.sample(t, at, buttonPt)
	}

	require.Len(t, done, 2)
	assert.Equal(t, InvokedEvent{Element: f.button, State: Dwell}, done[0])
	assert.Equal(t, InvokedEvent{Element: f.button, State: DwellRepeat, Handled: true}, done[1])
	assert.Equal(t, 1, f.button.invokes)
}

func TestElementEvents(t *testing.T) {
	f := newFixture(t)

	events := AttachElementEvents(f.p.Store(), f.button)
	assert.Same(t, events, AttachElementEvents(f.p.Store(), f.button))

	var got []PointerState
	events.OnStateChanged(func(ev StateChangedEvent) {
		assert.Equal(t, f.button, ev.Element)
		got = append(got, ev.State)
	})
	var invoked int
	events.OnInvoked(func(ev *InvokedEvent) { invoked++ })

	for _, at := range []int{0, 400, 900, 1100} {
		f.sample(t, at, buttonPt)
	}
	for at := 1200; at <= 1300; at += 100 {
		f.sample(t, at, otherPt)
	}

	assert.Equal(t, []PointerState{Enter, Fixation, Dwell}, got)
	assert.Equal(t, 1, invoked)
}

func TestNonInvokableTargetNeverInvokes(t *testing.T) {
	f := newFixture(t)

	var invoked int
	f.p.OnInvoked(func(*InvokedEvent) { invoked++ })

	for at := 0; at <= 3000; at += 100 {
		f.sample(t, at, emptyPt)
	}

	off := f.p.OffScreenElement()
	item, ok := f.p.Target(off)
	require.True(t, ok)
	assert.Equal(t, Dwell, item.State)
	assert.False(t, item.IsInvokable())
	assert.Zero(t, invoked)
}

func TestInvokeTarget(t *testing.T) {
	f := newFixture(t)

	f.p.InvokeTarget(f.button)
	f.p.InvokeTarget(f.root)
	assert.Equal(t, 1, f.button.invokes)
	assert.Zero(t, f.root.invokes)
}

func TestLoadSettings(t *testing.T) {
	p, err := New(Options{HitTester: testHitTester{}, Logger: discardLogger()})
	require.NoError(t, err)

	p.LoadSettings(Settings{
		SettingFixationDelay:    250000,
		SettingDwellDelay:       int64(900000),
		SettingEnterExitDelay:   float64(20000),
		SettingGazeIdleTime:     "4000000",
		SettingCursorRadius:     12,
		SettingCursorVisibility: false,
	})

	d := p.Defaults()
	assert.Equal(t, ms(250), d.Fixation)
	assert.Equal(t, ms(900), d.Dwell)
	assert.Equal(t, DefaultRepeatDelay, d.Repeat)
	assert.Equal(t, ms(20), d.Enter)
	assert.Equal(t, ms(20), d.Exit)
	assert.Equal(t, 4*time.Second, p.EyesOffDelay())
	assert.Equal(t, 12, p.Cursor().Radius)
	assert.False(t, p.Cursor().IsVisible)

	off := p.OffScreenElement()
	assert.Equal(t, ms(250), p.ElementStateDelay(off, Fixation))
	assert.Equal(t, ms(900), p.ElementStateDelay(off, Dwell))

	// missing keys are no-ops
	p.LoadSettings(Settings{})
	assert.Equal(t, d, p.Defaults())
}

func TestCursorAttributes(t *testing.T) {
	f := newFixture(t)

	f.p.SetCursorRadius(f.root, 9)
	f.p.SetCursorVisible(f.root, false)
	assert.Equal(t, 9, f.p.Cursor().Radius)
	assert.False(t, f.p.Cursor().IsVisible)

	v, ok := f.p.Store().Value(f.root, KeyCursorRadius)
	require.True(t, ok)
	assert.Equal(t, 9, v)

	f.sample(t, 0, buttonPt)
	assert.Equal(t, buttonPt, f.p.Cursor().Position)
}

type offsetFilter struct {
	dx     float64
	loaded int
}

func (o *offsetFilter) Update(s GazeSample) GazeSample {
	s.Position.X += o.dx
	return s
}

func (o *offsetFilter) LoadSettings(Settings) { o.loaded++ }

func TestFilterIsApplied(t *testing.T) {
	f := newFixture(t)
	filter := &offsetFilter{dx: 200}
	f.p.SetFilter(filter)
	f.p.LoadSettings(Settings{})
	assert.Equal(t, 1, filter.loaded)

	// 150 shifted by 200 lands on other at x=350
	f.sample(t, 0, Point{X: 150, Y: 350})
	_, ok := f.p.Target(f.other)
	assert.True(t, ok)

	f.p.SetFilter(nil)
	assert.IsType(t, NullFilter{}, f.p.Filter())
}

func TestIdleTargetsArePruned(t *testing.T) {
	f := newFixture(t)

	// zero time for button since both samples share a timestamp
	f.sample(t, 0, buttonPt)
	f.sample(t, 0, otherPt)
	f.sample(t, 100, otherPt)

	_, tracked := f.p.Target(f.button)
	assert.False(t, tracked)
	_, tracked = f.p.Target(f.other)
	assert.True(t, tracked)
}
