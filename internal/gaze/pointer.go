package gaze

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"
)

var (
	// ErrNoHitTester is returned by New when no HitTester is configured.
	ErrNoHitTester = errors.New("gaze: hit tester required")

	// ErrOutOfOrder is returned for a sample older than the last one.
	ErrOutOfOrder = errors.New("gaze: sample timestamp out of order")
)

// Options configures a Pointer. Only HitTester is required.
type Options struct {
	HitTester HitTester
	Store     AttributeStore
	Filter    Filter
	Scheduler Scheduler
	Source    InputSource
	Logger    *slog.Logger
	Observer  Observer

	// MaxSampleDuration caps the time credited for a single sample.
	MaxSampleDuration time.Duration
}

// offScreenElement stands in for "no element": gaze that lands on nothing
// invokable is tracked against it.
type offScreenElement struct {
	name string
}

func (*offScreenElement) Parent() Element { return nil }

func (o *offScreenElement) String() string { return o.name }

// Pointer converts gaze samples into per-element state events.
type Pointer struct {
	store     AttributeStore
	hitTester HitTester
	filter    Filter
	scheduler Scheduler
	source    InputSource
	log       *slog.Logger
	observer  Observer
	cursor    *Cursor

	roots        []Element
	shuttingDown bool
	sourceSub    *Subscription

	offScreen    *offScreenElement
	nonInvokable *TargetItem
	items        map[Element]*TargetItem
	active       []*TargetItem
	history      History

	defaults          Delays
	maxHistoryTime    time.Duration
	maxSampleDuration time.Duration
	lastTimestamp     time.Duration

	eyesOffDelay time.Duration
	eyesOffTimer Timer
	eyesOffGen   uint64

	stateChanged listeners[StateChangedEvent]
	invoked      listeners[*InvokedEvent]
	invokeDone   listeners[InvokedEvent]
}

// New creates a Pointer.
func New(opts Options) (*Pointer, error) {
	if opts.HitTester == nil {
		return nil, ErrNoHitTester
	}
	p := &Pointer{
		store:             opts.Store,
		hitTester:         opts.HitTester,
		filter:            opts.Filter,
		scheduler:         opts.Scheduler,
		source:            opts.Source,
		log:               opts.Logger,
		observer:          opts.Observer,
		cursor:            newCursor(),
		items:             make(map[Element]*TargetItem),
		defaults:          DefaultDelays(),
		maxHistoryTime:    DefaultMaxHistoryTime,
		maxSampleDuration: opts.MaxSampleDuration,
		eyesOffDelay:      DefaultEyesOffDelay,
	}
	if p.store == nil {
		p.store = NewMemoryStore()
	}
	if p.filter == nil {
		p.filter = NullFilter{}
	}
	if p.scheduler == nil {
		p.scheduler = SystemScheduler{}
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	if p.observer == nil {
		p.observer = nopObserver{}
	}
	if p.maxSampleDuration <= 0 {
		p.maxSampleDuration = DefaultMaxSampleDuration
	}

	p.offScreen = &offScreenElement{name: "offscreen"}
	p.nonInvokable = &TargetItem{Element: p.offScreen, State: PreEnter}
	p.SetElementStateDelay(p.offScreen, Fixation, p.defaults.Fixation)
	p.SetElementStateDelay(p.offScreen, Dwell, p.defaults.Dwell)
	return p, nil
}

// Store returns the attribute store.
func (p *Pointer) Store() AttributeStore { return p.store }

// Cursor returns the gaze cursor state.
func (p *Pointer) Cursor() *Cursor { return p.cursor }

// Filter returns the sample filter.
func (p *Pointer) Filter() Filter { return p.filter }

// SetFilter replaces the sample filter; nil restores NullFilter.
func (p *Pointer) SetFilter(f Filter) {
	if f == nil {
		f = NullFilter{}
	}
	p.filter = f
}

// OffScreenElement returns the pseudo element backing the non-invokable
// target.
func (p *Pointer) OffScreenElement() Element { return p.offScreen }

// EyesOffDelay returns the idle time after which eyes-off is signalled.
func (p *Pointer) EyesOffDelay() time.Duration { return p.eyesOffDelay }

// SetEyesOffDelay sets the eyes-off idle time. It applies from the next
// processed sample.
func (p *Pointer) SetEyesOffDelay(d time.Duration) { p.eyesOffDelay = d }

// MaxHistoryTime returns the current history window.
func (p *Pointer) MaxHistoryTime() time.Duration { return p.maxHistoryTime }

// LastTimestamp returns the timestamp of the last processed sample.
func (p *Pointer) LastTimestamp() time.Duration { return p.lastTimestamp }

// History returns a copy of the history window, oldest first.
func (p *Pointer) History() []HistoryEntry { return p.history.Entries() }

// ActiveTargets returns the currently tracked targets.
func (p *Pointer) ActiveTargets() []*TargetItem { return slices.Clone(p.active) }

// Target returns the live item tracking e.
func (p *Pointer) Target(e Element) (*TargetItem, bool) {
	for _, t := range p.active {
		if t.Element == e {
			return t, true
		}
	}
	return nil, false
}

// OnStateChanged registers fn for state changes of every target, including
// the synthetic eyes-off event whose Element is nil.
func (p *Pointer) OnStateChanged(fn func(StateChangedEvent)) Subscription {
	return p.stateChanged.add(fn)
}

// OnInvoked registers fn for invocations of every invokable target.
func (p *Pointer) OnInvoked(fn func(*InvokedEvent)) Subscription {
	return p.invoked.add(fn)
}

// OnInvokeDone registers fn to run after every invocation has been
// offered to all OnInvoked listeners. Handled is final by then.
func (p *Pointer) OnInvokeDone(fn func(InvokedEvent)) Subscription {
	return p.invokeDone.add(fn)
}

// LoadSettings applies overrides from a flat settings map. Delays are
// given in hardware ticks.
func (p *Pointer) LoadSettings(settings Settings) {
	p.cursor.LoadSettings(settings)
	p.filter.LoadSettings(settings)

	if d, ok := settings.Ticks(SettingFixationDelay); ok {
		p.defaults.Fixation = d
		p.SetElementStateDelay(p.offScreen, Fixation, d)
	}
	if d, ok := settings.Ticks(SettingDwellDelay); ok {
		p.defaults.Dwell = d
		p.SetElementStateDelay(p.offScreen, Dwell, d)
	}
	if d, ok := settings.Ticks(SettingRepeatDelay); ok {
		p.defaults.Repeat = d
	}
	if d, ok := settings.Ticks(SettingEnterExitDelay); ok {
		p.defaults.Enter = d
		p.defaults.Exit = d
	}
	if d, ok := settings.Ticks(SettingGazeIdleTime); ok {
		p.SetEyesOffDelay(d)
	}
	p.log.Debug("settings loaded",
		"fixation", p.defaults.Fixation,
		"dwell", p.defaults.Dwell,
		"repeat", p.defaults.Repeat,
		"enter_exit", p.defaults.Enter,
		"eyes_off", p.eyesOffDelay,
	)
}

// SetCursorVisible records the cursor visibility on e and applies it.
func (p *Pointer) SetCursorVisible(e Element, visible bool) {
	p.store.SetValue(e, KeyCursorVisible, visible)
	p.cursor.IsVisible = visible
}

// SetCursorRadius records the cursor radius on e and applies it.
func (p *Pointer) SetCursorRadius(e Element, radius int) {
	p.store.SetValue(e, KeyCursorRadius, radius)
	p.cursor.Radius = radius
}

// InvokeTarget invokes e directly if it is invokable.
func (p *Pointer) InvokeTarget(e Element) {
	if inv, ok := e.(Invoker); ok && inv.CanInvoke() {
		inv.Invoke()
	}
}

// Reset forgets every tracked target, the whole history and the last
// sample time, so the next sample may come from a fresh tracker clock.
func (p *Pointer) Reset() {
	p.lastTimestamp = 0
	p.active = nil
	p.history.Clear()
	clear(p.items)
	p.nonInvokable.reset(0, 0)
	p.maxHistoryTime = DefaultMaxHistoryTime
}

// ProcessGazePoint runs one sample through the state machine.
func (p *Pointer) ProcessGazePoint(timestamp time.Duration, position Point) error {
	fa := p.filter.Update(GazeSample{Position: position, Timestamp: timestamp})
	if fa.Timestamp < p.lastTimestamp {
		// a jump back past the history window is a new tracker clock
		if p.lastTimestamp-fa.Timestamp <= p.maxHistoryTime {
			p.observer.SampleDropped("out_of_order")
			return fmt.Errorf("%w: %v before %v", ErrOutOfOrder, fa.Timestamp, p.lastTimestamp)
		}
		p.restartClock(fa.Timestamp)
	}
	interval := fa.Timestamp - p.lastTimestamp
	p.cursor.Position = fa.Position

	target := p.ResolveHitTarget(fa.Position, fa.Timestamp)

	// exits go out before the current target advances
	p.CheckIfExiting(fa.Timestamp)

	p.advance(target)

	p.armEyesOff()
	p.lastTimestamp = fa.Timestamp
	p.observer.SampleProcessed(interval, len(p.active), p.history.Len())
	return nil
}

// ResolveHitTarget finds the target under point, makes sure it is tracked
// and credits it with the time since the previous sample.
func (p *Pointer) ResolveHitTarget(point Point, timestamp time.Duration) *TargetItem {
	target := p.hitTarget(point)
	p.activate(target)
	target.LastTimestamp = timestamp

	duration := timestamp - p.lastTimestamp
	if duration > p.maxSampleDuration {
		duration = p.maxSampleDuration
	}
	p.history.Append(HistoryEntry{Target: target, Timestamp: timestamp, Duration: duration})
	p.history.Evict(timestamp, p.maxHistoryTime)
	p.lastTimestamp = timestamp

	p.pruneIdle(target)
	return target
}

// hitTarget walks the hit list of each root, newest root first.
func (p *Pointer) hitTarget(point Point) *TargetItem {
	for _, root := range p.roots {
		var invokable Element
		for _, e := range p.hitTester.ElementsAt(root, point) {
			if invokable == nil && IsInvokable(e) {
				invokable = e
			}
			switch GazeEnabled(p.store, e) {
			case Enabled:
				if invokable != nil {
					return p.getOrCreate(invokable)
				}
			case Disabled:
				return p.nonInvokable
			}
		}
	}
	return p.nonInvokable
}

func (p *Pointer) getOrCreate(e Element) *TargetItem {
	if t, ok := p.items[e]; ok {
		return t
	}
	t := &TargetItem{Element: e, State: PreEnter, invokable: IsInvokable(e)}
	p.items[e] = t
	return t
}

// activate starts tracking target if it is not tracked yet.
func (p *Pointer) activate(target *TargetItem) {
	if slices.Contains(p.active, target) {
		return
	}
	p.active = append(p.active, target)
	target.reset(p.ElementStateDelay(target.Element, Enter), MaxRepeatCount(p.store, target.Element))
}

// pruneIdle stops tracking targets that never left PreEnter and have no
// time left in the window; re-activating them would reset them anyway.
func (p *Pointer) pruneIdle(current *TargetItem) {
	kept := p.active[:0]
	for _, t := range p.active {
		if t != current && t.State == PreEnter && t.DetailedTime == 0 {
			p.history.Purge(t)
			if t != p.nonInvokable {
				delete(p.items, t.Element)
			}
			continue
		}
		kept = append(kept, t)
	}
	clear(p.active[len(kept):])
	p.active = kept
}

// CheckIfExiting exits the first target that has been idle for longer
// than its Exit delay at now. At most one target exits per call.
func (p *Pointer) CheckIfExiting(now time.Duration) {
	for i, t := range p.active {
		exitDelay := p.ElementStateDelay(t.Element, Exit)
		idle := now - t.LastTimestamp
		if t.State == PreEnter || idle <= exitDelay {
			continue
		}

		t.State = PreEnter
		p.active = slices.Delete(p.active, i, i+1)
		p.history.Purge(t)
		if t != p.nonInvokable {
			delete(p.items, t.Element)
		}
		p.log.Debug("target exited", "element", t.Element, "idle", idle, "exit_delay", exitDelay)
		p.raise(t, Exit, t.ElapsedTime())
		return
	}
}

// advance moves target up one rung once its elapsed time exceeds the
// threshold. DwellRepeat is never entered; the threshold moves one dwell
// period instead so the repeat keeps firing.
func (p *Pointer) advance(target *TargetItem) {
	elapsed := target.ElapsedTime()
	if elapsed <= target.NextStateTime {
		return
	}

	next := target.State + 1
	if next != DwellRepeat {
		target.State = next
		target.NextStateTime = p.ElementStateDelay(target.Element, next+1)
	} else {
		target.NextStateTime += p.ElementStateDelay(target.Element, Dwell) -
			p.ElementStateDelay(target.Element, Fixation)
	}

	if target.State == Dwell {
		target.RepeatCount++
		if target.MaxRepeatCount < target.RepeatCount {
			target.NextStateTime = Never
		}
	}

	p.log.Debug("target advanced",
		"element", target.Element,
		"state", next,
		"elapsed", elapsed,
		"next_state_time", target.NextStateTime,
	)
	p.raise(target, next, elapsed)
}

// raise delivers a state change to the element's listeners and then to
// the pointer-wide ones. Dwell and DwellRepeat also invoke the element
// unless a listener handles the invocation.
func (p *Pointer) raise(target *TargetItem, state PointerState, elapsed time.Duration) {
	var element Element
	var events *ElementEvents
	if target != nil {
		element = target.Element
		events = ElementEventsOf(p.store, element)
	}

	ev := StateChangedEvent{Element: element, State: state, Elapsed: elapsed}
	if events != nil {
		events.stateChanged.emit(ev)
	}
	p.stateChanged.emit(ev)

	if target == nil || !target.IsInvokable() || (state != Dwell && state != DwellRepeat) {
		return
	}
	inv := &InvokedEvent{Element: element, State: state}
	if events != nil {
		events.invoked.emit(inv)
	}
	p.invoked.emit(inv)
	if !inv.Handled {
		target.invoke()
	}
	p.invokeDone.emit(*inv)
}

// restartClock starts a new tracker session at baseline. Targets that
// left PreEnter exit, then tracking is reset and baseline becomes the
// last sample time.
func (p *Pointer) restartClock(baseline time.Duration) {
	p.log.Debug("tracker clock restarted", "last_timestamp", p.lastTimestamp, "baseline", baseline)

	type exit struct {
		target  *TargetItem
		elapsed time.Duration
	}
	var exits []exit
	for _, t := range p.active {
		if t.State != PreEnter {
			exits = append(exits, exit{t, t.ElapsedTime()})
		}
	}
	p.Reset()
	p.lastTimestamp = baseline
	for _, e := range exits {
		e.target.State = PreEnter
		p.raise(e.target, Exit, e.elapsed)
	}
}

func (p *Pointer) armEyesOff() {
	p.stopEyesOff()
	gen := p.eyesOffGen
	p.eyesOffTimer = p.scheduler.AfterFunc(p.eyesOffDelay, func() { p.onEyesOff(gen) })
}

func (p *Pointer) stopEyesOff() {
	if p.eyesOffTimer != nil {
		p.eyesOffTimer.Stop()
		p.eyesOffTimer = nil
	}
	p.eyesOffGen++
}

// onEyesOff runs when no sample arrived for the eyes-off delay. A callback
// from a timer that was already replaced is ignored.
func (p *Pointer) onEyesOff(gen uint64) {
	if gen != p.eyesOffGen || p.eyesOffTimer == nil {
		return
	}
	p.eyesOffTimer = nil
	p.log.Debug("eyes off", "last_timestamp", p.lastTimestamp, "delay", p.eyesOffDelay)
	p.observer.EyesOff()

	p.CheckIfExiting(p.lastTimestamp + p.eyesOffDelay)
	p.raise(nil, Enter, p.eyesOffDelay)
}
