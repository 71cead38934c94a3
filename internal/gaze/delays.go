package gaze

import "time"

// Default state delays.
const (
	DefaultFixationDelay     = 400 * time.Millisecond
	DefaultDwellDelay        = 800 * time.Millisecond
	DefaultRepeatDelay       = 1600 * time.Millisecond
	DefaultEnterExitDelay    = 50 * time.Millisecond
	DefaultMaxHistoryTime    = 3 * time.Second
	DefaultEyesOffDelay      = 2500 * time.Millisecond
	DefaultMaxSampleDuration = 100 * time.Millisecond
)

// Delays holds the process-wide fallback delay of each timed state.
type Delays struct {
	Fixation time.Duration
	Dwell    time.Duration
	Repeat   time.Duration
	Enter    time.Duration
	Exit     time.Duration
}

// DefaultDelays returns the built-in fallback delays.
func DefaultDelays() Delays {
	return Delays{
		Fixation: DefaultFixationDelay,
		Dwell:    DefaultDwellDelay,
		Repeat:   DefaultRepeatDelay,
		Enter:    DefaultEnterExitDelay,
		Exit:     DefaultEnterExitDelay,
	}
}

// For returns the delay configured for state.
func (d Delays) For(state PointerState) time.Duration {
	switch state {
	case Fixation:
		return d.Fixation
	case Dwell:
		return d.Dwell
	case DwellRepeat:
		return d.Repeat
	case Enter:
		return d.Enter
	case Exit:
		return d.Exit
	default:
		panic("gaze: no default delay for state " + state.String())
	}
}

// ElementStateDelay resolves the delay of state for e. The ancestor chain
// is searched for an explicit value before falling back to the defaults.
// Resolving a Dwell or DwellRepeat delay widens the history window to at
// least twice that delay.
func (p *Pointer) ElementStateDelay(e Element, state PointerState) time.Duration {
	d, ok := inheritedDelay(p.store, e, delayKey(state))
	if !ok {
		d = p.defaults.For(state)
	}
	if state == Dwell || state == DwellRepeat {
		p.maxHistoryTime = max(p.maxHistoryTime, 2*d)
	}
	return d
}

// SetElementStateDelay overrides the delay of state on e and its
// descendants.
func (p *Pointer) SetElementStateDelay(e Element, state PointerState, d time.Duration) {
	p.store.SetValue(e, delayKey(state), d)

	// the history window must cover the longest dwell this element can need
	p.ElementStateDelay(e, Dwell)
	p.ElementStateDelay(e, DwellRepeat)
}

// ClearElementStateDelay removes the override of state on e.
func (p *Pointer) ClearElementStateDelay(e Element, state PointerState) {
	p.store.ClearValue(e, delayKey(state))
}

// Defaults returns the fallback delays.
func (p *Pointer) Defaults() Delays {
	return p.defaults
}
