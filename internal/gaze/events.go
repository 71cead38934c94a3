package gaze

import "time"

// StateChangedEvent reports a target reaching a new state. Element is nil
// for the synthetic eyes-off event.
type StateChangedEvent struct {
	Element Element
	State   PointerState
	Elapsed time.Duration
}

// InvokedEvent is raised before a dwelled-on element is invoked. Setting
// Handled suppresses the default invocation. State is Dwell for the first
// invocation and DwellRepeat for repeats.
type InvokedEvent struct {
	Element Element
	State   PointerState
	Handled bool
}

// Subscription cancels a listener registration.
type Subscription struct {
	cancel func()
}

// Cancel removes the listener. It is safe to call more than once.
func (s Subscription) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

type listener[T any] struct {
	id uint64
	fn func(T)
}

// listeners is an ordered listener list keyed by registration id.
type listeners[T any] struct {
	nextID  uint64
	entries []listener[T]
}

func (l *listeners[T]) add(fn func(T)) Subscription {
	l.nextID++
	id := l.nextID
	l.entries = append(l.entries, listener[T]{id: id, fn: fn})
	return Subscription{cancel: func() { l.remove(id) }}
}

func (l *listeners[T]) remove(id uint64) {
	for i, e := range l.entries {
		if e.id == id {
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return
		}
	}
}

// emit calls every listener registered when emit started.
func (l *listeners[T]) emit(v T) {
	snapshot := l.entries
	for _, e := range snapshot {
		e.fn(v)
	}
}

func (l *listeners[T]) len() int {
	return len(l.entries)
}

// ElementEvents is the per-element event surface, attached to an element
// under KeyGazeElement.
type ElementEvents struct {
	stateChanged listeners[StateChangedEvent]
	invoked      listeners[*InvokedEvent]
}

// OnStateChanged registers fn for state changes of the element.
func (e *ElementEvents) OnStateChanged(fn func(StateChangedEvent)) Subscription {
	return e.stateChanged.add(fn)
}

// OnInvoked registers fn for invocations of the element.
func (e *ElementEvents) OnInvoked(fn func(*InvokedEvent)) Subscription {
	return e.invoked.add(fn)
}
