package gaze

import (
	"fmt"
	"time"
)

// Point is a location in host (screen) coordinates.
type Point struct {
	X, Y float64
}

// Element is a node of the host UI tree. Parent returns nil for the root.
// Implementations must be comparable; pointer types are the usual choice.
type Element interface {
	Parent() Element
}

// Invoker is implemented by elements that can be activated by dwelling on
// them. CanInvoke lets a single element type opt in per instance.
type Invoker interface {
	CanInvoke() bool
	Invoke()
}

// HitTester lists the elements under p within root, topmost first.
// Ancestors of a hit element are expected to follow it in the list.
type HitTester interface {
	ElementsAt(root Element, p Point) []Element
}

// IsInvokable reports whether e can be invoked by gaze.
func IsInvokable(e Element) bool {
	inv, ok := e.(Invoker)
	return ok && inv.CanInvoke()
}

// Enablement is the tri-state gaze enablement flag of an element.
type Enablement int

const (
	// Inherited defers to elements further down the hit list.
	Inherited Enablement = iota
	// Enabled makes the first invokable element found so far the target.
	Enabled
	// Disabled stops resolution and yields the non-invokable target.
	Disabled
)

// String returns the enablement name.
func (e Enablement) String() string {
	switch e {
	case Inherited:
		return "inherited"
	case Enabled:
		return "enabled"
	case Disabled:
		return "disabled"
	default:
		return fmt.Sprintf("Enablement(%d)", int(e))
	}
}

// ParseEnablement parses "enabled", "disabled" or "inherited".
func ParseEnablement(s string) (Enablement, error) {
	switch s {
	case "", "inherited":
		return Inherited, nil
	case "enabled":
		return Enabled, nil
	case "disabled":
		return Disabled, nil
	default:
		return Inherited, fmt.Errorf("gaze: unknown enablement %q", s)
	}
}

// Key names an attribute attached to an element.
type Key int

const (
	KeyGazeEnabled Key = iota
	KeyCursorVisible
	KeyCursorRadius
	KeyGazeElement
	KeyFixation
	KeyDwell
	KeyDwellRepeat
	KeyEnter
	KeyExit
	KeyMaxRepeatCount
)

// UnsetDuration marks a delay attribute as not set on an element.
const UnsetDuration time.Duration = -1

// AttributeStore holds attribute values attached to elements.
type AttributeStore interface {
	// Value returns the value set directly on e, if any.
	Value(e Element, key Key) (any, bool)
	// SetValue attaches v to e.
	SetValue(e Element, key Key, v any)
	// ClearValue removes the value set directly on e.
	ClearValue(e Element, key Key)
}

// MemoryStore is an in-memory AttributeStore.
type MemoryStore struct {
	values map[Element]map[Key]any
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[Element]map[Key]any)}
}

// Value implements AttributeStore.
func (s *MemoryStore) Value(e Element, key Key) (any, bool) {
	if e == nil {
		return nil, false
	}
	v, ok := s.values[e][key]
	return v, ok
}

// SetValue implements AttributeStore.
func (s *MemoryStore) SetValue(e Element, key Key, v any) {
	if e == nil {
		return
	}
	m, ok := s.values[e]
	if !ok {
		m = make(map[Key]any)
		s.values[e] = m
	}
	m[key] = v
}

// ClearValue implements AttributeStore.
func (s *MemoryStore) ClearValue(e Element, key Key) {
	m, ok := s.values[e]
	if !ok {
		return
	}
	delete(m, key)
	if len(m) == 0 {
		delete(s.values, e)
	}
}

// GazeEnabled returns the enablement set directly on e.
func GazeEnabled(s AttributeStore, e Element) Enablement {
	if v, ok := s.Value(e, KeyGazeEnabled); ok {
		if en, ok := v.(Enablement); ok {
			return en
		}
	}
	return Inherited
}

// SetGazeEnabled sets the enablement of e.
func SetGazeEnabled(s AttributeStore, e Element, en Enablement) {
	s.SetValue(e, KeyGazeEnabled, en)
}

// MaxRepeatCount returns the repeat limit set directly on e, zero if unset.
func MaxRepeatCount(s AttributeStore, e Element) int {
	if v, ok := s.Value(e, KeyMaxRepeatCount); ok {
		if n, ok := v.(int); ok {
			return n
		}
	}
	return 0
}

// SetMaxRepeatCount sets the number of repeat invocations allowed on e.
func SetMaxRepeatCount(s AttributeStore, e Element, n int) {
	s.SetValue(e, KeyMaxRepeatCount, n)
}

// ElementEventsOf returns the event surface attached to e, or nil.
func ElementEventsOf(s AttributeStore, e Element) *ElementEvents {
	if v, ok := s.Value(e, KeyGazeElement); ok {
		if ev, ok := v.(*ElementEvents); ok {
			return ev
		}
	}
	return nil
}

// AttachElementEvents attaches a new event surface to e and returns it.
// An already attached surface is returned unchanged.
func AttachElementEvents(s AttributeStore, e Element) *ElementEvents {
	if ev := ElementEventsOf(s, e); ev != nil {
		return ev
	}
	ev := &ElementEvents{}
	s.SetValue(e, KeyGazeElement, ev)
	return ev
}

// delayKey maps a state to the attribute holding its delay.
func delayKey(state PointerState) Key {
	switch state {
	case Fixation:
		return KeyFixation
	case Dwell:
		return KeyDwell
	case DwellRepeat:
		return KeyDwellRepeat
	case Enter:
		return KeyEnter
	case Exit:
		return KeyExit
	default:
		panic(fmt.Sprintf("gaze: no delay attribute for state %v", state))
	}
}

// explicitDelay returns the delay set directly on e for key.
func explicitDelay(s AttributeStore, e Element, key Key) (time.Duration, bool) {
	v, ok := s.Value(e, key)
	if !ok {
		return 0, false
	}
	d, ok := v.(time.Duration)
	if !ok || d == UnsetDuration {
		return 0, false
	}
	return d, true
}

// inheritedDelay walks from e towards the root and returns the first
// explicit delay found for key.
func inheritedDelay(s AttributeStore, e Element, key Key) (time.Duration, bool) {
	for walker := e; walker != nil; walker = walker.Parent() {
		if d, ok := explicitDelay(s, walker, key); ok {
			return d, true
		}
	}
	return 0, false
}
