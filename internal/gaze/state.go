// Package gaze turns a stream of eye-gaze samples into pointer-like
// interaction events against the elements of a UI tree.
//
// A Pointer resolves each sample to a target element, accumulates the time
// spent looking at it inside a rolling history window and walks the target
// through the PreEnter, Enter, Fixation and Dwell states. Reaching Dwell
// invokes the element; staying in Dwell fires bounded repeat invocations.
// Targets that have not been looked at for their Exit delay are exited.
//
// The Pointer is not safe for concurrent use. Samples, timer callbacks and
// root registration must all arrive on one serialized execution context,
// usually a dispatch.Loop or a GUI event loop.
package gaze

import "fmt"

// PointerState is the rung a target has reached.
type PointerState int

const (
	// Exit is reported when a target stops being looked at.
	Exit PointerState = iota
	// PreEnter is the initial state of a freshly tracked target.
	PreEnter
	// Enter is reported once gaze has rested on a target for its Enter delay.
	Enter
	// Fixation indicates the gaze has steadied on the target.
	Fixation
	// Dwell is the activation state; reaching it invokes the target.
	Dwell
	// DwellRepeat is reported for every repeat activation while in Dwell.
	DwellRepeat
)

var stateNames = [...]string{
	Exit:        "Exit",
	PreEnter:    "PreEnter",
	Enter:       "Enter",
	Fixation:    "Fixation",
	Dwell:       "Dwell",
	DwellRepeat: "DwellRepeat",
}

// String returns the state name.
func (s PointerState) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("PointerState(%d)", int(s))
}

// ParseState parses a state name as produced by String.
func ParseState(name string) (PointerState, error) {
	for i, n := range stateNames {
		if n == name {
			return PointerState(i), nil
		}
	}
	return PreEnter, fmt.Errorf("gaze: unknown pointer state %q", name)
}
