package gaze

import (
	"math"
	"time"
)

// Never is the next-state time of a target that must not advance again.
const Never time.Duration = math.MaxInt64

// TargetItem tracks one element that is or was recently looked at.
type TargetItem struct {
	// Element is the tracked element. It is shared with the host, not owned.
	Element Element

	// State is the rung the target has reached.
	State PointerState

	// DetailedTime is the gaze time still inside the history window.
	DetailedTime time.Duration

	// OverflowTime is gaze time that fell out of the history window after
	// the target left PreEnter.
	OverflowTime time.Duration

	// NextStateTime is the elapsed time the target must exceed to advance.
	NextStateTime time.Duration

	// LastTimestamp is the time of the latest sample that hit the target.
	LastTimestamp time.Duration

	RepeatCount    int
	MaxRepeatCount int

	invokable bool
}

// ElapsedTime is the total gaze time attributed to the target.
func (t *TargetItem) ElapsedTime() time.Duration {
	return t.DetailedTime + t.OverflowTime
}

// IsInvokable reports whether dwelling on the target invokes its element.
func (t *TargetItem) IsInvokable() bool {
	return t.invokable
}

// reset prepares the item for a fresh round of tracking.
func (t *TargetItem) reset(nextStateTime time.Duration, maxRepeat int) {
	t.State = PreEnter
	t.DetailedTime = 0
	t.OverflowTime = 0
	t.NextStateTime = nextStateTime
	t.RepeatCount = 0
	t.MaxRepeatCount = maxRepeat
}

// invoke activates the element when it is invokable.
func (t *TargetItem) invoke() {
	if !t.invokable {
		return
	}
	if inv, ok := t.Element.(Invoker); ok {
		inv.Invoke()
	}
}
