package gaze

import "time"

// Timer is a pending callback that can be stopped.
type Timer interface {
	Stop() bool
}

// Scheduler arms one-shot callbacks. The callback must run on the same
// execution context as the Pointer that scheduled it.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemScheduler arms timers with time.AfterFunc. Callbacks run on their
// own goroutine, so it only suits hosts that serialize access themselves.
type SystemScheduler struct{}

// AfterFunc implements Scheduler.
func (SystemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Observer receives processing statistics from a Pointer.
type Observer interface {
	SampleProcessed(interval time.Duration, activeTargets, historyLen int)
	SampleDropped(reason string)
	EyesOff()
}

type nopObserver struct{}

func (nopObserver) SampleProcessed(time.Duration, int, int) {}
func (nopObserver) SampleDropped(string)                    {}
func (nopObserver) EyesOff()                                {}
