package gaze

import (
	"math"
	"time"
)

// TickDuration converts input-source hardware timestamps to durations.
// Eye-tracker timestamps are reported in microseconds.
const TickDuration = time.Microsecond

// MaxTicks is the largest hardware timestamp TicksToDuration can convert.
const MaxTicks = uint64(math.MaxInt64 / int64(TickDuration))

// TicksToDuration converts a hardware timestamp to a Duration. ticks must
// not exceed MaxTicks.
func TicksToDuration(ticks uint64) time.Duration {
	return time.Duration(ticks) * TickDuration
}

// GazePoint is one raw sample in a moved batch. Position is nil when the
// sensor produced no position for the sample.
type GazePoint struct {
	Timestamp uint64
	Position  *Point
}

// InputHandler receives the three gaze streams of an InputSource.
type InputHandler interface {
	GazeEntered(timestamp uint64)
	GazeMoved(points []GazePoint)
	GazeExited(timestamp uint64)
}

// InputSource delivers gaze streams to a subscribed handler. Deliveries
// must happen on the Pointer's execution context.
type InputSource interface {
	Subscribe(h InputHandler) Subscription
}

// NewSubscription wraps cancel as a Subscription, for InputSource
// implementations outside this package.
func NewSubscription(cancel func()) Subscription {
	return Subscription{cancel: cancel}
}
