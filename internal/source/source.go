// Package source fans gaze streams from transports into a gaze.Pointer.
//
// Transports (websocket connections, the desktop bus) decode their input
// into Frames and hand them to a Hub. The Hub posts every delivery onto
// the pointer's execution context, so handlers never run concurrently.
package source

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"gazeinput/internal/gaze"
)

// Frame types.
const (
	FrameEntered = "entered"
	FrameMoved   = "moved"
	FrameExited  = "exited"
)

var (
	// ErrUnknownFrame is returned for a frame type the hub does not know.
	ErrUnknownFrame = errors.New("source: unknown frame type")
	// ErrEmptyMove is returned for a moved frame without samples.
	ErrEmptyMove = errors.New("source: moved frame without points")
	// ErrStopped is returned once the execution context is gone.
	ErrStopped = errors.New("source: dispatcher stopped")
	// ErrTimestampRange rejects timestamps that do not fit a Duration.
	ErrTimestampRange = errors.New("source: timestamp out of range")
)

// Sample is one gaze sample of a moved frame. X and Y are both nil when
// the tracker had no position for the sample.
type Sample struct {
	Timestamp uint64   `json:"timestamp"`
	X         *float64 `json:"x,omitempty"`
	Y         *float64 `json:"y,omitempty"`
}

// Frame is one message from a tracker. Timestamps are in microseconds.
type Frame struct {
	Type      string   `json:"type"`
	Timestamp uint64   `json:"timestamp,omitempty"`
	Points    []Sample `json:"points,omitempty"`
}

// Validate checks the frame shape.
func (f Frame) Validate() error {
	if f.Timestamp > gaze.MaxTicks {
		return fmt.Errorf("%w: %d", ErrTimestampRange, f.Timestamp)
	}
	switch f.Type {
	case FrameEntered, FrameExited:
		return nil
	case FrameMoved:
		if len(f.Points) == 0 {
			return ErrEmptyMove
		}
		for i, s := range f.Points {
			if (s.X == nil) != (s.Y == nil) {
				return fmt.Errorf("source: point %d has only one coordinate", i)
			}
			if s.Timestamp > gaze.MaxTicks {
				return fmt.Errorf("%w: point %d at %d", ErrTimestampRange, i, s.Timestamp)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFrame, f.Type)
	}
}

// GazePoints converts the samples of a moved frame.
func (f Frame) GazePoints() []gaze.GazePoint {
	points := make([]gaze.GazePoint, len(f.Points))
	for i, s := range f.Points {
		points[i].Timestamp = s.Timestamp
		if s.X != nil && s.Y != nil {
			points[i].Position = &gaze.Point{X: *s.X, Y: *s.Y}
		}
	}
	return points
}

// Last returns the newest timestamp carried by the frame.
func (f Frame) Last() uint64 {
	ts := f.Timestamp
	for _, s := range f.Points {
		ts = max(ts, s.Timestamp)
	}
	return ts
}

// Poster runs functions on the pointer's execution context.
type Poster interface {
	Post(fn func()) bool
}

// Hub is a gaze.InputSource fed by any number of transports.
type Hub struct {
	poster Poster
	log    *slog.Logger

	mu       sync.Mutex
	nextID   uint64
	handlers map[uint64]gaze.InputHandler

	frames  atomic.Uint64
	samples atomic.Uint64
}

// NewHub creates a hub delivering through poster.
func NewHub(poster Poster, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		poster:   poster,
		log:      logger.With("component", "source"),
		handlers: make(map[uint64]gaze.InputHandler),
	}
}

// Subscribe implements gaze.InputSource.
func (h *Hub) Subscribe(handler gaze.InputHandler) gaze.Subscription {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.handlers[id] = handler
	h.mu.Unlock()

	h.log.Debug("handler subscribed", "id", id)
	return gaze.NewSubscription(func() {
		h.mu.Lock()
		delete(h.handlers, id)
		h.mu.Unlock()
	})
}

// Subscribers returns the number of subscribed handlers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handlers)
}

// Deliver validates f and posts it to every subscribed handler.
func (h *Hub) Deliver(f Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}
	h.frames.Add(1)
	h.samples.Add(uint64(len(f.Points)))

	var points []gaze.GazePoint
	if f.Type == FrameMoved {
		points = f.GazePoints()
	}
	if !h.poster.Post(func() { h.dispatch(f.Type, f.Timestamp, points) }) {
		return ErrStopped
	}
	return nil
}

// dispatch runs on the execution context.
func (h *Hub) dispatch(kind string, ts uint64, points []gaze.GazePoint) {
	for _, handler := range h.snapshot() {
		switch kind {
		case FrameEntered:
			handler.GazeEntered(ts)
		case FrameMoved:
			handler.GazeMoved(points)
		case FrameExited:
			handler.GazeExited(ts)
		}
	}
}

func (h *Hub) snapshot() []gaze.InputHandler {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]gaze.InputHandler, 0, len(h.handlers))
	for id := uint64(1); id <= h.nextID; id++ {
		if handler, ok := h.handlers[id]; ok {
			out = append(out, handler)
		}
	}
	return out
}

// Stats reports the frames and samples delivered so far.
func (h *Hub) Stats() (frames, samples uint64) {
	return h.frames.Load(), h.samples.Load()
}

var _ gaze.InputSource = (*Hub)(nil)
