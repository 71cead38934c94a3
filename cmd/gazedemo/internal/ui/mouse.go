// Package ui draws the demo window and feeds it mouse-driven gaze.
package ui

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"gazeinput/internal/gaze"
	"gazeinput/internal/source"
)

// DefaultSampleInterval is the rate at which the mouse is sampled while
// it rests inside the window.
const DefaultSampleInterval = 30 * time.Millisecond

// Sink accepts decoded gaze frames.
type Sink interface {
	Deliver(f source.Frame) error
}

// MouseTracker stands in for an eye tracker. The window reports pointer
// positions in layout coordinates and Run samples the last one at a
// steady rate, so a resting mouse keeps dwelling.
type MouseTracker struct {
	sink  Sink
	log   *slog.Logger
	start time.Time
	now   func() time.Time

	mu     sync.Mutex
	inside bool
	pos    gaze.Point
}

// NewMouseTracker creates a tracker delivering to sink.
func NewMouseTracker(sink Sink, logger *slog.Logger) *MouseTracker {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MouseTracker{sink: sink, log: logger, now: time.Now}
	m.start = m.now()
	return m
}

func (m *MouseTracker) timestamp() uint64 {
	return uint64(m.now().Sub(m.start) / gaze.TickDuration)
}

// Enter reports the mouse entering the window at pos.
func (m *MouseTracker) Enter(pos gaze.Point) {
	m.mu.Lock()
	was := m.inside
	m.inside, m.pos = true, pos
	m.mu.Unlock()
	if !was {
		m.deliver(source.Frame{Type: source.FrameEntered, Timestamp: m.timestamp()})
	}
}

// Move records the latest mouse position. A move without a preceding
// Enter enters first.
func (m *MouseTracker) Move(pos gaze.Point) {
	m.mu.Lock()
	inside := m.inside
	m.pos = pos
	m.mu.Unlock()
	if !inside {
		m.Enter(pos)
	}
}

// Leave reports the mouse leaving the window.
func (m *MouseTracker) Leave() {
	m.mu.Lock()
	was := m.inside
	m.inside = false
	m.mu.Unlock()
	if was {
		m.deliver(source.Frame{Type: source.FrameExited, Timestamp: m.timestamp()})
	}
}

// Position returns the last reported position and whether the mouse is
// inside the window.
func (m *MouseTracker) Position() (gaze.Point, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pos, m.inside
}

// Sample delivers one moved frame at the current position. It does
// nothing while the mouse is outside.
func (m *MouseTracker) Sample() {
	pos, inside := m.Position()
	if !inside {
		return
	}
	x, y := pos.X, pos.Y
	m.deliver(source.Frame{
		Type:   source.FrameMoved,
		Points: []source.Sample{{Timestamp: m.timestamp(), X: &x, Y: &y}},
	})
}

// Run samples every interval until ctx is done.
func (m *MouseTracker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.Leave()
			return
		case <-ticker.C:
			m.Sample()
		}
	}
}

func (m *MouseTracker) deliver(f source.Frame) {
	if err := m.sink.Deliver(f); err != nil {
		m.log.Debug("mouse frame dropped", "type", f.Type, "error", err)
	}
}
