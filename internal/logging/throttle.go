package logging

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ThrottleHandler drops debug records whose message was already logged
// within the interval. Gaze samples arrive at tracker rate, so the same
// per-sample debug line would otherwise flood the output. Records at Info
// and above always pass.
type ThrottleHandler struct {
	next     slog.Handler
	interval time.Duration
	state    *throttleState
}

type throttleState struct {
	mu         sync.Mutex
	last       map[string]time.Time
	suppressed map[string]int
}

// NewThrottleHandler wraps next.
func NewThrottleHandler(next slog.Handler, interval time.Duration) *ThrottleHandler {
	return &ThrottleHandler{
		next:     next,
		interval: interval,
		state: &throttleState{
			last:       make(map[string]time.Time),
			suppressed: make(map[string]int),
		},
	}
}

// Enabled implements slog.Handler.
func (h *ThrottleHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler. A passing record carries the number of
// records suppressed since the previous one as "suppressed".
func (h *ThrottleHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelInfo {
		return h.next.Handle(ctx, r)
	}

	s := h.state
	s.mu.Lock()
	last, seen := s.last[r.Message]
	if seen && r.Time.Sub(last) < h.interval {
		s.suppressed[r.Message]++
		s.mu.Unlock()
		return nil
	}
	s.last[r.Message] = r.Time
	dropped := s.suppressed[r.Message]
	delete(s.suppressed, r.Message)
	s.mu.Unlock()

	if dropped > 0 {
		r = r.Clone()
		r.AddAttrs(slog.Int("suppressed", dropped))
	}
	return h.next.Handle(ctx, r)
}

// WithAttrs implements slog.Handler. Children share the throttle state.
func (h *ThrottleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ThrottleHandler{next: h.next.WithAttrs(attrs), interval: h.interval, state: h.state}
}

// WithGroup implements slog.Handler.
func (h *ThrottleHandler) WithGroup(name string) slog.Handler {
	return &ThrottleHandler{next: h.next.WithGroup(name), interval: h.interval, state: h.state}
}
