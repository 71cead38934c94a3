// Package dispatch serializes work onto a single goroutine.
//
// A gaze.Pointer is not safe for concurrent use, yet its samples arrive
// from transport goroutines and its timers fire on runtime goroutines. A
// Loop funnels all of them through one queue so the pointer only ever
// runs on the loop goroutine.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"gazeinput/internal/gaze"
)

// DefaultQueueSize is the task queue capacity used when none is given.
const DefaultQueueSize = 256

var (
	// ErrRunning is returned by Run when the loop is already running.
	ErrRunning = errors.New("dispatch: loop already running")

	// ErrStopped is returned by Do once the loop has stopped.
	ErrStopped = errors.New("dispatch: loop stopped")
)

// Loop runs posted functions one at a time in posting order.
type Loop struct {
	tasks   chan func()
	done    chan struct{}
	running atomic.Bool
	log     *slog.Logger

	processed atomic.Uint64
}

// New creates a loop with the given queue capacity.
func New(queueSize int, logger *slog.Logger) *Loop {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		tasks: make(chan func(), queueSize),
		done:  make(chan struct{}),
		log:   logger,
	}
}

// Run executes posted functions until ctx is cancelled. A loop runs at
// most once; after Run returns, Post reports false.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer close(l.done)

	l.log.Debug("dispatch loop started", "queue", cap(l.tasks))
	for {
		select {
		case <-ctx.Done():
			l.log.Debug("dispatch loop stopped",
				"processed", l.processed.Load(),
				"pending", len(l.tasks),
			)
			return ctx.Err()
		case fn := <-l.tasks:
			fn()
			l.processed.Add(1)
		}
	}
}

// Post queues fn. It blocks while the queue is full and returns false if
// the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case <-l.done:
		return false
	case l.tasks <- fn:
		return true
	}
}

// Do runs fn on the loop and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Processed returns the number of functions run so far.
func (l *Loop) Processed() uint64 {
	return l.processed.Load()
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// AfterFunc implements gaze.Scheduler. The callback is posted back onto
// the loop instead of running on the timer goroutine.
func (l *Loop) AfterFunc(d time.Duration, f func()) gaze.Timer {
	return &loopTimer{t: time.AfterFunc(d, func() {
		if !l.Post(f) {
			l.log.Debug("timer fired after loop stopped", "delay", d)
		}
	})}
}

type loopTimer struct {
	t *time.Timer
}

func (t *loopTimer) Stop() bool {
	return t.t.Stop()
}

var _ gaze.Scheduler = (*Loop)(nil)
