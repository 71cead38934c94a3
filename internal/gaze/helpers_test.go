package gaze

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testNode struct {
	name      string
	parent    *testNode
	children  []*testNode
	x0, y0    float64
	x1, y1    float64
	invokable bool
	invokes   int
}

func newTestNode(name string, x0, y0, x1, y1 float64) *testNode {
	return &testNode{name: name, x0: x0, y0: y0, x1: x1, y1: y1}
}

func (n *testNode) add(name string, x0, y0, x1, y1 float64, invokable bool) *testNode {
	c := newTestNode(name, x0, y0, x1, y1)
	c.parent = n
	c.invokable = invokable
	n.children = append(n.children, c)
	return c
}

func (n *testNode) Parent() Element {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

func (n *testNode) CanInvoke() bool { return n.invokable }
func (n *testNode) Invoke()         { n.invokes++ }
func (n *testNode) String() string  { return n.name }

func (n *testNode) contains(p Point) bool {
	return p.X >= n.x0 && p.X < n.x1 && p.Y >= n.y0 && p.Y < n.y1
}

type testHitTester struct{}

func (testHitTester) ElementsAt(root Element, p Point) []Element {
	n, ok := root.(*testNode)
	if !ok || !n.contains(p) {
		return nil
	}
	var out []Element
	for i := len(n.children) - 1; i >= 0; i-- {
		out = append(out, testHitTester{}.ElementsAt(n.children[i], p)...)
	}
	return append(out, n)
}

type manualTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type manualScheduler struct {
	timers []*manualTimer
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	t := &manualTimer{d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

// fire runs the newest pending timer.
func (s *manualScheduler) fire() bool {
	for i := len(s.timers) - 1; i >= 0; i-- {
		t := s.timers[i]
		if !t.stopped {
			t.stopped = true
			t.f()
			return true
		}
	}
	return false
}

type fakeSource struct {
	handler   InputHandler
	cancelled int
}

func (s *fakeSource) Subscribe(h InputHandler) Subscription {
	s.handler = h
	return NewSubscription(func() {
		s.handler = nil
		s.cancelled++
	})
}

var (
	buttonPt = Point{X: 150, Y: 150}
	otherPt  = Point{X: 350, Y: 350}
	emptyPt  = Point{X: 900, Y: 900}
)

type fixture struct {
	p      *Pointer
	root   *testNode
	button *testNode
	other  *testNode
	sched  *manualScheduler
	source *fakeSource
	events []StateChangedEvent
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newFixture builds a root with two invokable buttons. Enter and Fixation
// happen on the first positive gaze time, Dwell after 1s, Exit after 0.5s.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		root:   newTestNode("root", 0, 0, 1000, 1000),
		sched:  &manualScheduler{},
		source: &fakeSource{},
	}
	f.button = f.root.add("button", 100, 100, 200, 200, true)
	f.other = f.root.add("other", 300, 300, 400, 400, true)

	p, err := New(Options{
		HitTester:         testHitTester{},
		Scheduler:         f.sched,
		Source:            f.source,
		Logger:            discardLogger(),
		MaxSampleDuration: time.Second,
	})
	require.NoError(t, err)
	f.p = p

	SetGazeEnabled(p.Store(), f.root, Enabled)
	p.SetElementStateDelay(f.root, Enter, 0)
	p.SetElementStateDelay(f.root, Fixation, 0)
	p.SetElementStateDelay(f.root, Dwell, time.Second)
	p.SetElementStateDelay(f.root, DwellRepeat, 2*time.Second)
	p.SetElementStateDelay(f.root, Exit, 500*time.Millisecond)
	p.AddRoot(f.root)

	p.OnStateChanged(func(ev StateChangedEvent) {
		f.events = append(f.events, ev)
	})
	return f
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func (f *fixture) sample(t *testing.T, at int, pt Point) {
	t.Helper()
	require.NoError(t, f.p.ProcessGazePoint(ms(at), pt))
}

// eventsFor returns the recorded events of e as "State@elapsed" pairs.
func (f *fixture) eventsFor(e Element) []StateChangedEvent {
	var out []StateChangedEvent
	for _, ev := range f.events {
		if ev.Element == e {
			out = append(out, ev)
		}
	}
	return out
}

func states(events []StateChangedEvent) []PointerState {
	out := make([]PointerState, len(events))
	for i, ev := range events {
		out[i] = ev.State
	}
	return out
}
