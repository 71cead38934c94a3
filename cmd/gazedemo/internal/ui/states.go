package ui

import (
	"fmt"
	"sync"
	"time"

	"gazeinput/internal/gaze"
	"gazeinput/internal/uitree"
)

// DefaultRecent is how many events the activity list keeps.
const DefaultRecent = 12

// States mirrors the gaze state of every node for the UI goroutine.
// Pointer events arrive on the dispatch loop; the window reads
// snapshots between frames.
type States struct {
	mu      sync.Mutex
	current map[*uitree.Node]gaze.PointerState
	invoked map[*uitree.Node]time.Time
	counts  map[*uitree.Node]int
	recent  []string
	limit   int
	eyesOff int
	changed func()
	now     func() time.Time
}

// NewStates creates a mirror. changed is called after every update and
// may be nil.
func NewStates(changed func()) *States {
	if changed == nil {
		changed = func() {}
	}
	return &States{
		current: make(map[*uitree.Node]gaze.PointerState),
		invoked: make(map[*uitree.Node]time.Time),
		counts:  make(map[*uitree.Node]int),
		limit:   DefaultRecent,
		changed: changed,
		now:     time.Now,
	}
}

// Attach subscribes to p. It must run on p's execution context.
func (s *States) Attach(p *gaze.Pointer) gaze.Subscription {
	return p.OnStateChanged(s.stateChanged)
}

func (s *States) stateChanged(ev gaze.StateChangedEvent) {
	s.mu.Lock()
	if ev.Element == nil {
		s.eyesOff++
		clear(s.current)
		s.push("eyes off")
	} else if n, ok := ev.Element.(*uitree.Node); ok {
		state := ev.State
		if state == gaze.DwellRepeat {
			state = gaze.Dwell
		}
		if state == gaze.Exit {
			delete(s.current, n)
		} else {
			s.current[n] = state
		}
		s.push(fmt.Sprintf("%s %s (%s)", n.Name, ev.State, ev.Elapsed.Round(time.Millisecond)))
	}
	s.mu.Unlock()
	s.changed()
}

// Invoked records that n ran its action. Install it with
// uitree.Layout.OnInvoke so handled invocations are not counted.
func (s *States) Invoked(n *uitree.Node) {
	s.mu.Lock()
	s.invoked[n] = s.now()
	s.counts[n]++
	s.push(fmt.Sprintf("%s invoked (%s)", n.Name, n.Action))
	s.mu.Unlock()
	s.changed()
}

// push appends to the activity list. s.mu must be held.
func (s *States) push(line string) {
	s.recent = append(s.recent, line)
	if over := len(s.recent) - s.limit; over > 0 {
		s.recent = append(s.recent[:0], s.recent[over:]...)
	}
}

// State returns the current state of n, Exit when untracked.
func (s *States) State(n *uitree.Node) gaze.PointerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.current[n]; ok {
		return st
	}
	return gaze.Exit
}

// InvokedWithin reports whether n was invoked in the last d.
func (s *States) InvokedWithin(n *uitree.Node, d time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.invoked[n]
	return ok && s.now().Sub(at) < d
}

// Invocations returns how often n ran its action.
func (s *States) Invocations(n *uitree.Node) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[n]
}

// Recent returns the activity list, newest last.
func (s *States) Recent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.recent...)
}

// EyesOff returns how often the eyes-off timer fired.
func (s *States) EyesOff() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eyesOff
}
