// Package journal records gaze activity in a SQLite database so dwell
// behaviour can be reviewed after a session.
package journal

import "time"

// Kind distinguishes the journal event types.
type Kind string

const (
	// KindState is a target reaching a new state.
	KindState Kind = "state"
	// KindInvoke is a dwell invocation.
	KindInvoke Kind = "invoke"
	// KindEyesOff is the synthetic event raised when gaze is lost.
	KindEyesOff Kind = "eyes_off"
)

// Session is one run of the daemon.
type Session struct {
	ID        int64
	StartedAt time.Time
	EndedAt   *time.Time
	Host      string
}

// Event is a single journal row.
type Event struct {
	ID        int64
	SessionID int64
	At        time.Time
	Kind      Kind
	Element   string
	State     string
	Elapsed   time.Duration
	Handled   bool
}

// ElementStats aggregates the events recorded for one element.
type ElementStats struct {
	Element      string
	StateChanges int64
	Invocations  int64
	Handled      int64
	LongestDwell time.Duration
	LastSeen     time.Time
}

// Summary is the journal-wide view returned by Stats.
type Summary struct {
	Sessions int64
	Events   int64
	EyesOff  int64
	Elements []ElementStats
}
