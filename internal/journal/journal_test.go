package journal

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gazeinput/internal/gaze"
	"gazeinput/internal/uitree"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"), Options{
		BusyTimeout: time.Second,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

// fixedClock returns a clock advancing one second per call.
func fixedClock(start time.Time) func() time.Time {
	now := start
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func TestOpenCreatesDirectoryAndMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "journal.db")
	j, err := Open(path, Options{})
	require.NoError(t, err)
	defer j.Close()

	v, err := currentVersion(j.db)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion(), v)

	// reopening does not reapply migrations
	require.NoError(t, j.Close())
	j2, err := Open(path, Options{})
	require.NoError(t, err)
	defer j2.Close()
	v, err = currentVersion(j2.db)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion(), v)
}

func TestRecordRequiresSession(t *testing.T) {
	j := openTestJournal(t)

	err := j.Record(Event{Kind: KindState, Element: "a", State: "Enter"})
	assert.ErrorIs(t, err, ErrNoSession)
	assert.ErrorIs(t, j.EndSession(), ErrNoSession)
}

func TestSessionsLifecycle(t *testing.T) {
	j := openTestJournal(t)
	j.now = fixedClock(time.Unix(1000, 0))

	first, err := j.BeginSession("host-a")
	require.NoError(t, err)
	second, err := j.BeginSession("host-b")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, second, j.CurrentSession())

	sessions, err := j.Sessions(0)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "host-b", sessions[0].Host)
	assert.Nil(t, sessions[0].EndedAt)
	require.NotNil(t, sessions[1].EndedAt, "beginning a session ends the previous one")

	require.NoError(t, j.EndSession())
	assert.Zero(t, j.CurrentSession())
}

func TestHistoryFilters(t *testing.T) {
	j := openTestJournal(t)
	j.now = fixedClock(time.Unix(1000, 0))
	_, err := j.BeginSession("host")
	require.NoError(t, err)

	records := []Event{
		{Kind: KindState, Element: "root/a", State: "Enter"},
		{Kind: KindState, Element: "root/a", State: "Dwell", Elapsed: 850 * time.Millisecond},
		{Kind: KindInvoke, Element: "root/a", State: "Dwell"},
		{Kind: KindState, Element: "root/b", State: "Enter"},
		{Kind: KindEyesOff, State: "Enter", Elapsed: 2500 * time.Millisecond},
	}
	for _, r := range records {
		require.NoError(t, j.Record(r))
	}

	all, err := j.History(HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, KindEyesOff, all[0].Kind, "newest first")
	assert.Equal(t, 2500*time.Millisecond, all[0].Elapsed)

	tests := []struct {
		name  string
		query HistoryQuery
		want  int
	}{
		{"by element", HistoryQuery{Element: "root/a"}, 3},
		{"by kind", HistoryQuery{Kind: KindInvoke}, 1},
		{"element and kind", HistoryQuery{Element: "root/a", Kind: KindState}, 2},
		{"limit", HistoryQuery{Limit: 2}, 2},
		{"since", HistoryQuery{Since: all[1].At}, 2},
		{"other session", HistoryQuery{SessionID: 99}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := j.History(tt.query)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestStats(t *testing.T) {
	j := openTestJournal(t)
	j.now = fixedClock(time.Unix(1000, 0))
	_, err := j.BeginSession("host")
	require.NoError(t, err)

	for _, r := range []Event{
		{Kind: KindState, Element: "a", State: "Dwell", Elapsed: 900 * time.Millisecond},
		{Kind: KindInvoke, Element: "a", State: "Dwell"},
		{Kind: KindState, Element: "a", State: "DwellRepeat", Elapsed: 1700 * time.Millisecond},
		{Kind: KindInvoke, Element: "a", State: "Dwell", Handled: true},
		{Kind: KindState, Element: "b", State: "Fixation", Elapsed: 450 * time.Millisecond},
		{Kind: KindEyesOff, State: "Enter"},
	} {
		require.NoError(t, j.Record(r))
	}

	sum, err := j.Stats(time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Sessions)
	assert.Equal(t, int64(6), sum.Events)
	assert.Equal(t, int64(1), sum.EyesOff)
	require.Len(t, sum.Elements, 2)

	a := sum.Elements[0]
	assert.Equal(t, "a", a.Element)
	assert.Equal(t, int64(2), a.StateChanges)
	assert.Equal(t, int64(2), a.Invocations)
	assert.Equal(t, int64(1), a.Handled)
	assert.Equal(t, 1700*time.Millisecond, a.LongestDwell)

	b := sum.Elements[1]
	assert.Equal(t, "b", b.Element)
	assert.Zero(t, b.Invocations)
	assert.Zero(t, b.LongestDwell, "fixation is not a dwell")
}

func TestPruneDropsEndedSessions(t *testing.T) {
	j := openTestJournal(t)
	j.now = fixedClock(time.Unix(1000, 0))

	_, err := j.BeginSession("old")
	require.NoError(t, err)
	require.NoError(t, j.Record(Event{Kind: KindState, Element: "a", State: "Enter"}))
	_, err = j.BeginSession("current")
	require.NoError(t, err)

	n, err := j.Prune(time.Unix(1000, 0).Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "the open session survives")

	events, err := j.History(HistoryQuery{})
	require.NoError(t, err)
	assert.Empty(t, events, "events cascade with their session")
}

func TestClosedJournalRejectsWrites(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"), Options{})
	require.NoError(t, err)
	_, err = j.BeginSession("host")
	require.NoError(t, err)
	require.NoError(t, j.Close())

	assert.ErrorIs(t, j.Record(Event{Kind: KindState}), ErrClosed)
	_, err = j.BeginSession("again")
	assert.ErrorIs(t, err, ErrClosed)
}

type idleScheduler struct{}

func (idleScheduler) AfterFunc(time.Duration, func()) gaze.Timer { return idleTimer{} }

type idleTimer struct{}

func (idleTimer) Stop() bool { return true }

func TestAttachRecordsPointerEvents(t *testing.T) {
	j := openTestJournal(t)
	j.now = fixedClock(time.Unix(1000, 0))
	_, err := j.BeginSession("host")
	require.NoError(t, err)

	root := uitree.NewNode("screen", uitree.XYWH(0, 0, 1000, 1000))
	button := root.Add(uitree.NewNode("button", uitree.XYWH(0, 0, 100, 100)))
	button.Action = "press"

	p, err := gaze.New(gaze.Options{
		HitTester: uitree.HitTester{},
		Scheduler: idleScheduler{},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	gaze.SetGazeEnabled(p.Store(), root, gaze.Enabled)
	p.AddRoot(root)

	subs := j.Attach(p)
	require.Len(t, subs, 2)

	for ts := 50 * time.Millisecond; ts <= 1200*time.Millisecond; ts += 50 * time.Millisecond {
		require.NoError(t, p.ProcessGazePoint(ts, gaze.Point{X: 50, Y: 50}))
	}
	assert.Equal(t, 1, button.Invocations())

	invokes, err := j.History(HistoryQuery{Kind: KindInvoke})
	require.NoError(t, err)
	require.Len(t, invokes, 1)
	assert.Equal(t, "screen/button", invokes[0].Element)

	states, err := j.History(HistoryQuery{Element: "screen/button", Kind: KindState})
	require.NoError(t, err)
	var names []string
	for i := len(states) - 1; i >= 0; i-- {
		names = append(names, states[i].State)
	}
	assert.Equal(t, []string{"Enter", "Fixation", "Dwell"}, names)

	for _, s := range subs {
		s.Cancel()
	}
	require.NoError(t, p.ProcessGazePoint(1300*time.Millisecond, gaze.Point{X: 500, Y: 500}))
	after, err := j.History(HistoryQuery{})
	require.NoError(t, err)
	assert.Len(t, after, len(states)+1, "cancelled subscriptions record nothing")
}

func TestAttachRecordsInvokeOutcome(t *testing.T) {
	j := openTestJournal(t)
	j.now = fixedClock(time.Unix(1000, 0))
	_, err := j.BeginSession("host")
	require.NoError(t, err)

	root := uitree.NewNode("screen", uitree.XYWH(0, 0, 1000, 1000))
	button := root.Add(uitree.NewNode("button", uitree.XYWH(0, 0, 100, 100)))
	button.Action = "press"

	p, err := gaze.New(gaze.Options{
		HitTester: uitree.HitTester{},
		Scheduler: idleScheduler{},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	gaze.SetGazeEnabled(p.Store(), root, gaze.Enabled)
	gaze.SetMaxRepeatCount(p.Store(), button, 1)
	p.AddRoot(root)

	j.Attach(p)
	// a listener added after the journal decides the repeat
	p.OnInvoked(func(ev *gaze.InvokedEvent) {
		if ev.State == gaze.DwellRepeat {
			ev.Handled = true
		}
	})

	for ts := 50 * time.Millisecond; ts <= 2400*time.Millisecond; ts += 50 * time.Millisecond {
		require.NoError(t, p.ProcessGazePoint(ts, gaze.Point{X: 50, Y: 50}))
	}
	assert.Equal(t, 1, button.Invocations())

	invokes, err := j.History(HistoryQuery{Kind: KindInvoke})
	require.NoError(t, err)
	require.Len(t, invokes, 2)
	// newest first
	assert.Equal(t, "DwellRepeat", invokes[0].State)
	assert.True(t, invokes[0].Handled)
	assert.Equal(t, "Dwell", invokes[1].State)
	assert.False(t, invokes[1].Handled)
}

func TestElementName(t *testing.T) {
	assert.Equal(t, "", ElementName(nil))
	assert.Equal(t, "screen", ElementName(uitree.NewNode("screen", uitree.Rect{})))
}
