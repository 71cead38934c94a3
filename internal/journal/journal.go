package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"gazeinput/internal/gaze"
)

var (
	// ErrNoSession is returned when recording without an open session.
	ErrNoSession = errors.New("journal: no open session")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("journal: closed")
)

// Options tune Open.
type Options struct {
	// BusyTimeout is passed to sqlite as _busy_timeout.
	BusyTimeout time.Duration
	// Retention drops sessions that started longer ago. Zero keeps all.
	Retention time.Duration
	Logger    *slog.Logger
}

// Journal is the SQLite event journal.
type Journal struct {
	db  *sql.DB
	log *slog.Logger

	mu      sync.Mutex
	session int64
	closed  bool

	// now is replaced in tests.
	now func() time.Time
}

// Open opens or creates the journal at path and migrates its schema.
func Open(path string, opts Options) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d",
		path, opts.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// sqlite allows one writer; a single connection keeps WAL simple.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	j := &Journal{db: db, log: log.With("component", "journal"), now: time.Now}

	if opts.Retention > 0 {
		n, err := j.Prune(j.now().Add(-opts.Retention))
		if err != nil {
			db.Close()
			return nil, err
		}
		if n > 0 {
			j.log.Info("pruned old sessions", "count", n)
		}
	}
	return j, nil
}

// Close ends the open session and closes the database.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	if err := j.EndSession(); err != nil && !errors.Is(err, ErrNoSession) && !errors.Is(err, ErrClosed) {
		j.log.Warn("end session on close", "error", err)
	}
	j.mu.Lock()
	j.closed = true
	j.mu.Unlock()
	return j.db.Close()
}

// Ping checks the database connection.
func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// BeginSession opens a new session, ending any previous one.
func (j *Journal) BeginSession(host string) (int64, error) {
	if err := j.EndSession(); err != nil && !errors.Is(err, ErrNoSession) {
		return 0, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return 0, ErrClosed
	}

	result, err := j.db.Exec(`INSERT INTO sessions (started_ns, host) VALUES (?, ?)`,
		j.now().UnixNano(), host)
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	j.session = id
	return id, nil
}

// EndSession closes the open session.
func (j *Journal) EndSession() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	if j.session == 0 {
		return ErrNoSession
	}

	if _, err := j.db.Exec(`UPDATE sessions SET ended_ns = ? WHERE id = ?`,
		j.now().UnixNano(), j.session); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	j.session = 0
	return nil
}

// CurrentSession returns the open session id, or zero.
func (j *Journal) CurrentSession() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.session
}

// Record appends e to the open session. Zero At is stamped with the
// current time.
func (j *Journal) Record(e Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	if j.session == 0 {
		return ErrNoSession
	}
	if e.At.IsZero() {
		e.At = j.now()
	}

	_, err := j.db.Exec(`
		INSERT INTO events (session_id, at_ns, kind, element, state, elapsed_us, handled)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		j.session, e.At.UnixNano(), string(e.Kind), e.Element, e.State,
		e.Elapsed.Microseconds(), e.Handled,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Prune deletes sessions started before cutoff together with their events.
func (j *Journal) Prune(cutoff time.Time) (int64, error) {
	result, err := j.db.Exec(`DELETE FROM sessions WHERE started_ns < ? AND ended_ns IS NOT NULL`,
		cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return n, nil
}

// Sessions returns the most recent sessions, newest first.
func (j *Journal) Sessions(limit int) ([]Session, error) {
	rows, err := j.db.Query(`
		SELECT id, started_ns, ended_ns, COALESCE(host, '')
		FROM sessions
		ORDER BY started_ns DESC, id DESC
		LIMIT ?`, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		var started int64
		var ended sql.NullInt64
		if err := rows.Scan(&s.ID, &started, &ended, &s.Host); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s.StartedAt = time.Unix(0, started)
		if ended.Valid {
			t := time.Unix(0, ended.Int64)
			s.EndedAt = &t
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// HistoryQuery filters History. Zero fields match everything.
type HistoryQuery struct {
	Element   string
	Kind      Kind
	SessionID int64
	Since     time.Time
	Limit     int
}

// History returns matching events, newest first.
func (j *Journal) History(q HistoryQuery) ([]Event, error) {
	var since int64
	if !q.Since.IsZero() {
		since = q.Since.UnixNano()
	}
	rows, err := j.db.Query(`
		SELECT id, session_id, at_ns, kind, element, state, elapsed_us, handled
		FROM events
		WHERE (? = '' OR element = ?)
		  AND (? = '' OR kind = ?)
		  AND (? = 0 OR session_id = ?)
		  AND at_ns >= ?
		ORDER BY at_ns DESC, id DESC
		LIMIT ?`,
		q.Element, q.Element,
		string(q.Kind), string(q.Kind),
		q.SessionID, q.SessionID,
		since, limitOrAll(q.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// Stats aggregates events since the given time per element.
func (j *Journal) Stats(since time.Time) (*Summary, error) {
	var sinceNs int64
	if !since.IsZero() {
		sinceNs = since.UnixNano()
	}

	sum := &Summary{}
	err := j.db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM sessions),
			COUNT(*),
			COALESCE(SUM(kind = 'eyes_off'), 0)
		FROM events WHERE at_ns >= ?`, sinceNs,
	).Scan(&sum.Sessions, &sum.Events, &sum.EyesOff)
	if err != nil {
		return nil, fmt.Errorf("query totals: %w", err)
	}

	rows, err := j.db.Query(`
		SELECT element,
			SUM(kind = 'state'),
			SUM(kind = 'invoke'),
			SUM(kind = 'invoke' AND handled),
			COALESCE(MAX(CASE WHEN kind = 'state' AND state IN ('Dwell', 'DwellRepeat') THEN elapsed_us END), 0),
			MAX(at_ns)
		FROM events
		WHERE kind != 'eyes_off' AND at_ns >= ?
		GROUP BY element
		ORDER BY SUM(kind = 'invoke') DESC, element ASC`, sinceNs)
	if err != nil {
		return nil, fmt.Errorf("query element stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s ElementStats
		var longestUs, lastNs int64
		if err := rows.Scan(&s.Element, &s.StateChanges, &s.Invocations, &s.Handled, &longestUs, &lastNs); err != nil {
			return nil, fmt.Errorf("scan element stats: %w", err)
		}
		s.LongestDwell = time.Duration(longestUs) * time.Microsecond
		s.LastSeen = time.Unix(0, lastNs)
		sum.Elements = append(sum.Elements, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate element stats: %w", err)
	}
	return sum, nil
}

// Attach records every state change and invocation raised by p.
// Invocations are recorded once all invoke listeners have run, so Handled
// is final. Write failures are logged, never returned to the pointer.
func (j *Journal) Attach(p *gaze.Pointer) []gaze.Subscription {
	return []gaze.Subscription{
		p.OnStateChanged(func(ev gaze.StateChangedEvent) {
			e := Event{Kind: KindState, Element: ElementName(ev.Element), State: ev.State.String(), Elapsed: ev.Elapsed}
			if ev.Element == nil {
				e.Kind = KindEyesOff
			}
			j.recordOrLog(e)
		}),
		p.OnInvokeDone(func(ev gaze.InvokedEvent) {
			j.recordOrLog(Event{Kind: KindInvoke, Element: ElementName(ev.Element), State: ev.State.String(), Handled: ev.Handled})
		}),
	}
}

func (j *Journal) recordOrLog(e Event) {
	if err := j.Record(e); err != nil && !errors.Is(err, ErrClosed) {
		j.log.Warn("journal write failed", "kind", e.Kind, "element", e.Element, "error", err)
	}
}

// ElementName renders e for storage. Elements implementing fmt.Stringer
// use their own name.
func ElementName(e gaze.Element) string {
	switch v := e.(type) {
	case nil:
		return ""
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%T@%p", e, e)
	}
}

func limitOrAll(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var e Event
		var atNs, elapsedUs int64
		var kind string
		if err := rows.Scan(&e.ID, &e.SessionID, &atNs, &kind, &e.Element, &e.State, &elapsedUs, &e.Handled); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.At = time.Unix(0, atNs)
		e.Kind = Kind(kind)
		e.Elapsed = time.Duration(elapsedUs) * time.Microsecond
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
