package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"gazeinput/internal/gaze"
	"gazeinput/internal/journal"
)

func (d *daemon) router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/health", d.health.Handler().ServeHTTP)
	r.Get(d.cfg.Server.MetricsPath, d.serveMetrics)
	r.Get(d.cfg.Server.WebSocketPath, d.ws.ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", d.serveStats)
		r.Get("/history", d.serveHistory)
		r.Get("/cursor", d.serveCursor)
		r.Get("/targets", d.serveTargets)
		r.Post("/elements/{name}/invoke", d.serveInvoke)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (d *daemon) serveMetrics(w http.ResponseWriter, r *http.Request) {
	d.metrics.UpdateUptime()
	d.registry.HTTPHandler().ServeHTTP(w, r)
}

type statsResponse struct {
	Frames      uint64           `json:"frames"`
	Samples     uint64           `json:"samples"`
	Connections int64            `json:"connections"`
	Dispatched  uint64           `json:"dispatched"`
	Metrics     map[string]int64 `json:"metrics"`
	Journal     *journal.Summary `json:"journal,omitempty"`
}

// serveStats reports transport counters and, with a journal, per element
// statistics. ?since=1h limits the journal window.
func (d *daemon) serveStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		Dispatched: d.loop.Processed(),
		Metrics:    d.registry.Snapshot(),
	}
	resp.Frames, resp.Samples = d.hub.Stats()
	resp.Connections, _ = d.ws.Connections()

	if d.journal != nil {
		var since time.Time
		if s := r.URL.Query().Get("since"); s != "" {
			window, err := time.ParseDuration(s)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid since: "+err.Error())
				return
			}
			since = time.Now().Add(-window)
		}
		sum, err := d.journal.Stats(since)
		if err != nil {
			d.log.Error("journal stats", "error", err)
			writeError(w, http.StatusInternalServerError, "journal unavailable")
			return
		}
		resp.Journal = sum
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *daemon) serveHistory(w http.ResponseWriter, r *http.Request) {
	if d.journal == nil {
		writeError(w, http.StatusNotFound, "journal disabled")
		return
	}
	q := r.URL.Query()
	query := journal.HistoryQuery{
		Element: q.Get("element"),
		Kind:    journal.Kind(q.Get("kind")),
		Limit:   100,
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		query.Limit = n
	}
	events, err := d.journal.History(query)
	if err != nil {
		d.log.Error("journal history", "error", err)
		writeError(w, http.StatusInternalServerError, "journal unavailable")
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (d *daemon) serveCursor(w http.ResponseWriter, r *http.Request) {
	var cursor gaze.Cursor
	if err := d.loop.Do(r.Context(), func() { cursor = *d.pointer.Cursor() }); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cursor)
}

type targetView struct {
	Element       string        `json:"element"`
	State         string        `json:"state"`
	Elapsed       time.Duration `json:"elapsed_ns"`
	NextStateTime time.Duration `json:"next_state_time_ns"`
	RepeatCount   int           `json:"repeat_count"`
}

func (d *daemon) serveTargets(w http.ResponseWriter, r *http.Request) {
	var targets []targetView
	err := d.loop.Do(r.Context(), func() {
		for _, t := range d.pointer.ActiveTargets() {
			targets = append(targets, targetView{
				Element:       journal.ElementName(t.Element),
				State:         t.State.String(),
				Elapsed:       t.ElapsedTime(),
				NextStateTime: t.NextStateTime,
				RepeatCount:   t.RepeatCount,
			})
		}
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, targets)
}

var errNoSuchElement = errors.New("no such element")

// serveInvoke invokes a layout element by name, as a dwell would.
func (d *daemon) serveInvoke(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var invokeErr error
	err := d.loop.Do(r.Context(), func() {
		n := d.layout.Root.Find(name)
		if n == nil {
			invokeErr = errNoSuchElement
			return
		}
		if !n.CanInvoke() {
			invokeErr = errors.New("element is not invokable")
			return
		}
		d.pointer.InvokeTarget(n)
	})
	switch {
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(invokeErr, errNoSuchElement):
		writeError(w, http.StatusNotFound, invokeErr.Error())
	case invokeErr != nil:
		writeError(w, http.StatusConflict, invokeErr.Error())
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
