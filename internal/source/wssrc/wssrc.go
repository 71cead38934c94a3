// Package wssrc accepts gaze streams over websocket connections.
//
// Each text message is one JSON source.Frame:
//
//	{"type": "entered", "timestamp": 1000}
//	{"type": "moved", "points": [{"timestamp": 1016, "x": 640, "y": 360}]}
//	{"type": "exited", "timestamp": 2000}
//
// A rejected frame is answered with {"error": "..."} and the connection
// stays open.
package wssrc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"gazeinput/internal/source"
)

// DefaultReadLimit bounds a single frame.
const DefaultReadLimit = 64 << 10

// Sink receives decoded frames.
type Sink interface {
	Deliver(f source.Frame) error
}

// Handler is the websocket endpoint trackers connect to.
type Handler struct {
	sink           Sink
	originPatterns []string
	readLimit      int64
	log            *slog.Logger

	active atomic.Int64
	total  atomic.Uint64
}

// NewHandler creates a handler delivering into sink. originPatterns are
// the cross-origin hosts accepted besides same-origin requests.
func NewHandler(sink Sink, originPatterns []string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		sink:           sink,
		originPatterns: originPatterns,
		readLimit:      DefaultReadLimit,
		log:            logger.With("component", "wssrc"),
	}
}

// Connections returns the open and total connection counts.
func (h *Handler) Connections() (active int64, total uint64) {
	return h.active.Load(), h.total.Load()
}

type errorReply struct {
	Error string `json:"error"`
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.log.Warn("websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(h.readLimit)

	h.active.Add(1)
	h.total.Add(1)
	defer h.active.Add(-1)

	h.log.Info("tracker connected", "remote", r.RemoteAddr)
	status, reason := h.serve(r.Context(), conn, r.RemoteAddr)
	if err := conn.Close(status, reason); err != nil {
		h.log.Debug("websocket close", "remote", r.RemoteAddr, "error", err)
	}
	h.log.Info("tracker disconnected", "remote", r.RemoteAddr, "reason", reason)
}

func (h *Handler) serve(ctx context.Context, conn *websocket.Conn, remote string) (websocket.StatusCode, string) {
	var entered bool
	var last uint64

	// a tracker that vanishes while entered leaves the pointer entered
	defer func() {
		if entered {
			if err := h.sink.Deliver(source.Frame{Type: source.FrameExited, Timestamp: last}); err != nil {
				h.log.Debug("implicit exit dropped", "remote", remote, "error", err)
			}
		}
	}()

	for {
		_, data, err := conn.Read(ctx)
		switch {
		case err == nil:
		case websocket.CloseStatus(err) != -1:
			return websocket.StatusNormalClosure, "closed by client"
		case errors.Is(err, context.Canceled):
			return websocket.StatusGoingAway, "server shutting down"
		default:
			h.log.Warn("websocket read failed", "remote", remote, "error", err)
			return websocket.StatusInternalError, "read failed"
		}

		var f source.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			h.reply(ctx, conn, remote, "malformed frame")
			continue
		}
		if err := h.sink.Deliver(f); err != nil {
			if errors.Is(err, source.ErrStopped) {
				return websocket.StatusGoingAway, "server shutting down"
			}
			h.reply(ctx, conn, remote, err.Error())
			continue
		}

		last = max(last, f.Last())
		switch f.Type {
		case source.FrameEntered, source.FrameMoved:
			entered = true
		case source.FrameExited:
			entered = false
		}
	}
}

func (h *Handler) reply(ctx context.Context, conn *websocket.Conn, remote, msg string) {
	if err := wsjson.Write(ctx, conn, errorReply{Error: msg}); err != nil {
		h.log.Debug("websocket reply failed", "remote", remote, "error", err)
	}
}
