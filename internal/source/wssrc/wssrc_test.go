package wssrc

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gazeinput/internal/source"
)

type chanSink struct {
	frames chan source.Frame
}

func (s *chanSink) Deliver(f source.Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}
	s.frames <- f
	return nil
}

func (s *chanSink) next(t *testing.T) source.Frame {
	t.Helper()
	select {
	case f := <-s.frames:
		return f
	case <-time.After(5 * time.Second):
		t.Fatal("no frame delivered")
		return source.Frame{}
	}
}

func setup(t *testing.T) (*Handler, *chanSink, *websocket.Conn, context.Context) {
	t.Helper()
	sink := &chanSink{frames: make(chan source.Frame, 16)}
	h := NewHandler(sink, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	conn, _, err := websocket.Dial(ctx, "ws://"+strings.TrimPrefix(srv.URL, "http://"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return h, sink, conn, ctx
}

func TestFramesAreDelivered(t *testing.T) {
	_, sink, conn, ctx := setup(t)

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"type":"entered","timestamp":100}`)))
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"type":"moved","points":[{"timestamp":116,"x":10,"y":20}]}`)))
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"type":"exited","timestamp":200}`)))

	assert.Equal(t, source.FrameEntered, sink.next(t).Type)
	moved := sink.next(t)
	assert.Equal(t, source.FrameMoved, moved.Type)
	require.Len(t, moved.Points, 1)
	assert.Equal(t, 10.0, *moved.Points[0].X)
	assert.Equal(t, source.FrameExited, sink.next(t).Type)
}

func TestBadFramesGetErrorReplies(t *testing.T) {
	_, sink, conn, ctx := setup(t)

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{not json`)))
	var reply errorReply
	require.NoError(t, wsjson.Read(ctx, conn, &reply))
	assert.Equal(t, "malformed frame", reply.Error)

	require.NoError(t, wsjson.Write(ctx, conn, source.Frame{Type: "blink"}))
	require.NoError(t, wsjson.Read(ctx, conn, &reply))
	assert.Contains(t, reply.Error, "unknown frame type")

	// the connection survives rejected frames
	require.NoError(t, wsjson.Write(ctx, conn, source.Frame{Type: source.FrameEntered, Timestamp: 5}))
	assert.Equal(t, uint64(5), sink.next(t).Timestamp)
}

func TestDisconnectWhileEnteredExits(t *testing.T) {
	h, sink, conn, ctx := setup(t)

	x, y := 1.0, 2.0
	require.NoError(t, wsjson.Write(ctx, conn, source.Frame{Type: source.FrameEntered, Timestamp: 100}))
	require.NoError(t, wsjson.Write(ctx, conn, source.Frame{Type: source.FrameMoved, Points: []source.Sample{{Timestamp: 250, X: &x, Y: &y}}}))
	sink.next(t)
	sink.next(t)

	active, total := h.Connections()
	assert.Equal(t, int64(1), active)
	assert.Equal(t, uint64(1), total)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))

	exit := sink.next(t)
	assert.Equal(t, source.FrameExited, exit.Type)
	assert.Equal(t, uint64(250), exit.Timestamp)

	require.Eventually(t, func() bool {
		active, _ := h.Connections()
		return active == 0
	}, 5*time.Second, 10*time.Millisecond)
}
