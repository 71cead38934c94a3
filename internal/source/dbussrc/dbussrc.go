// Package dbussrc receives gaze streams from an eye-tracker daemon on the
// desktop bus.
//
// The daemon emits three signals on its interface:
//
//	GazeEntered(t timestamp)
//	GazeExited(t timestamp)
//	GazeMoved(at timestamps, ad xs, ad ys, ab valid)
//
// A single-sample GazeMoved(t timestamp, d x, d y, b valid) is accepted
// as well. Timestamps are microseconds.
package dbussrc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/godbus/dbus/v5"

	"gazeinput/internal/source"
)

// Signal members.
const (
	MemberEntered = "GazeEntered"
	MemberMoved   = "GazeMoved"
	MemberExited  = "GazeExited"
)

// ErrUnknownBus is returned for a bus name other than session or system.
var ErrUnknownBus = errors.New("dbussrc: unknown bus")

// Sink receives decoded frames.
type Sink interface {
	Deliver(f source.Frame) error
}

// Config selects the bus and the signals to listen to.
type Config struct {
	Bus       string
	Interface string
	Path      string
}

// Source listens for tracker signals.
type Source struct {
	conn *dbus.Conn
	cfg  Config
	sink Sink
	log  *slog.Logger
}

// Connect opens a private connection to the configured bus.
func Connect(cfg Config, sink Sink, logger *slog.Logger) (*Source, error) {
	var conn *dbus.Conn
	var err error
	switch cfg.Bus {
	case "session", "":
		conn, err = dbus.ConnectSessionBus()
	case "system":
		conn, err = dbus.ConnectSystemBus()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBus, cfg.Bus)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to %s bus: %w", cfg.Bus, err)
	}
	return New(conn, cfg, sink, logger), nil
}

// New wraps an existing connection.
func New(conn *dbus.Conn, cfg Config, sink Sink, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		conn: conn,
		cfg:  cfg,
		sink: sink,
		log:  logger.With("component", "dbussrc", "interface", cfg.Interface),
	}
}

// Run forwards signals to the sink until ctx is done or the connection
// closes.
func (s *Source) Run(ctx context.Context) error {
	opts := []dbus.MatchOption{dbus.WithMatchInterface(s.cfg.Interface)}
	if s.cfg.Path != "" {
		opts = append(opts, dbus.WithMatchObjectPath(dbus.ObjectPath(s.cfg.Path)))
	}
	if err := s.conn.AddMatchSignal(opts...); err != nil {
		return fmt.Errorf("add match: %w", err)
	}
	defer func() {
		if err := s.conn.RemoveMatchSignal(opts...); err != nil {
			s.log.Debug("remove match", "error", err)
		}
	}()

	signals := make(chan *dbus.Signal, 64)
	s.conn.Signal(signals)
	defer s.conn.RemoveSignal(signals)

	s.log.Info("listening for tracker signals", "path", s.cfg.Path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-signals:
			if !ok {
				return errors.New("dbussrc: connection closed")
			}
			s.handle(sig)
		}
	}
}

func (s *Source) handle(sig *dbus.Signal) {
	f, err := DecodeSignal(sig, s.cfg.Interface)
	if err != nil {
		if !errors.Is(err, errForeign) {
			s.log.Warn("undecodable signal", "name", sig.Name, "error", err)
		}
		return
	}
	if err := s.sink.Deliver(f); err != nil {
		s.log.Warn("frame rejected", "type", f.Type, "error", err)
	}
}

// Close closes the bus connection.
func (s *Source) Close() error {
	return s.conn.Close()
}

var errForeign = errors.New("dbussrc: signal from another interface")

// DecodeSignal turns a tracker signal into a frame.
func DecodeSignal(sig *dbus.Signal, iface string) (source.Frame, error) {
	member, ok := strings.CutPrefix(sig.Name, iface+".")
	if !ok {
		return source.Frame{}, errForeign
	}

	switch member {
	case MemberEntered, MemberExited:
		ts, err := timestampArg(sig.Body)
		if err != nil {
			return source.Frame{}, fmt.Errorf("%s: %w", member, err)
		}
		typ := source.FrameEntered
		if member == MemberExited {
			typ = source.FrameExited
		}
		return source.Frame{Type: typ, Timestamp: ts}, nil
	case MemberMoved:
		points, err := movedArgs(sig.Body)
		if err != nil {
			return source.Frame{}, fmt.Errorf("%s: %w", member, err)
		}
		return source.Frame{Type: source.FrameMoved, Points: points}, nil
	default:
		return source.Frame{}, fmt.Errorf("dbussrc: unknown member %q", member)
	}
}

func timestampArg(body []any) (uint64, error) {
	if len(body) != 1 {
		return 0, fmt.Errorf("want 1 argument, got %d", len(body))
	}
	ts, ok := body[0].(uint64)
	if !ok {
		return 0, fmt.Errorf("timestamp has type %T, want uint64", body[0])
	}
	return ts, nil
}

func movedArgs(body []any) ([]source.Sample, error) {
	if len(body) != 4 {
		return nil, fmt.Errorf("want 4 arguments, got %d", len(body))
	}

	// single sample
	if ts, ok := body[0].(uint64); ok {
		x, okX := body[1].(float64)
		y, okY := body[2].(float64)
		valid, okV := body[3].(bool)
		if !okX || !okY || !okV {
			return nil, errors.New("single sample wants (t d d b)")
		}
		return []source.Sample{sample(ts, x, y, valid)}, nil
	}

	ts, okT := body[0].([]uint64)
	xs, okX := body[1].([]float64)
	ys, okY := body[2].([]float64)
	valid, okV := body[3].([]bool)
	if !okT || !okX || !okY || !okV {
		return nil, errors.New("batch wants (at ad ad ab)")
	}
	if len(xs) != len(ts) || len(ys) != len(ts) || len(valid) != len(ts) {
		return nil, fmt.Errorf("batch arrays differ in length: %d %d %d %d", len(ts), len(xs), len(ys), len(valid))
	}
	samples := make([]source.Sample, len(ts))
	for i := range ts {
		samples[i] = sample(ts[i], xs[i], ys[i], valid[i])
	}
	return samples, nil
}

func sample(ts uint64, x, y float64, valid bool) source.Sample {
	s := source.Sample{Timestamp: ts}
	if valid {
		s.X, s.Y = &x, &y
	}
	return s
}
