// Package stream wraps one connection to a feed.Source.
//
// A Session never reconnects. Once it fails it keeps returning the same
// error and the caller opens a new one.
package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"commentwatch/internal/feed"
	"commentwatch/internal/metrics"
	logx "commentwatch/pkg/logx"
)

type State int32

const (
	Connecting State = iota
	Streaming
	Failed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case Streaming:
		return "STREAMING"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

type Config struct {
	Channels []string
	// DecodePause is slept after a malformed event.
	DecodePause time.Duration
}

type Session struct {
	id       string
	src      feed.Source
	stream   feed.Stream
	cfg      Config
	log      logx.Logger
	openedAt time.Time

	mu    sync.Mutex
	state State
	err   error

	history uint64
}

// Open connects to src, asking only for events that arrive from now on.
// Failures are returned as *feed.TransportError.
func Open(ctx context.Context, src feed.Source, cfg Config, log logx.Logger) (*Session, error) {
	if cfg.DecodePause < 0 {
		cfg.DecodePause = 0
	}
	s := &Session{
		id:       uuid.NewString(),
		src:      src,
		cfg:      cfg,
		openedAt: time.Now(),
		state:    Connecting,
	}
	s.log = log.With(logx.String("session", s.id))

	st, err := src.Open(ctx, feed.OpenOptions{
		Channels:     cfg.Channels,
		Since:        s.openedAt,
		SkipExisting: true,
	})
	if err != nil {
		s.state = Failed
		return nil, feed.AsTransport("open", err)
	}
	s.stream = st
	s.state = Streaming
	s.log.Info("stream session opened", logx.String("source", src.Name()), logx.Strings("channels", cfg.Channels))
	return s, nil
}

func (s *Session) ID() string          { return s.id }
func (s *Session) OpenedAt() time.Time { return s.openedAt }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// HistoryDropped returns how many pre-open events the guard discarded.
func (s *Session) HistoryDropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history
}

// Next returns the next new event. Decode errors are absorbed with a pause.
// Any other failure moves the session to FAILED and is returned as a
// *feed.TransportError on this and every later call. ctx cancellation is
// returned as-is and does not fail the session.
func (s *Session) Next(ctx context.Context) (feed.Event, error) {
	for {
		if err := s.failure(); err != nil {
			return feed.Event{}, err
		}

		ev, err := s.stream.Next(ctx)
		if err == nil {
			if s.isHistory(ev) {
				s.mu.Lock()
				s.history++
				s.mu.Unlock()
				metrics.RecordHistoryDropped()
				s.log.Debug("dropped pre-session event", logx.String("event_id", ev.ID), logx.Time("created", ev.Created))
				continue
			}
			return ev, nil
		}

		if ctx.Err() != nil {
			return feed.Event{}, ctx.Err()
		}

		if feed.IsDecode(err) {
			metrics.RecordEventError(metrics.ErrorDecode)
			s.log.Warn("skipping malformed event", logx.Err(err), logx.Duration("pause", s.cfg.DecodePause))
			if perr := sleepCtx(ctx, s.cfg.DecodePause); perr != nil {
				return feed.Event{}, perr
			}
			continue
		}

		op := "next"
		if errors.Is(err, feed.ErrEndOfStream) {
			op = "eof"
		}
		return feed.Event{}, s.fail(feed.AsTransport(op, err))
	}
}

// Close releases the connection. The session is FAILED afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state != Failed {
		s.state = Failed
		s.err = &feed.TransportError{Op: "closed", Err: feed.ErrEndOfStream}
	}
	s.mu.Unlock()
	if s.stream == nil {
		return nil
	}
	return s.stream.Close()
}

// Created is second precision on Reddit, so compare whole seconds.
func (s *Session) isHistory(ev feed.Event) bool {
	if ev.Created.IsZero() {
		return false
	}
	return ev.Created.Unix() < s.openedAt.Unix()
}

func (s *Session) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Failed {
		return s.err
	}
	return nil
}

func (s *Session) fail(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Failed {
		s.state = Failed
		s.err = err
	}
	return s.err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
