// Package monitor runs the feed consumer: a RUNNING/BACKOFF loop that keeps
// one stream session open, matches each event, and notifies on hits.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"commentwatch/internal/alert"
	"commentwatch/internal/eventbus"
	"commentwatch/internal/feed"
	"commentwatch/internal/match"
	"commentwatch/internal/metrics"
	"commentwatch/internal/stream"
	logx "commentwatch/pkg/logx"
)

type State int32

const (
	Running State = iota
	Backoff
)

func (s State) String() string {
	if s == Backoff {
		return "BACKOFF"
	}
	return "RUNNING"
}

type Config struct {
	Channels []string
	// Backoff is the minimum pause between a failure and the next session.
	Backoff time.Duration
	// Jitter adds a uniform random delay in [0, Jitter] on top of Backoff.
	Jitter      time.Duration
	DecodePause time.Duration
	LinkBase    string
}

// Notifier is the part of *notifier.Notifier the loop needs.
type Notifier interface {
	Notify(ctx context.Context, a alert.Alert) error
}

type Deps struct {
	Source   feed.Source
	Matcher  *match.Matcher
	Notifier Notifier
	Log      logx.Logger
	Bus      eventbus.Bus
}

// Stats is a best-effort snapshot for /healthz and status reports.
type Stats struct {
	State         string    `json:"state"`
	SessionID     string    `json:"session_id,omitempty"`
	Sessions      uint64    `json:"sessions"`
	Failures      uint64    `json:"failures"`
	Events        uint64    `json:"events"`
	Matches       uint64    `json:"matches"`
	LastError     string    `json:"last_error,omitempty"`
	LastFailureAt time.Time `json:"last_failure_at,omitempty"`
}

type Supervisor struct {
	cfg  Config
	deps Deps
	log  logx.Logger
	rng  *rand.Rand

	state    atomic.Int32
	sessions atomic.Uint64
	failures atomic.Uint64
	events   atomic.Uint64
	matches  atomic.Uint64

	mu        sync.Mutex
	sessionID string
	lastErr   string
	lastFail  time.Time
}

func New(cfg Config, deps Deps) (*Supervisor, error) {
	if deps.Source == nil {
		return nil, errors.New("monitor: feed source is required")
	}
	if deps.Matcher == nil {
		return nil, errors.New("monitor: matcher is required")
	}
	if deps.Notifier == nil {
		return nil, errors.New("monitor: notifier is required")
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 10 * time.Second
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	if cfg.DecodePause < 0 {
		cfg.DecodePause = 0
	}
	return &Supervisor{
		cfg:  cfg,
		deps: deps,
		log:  deps.Log.With(logx.String("comp", "monitor")),
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

func (s *Supervisor) State() State { return State(s.state.Load()) }

func (s *Supervisor) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		State:         s.State().String(),
		SessionID:     s.sessionID,
		Sessions:      s.sessions.Load(),
		Failures:      s.failures.Load(),
		Events:        s.events.Load(),
		Matches:       s.matches.Load(),
		LastError:     s.lastErr,
		LastFailureAt: s.lastFail,
	}
}

// Run blocks until ctx is cancelled and then returns nil. Feed failures never
// end it.
func (s *Supervisor) Run(ctx context.Context) error {
	s.log.Info("monitor started",
		logx.String("source", s.deps.Source.Name()),
		logx.Strings("channels", s.cfg.Channels),
		logx.Strings("triggers", s.deps.Matcher.Triggers()),
		logx.Duration("backoff", s.cfg.Backoff),
	)
	defer s.log.Info("monitor stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}
		s.setState(Running)

		err := s.runSession(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = &feed.TransportError{Op: "session", Err: feed.ErrEndOfStream}
		}
		s.noteFailure(err)

		delay := s.nextDelay()
		s.setState(Backoff)
		s.log.Warn("stream failed; reconnecting", logx.Err(err), logx.Duration("delay", delay))
		eventbus.Publish(s.deps.Bus, eventbus.SupervisorBackoff, eventbus.SessionEvent{Delay: delay, Error: err.Error()})
		metrics.RecordBackoff(delay.Seconds())

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func (s *Supervisor) runSession(ctx context.Context) error {
	sess, err := stream.Open(ctx, s.deps.Source, stream.Config{
		Channels:    s.cfg.Channels,
		DecodePause: s.cfg.DecodePause,
	}, s.log)
	if err != nil {
		metrics.RecordSession(metrics.SessionOpenFailed)
		eventbus.Publish(s.deps.Bus, eventbus.SessionFailed, eventbus.SessionEvent{Channels: s.cfg.Channels, Error: err.Error()})
		return err
	}
	defer sess.Close()

	s.sessions.Add(1)
	s.mu.Lock()
	s.sessionID = sess.ID()
	s.mu.Unlock()
	metrics.RecordSession(metrics.SessionOpened)
	eventbus.Publish(s.deps.Bus, eventbus.SessionOpened, eventbus.SessionEvent{SessionID: sess.ID(), Channels: s.cfg.Channels})

	for {
		ev, err := sess.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			metrics.RecordSession(metrics.SessionFailed)
			eventbus.Publish(s.deps.Bus, eventbus.SessionFailed, eventbus.SessionEvent{SessionID: sess.ID(), Channels: s.cfg.Channels, Error: err.Error()})
			return err
		}
		s.handle(ctx, ev)
	}
}

// handle runs one event through match and notify. Nothing here may end the session.
func (s *Supervisor) handle(ctx context.Context, ev feed.Event) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordEventError(metrics.ErrorPipeline)
			s.log.Error("event pipeline panicked", logx.String("event_id", ev.ID), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			s.pause(ctx)
		}
	}()

	s.events.Add(1)
	metrics.RecordEvent()

	trigger, ok := s.deps.Matcher.Find(ev.Body)
	if !ok {
		return
	}
	s.matches.Add(1)
	metrics.RecordMatch(trigger)
	s.log.Info("match found", logx.String("event_id", ev.ID), logx.String("channel", ev.Channel), logx.String("trigger", trigger))
	eventbus.Publish(s.deps.Bus, eventbus.EventMatched, eventbus.AlertEvent{EventID: ev.ID, Channel: ev.Channel, Trigger: trigger})

	a := alert.New(ev, s.deps.Source.Name(), trigger, s.cfg.LinkBase)
	if err := s.deps.Notifier.Notify(ctx, a); err != nil {
		// Already logged by the notifier; the alert is dropped.
		s.log.Debug("alert dropped", logx.String("event_id", ev.ID), logx.Err(err))
	}
}

func (s *Supervisor) pause(ctx context.Context) {
	if s.cfg.DecodePause <= 0 {
		return
	}
	t := time.NewTimer(s.cfg.DecodePause)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// nextDelay is Backoff plus up to Jitter, never below 1ms.
func (s *Supervisor) nextDelay() time.Duration {
	d := s.cfg.Backoff
	if s.cfg.Jitter > 0 {
		d += time.Duration(s.rng.Int63n(int64(s.cfg.Jitter) + 1))
	}
	return max(d, time.Millisecond)
}

func (s *Supervisor) setState(st State) {
	s.state.Store(int32(st))
	metrics.SetRunning(st == Running)
}

func (s *Supervisor) noteFailure(err error) {
	s.failures.Add(1)
	s.mu.Lock()
	s.lastErr = fmt.Sprint(err)
	s.lastFail = time.Now()
	s.sessionID = ""
	s.mu.Unlock()
}
