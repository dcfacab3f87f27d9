// Package feedtest provides a scripted in-memory feed.Source for tests.
package feedtest

import (
	"context"
	"sync"
	"time"

	"commentwatch/internal/feed"
)

// Step is one scripted result of Stream.Next. Exactly one of Event or Err is used.
type Step struct {
	Event feed.Event
	Err   error
	// Delay is waited (ctx-aware) before the step is returned.
	Delay time.Duration
}

// Ev is a shorthand for an event step.
func Ev(e feed.Event) Step { return Step{Event: e} }

// Fail is a shorthand for an error step.
func Fail(err error) Step { return Step{Err: err} }

type script struct {
	openErr error
	steps   []Step
}

// Open records one call to Source.Open.
type Open struct {
	At   time.Time
	Opts feed.OpenOptions
}

// Source replays one script per Open call, in order. Once scripts run out,
// Open returns a stream that blocks until its context ends.
//
// History holds events that already exist at Open time; they are replayed
// first unless OpenOptions.SkipExisting is set.
type Source struct {
	mu      sync.Mutex
	name    string
	scripts []script
	opens   []Open
	History []feed.Event
	closed  int
}

func New(name string) *Source {
	if name == "" {
		name = "Test"
	}
	return &Source{name: name}
}

func (s *Source) Name() string { return s.name }

// Script queues the steps for the next session.
func (s *Source) Script(steps ...Step) *Source {
	s.mu.Lock()
	s.scripts = append(s.scripts, script{steps: steps})
	s.mu.Unlock()
	return s
}

// FailOpen queues an Open failure.
func (s *Source) FailOpen(err error) *Source {
	s.mu.Lock()
	s.scripts = append(s.scripts, script{openErr: err})
	s.mu.Unlock()
	return s
}

// Opens returns every recorded Open call.
func (s *Source) Opens() []Open {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Open(nil), s.opens...)
}

// Closed returns how many streams were closed.
func (s *Source) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Source) Open(ctx context.Context, opts feed.OpenOptions) (feed.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens = append(s.opens, Open{At: time.Now(), Opts: opts})

	var sc script
	if len(s.scripts) > 0 {
		sc = s.scripts[0]
		s.scripts = s.scripts[1:]
	}
	if sc.openErr != nil {
		return nil, sc.openErr
	}

	var steps []Step
	if !opts.SkipExisting {
		for _, ev := range s.History {
			steps = append(steps, Ev(ev))
		}
	}
	steps = append(steps, sc.steps...)
	return &stream{src: s, steps: steps, done: make(chan struct{})}, nil
}

type stream struct {
	src   *Source
	mu    sync.Mutex
	steps []Step
	once  sync.Once
	done  chan struct{}
}

func (st *stream) Next(ctx context.Context) (feed.Event, error) {
	st.mu.Lock()
	if len(st.steps) == 0 {
		st.mu.Unlock()
		select {
		case <-ctx.Done():
			return feed.Event{}, ctx.Err()
		case <-st.done:
			return feed.Event{}, feed.ErrEndOfStream
		}
	}
	step := st.steps[0]
	st.steps = st.steps[1:]
	st.mu.Unlock()

	if step.Delay > 0 {
		t := time.NewTimer(step.Delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return feed.Event{}, ctx.Err()
		case <-t.C:
		}
	}
	if step.Err != nil {
		return feed.Event{}, step.Err
	}
	return step.Event, nil
}

func (st *stream) Close() error {
	st.once.Do(func() {
		close(st.done)
		st.src.mu.Lock()
		st.src.closed++
		st.src.mu.Unlock()
	})
	return nil
}
