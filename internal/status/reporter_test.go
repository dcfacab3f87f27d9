package status

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"commentwatch/internal/eventbus"
	logx "commentwatch/pkg/logx"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type textSink struct {
	mu    sync.Mutex
	texts []string
}

func (s *textSink) SendText(_ context.Context, text string) error {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.mu.Unlock()
	return nil
}

func (s *textSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

func TestObserveAndReport(t *testing.T) {
	sink := &textSink{}
	r := New(Config{Notify: true}, nil, sink, logx.Nop())
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	for _, typ := range []string{
		eventbus.SessionOpened, eventbus.EventMatched, eventbus.EventMatched,
		eventbus.AlertSent, eventbus.AlertFailed, eventbus.SessionFailed, "unrelated",
	} {
		r.observe(eventbus.Event{Type: typ})
	}

	rep := r.report(context.Background())
	assert.Equal(t, 2, rep.Window.Matches)
	assert.Equal(t, 1, rep.Window.AlertsSent)
	assert.Equal(t, 1, rep.Window.AlertsFailed)
	assert.Equal(t, 1, rep.Window.Sessions)
	assert.Equal(t, 1, rep.Window.Failures)
	assert.Same(t, r.Last(), r.Last())
	assert.Equal(t, fixed, r.Last().At)

	texts := sink.snapshot()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "2 matches, 1 alerts sent, 1 failed")

	// window resets
	rep = r.report(context.Background())
	assert.Zero(t, rep.Window.Matches)
	assert.Equal(t, fixed, rep.Window.Since)
}

func TestReportWithoutNotify(t *testing.T) {
	sink := &textSink{}
	r := New(Config{}, nil, sink, logx.Nop())
	r.report(context.Background())
	assert.Empty(t, sink.snapshot())
}

func TestRunRejectsBadSchedule(t *testing.T) {
	r := New(Config{Schedule: "whenever"}, nil, nil, logx.Nop())
	assert.Error(t, r.Run(context.Background()))
	assert.False(t, New(Config{}, nil, nil, logx.Nop()).Enabled())
}

func TestRunReportsOnSchedule(t *testing.T) {
	bus := eventbus.New()
	sink := &textSink{}
	r := New(Config{Schedule: "@every 1s", Timezone: "UTC", Notify: true}, bus, sink, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	// wait for the subscription before publishing
	time.Sleep(50 * time.Millisecond)
	eventbus.Publish(bus, eventbus.EventMatched, eventbus.AlertEvent{EventID: "c1"})

	require.Eventually(t, func() bool { return len(sink.snapshot()) > 0 }, 3*time.Second, 20*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.True(t, strings.HasPrefix(sink.snapshot()[0], "📊 commentwatch status"))
	assert.Contains(t, sink.snapshot()[0], ": 1 matches")
}
