package notifier

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commentwatch/internal/alert"
	"commentwatch/internal/eventbus"
	"commentwatch/internal/feed"
	"commentwatch/internal/notifier/webhook"
	logx "commentwatch/pkg/logx"
)

type recordingSink struct {
	mu    sync.Mutex
	texts []string
	err   error
	delay time.Duration
}

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) Send(ctx context.Context, text string) error {
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return r.err
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.texts)
}

func testAlert() alert.Alert {
	return alert.New(feed.Event{ID: "c1", Author: "a", Body: "Selling my pair, DM to buy", Channel: "x", Permalink: "/r/x/c1"}, "Reddit", "DM to buy", "")
}

func TestNotifyWebhook204(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink, err := webhook.New(webhook.Config{URL: srv.URL})
	require.NoError(t, err)

	bus := eventbus.New()
	ch, unsub := bus.Subscribe(4)
	defer unsub()

	n := New(Config{}, sink, logx.Nop(), bus)
	require.NoError(t, n.Notify(context.Background(), testAlert()))

	ev := <-ch
	assert.Equal(t, eventbus.AlertSent, ev.Type)
	assert.Equal(t, "c1", ev.Data.(eventbus.AlertEvent).EventID)

	recent := n.Recent()
	require.Len(t, recent, 1)
	assert.Equal(t, "sent", recent[0].Outcome)
}

func TestNotifyWebhook500(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink, err := webhook.New(webhook.Config{URL: srv.URL})
	require.NoError(t, err)

	n := New(Config{}, sink, logx.Nop(), nil)
	var notifyErr error
	require.NotPanics(t, func() { notifyErr = n.Notify(context.Background(), testAlert()) })

	require.Error(t, notifyErr)
	assert.ErrorIs(t, notifyErr, ErrSend)
	var se *webhook.StatusError
	require.ErrorAs(t, notifyErr, &se)
	assert.Equal(t, 500, se.Code)
	assert.Equal(t, "failed", n.Recent()[0].Outcome)
}

func TestNotifyNilSinkSkips(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(1)
	defer unsub()

	n := New(Config{}, nil, logx.Nop(), bus)
	assert.NoError(t, n.Notify(context.Background(), testAlert()))
	assert.Equal(t, "none", n.SinkName())
	assert.Equal(t, eventbus.AlertSkipped, (<-ch).Type)
	assert.NoError(t, n.SendText(context.Background(), "status"))
}

func TestNotifyRateLimited(t *testing.T) {
	sink := &recordingSink{}
	n := New(Config{Timeout: 50 * time.Millisecond, RatePerSec: 0.01, Burst: 2}, sink, logx.Nop(), nil)

	require.NoError(t, n.Notify(context.Background(), testAlert()))
	require.NoError(t, n.Notify(context.Background(), testAlert()))

	start := time.Now()
	err := n.Notify(context.Background(), testAlert())
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 2, sink.count())
}

func TestNotifyTimeoutIsSendError(t *testing.T) {
	sink := &recordingSink{delay: time.Second}
	n := New(Config{Timeout: 30 * time.Millisecond}, sink, logx.Nop(), nil)

	err := n.Notify(context.Background(), testAlert())
	assert.ErrorIs(t, err, ErrSend)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNotifySinkError(t *testing.T) {
	sink := &recordingSink{err: errors.New("unreachable")}
	n := New(Config{}, sink, logx.Nop(), nil)
	err := n.Notify(context.Background(), testAlert())
	assert.ErrorIs(t, err, ErrSend)
	assert.Contains(t, err.Error(), "recording: unreachable")
}

func TestRecentIsBounded(t *testing.T) {
	n := New(Config{HistorySize: 2, RatePerSec: 1000, Burst: 100}, &recordingSink{}, logx.Nop(), nil)
	for i := 0; i < 5; i++ {
		require.NoError(t, n.Notify(context.Background(), testAlert()))
	}
	assert.Len(t, n.Recent(), 2)
}
