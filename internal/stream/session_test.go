package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commentwatch/internal/feed"
	"commentwatch/internal/feed/feedtest"
	logx "commentwatch/pkg/logx"
)

func TestOpenRequestsOnlyNewEvents(t *testing.T) {
	src := feedtest.New("Reddit")
	src.History = []feed.Event{{ID: "old"}}
	src.Script(feedtest.Ev(feed.Event{ID: "new"}))

	s, err := Open(context.Background(), src, Config{Channels: []string{"x"}}, logx.Nop())
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, Streaming, s.State())
	assert.NotEmpty(t, s.ID())

	opens := src.Opens()
	require.Len(t, opens, 1)
	assert.True(t, opens[0].Opts.SkipExisting)
	assert.Equal(t, []string{"x"}, opens[0].Opts.Channels)
	assert.Equal(t, s.OpenedAt(), opens[0].Opts.Since)

	ev, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new", ev.ID)
}

func TestNextDropsEventsCreatedBeforeOpen(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	src := feedtest.New("")
	src.Script(
		feedtest.Ev(feed.Event{ID: "h1", Created: past}),
		feedtest.Ev(feed.Event{ID: "h2", Created: past.Add(time.Minute)}),
		feedtest.Ev(feed.Event{ID: "n1", Created: time.Now().Add(time.Minute)}),
		feedtest.Ev(feed.Event{ID: "n2"}),
	)

	s, err := Open(context.Background(), src, Config{}, logx.Nop())
	require.NoError(t, err)
	defer s.Close()

	var got []string
	for i := 0; i < 2; i++ {
		ev, err := s.Next(context.Background())
		require.NoError(t, err)
		got = append(got, ev.ID)
	}
	assert.Equal(t, []string{"n1", "n2"}, got)
	assert.Equal(t, uint64(2), s.HistoryDropped())
}

func TestDecodeErrorPausesAndContinues(t *testing.T) {
	src := feedtest.New("")
	src.Script(
		feedtest.Fail(&feed.DecodeError{EventID: "bad", Err: errors.New("junk")}),
		feedtest.Ev(feed.Event{ID: "ok"}),
	)

	s, err := Open(context.Background(), src, Config{DecodePause: 30 * time.Millisecond}, logx.Nop())
	require.NoError(t, err)
	defer s.Close()

	start := time.Now()
	ev, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", ev.ID)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, Streaming, s.State())
}

func TestTransportErrorIsSticky(t *testing.T) {
	boom := errors.New("connection reset")
	src := feedtest.New("")
	src.Script(feedtest.Fail(boom), feedtest.Ev(feed.Event{ID: "never"}))

	s, err := Open(context.Background(), src, Config{}, logx.Nop())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Next(context.Background())
	var te *feed.TransportError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Failed, s.State())

	_, err2 := s.Next(context.Background())
	assert.Same(t, err, err2)
}

func TestEndOfStream(t *testing.T) {
	src := feedtest.New("")
	src.Script(feedtest.Fail(feed.ErrEndOfStream))

	s, err := Open(context.Background(), src, Config{}, logx.Nop())
	require.NoError(t, err)
	_, err = s.Next(context.Background())
	assert.ErrorIs(t, err, feed.ErrEndOfStream)
	var te *feed.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "eof", te.Op)
}

func TestOpenFailureIsTransportError(t *testing.T) {
	src := feedtest.New("").FailOpen(errors.New("dns"))
	_, err := Open(context.Background(), src, Config{}, logx.Nop())
	var te *feed.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "open", te.Op)
}

func TestNextHonoursContext(t *testing.T) {
	src := feedtest.New("")
	s, err := Open(context.Background(), src, Config{}, logx.Nop())
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, Streaming, s.State())
}

func TestCloseFailsSession(t *testing.T) {
	src := feedtest.New("")
	s, err := Open(context.Background(), src, Config{}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.Equal(t, Failed, s.State())
	assert.Equal(t, 1, src.Closed())

	_, err = s.Next(context.Background())
	assert.ErrorIs(t, err, feed.ErrEndOfStream)
}
