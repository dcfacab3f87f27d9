package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSender struct {
	mu   sync.Mutex
	msgs []string
}

func (c *captureSender) Send(_ context.Context, text string) error {
	c.mu.Lock()
	c.msgs = append(c.msgs, text)
	c.mu.Unlock()
	return nil
}

func (c *captureSender) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.msgs...)
}

func TestZeroLoggerIsNoop(t *testing.T) {
	var l Logger
	assert.True(t, l.IsZero())
	l.Info("nothing happens", String("k", "v"))
	assert.False(t, l.With(String("comp", "x")).IsZero())
}

func TestNewWriterEmitsFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "test"))
	log.Warn("hello", Int("n", 3), Err(assert.AnError))

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	assert.Equal(t, "hello", m["message"])
	assert.Equal(t, "test", m["comp"])
	assert.Equal(t, float64(3), m["n"])
	assert.Equal(t, "warn", m["level"])
	assert.Contains(t, m, "caller")
}

func TestNewWriterRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	log.Info("dropped")
	assert.Zero(t, buf.Len())
	assert.False(t, log.Enabled(LevelInfo))
	assert.True(t, log.Enabled(LevelError))
}

func TestRemoteSinkForwardsAboveMinLevel(t *testing.T) {
	sender := &captureSender{}
	svc, log := New(Config{
		Level:  "debug",
		Remote: RemoteConfig{Enabled: true, MinLevel: "warn", RatePerSec: 10},
	}, sender)
	t.Cleanup(func() { _ = svc.Close() })

	log.Info("not forwarded")
	log.Error("stream down", String("channel", "rhodeskin"))

	require.Eventually(t, func() bool { return len(sender.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	msg := sender.snapshot()[0]
	assert.Contains(t, msg, "[ERROR] stream down")
	assert.Contains(t, msg, "channel=rhodeskin")
}

func TestRemoteSinkRateLimited(t *testing.T) {
	sender := &captureSender{}
	svc, log := New(Config{
		Level:  "info",
		Remote: RemoteConfig{Enabled: true, MinLevel: "warn", RatePerSec: 1},
	}, sender)
	t.Cleanup(func() { _ = svc.Close() })

	for i := 0; i < 5; i++ {
		log.Warn("burst")
	}
	require.Eventually(t, func() bool { return len(sender.snapshot()) >= 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(4), svc.Dropped())
}

func TestFormatRemoteJSONTruncatesAndSorts(t *testing.T) {
	line := `{"level":"warn","message":"m","b":"2","a":"1","time":"x"}`
	out := formatRemoteJSON([]byte(line))
	assert.Equal(t, "[WARN] m\n- a=1\n- b=2", out)

	assert.Equal(t, "not json", formatRemoteJSON([]byte(" not json \n")))
}

func TestValidLevel(t *testing.T) {
	assert.True(t, ValidLevel(""))
	assert.True(t, ValidLevel("warning"))
	assert.False(t, ValidLevel("loud"))
}
